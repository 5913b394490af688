package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/lidarqa/density-cli/internal/raster"
	"github.com/lidarqa/density-cli/internal/units"
)

var (
	checkRasters []string
	checkLimit   float64
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report the median density of rasters without writing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit := cfg.Units.Limit
		if cmd.Flags().Changed("limit") {
			limit = checkLimit
		}
		implausible, err := checkRastersTo(cmd, newRasterStore(cfg), units.NewChecker(limit), checkRasters)
		if err != nil {
			return err
		}
		if implausible > 0 {
			return eris.Errorf("%d raster(s) at or above the median limit of %g", implausible, limit)
		}
		return nil
	},
}

// checkRastersTo prints one line per raster and returns how many failed.
func checkRastersTo(cmd *cobra.Command, store raster.Store, checker *units.Checker, paths []string) (int, error) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RASTER\tTYPE\tMEDIAN\tMEAN\tPLAUSIBLE")

	implausible := 0
	for _, p := range paths {
		r, err := store.Read(p)
		if err != nil {
			return implausible, eris.Wrapf(err, "check %s", p)
		}
		median, ok := units.Median(r)
		medianText, meanText := "n/a", "n/a"
		if ok {
			mean, _ := units.Mean(r)
			medianText = fmt.Sprintf("%.3f", median)
			meanText = fmt.Sprintf("%.3f", mean)
		}
		plausible := checker.IsPlausible(r)
		if !plausible {
			implausible++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", p, r.DataType, medianText, meanText, plausible)
	}
	return implausible, tw.Flush()
}

func init() {
	checkCmd.Flags().StringSliceVar(&checkRasters, "raster", nil, "density raster to check (repeatable)")
	checkCmd.Flags().Float64Var(&checkLimit, "limit", units.DefaultLimit, "median density limit")
	_ = checkCmd.MarkFlagRequired("raster")
	rootCmd.AddCommand(checkCmd)
}
