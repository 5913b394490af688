package main

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lidarqa/density-cli/internal/config"
	"github.com/lidarqa/density-cli/internal/mask"
	"github.com/lidarqa/density-cli/internal/pipeline"
	"github.com/lidarqa/density-cli/internal/raster"
	"github.com/lidarqa/density-cli/internal/snapshot"
	"github.com/lidarqa/density-cli/internal/units"
)

var (
	runRasters       []string
	runProjectAreas  []string
	runOutputDir     string
	runDivisor       float64
	runLimit         float64
	runDatabaseURL   string
	runWorkers       int
	runSkipUnitCheck bool
	runSnapshot      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Unit-check, normalize and mask a batch of density rasters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		applyRunFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		loader, err := newLoader(cfg)
		if err != nil {
			return err
		}
		store := newRasterStore(cfg)

		var observer pipeline.Observer
		if cfg.Pipeline.Snapshot {
			observer = snapshot.NewRecorder(runOutputDir)
		}

		orch := pipeline.New(pipeline.Deps{
			Loader: loader,
			Water:  waterConnector(cfg, loader),
			Units: units.NewController(store,
				units.NewChecker(cfg.Units.Limit),
				units.NewNormalizer(store),
				cfg.Pipeline.Workers,
			),
			Masker: mask.New(store,
				mask.WithAllTouched(cfg.Mask.AllTouched),
				mask.WithSuffix(cfg.Mask.Suffix),
				mask.WithQuietNoOverlap(cfg.Mask.QuietNoOverlap),
			),
			Store:    store,
			Observer: observer,
		}, pipeline.Options{
			Divisor:       cfg.Units.Divisor,
			Workers:       cfg.Pipeline.Workers,
			SkipUnitCheck: runSkipUnitCheck,
		})

		m := newManifest(uuid.New().String(), time.Now(), cfg, runRasters, runProjectAreas)
		result, runErr := orch.Run(ctx, runRasters, runProjectAreas, runOutputDir)
		m.complete(result, runErr, time.Now())
		if path, err := writeManifest(runOutputDir, m); err != nil {
			zap.L().Warn("failed to write run manifest", zap.Error(err))
		} else {
			zap.L().Info("run manifest written", zap.String("path", path))
		}

		if ex, ok := pipeline.IsExhausted(runErr); ok {
			printExhausted(cmd.ErrOrStderr(), ex, cfg.Units.Limit)
			return runErr
		}
		if runErr != nil {
			return eris.Wrap(runErr, "pipeline run")
		}

		printSummary(cmd.OutOrStdout(), result)
		return nil
	},
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("divisor") {
		c.Units.Divisor = runDivisor
	}
	if flags.Changed("limit") {
		c.Units.Limit = runLimit
	}
	if flags.Changed("database-url") {
		c.Database.URL = runDatabaseURL
	}
	if flags.Changed("workers") {
		c.Pipeline.Workers = runWorkers
	}
	if flags.Changed("snapshot") {
		c.Pipeline.Snapshot = runSnapshot
	}
}

func printExhausted(w io.Writer, ex *units.ExhaustedError, limit float64) {
	fmt.Fprintf(w, "Unit check failed for %d raster(s) after %d normalization(s) by %s:\n",
		len(ex.Failed), units.MaxAttempts, raster.FormatDivisor(ex.Divisor))
	for _, p := range ex.Failed {
		fmt.Fprintf(w, "  %s\n", p)
	}
	fmt.Fprintf(w, "Their median density is still %g or more. No raster was masked.\n", limit)
	fmt.Fprintln(w, "Check the source units, then either rerun with a different --divisor")
	fmt.Fprintln(w, "or pass --skip-unit-check to mask the rasters as given.")
}

func printSummary(w io.Writer, res *pipeline.RunResult) {
	fmt.Fprintf(w, "masked %d raster(s)\n", len(res.Results))
	for _, r := range res.Results {
		out := r.OutputPath
		if out == "" {
			out = "(no valid cells, not written)"
		}
		fmt.Fprintf(w, "  %s -> %s (%d valid cells)\n", r.Source, out, r.Valid())
	}
	if len(res.MaskFailures) > 0 {
		fmt.Fprintf(w, "%d raster(s) failed to mask, see %s\n", len(res.MaskFailures), res.ErrorLog)
	}
}

func init() {
	runCmd.Flags().StringSliceVar(&runRasters, "raster", nil, "density raster to process (repeatable)")
	runCmd.Flags().StringSliceVar(&runProjectAreas, "project-area", nil, "project area shapefile or GeoJSON (repeatable)")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "directory for normalized and masked rasters")
	runCmd.Flags().Float64Var(&runDivisor, "divisor", units.DefaultDivisor, "divisor applied to implausible rasters")
	runCmd.Flags().Float64Var(&runLimit, "limit", units.DefaultLimit, "median density limit for the unit check")
	runCmd.Flags().StringVar(&runDatabaseURL, "database-url", "", "PostGIS URL holding the water layers")
	runCmd.Flags().IntVar(&runWorkers, "workers", 1, "rasters processed concurrently")
	runCmd.Flags().BoolVar(&runSkipUnitCheck, "skip-unit-check", false, "mask rasters without checking units")
	runCmd.Flags().BoolVar(&runSnapshot, "snapshot", false, "write density_values.gob with polygons and masked arrays")
	_ = runCmd.MarkFlagRequired("raster")
	_ = runCmd.MarkFlagRequired("project-area")
	_ = runCmd.MarkFlagRequired("output-dir")
	rootCmd.AddCommand(runCmd)
}
