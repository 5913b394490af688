package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lidarqa/density-cli/internal/geo"
)

var (
	waterProjectAreas []string
	waterDatabaseURL  string
	waterCachePath    string
	waterOut          string
)

var waterCmd = &cobra.Command{
	Use:   "water",
	Short: "Resolve the water polygons for project areas and warm the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cmd.Flags().Changed("database-url") {
			cfg.Database.URL = waterDatabaseURL
		}
		if cmd.Flags().Changed("cache") {
			cfg.Water.CachePath = waterCachePath
		}

		loader, err := newLoader(cfg)
		if err != nil {
			return err
		}
		project, err := loader.Load(waterProjectAreas)
		if len(project) == 0 {
			if err == nil {
				err = geo.ErrNoPolygons
			}
			return eris.Wrap(err, "load project area")
		}

		resolver, release, err := waterConnector(cfg, loader)(ctx)
		if err != nil {
			return eris.Wrap(err, "connect water source")
		}
		defer release()

		polys, err := resolver.Resolve(ctx, project)
		if err != nil {
			return eris.Wrap(err, "resolve water")
		}

		if waterOut != "" {
			if err := geo.WriteShapefile(waterOut, polys); err != nil {
				return err
			}
			zap.L().Info("water polygons written", zap.String("path", waterOut))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d water polygon(s) for %d project polygon(s)\n", len(polys), len(project))
		return nil
	},
}

func init() {
	waterCmd.Flags().StringSliceVar(&waterProjectAreas, "project-area", nil, "project area shapefile or GeoJSON (repeatable)")
	waterCmd.Flags().StringVar(&waterDatabaseURL, "database-url", "", "PostGIS URL holding the water layers")
	waterCmd.Flags().StringVar(&waterCachePath, "cache", "", "sqlite file caching resolved water sets")
	waterCmd.Flags().StringVar(&waterOut, "out", "", "write the resolved polygons to this shapefile")
	_ = waterCmd.MarkFlagRequired("project-area")
	rootCmd.AddCommand(waterCmd)
}
