package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lidarqa/density-cli/internal/config"
	"github.com/lidarqa/density-cli/internal/db"
	"github.com/lidarqa/density-cli/internal/gdalraster"
	"github.com/lidarqa/density-cli/internal/geo"
	"github.com/lidarqa/density-cli/internal/pipeline"
	"github.com/lidarqa/density-cli/internal/water"
)

func newLoader(c *config.Config) (*geo.Loader, error) {
	canonical, err := geo.ParseCRS(c.Pipeline.CanonicalCRS)
	if err != nil {
		return nil, eris.Wrap(err, "canonical crs")
	}
	return geo.NewLoader(canonical), nil
}

func newRasterStore(c *config.Config) *gdalraster.Store {
	return gdalraster.New(gdalraster.WithCompression(c.Pipeline.Compress))
}

// waterConnector opens the PostGIS pool (and the optional sqlite cache) when
// a run needs water polygons. The release func closes both.
func waterConnector(c *config.Config, loader *geo.Loader) pipeline.WaterConnector {
	return func(ctx context.Context) (pipeline.WaterResolver, func(), error) {
		pool, err := db.Open(ctx, c.Database.URL, db.PoolConfig{
			MaxConns:        c.Database.MaxConns,
			MinConns:        c.Database.MinConns,
			ConnectAttempts: c.Database.ConnectAttempts,
		})
		if err != nil {
			return nil, nil, err
		}

		opts := []water.Option{water.WithQueryErrorPolicy(water.SkipAndLog)}
		if c.Water.OceanFile != "" {
			opts = append(opts, water.WithOcean(loader, c.Water.OceanFile))
		}
		var cache *water.Cache
		if c.Water.CachePath != "" {
			cache, err = water.OpenCache(ctx, c.Water.CachePath)
			if err != nil {
				pool.Close()
				return nil, nil, err
			}
			opts = append(opts, water.WithCache(cache))
		}

		q := water.NewPostGIS(pool, c.Water.Layers, c.Water.GeometryColumn, c.Water.SRID)
		resolver := water.NewResolver(q, c.Water.Layers, loader.Canonical(), opts...)

		release := func() {
			if cache != nil {
				if err := cache.Close(); err != nil {
					zap.L().Warn("close water cache", zap.Error(err))
				}
			}
			pool.Close()
			zap.L().Debug("spatial database connection closed")
		}
		return resolver, release, nil
	}
}
