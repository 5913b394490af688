// Package water resolves the water polygons overlapping a set of project
// areas from PostGIS layers and a local ocean file.
package water

import (
	"context"
	"fmt"
	"strings"

	"github.com/ctessum/geom"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/lidarqa/density-cli/internal/db"
	"github.com/lidarqa/density-cli/internal/resilience"
)

// PostGIS runs any-interaction bounding box queries against allowlisted
// water layers.
type PostGIS struct {
	pool   db.Pool
	layers map[string]bool
	column string
	srid   int
	retry  resilience.RetryConfig
}

// PostGISOption configures a PostGIS querier.
type PostGISOption func(*PostGIS)

// WithRetry overrides the retry applied to transient query failures.
func WithRetry(cfg resilience.RetryConfig) PostGISOption {
	return func(p *PostGIS) { p.retry = cfg }
}

// NewPostGIS creates a querier for layers. Only these layer names may be queried.
func NewPostGIS(pool db.Pool, layers []string, geometryColumn string, srid int, opts ...PostGISOption) *PostGIS {
	allowed := make(map[string]bool, len(layers))
	for _, l := range layers {
		allowed[l] = true
	}
	if geometryColumn == "" {
		geometryColumn = "geom"
	}
	p := &PostGIS{
		pool:   pool,
		layers: allowed,
		column: geometryColumn,
		srid:   srid,
		retry:  resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *PostGIS) validateLayer(layer string) error {
	if !p.layers[layer] {
		return eris.Errorf("water: invalid layer name %q", layer)
	}
	return nil
}

// QueryLayer returns the WKT of every geometry in layer whose shape interacts
// with the bounding box. Transient failures are retried.
func (p *PostGIS) QueryLayer(ctx context.Context, layer string, bbox *geom.Bounds) ([]string, error) {
	if err := p.validateLayer(layer); err != nil {
		return nil, err
	}
	table := pgx.Identifier(strings.Split(layer, ".")).Sanitize()
	col := pgx.Identifier{p.column}.Sanitize()
	sql := fmt.Sprintf(
		`SELECT ST_AsText(ST_Force2D(%s)) FROM %s WHERE %s IS NOT NULL AND ST_Intersects(%s, ST_MakeEnvelope($1, $2, $3, $4, $5))`,
		col, table, col, col,
	)

	retry := p.retry
	retry.OnRetry = resilience.RetryLogger("postgis", "query "+layer)
	var out []string
	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		var err error
		out, err = p.query(ctx, sql, layer, bbox)
		return err
	})
	return out, err
}

func (p *PostGIS) query(ctx context.Context, sql, layer string, bbox *geom.Bounds) ([]string, error) {
	rows, err := p.pool.Query(ctx, sql, bbox.Min.X, bbox.Min.Y, bbox.Max.X, bbox.Max.Y, p.srid)
	if err != nil {
		return nil, eris.Wrapf(err, "water: query %s", layer)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var wkt string
		if err := rows.Scan(&wkt); err != nil {
			return nil, eris.Wrapf(err, "water: scan %s row", layer)
		}
		out = append(out, wkt)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "water: iterate %s rows", layer)
	}
	return out, nil
}
