package water

import (
	"context"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lidarqa/density-cli/internal/geo"
)

// ErrAllQueriesFailed is returned when every layer query was skipped by the
// error policy, which leaves the water set meaningless.
var ErrAllQueriesFailed = eris.New("water: every layer query failed")

// Querier fetches the WKT geometries of one layer intersecting a bounding box
// expressed in the canonical CRS.
type Querier interface {
	QueryLayer(ctx context.Context, layer string, bbox *geom.Bounds) ([]string, error)
}

// PolygonLoader reads vector files into canonical polygons.
type PolygonLoader interface {
	Load(paths []string) ([]geo.Polygon, error)
}

// QueryErrorPolicy decides what a failed layer query means. Returning nil
// skips the query; returning an error aborts resolution with it.
type QueryErrorPolicy func(layer string, err error) error

// Propagate aborts on the first query error.
func Propagate(_ string, err error) error { return err }

// SkipAndLog logs the failed query and carries on.
func SkipAndLog(layer string, err error) error {
	zap.L().Error("water layer query failed, skipping", zap.String("layer", layer), zap.Error(err))
	return nil
}

// Resolver builds the exclusion geometry for a batch of project polygons.
type Resolver struct {
	querier   Querier
	layers    []string
	canonical *geo.CRS
	loader    PolygonLoader
	oceanFile string
	policy    QueryErrorPolicy
	cache     *Cache
	log       *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithOcean unions the polygons of path, read through loader, into every result.
func WithOcean(loader PolygonLoader, path string) Option {
	return func(r *Resolver) {
		r.loader = loader
		r.oceanFile = path
	}
}

// WithQueryErrorPolicy replaces the default Propagate policy.
func WithQueryErrorPolicy(p QueryErrorPolicy) Option {
	return func(r *Resolver) { r.policy = p }
}

// WithCache serves and stores resolved sets in c.
func WithCache(c *Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// NewResolver creates a Resolver querying layers through q.
func NewResolver(q Querier, layers []string, canonical *geo.CRS, opts ...Option) *Resolver {
	r := &Resolver{
		querier:   q,
		layers:    layers,
		canonical: canonical,
		policy:    Propagate,
		log:       zap.L().With(zap.String("component", "water_resolver")),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns every water polygon whose layer geometry interacts with the
// bounding box of any project polygon, plus the ocean polygons. Duplicates
// across project polygons are kept.
func (r *Resolver) Resolve(ctx context.Context, project []geo.Polygon) ([]geo.Polygon, error) {
	var key string
	if r.cache != nil {
		k, err := CacheKey(project, r.layers, r.oceanFile)
		if err != nil {
			return nil, err
		}
		key = k
		cached, ok, err := r.cache.Get(ctx, key, r.canonical)
		if err != nil {
			r.log.Warn("water cache read failed, querying database", zap.Error(err))
		} else if ok {
			r.log.Info("water polygons served from cache", zap.Int("polygons", len(cached)))
			return cached, nil
		}
	}

	var out []geo.Polygon
	var queries, failed, malformed int
	for i, p := range project {
		p, err := geo.Reproject(p, r.canonical)
		if err != nil {
			return nil, eris.Wrapf(err, "water: project polygon %d", i)
		}
		bbox := p.Bounds()
		for _, layer := range r.layers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			queries++
			wkts, err := r.querier.QueryLayer(ctx, layer, bbox)
			if err != nil {
				if perr := r.policy(layer, err); perr != nil {
					return nil, perr
				}
				failed++
				continue
			}
			for _, s := range wkts {
				polys, err := geo.FromWKT(s, r.canonical)
				if err != nil {
					malformed++
					r.log.Warn("skipping malformed water geometry",
						zap.String("layer", layer),
						zap.Error(err),
					)
					continue
				}
				out = append(out, polys...)
			}
		}
	}
	if queries > 0 && failed == queries {
		return nil, ErrAllQueriesFailed
	}

	if r.oceanFile != "" && r.loader != nil {
		ocean, err := r.loader.Load([]string{r.oceanFile})
		if err != nil {
			return nil, eris.Wrapf(err, "water: load ocean %s", r.oceanFile)
		}
		out = append(out, ocean...)
	} else {
		r.log.Warn("no ocean file configured, coastal water will not be masked")
	}

	r.log.Info("resolved water polygons",
		zap.Int("project_polygons", len(project)),
		zap.Int("queries", queries),
		zap.Int("failed_queries", failed),
		zap.Int("malformed", malformed),
		zap.Int("polygons", len(out)),
	)

	if r.cache != nil {
		if err := r.cache.Put(ctx, key, out); err != nil {
			r.log.Warn("water cache write failed", zap.Error(err))
		}
	}
	return out, nil
}
