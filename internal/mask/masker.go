// Package mask removes out-of-project and water-covered cells from density
// rasters.
package mask

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lidarqa/density-cli/internal/geo"
	"github.com/lidarqa/density-cli/internal/raster"
)

// DefaultSuffix names the final masked artifact: <name>_MASKED<ext>.
const DefaultSuffix = "MASKED"

// Result is the masked grid of one raster. Values holds NaN wherever the
// cell is missing; DataType is the type of the raster before the float64 cast.
type Result struct {
	Source     string
	Values     []float64
	DataType   raster.DataType
	Width      int
	Height     int
	Transform  raster.GeoTransform
	OutputPath string // empty when nothing was written
}

// Valid returns the number of cells that survived masking.
func (r *Result) Valid() int {
	n := 0
	for _, v := range r.Values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Masker applies project-area and water masks to rasters read and written
// through a raster.Store.
type Masker struct {
	store      raster.Store
	allTouched bool
	suffix     string
	quiet      bool
	log        *zap.Logger
}

// Option configures a Masker.
type Option func(*Masker)

// WithAllTouched selects the all-touched rule (default) or the cell-center rule.
func WithAllTouched(v bool) Option {
	return func(m *Masker) { m.allTouched = v }
}

// WithSuffix overrides the masked filename suffix.
func WithSuffix(s string) Option {
	return func(m *Masker) {
		if s != "" {
			m.suffix = s
		}
	}
}

// WithQuietNoOverlap hides the warnings logged when a polygon set does not
// overlap the raster. Only the logger of a single Mask call is affected.
func WithQuietNoOverlap(v bool) Option {
	return func(m *Masker) { m.quiet = v }
}

// New creates a Masker.
func New(store raster.Store, opts ...Option) *Masker {
	m := &Masker{
		store:      store,
		allTouched: true,
		suffix:     DefaultSuffix,
		quiet:      true,
		log:        zap.L().With(zap.String("component", "masker")),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Mask keeps the cells of r touched by include and not touched by exclude.
// A project-area-only intermediate raster is written and removed again; the
// final raster goes to DENSITY_GRIDS_MASKED unless every cell is missing.
func (m *Masker) Mask(r *raster.DensityRaster, include, exclude []geo.Polygon, outputDir string) (*Result, error) {
	log := m.log.With(zap.String("raster", r.Path))
	if m.quiet {
		log = log.WithOptions(zap.IncreaseLevel(zapcore.ErrorLevel))
	}

	if err := r.Validate(); err != nil {
		return nil, eris.Wrapf(err, "mask: %s", r.Path)
	}
	if !r.Transform.IsNorthUp() {
		return nil, eris.Errorf("mask: %s has a rotated geotransform", r.Path)
	}

	inc, exc, err := m.inRasterCRS(r, include, exclude, log)
	if err != nil {
		return nil, err
	}

	g := gridOf(r)
	extent := r.Bounds()

	incHits := overlapping(index(inc), extent)
	if len(incHits) == 0 {
		log.Warn("project area does not overlap raster")
	}
	keep := g.cover(incHits, m.allTouched)

	intermediate := r.Clone()
	for i := range intermediate.Values {
		if !keep[i] {
			intermediate.Values[i] = math.NaN()
		}
	}
	tmpPath := raster.IntermediatePath(outputDir, r.Path, uuid.New().String())
	if err := m.store.Write(tmpPath, intermediate); err != nil {
		return nil, eris.Wrap(err, "mask: write project area raster")
	}
	defer func() {
		if rerr := m.store.Remove(tmpPath); rerr != nil {
			m.log.Warn("failed to remove intermediate raster", zap.String("path", tmpPath), zap.Error(rerr))
		}
	}()

	masked, err := m.store.Read(tmpPath)
	if err != nil {
		return nil, eris.Wrap(err, "mask: read project area raster")
	}

	excHits := overlapping(index(exc), extent)
	if len(excHits) == 0 {
		log.Warn("water polygons do not overlap raster")
	}
	drop := g.cover(excHits, m.allTouched)

	res := &Result{
		Source:    r.Path,
		Values:    make([]float64, len(masked.Values)),
		DataType:  r.DataType,
		Width:     r.Width,
		Height:    r.Height,
		Transform: r.Transform,
	}
	for i, v := range masked.Values {
		if drop[i] || masked.IsNoData(v) {
			res.Values[i] = math.NaN()
			masked.Values[i] = math.NaN()
			continue
		}
		res.Values[i] = v
	}

	valid := res.Valid()
	if valid == 0 {
		m.log.Info("masked raster has no valid cells, not writing", zap.String("raster", r.Path))
		return res, nil
	}

	out := raster.MaskedPath(outputDir, r.Path, m.suffix)
	masked.DataType = r.DataType
	masked.NoData, masked.HasNoData = r.NoDataValue(), true
	if err := m.store.Write(out, masked); err != nil {
		return nil, eris.Wrap(err, "mask: write masked raster")
	}
	res.OutputPath = out

	m.log.Info("masked raster",
		zap.String("raster", r.Path),
		zap.String("output", out),
		zap.Int("valid_cells", valid),
		zap.Int("cells", len(res.Values)),
	)
	return res, nil
}

// inRasterCRS brings the polygon sets into the raster's CRS. Polygons are
// reprojected; the raster never is.
func (m *Masker) inRasterCRS(r *raster.DensityRaster, include, exclude []geo.Polygon, log *zap.Logger) ([]geom.Polygon, []geom.Polygon, error) {
	if r.CRS == "" {
		log.Warn("raster has no CRS, assuming polygons share its grid")
		return geoms(include), geoms(exclude), nil
	}
	crs, err := geo.ParseCRS(r.CRS)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "mask: raster CRS of %s", r.Path)
	}
	inc, err := geo.ReprojectAll(include, crs)
	if err != nil {
		return nil, nil, eris.Wrap(err, "mask: reproject project area")
	}
	exc, err := geo.ReprojectAll(exclude, crs)
	if err != nil {
		return nil, nil, eris.Wrap(err, "mask: reproject water")
	}
	return geoms(inc), geoms(exc), nil
}

func geoms(polys []geo.Polygon) []geom.Polygon {
	out := make([]geom.Polygon, len(polys))
	for i, p := range polys {
		out[i] = p.Geom
	}
	return out
}
