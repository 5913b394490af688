package geo

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNoPolygons is returned when none of the requested files produced a polygon.
var ErrNoPolygons = eris.New("geo: no polygons loaded")

// Loader reads vector files into polygons in the canonical CRS.
type Loader struct {
	canonical *CRS
	log       *zap.Logger
}

// NewLoader creates a Loader that reprojects everything into canonical.
func NewLoader(canonical *CRS) *Loader {
	return &Loader{
		canonical: canonical,
		log:       zap.L().With(zap.String("component", "polygon_loader")),
	}
}

// Canonical returns the CRS the loader reprojects into.
func (l *Loader) Canonical() *CRS {
	return l.canonical
}

// Load reads every path and returns the union of their polygons. A file that
// cannot be read is logged and reported in the returned error, but the
// polygons of the other files are still returned.
func (l *Loader) Load(paths []string) ([]Polygon, error) {
	var out []Polygon
	var errs []error
	for _, p := range paths {
		polys, err := l.LoadFile(p)
		if err != nil {
			l.log.Error("failed to load vector file", zap.String("path", p), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		out = append(out, polys...)
	}
	return out, errors.Join(errs...)
}

// LoadFile reads a single shapefile or GeoJSON file.
func (l *Loader) LoadFile(path string) ([]Polygon, error) {
	var (
		parts []geom.Polygon
		crs   *CRS
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		parts, crs, err = readShapefile(path)
		if err == nil && crs == nil {
			l.log.Warn("shapefile has no .prj, assuming canonical CRS", zap.String("path", path))
			crs = l.canonical
		}
	case ".geojson", ".json":
		crs, err = ParseCRS(WGS84)
		if err == nil {
			parts, err = readGeoJSON(path)
		}
	default:
		return nil, eris.Errorf("geo: unsupported vector format %q", path)
	}
	if err != nil {
		return nil, err
	}

	polys := make([]Polygon, 0, len(parts))
	for _, g := range parts {
		p, err := Reproject(Polygon{Geom: g, CRS: crs}, l.canonical)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: reproject %s", path)
		}
		polys = append(polys, p)
	}

	l.log.Debug("loaded vector file",
		zap.String("path", path),
		zap.Int("polygons", len(polys)),
		zap.Bool("reprojected", !crs.Equal(l.canonical)),
	)
	return polys, nil
}
