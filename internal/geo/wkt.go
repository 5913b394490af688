package geo

import (
	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	gogeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// ErrNotPolygonal is returned when a geometry carries no polygon parts.
var ErrNotPolygonal = eris.New("geo: geometry is not polygonal")

// FromWKT decodes a POLYGON, MULTIPOLYGON or GEOMETRYCOLLECTION into one
// Polygon per part. Z and M ordinates are dropped.
func FromWKT(s string, crs *CRS) ([]Polygon, error) {
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, eris.Wrap(err, "geo: decode WKT")
	}
	parts, err := polygonsOf(g)
	if err != nil {
		return nil, err
	}
	out := make([]Polygon, 0, len(parts))
	for _, p := range parts {
		out = append(out, Polygon{Geom: p, CRS: crs})
	}
	return out, nil
}

// ToWKT encodes p as a 2D POLYGON.
func ToWKT(p Polygon) (string, error) {
	rings := make([][]gogeom.Coord, 0, len(p.Geom))
	for _, r := range p.Geom {
		coords := make([]gogeom.Coord, 0, len(r))
		for _, pt := range r {
			coords = append(coords, gogeom.Coord{pt.X, pt.Y})
		}
		rings = append(rings, coords)
	}
	g, err := gogeom.NewPolygon(gogeom.XY).SetCoords(rings)
	if err != nil {
		return "", eris.Wrap(err, "geo: build polygon")
	}
	s, err := wkt.Marshal(g)
	if err != nil {
		return "", eris.Wrap(err, "geo: encode WKT")
	}
	return s, nil
}

// polygonsOf flattens a go-geom geometry into simple 2D polygons.
func polygonsOf(g gogeom.T) ([]geom.Polygon, error) {
	var out []geom.Polygon
	switch t := g.(type) {
	case *gogeom.Polygon:
		if p := convertPolygon(t); p != nil {
			out = append(out, p)
		}
	case *gogeom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if p := convertPolygon(t.Polygon(i)); p != nil {
				out = append(out, p)
			}
		}
	case *gogeom.GeometryCollection:
		for _, child := range t.Geoms() {
			parts, err := polygonsOf(child)
			if err != nil {
				continue
			}
			out = append(out, parts...)
		}
	default:
		return nil, eris.Wrapf(ErrNotPolygonal, "geo: got %T", g)
	}
	if len(out) == 0 {
		return nil, eris.Wrap(ErrNotPolygonal, "geo: empty geometry")
	}
	return out, nil
}

func convertPolygon(p *gogeom.Polygon) geom.Polygon {
	if p == nil || p.NumLinearRings() == 0 {
		return nil
	}
	out := make(geom.Polygon, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		coords := p.LinearRing(i).Coords()
		ring := make([]geom.Point, len(coords))
		for j, c := range coords {
			ring[j] = geom.Point{X: c.X(), Y: c.Y()}
		}
		if distinctPoints(ring) < 3 {
			if i == 0 {
				return nil
			}
			continue
		}
		out = append(out, ring)
	}
	return out
}
