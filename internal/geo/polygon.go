package geo

import (
	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
)

// Polygon is a single 2D polygon (outer ring first, then holes) tagged with
// the CRS its coordinates are expressed in.
type Polygon struct {
	Geom geom.Polygon
	CRS  *CRS
}

// Bounds returns the bounding box of the polygon in its own CRS.
func (p Polygon) Bounds() *geom.Bounds {
	return p.Geom.Bounds()
}

// Reproject returns p expressed in dst. The input is not modified.
func Reproject(p Polygon, dst *CRS) (Polygon, error) {
	if p.CRS.Equal(dst) {
		return p, nil
	}
	t, err := p.CRS.TransformTo(dst)
	if err != nil {
		return Polygon{}, err
	}
	g, err := p.Geom.Transform(t)
	if err != nil {
		return Polygon{}, eris.Wrap(err, "geo: reproject polygon")
	}
	out, ok := g.(geom.Polygon)
	if !ok {
		return Polygon{}, eris.Errorf("geo: reprojection produced %T", g)
	}
	return Polygon{Geom: out, CRS: dst}, nil
}

// ReprojectAll reprojects every polygon into dst.
func ReprojectAll(polys []Polygon, dst *CRS) ([]Polygon, error) {
	out := make([]Polygon, 0, len(polys))
	for i, p := range polys {
		rp, err := Reproject(p, dst)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: reproject polygon %d", i)
		}
		out = append(out, rp)
	}
	return out, nil
}

// BoundsOf returns the combined bounding box of polys.
func BoundsOf(polys []Polygon) *geom.Bounds {
	b := geom.NewBounds()
	for _, p := range polys {
		b.Extend(p.Bounds())
	}
	return b
}

// splitRings groups the rings of one multi-part shape into simple polygons.
// A ring nested inside an odd number of other rings is a hole and is attached
// to the smallest ring enclosing it.
func splitRings(rings [][]geom.Point) []geom.Polygon {
	var valid [][]geom.Point
	for _, r := range rings {
		if distinctPoints(r) >= 3 {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	if len(valid) == 1 {
		return []geom.Polygon{{valid[0]}}
	}

	areas := make([]float64, len(valid))
	for i, r := range valid {
		areas[i] = geom.Polygon{r}.Area()
	}

	depth := make([]int, len(valid))
	contains := make([][]bool, len(valid))
	for i := range valid {
		contains[i] = make([]bool, len(valid))
	}
	for i, r := range valid {
		for j, other := range valid {
			if i == j || areas[j] <= areas[i] {
				continue
			}
			if ringInside(r, other) {
				contains[j][i] = true
				depth[i]++
			}
		}
	}

	outerIdx := make(map[int]int)
	var polys []geom.Polygon
	for i, r := range valid {
		if depth[i]%2 == 0 {
			outerIdx[i] = len(polys)
			polys = append(polys, geom.Polygon{r})
		}
	}
	for i, r := range valid {
		if depth[i]%2 == 0 {
			continue
		}
		parent := -1
		for j := range valid {
			if !contains[j][i] || depth[j] != depth[i]-1 {
				continue
			}
			if parent < 0 || areas[j] < areas[parent] {
				parent = j
			}
		}
		if parent < 0 {
			continue
		}
		k := outerIdx[parent]
		polys[k] = append(polys[k], r)
	}
	return polys
}

// ringInside reports whether ring r lies inside ring other, judged by the
// first vertex of r that is not on the boundary of other.
func ringInside(r, other []geom.Point) bool {
	container := geom.Polygon{other}
	for _, pt := range r {
		switch pt.Within(container) {
		case geom.Inside:
			return true
		case geom.Outside:
			return false
		}
	}
	return true
}

func distinctPoints(r []geom.Point) int {
	seen := make(map[geom.Point]struct{}, len(r))
	for _, p := range r {
		seen[p] = struct{}{}
	}
	return len(seen)
}
