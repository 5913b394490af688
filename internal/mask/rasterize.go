package mask

import (
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/lidarqa/density-cli/internal/raster"
)

// grid is the pixel lattice of a north-up raster.
type grid struct {
	gt raster.GeoTransform
	w  int
	h  int
}

func gridOf(r *raster.DensityRaster) grid {
	return grid{gt: r.Transform, w: r.Width, h: r.Height}
}

// indexedPolygon is stored in the rtree so candidates can be recovered by
// type assertion after a bounds search.
type indexedPolygon struct {
	geom.Polygon
}

func index(polys []geom.Polygon) *rtree.Rtree {
	tree := rtree.NewTree(25, 50)
	for _, p := range polys {
		if len(p) == 0 {
			continue
		}
		tree.Insert(&indexedPolygon{Polygon: p})
	}
	return tree
}

// overlapping returns the polygons in tree whose bounds intersect b.
func overlapping(tree *rtree.Rtree, b *geom.Bounds) []geom.Polygon {
	hits := tree.SearchIntersect(b)
	out := make([]geom.Polygon, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*indexedPolygon).Polygon)
	}
	return out
}

// cover marks every cell selected by polys. With allTouched a cell is
// selected when any part of a polygon touches it; otherwise only when its
// center falls inside.
func (g grid) cover(polys []geom.Polygon, allTouched bool) []bool {
	mask := make([]bool, g.w*g.h)
	set := func(c, r int) {
		if c >= 0 && c < g.w && r >= 0 && r < g.h {
			mask[r*g.w+c] = true
		}
	}
	for _, p := range polys {
		rings := g.toPixel(p)
		g.fill(rings, set)
		if allTouched {
			for _, ring := range rings {
				for i := 0; i+1 < len(ring); i++ {
					g.walk(ring[i], ring[i+1], set)
				}
				if n := len(ring); n > 1 && ring[0] != ring[n-1] {
					g.walk(ring[n-1], ring[0], set)
				}
			}
		}
	}
	return mask
}

func (g grid) toPixel(p geom.Polygon) [][]geom.Point {
	out := make([][]geom.Point, len(p))
	for i, ring := range p {
		px := make([]geom.Point, len(ring))
		for j, pt := range ring {
			c, r := g.gt.Invert(pt.X, pt.Y)
			px[j] = geom.Point{X: c, Y: r}
		}
		out[i] = px
	}
	return out
}

// fill selects cells whose centers lie inside the rings under the even-odd
// rule, scanning one row of cell centers at a time.
func (g grid) fill(rings [][]geom.Point, set func(c, r int)) {
	minR, maxR := math.Inf(1), math.Inf(-1)
	for _, ring := range rings {
		for _, pt := range ring {
			minR = math.Min(minR, pt.Y)
			maxR = math.Max(maxR, pt.Y)
		}
	}
	if math.IsInf(minR, 0) {
		return
	}
	r0 := max(0, int(math.Floor(minR)))
	r1 := min(g.h-1, int(math.Ceil(maxR)))

	var xs []float64
	for r := r0; r <= r1; r++ {
		yc := float64(r) + 0.5
		xs = xs[:0]
		for _, ring := range rings {
			n := len(ring)
			for i := 0; i < n; i++ {
				a, b := ring[i], ring[(i+1)%n]
				if (a.Y <= yc) == (b.Y <= yc) {
					continue
				}
				xs = append(xs, a.X+(yc-a.Y)*(b.X-a.X)/(b.Y-a.Y))
			}
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			c0 := max(0, int(math.Ceil(xs[i]-0.5)))
			c1 := min(g.w, int(math.Ceil(xs[i+1]-0.5)))
			for c := c0; c < c1; c++ {
				set(c, r)
			}
		}
	}
}

// walk selects every cell the segment a-b passes through.
func (g grid) walk(a, b geom.Point, set func(c, r int)) {
	x0, y0, x1, y1, ok := clip(a.X, a.Y, b.X, b.Y, float64(g.w), float64(g.h))
	if !ok {
		return
	}
	c, r := cellOf(x0, g.w), cellOf(y0, g.h)
	ce, re := cellOf(x1, g.w), cellOf(y1, g.h)
	stepC, tMaxX, tDeltaX := axis(x0, x1-x0, c)
	stepR, tMaxY, tDeltaY := axis(y0, y1-y0, r)

	n := abs(ce-c) + abs(re-r)
	set(c, r)
	for i := 0; i < n; i++ {
		switch {
		case c == ce:
			r += stepR
			tMaxY += tDeltaY
		case r == re:
			c += stepC
			tMaxX += tDeltaX
		case tMaxX < tMaxY:
			c += stepC
			tMaxX += tDeltaX
		default:
			r += stepR
			tMaxY += tDeltaY
		}
		set(c, r)
	}
}

// clip trims a segment to the rectangle [0,w]x[0,h] (Liang-Barsky).
func clip(x0, y0, x1, y1, w, h float64) (float64, float64, float64, float64, bool) {
	dx, dy := x1-x0, y1-y0
	t0, t1 := 0.0, 1.0
	for _, e := range [4][2]float64{{-dx, x0}, {dx, w - x0}, {-dy, y0}, {dy, h - y0}} {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return 0, 0, 0, 0, false
			}
			t0 = math.Max(t0, t)
		} else {
			if t < t0 {
				return 0, 0, 0, 0, false
			}
			t1 = math.Min(t1, t)
		}
	}
	return x0 + t0*dx, y0 + t0*dy, x0 + t1*dx, y0 + t1*dy, true
}

func cellOf(v float64, n int) int {
	i := int(math.Floor(v))
	return max(0, min(n-1, i))
}

// axis returns the step direction, the parameter at which the segment leaves
// cell and the parameter span of one cell. cell may be clamped below floor(v)
// when the segment starts on the far border.
func axis(v, d float64, cell int) (int, float64, float64) {
	switch {
	case d > 0:
		return 1, (float64(cell) + 1 - v) / d, 1 / d
	case d < 0:
		return -1, (v - float64(cell)) / -d, -1 / d
	default:
		return 0, math.Inf(1), math.Inf(1)
	}
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
