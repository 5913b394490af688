package geo

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// readShapefile returns the polygon parts of every polygon record in a
// shapefile and the CRS declared in its .prj sidecar (nil when absent).
func readShapefile(shpPath string) ([]geom.Polygon, *CRS, error) {
	crs, err := readPrj(shpPath)
	if err != nil {
		return nil, nil, err
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "geo: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	var polys []geom.Polygon
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		var parts []int32
		var points []shp.Point
		switch s := shape.(type) {
		case *shp.Polygon:
			parts, points = s.Parts, s.Points
		case *shp.PolygonZ:
			parts, points = s.Parts, s.Points
		case *shp.PolygonM:
			parts, points = s.Parts, s.Points
		default:
			skipped++
			continue
		}
		polys = append(polys, splitRings(partsToRings(parts, points))...)
	}
	if err := reader.Err(); err != nil {
		return nil, nil, eris.Wrapf(err, "geo: read shapefile %s", shpPath)
	}

	if skipped > 0 {
		zap.L().Debug("geo: skipped non-polygon shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return polys, crs, nil
}

// partsToRings slices a flat point list into rings using the part offsets.
func partsToRings(parts []int32, points []shp.Point) [][]geom.Point {
	rings := make([][]geom.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || end > int32(len(points)) {
			continue
		}
		ring := make([]geom.Point, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, geom.Point{X: p.X, Y: p.Y})
		}
		rings = append(rings, ring)
	}
	return rings
}

func readPrj(shpPath string) (*CRS, error) {
	prjPath := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".prj"
	data, err := os.ReadFile(prjPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "geo: read %s", prjPath)
	}
	crs, err := ParseCRS(string(data))
	if err != nil {
		return nil, eris.Wrapf(err, "geo: %s", prjPath)
	}
	return crs, nil
}

// WriteShapefile writes polys as polygon records with a running ID
// attribute. The CRS of the first polygon is written to the .prj sidecar.
func WriteShapefile(shpPath string, polys []Polygon) error {
	if err := os.MkdirAll(filepath.Dir(shpPath), 0o755); err != nil {
		return eris.Wrap(err, "geo: create shapefile dir")
	}
	w, err := shp.Create(shpPath, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "geo: create shapefile %s", shpPath)
	}
	if err := w.SetFields([]shp.Field{shp.NumberField("ID", 10)}); err != nil {
		w.Close()
		return eris.Wrap(err, "geo: set shapefile fields")
	}
	for i, p := range polys {
		rings := make([][]shp.Point, len(p.Geom))
		for j, ring := range p.Geom {
			pts := make([]shp.Point, len(ring))
			for k, pt := range ring {
				pts[k] = shp.Point{X: pt.X, Y: pt.Y}
			}
			rings[j] = pts
		}
		pg := shp.Polygon(*shp.NewPolyLine(rings))
		row := w.Write(&pg)
		if err := w.WriteAttribute(int(row), 0, i+1); err != nil {
			w.Close()
			return eris.Wrapf(err, "geo: write attribute of polygon %d", i)
		}
	}
	w.Close()

	if len(polys) == 0 || polys[0].CRS == nil {
		return nil
	}
	prjPath := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".prj"
	if err := os.WriteFile(prjPath, []byte(polys[0].CRS.String()), 0o644); err != nil {
		return eris.Wrapf(err, "geo: write %s", prjPath)
	}
	return nil
}
