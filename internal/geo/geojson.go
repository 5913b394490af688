package geo

import (
	"os"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	gogeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// readGeoJSON returns the polygon parts of a FeatureCollection, a single
// Feature or a bare geometry. Non-polygon features are skipped.
func readGeoJSON(path string) ([]geom.Polygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: read %s", path)
	}

	var geoms []gogeom.T
	var fc geojson.FeatureCollection
	if err := fc.UnmarshalJSON(data); err == nil && len(fc.Features) > 0 {
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	} else {
		var f geojson.Feature
		if err := f.UnmarshalJSON(data); err == nil && f.Geometry != nil {
			geoms = append(geoms, f.Geometry)
		} else {
			var g gogeom.T
			if err := geojson.Unmarshal(data, &g); err != nil {
				return nil, eris.Wrapf(err, "geo: decode GeoJSON %s", path)
			}
			geoms = append(geoms, g)
		}
	}

	var polys []geom.Polygon
	for _, g := range geoms {
		if g == nil {
			continue
		}
		parts, err := polygonsOf(g)
		if err != nil {
			continue
		}
		polys = append(polys, parts...)
	}
	return polys, nil
}
