// Package geo loads project-area and water polygons and moves them between
// coordinate reference systems.
package geo

import (
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
)

// WGS84 is the longitude/latitude CRS used by GeoJSON files.
const WGS84 = "+proj=longlat +datum=WGS84 +no_defs"

// proj4 tokens emitted by newer PROJ releases that the parser rejects and
// that carry no projection parameters.
var ignoredProj4Tokens = map[string]bool{
	"+type=crs": true,
	"+wktext":   true,
}

// CRS is a parsed coordinate reference system together with the definition
// (proj4 or WKT) it was parsed from.
type CRS struct {
	def string
	sr  *proj.SR
}

// ParseCRS parses a proj4 or WKT definition.
func ParseCRS(def string) (*CRS, error) {
	def = strings.TrimSpace(def)
	if def == "" {
		return nil, eris.New("geo: empty CRS definition")
	}
	if strings.HasPrefix(def, "+") {
		fields := strings.Fields(def)
		kept := fields[:0]
		for _, f := range fields {
			if !ignoredProj4Tokens[f] {
				kept = append(kept, f)
			}
		}
		def = strings.Join(kept, " ")
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: parse CRS %q", truncate(def, 80))
	}
	return &CRS{def: def, sr: sr}, nil
}

// String returns the definition the CRS was parsed from.
func (c *CRS) String() string {
	if c == nil {
		return ""
	}
	return c.def
}

// Equal reports whether c and o describe the same reference system.
func (c *CRS) Equal(o *CRS) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.def == o.def {
		return true
	}
	return c.sr.Equal(o.sr, 3)
}

// TransformTo returns a point transformer from c into dst.
func (c *CRS) TransformTo(dst *CRS) (proj.Transformer, error) {
	if c == nil || dst == nil {
		return nil, eris.New("geo: transform requires source and destination CRS")
	}
	t, err := c.sr.NewTransform(dst.sr)
	if err != nil {
		return nil, eris.Wrap(err, "geo: build transform")
	}
	return t, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
