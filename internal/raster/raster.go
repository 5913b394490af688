// Package raster holds the in-memory density grid model shared by the unit
// correction and masking stages, and the storage abstraction they write through.
package raster

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
)

// DataType is the on-disk numeric type of a raster band.
type DataType int

// Supported band types.
const (
	Unknown DataType = iota
	Byte
	UInt16
	Int16
	UInt32
	Int32
	Float32
	Float64
)

var dataTypeNames = map[DataType]string{
	Unknown: "Unknown",
	Byte:    "Byte",
	UInt16:  "UInt16",
	Int16:   "Int16",
	UInt32:  "UInt32",
	Int32:   "Int32",
	Float32: "Float32",
	Float64: "Float64",
}

func (d DataType) String() string {
	if s, ok := dataTypeNames[d]; ok {
		return s
	}
	return "Unknown"
}

// IsInteger reports whether values of this type are truncated to integers.
func (d DataType) IsInteger() bool {
	switch d {
	case Byte, UInt16, Int16, UInt32, Int32:
		return true
	}
	return false
}

// DefaultNoData is the sentinel assigned to a band that declares none.
func (d DataType) DefaultNoData() float64 {
	switch d {
	case Byte, UInt16, UInt32:
		return 0
	case Int16:
		return math.MinInt16
	case Int32:
		return math.MinInt32
	default:
		return -9999
	}
}

// Cast converts v to the nearest value representable in d.
func (d DataType) Cast(v float64) float64 {
	if math.IsNaN(v) || !d.IsInteger() {
		if d == Float32 {
			return float64(float32(v))
		}
		return v
	}
	lo, hi := d.bounds()
	v = math.Round(v)
	return math.Max(lo, math.Min(hi, v))
}

func (d DataType) bounds() (float64, float64) {
	switch d {
	case Byte:
		return 0, math.MaxUint8
	case UInt16:
		return 0, math.MaxUint16
	case Int16:
		return math.MinInt16, math.MaxInt16
	case UInt32:
		return 0, math.MaxUint32
	case Int32:
		return math.MinInt32, math.MaxInt32
	}
	return math.Inf(-1), math.Inf(1)
}

// GeoTransform is the six-coefficient affine transform from pixel/line to
// map coordinates: x = t[0] + col*t[1] + row*t[2], y = t[3] + col*t[4] + row*t[5].
type GeoTransform [6]float64

// IsNorthUp reports whether the transform has no rotation terms.
func (t GeoTransform) IsNorthUp() bool {
	return t[2] == 0 && t[4] == 0 && t[1] != 0 && t[5] != 0
}

// DensityRaster is a single-band density grid held as float64 working values.
// Values are row-major; DataType records the original band type so writes
// can cast back. CRS is a proj4 (or WKT) definition usable by geo.ParseCRS;
// ProjectionWKT is the driver's native definition, carried through writes.
type DensityRaster struct {
	Path          string
	Width         int
	Height        int
	Values        []float64
	NoData        float64
	HasNoData     bool
	CRS           string
	ProjectionWKT string
	Transform     GeoTransform
	DataType      DataType
}

// Validate checks the grid dimensions against the value slice.
func (r *DensityRaster) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return eris.Errorf("raster: invalid dimensions %dx%d", r.Width, r.Height)
	}
	if len(r.Values) != r.Width*r.Height {
		return eris.Errorf("raster: %d values for %dx%d grid", len(r.Values), r.Width, r.Height)
	}
	return nil
}

// IsNoData reports whether v marks a missing cell.
func (r *DensityRaster) IsNoData(v float64) bool {
	if math.IsNaN(v) {
		return true
	}
	return r.HasNoData && v == r.NoData
}

// NoDataValue returns the band's sentinel, falling back to the type default.
func (r *DensityRaster) NoDataValue() float64 {
	if r.HasNoData {
		return r.NoData
	}
	return r.DataType.DefaultNoData()
}

// ValidValues returns every cell that is not nodata.
func (r *DensityRaster) ValidValues() []float64 {
	out := make([]float64, 0, len(r.Values))
	for _, v := range r.Values {
		if !r.IsNoData(v) {
			out = append(out, v)
		}
	}
	return out
}

// AllNoData reports whether no cell carries data.
func (r *DensityRaster) AllNoData() bool {
	for _, v := range r.Values {
		if !r.IsNoData(v) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy with the values slice duplicated.
func (r *DensityRaster) Clone() *DensityRaster {
	c := *r
	c.Values = make([]float64, len(r.Values))
	copy(c.Values, r.Values)
	return &c
}

// Bounds returns the map-space extent of the grid.
func (r *DensityRaster) Bounds() *geom.Bounds {
	b := geom.NewBounds()
	for _, corner := range [][2]float64{{0, 0}, {float64(r.Width), 0}, {0, float64(r.Height)}, {float64(r.Width), float64(r.Height)}} {
		x, y := r.Transform.Apply(corner[0], corner[1])
		b.Extend(geom.NewBoundsPoint(geom.Point{X: x, Y: y}))
	}
	return b
}

// Apply maps a fractional pixel position to map coordinates.
func (t GeoTransform) Apply(col, row float64) (float64, float64) {
	return t[0] + col*t[1] + row*t[2], t[3] + col*t[4] + row*t[5]
}

// Invert maps map coordinates to a fractional pixel position for a
// north-up transform.
func (t GeoTransform) Invert(x, y float64) (float64, float64) {
	return (x - t[0]) / t[1], (y - t[3]) / t[5]
}
