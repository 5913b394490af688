// Package units verifies that density rasters are expressed in points per
// square metre and corrects rasters delivered in a larger area unit.
package units

import (
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/lidarqa/density-cli/internal/raster"
)

// DefaultLimit is the median density (points/m²) at or above which a raster
// is assumed to be in the wrong unit.
const DefaultLimit = 50.0

// Checker decides whether a raster's density values are plausible.
type Checker struct {
	limit float64
	log   *zap.Logger
}

// NewChecker creates a Checker; a non-positive limit selects DefaultLimit.
func NewChecker(limit float64) *Checker {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Checker{
		limit: limit,
		log:   zap.L().With(zap.String("component", "unit_checker")),
	}
}

// Limit returns the exclusive upper bound on the median.
func (c *Checker) Limit() float64 {
	return c.limit
}

// Median returns the median of the raster's valid cells. ok is false when
// every cell is nodata.
func Median(r *raster.DensityRaster) (median float64, ok bool) {
	vals := r.ValidValues()
	if len(vals) == 0 {
		return math.NaN(), false
	}
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2], true
	}
	return (vals[n/2-1] + vals[n/2]) / 2, true
}

// Mean returns the arithmetic mean of the raster's valid cells. ok is false
// when every cell is nodata.
func Mean(r *raster.DensityRaster) (mean float64, ok bool) {
	vals := r.ValidValues()
	if len(vals) == 0 {
		return math.NaN(), false
	}
	return stat.Mean(vals, nil), true
}

// IsPlausible reports whether the median of the valid cells is below the
// limit. A raster with no valid cells is implausible.
func (c *Checker) IsPlausible(r *raster.DensityRaster) bool {
	median, ok := Median(r)
	if !ok {
		c.log.Warn("raster has no valid cells", zap.String("path", r.Path))
		return false
	}
	plausible := median < c.limit
	if ce := c.log.Check(zap.DebugLevel, "unit check"); ce != nil {
		mean, _ := Mean(r)
		ce.Write(
			zap.String("path", r.Path),
			zap.Float64("median", median),
			zap.Float64("mean", mean),
			zap.Float64("limit", c.limit),
			zap.Bool("plausible", plausible),
		)
	}
	return plausible
}
