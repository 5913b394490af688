package units

import (
	"math"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lidarqa/density-cli/internal/raster"
)

// DefaultDivisor is applied to implausible rasters when no divisor is configured.
const DefaultDivisor = 25.0

// Normalizer divides density rasters by a constant and writes the result
// under the normalized output directory.
type Normalizer struct {
	store raster.Store
	log   *zap.Logger
}

// NewNormalizer creates a Normalizer writing through store.
func NewNormalizer(store raster.Store) *Normalizer {
	return &Normalizer{
		store: store,
		log:   zap.L().With(zap.String("component", "normalizer")),
	}
}

// Normalize divides every valid cell of r by divisor and writes the result to
// NORMALIZED_DENSITY_GRIDS/<name>_DIVIDED_BY_<divisor><ext> under outputDir.
// Nodata cells keep the sentinel. Integer rasters are promoted to Float32.
func (n *Normalizer) Normalize(r *raster.DensityRaster, divisor float64, outputDir string) (*raster.DensityRaster, error) {
	if divisor == 0 || math.IsNaN(divisor) || math.IsInf(divisor, 0) {
		return nil, eris.Errorf("units: invalid divisor %g", divisor)
	}
	out := raster.NormalizedPath(outputDir, r.Path, divisor)
	if filepath.Clean(out) == filepath.Clean(r.Path) {
		return nil, eris.Errorf("units: normalized output would overwrite %s", r.Path)
	}

	norm := r.Clone()
	norm.Path = out
	if norm.DataType.IsInteger() || norm.DataType == raster.Unknown {
		norm.DataType = raster.Float32
		if !norm.HasNoData {
			norm.NoData, norm.HasNoData = raster.Float32.DefaultNoData(), true
		}
	}
	for i, v := range norm.Values {
		if r.IsNoData(v) {
			continue
		}
		norm.Values[i] = norm.DataType.Cast(v / divisor)
	}

	if err := n.store.Write(out, norm); err != nil {
		return nil, eris.Wrapf(err, "units: write normalized %s", out)
	}
	n.log.Info("normalized raster",
		zap.String("source", r.Path),
		zap.String("output", out),
		zap.Float64("divisor", divisor),
	)
	return norm, nil
}
