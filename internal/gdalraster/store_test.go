package gdalraster

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lidarqa/density-cli/internal/raster"
)

const bcAlbers = "+proj=aea +lat_0=45 +lon_0=-126 +lat_1=50 +lat_2=58.5 +x_0=1000000 +y_0=0 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs"

func sample(dt raster.DataType) *raster.DensityRaster {
	return &raster.DensityRaster{
		Width:     3,
		Height:    2,
		Values:    []float64{1.25, 2, math.NaN(), 4, -9999, 6.5},
		NoData:    -9999,
		HasNoData: true,
		CRS:       bcAlbers,
		Transform: raster.GeoTransform{1200000, 1, 0, 460000, 0, -1},
		DataType:  dt,
	}
}

func TestWriteRead_Float32(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "tile.tif")
	s := New()

	require.NoError(t, s.Write(path, sample(raster.Float32)))

	got, err := s.Read(path)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Width)
	assert.Equal(t, 2, got.Height)
	assert.Equal(t, raster.Float32, got.DataType)
	assert.True(t, got.HasNoData)
	assert.Equal(t, -9999.0, got.NoData)
	assert.Equal(t, []float64{1.25, 2, -9999, 4, -9999, 6.5}, got.Values)
	assert.Equal(t, raster.GeoTransform{1200000, 1, 0, 460000, 0, -1}, got.Transform)
	assert.NotEmpty(t, got.ProjectionWKT)
	assert.NotEmpty(t, got.CRS)
}

func TestWriteRead_IntegerCast(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "int.tif")
	s := New(WithCompression(""))

	require.NoError(t, s.Write(path, sample(raster.Int16)))

	got, err := s.Read(path)
	require.NoError(t, err)
	assert.Equal(t, raster.Int16, got.DataType)
	assert.Equal(t, []float64{1, 2, -9999, 4, -9999, 7}, got.Values)
}

func TestRead_Missing(t *testing.T) {
	_, err := New().Read(filepath.Join(t.TempDir(), "absent.tif"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gdalraster: open")
}

func TestWrite_RejectsBadGrid(t *testing.T) {
	r := sample(raster.Float32)
	r.Values = r.Values[:2]
	assert.Error(t, New().Write(filepath.Join(t.TempDir(), "bad.tif"), r))
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.tif")
	s := New()
	require.NoError(t, s.Write(path, sample(raster.Float32)))

	require.NoError(t, s.Remove(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	// removing twice is fine
	assert.NoError(t, s.Remove(path))
}
