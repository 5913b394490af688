package units

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lidarqa/density-cli/internal/raster"
)

const outDir = "/out"

func uniform(path string, value float64, dt raster.DataType) *raster.DensityRaster {
	vals := []float64{value, value, value, -9999, value, value, math.NaN(), value, value}
	return &raster.DensityRaster{
		Path:      path,
		Width:     3,
		Height:    3,
		Values:    vals,
		NoData:    -9999,
		HasNoData: true,
		Transform: raster.GeoTransform{0, 1, 0, 9, 0, -1},
		DataType:  dt,
	}
}

// ---------------------------------------------------------------------------
// Checker
// ---------------------------------------------------------------------------

func TestMedian(t *testing.T) {
	r := uniform("/in/a.tif", 0, raster.Float32)
	r.Values = []float64{5, 1, -9999, 3, math.NaN(), 100, 2, 4, 6}
	m, ok := Median(r)
	require.True(t, ok)
	assert.Equal(t, 4.0, m)

	r.Values = []float64{5, 1, 3, -9999, -9999, -9999, -9999, -9999, -9999}
	m, ok = Median(r)
	require.True(t, ok)
	assert.Equal(t, 3.0, m)
}

func TestMean(t *testing.T) {
	r := uniform("/in/a.tif", 0, raster.Float32)
	r.Values = []float64{5, 1, -9999, 3, math.NaN(), 100, 2, 4, 6}
	m, ok := Mean(r)
	require.True(t, ok)
	assert.InDelta(t, 121.0/7, m, 1e-12)

	r.Values = []float64{-9999, -9999, -9999, -9999, -9999, -9999, -9999, -9999, -9999}
	_, ok = Mean(r)
	assert.False(t, ok)
}

func TestIsPlausible_Boundary(t *testing.T) {
	c := NewChecker(50)
	assert.True(t, c.IsPlausible(uniform("/in/a.tif", 49.999, raster.Float32)))
	assert.False(t, c.IsPlausible(uniform("/in/a.tif", 50, raster.Float32)))
	assert.False(t, c.IsPlausible(uniform("/in/a.tif", 1200, raster.Float32)))
}

func TestIsPlausible_AllNoData(t *testing.T) {
	r := uniform("/in/a.tif", -9999, raster.Float32)
	assert.False(t, NewChecker(50).IsPlausible(r))
}

func TestNewChecker_DefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NewChecker(0).Limit())
}

func TestIsPlausible_MonotoneInLimit(t *testing.T) {
	r := uniform("/in/a.tif", 0, raster.Float32)
	r.Values = []float64{3, 9, 27, -9999, 81, 12, 40, math.NaN(), 7}
	prev := false
	for limit := 1.0; limit <= 200; limit += 0.5 {
		got := NewChecker(limit).IsPlausible(r)
		if prev {
			assert.True(t, got, "plausible at lower limit must stay plausible at %g", limit)
		}
		prev = got
	}
	assert.True(t, prev)
}

func TestIsPlausible_NoDataInvariance(t *testing.T) {
	c := NewChecker(50)
	valid := []float64{30, 60, 45, 20, 70, 49, 52, 10, 51}

	dense := uniform("/in/a.tif", 0, raster.Float32)
	dense.Values = append([]float64{}, valid...)

	padded := &raster.DensityRaster{
		Path: "/in/b.tif", Width: 5, Height: 3,
		NoData: -9999, HasNoData: true, DataType: raster.Float32,
	}
	padded.Values = append(padded.Values, -9999, math.NaN(), -9999)
	padded.Values = append(padded.Values, valid...)
	padded.Values = append(padded.Values, math.NaN(), -9999, -9999)

	assert.Equal(t, c.IsPlausible(dense), c.IsPlausible(padded))
	m1, _ := Median(dense)
	m2, _ := Median(padded)
	assert.Equal(t, m1, m2)
}

// ---------------------------------------------------------------------------
// Normalizer
// ---------------------------------------------------------------------------

func TestNormalize_WritesNewFileAndKeepsNoData(t *testing.T) {
	store := raster.NewMemStore()
	src := uniform("/in/tile.tif", 1200, raster.Float32)
	store.Put(src)

	got, err := NewNormalizer(store).Normalize(src, 25, outDir)
	require.NoError(t, err)

	want := filepath.Join(outDir, raster.NormalizedDir, "tile_DIVIDED_BY_25.tif")
	assert.Equal(t, want, got.Path)
	assert.Equal(t, 48.0, got.Values[0])
	assert.Equal(t, -9999.0, got.Values[3])
	assert.True(t, math.IsNaN(got.Values[6]))
	assert.True(t, store.Exists(want))

	orig, err := store.Read("/in/tile.tif")
	require.NoError(t, err)
	assert.Equal(t, 1200.0, orig.Values[0], "input never overwritten")
}

func TestNormalize_RoundTrip(t *testing.T) {
	store := raster.NewMemStore()
	src := uniform("/in/tile.tif", 0, raster.Float64)
	src.Values = []float64{1.5, 2.25, 1e6, -9999, 0, 3, math.NaN(), 42, 7.125}

	n := NewNormalizer(store)
	once, err := n.Normalize(src, 25, outDir)
	require.NoError(t, err)
	twice, err := n.Normalize(once, 1.0/25, outDir)
	require.NoError(t, err)

	for i, v := range src.Values {
		switch {
		case math.IsNaN(v):
			assert.True(t, math.IsNaN(twice.Values[i]))
		case v == -9999:
			assert.Equal(t, -9999.0, twice.Values[i])
		default:
			assert.InEpsilon(t, v+1, twice.Values[i]+1, 1e-9)
		}
	}
}

func TestNormalize_IntegerPromotedToFloat32(t *testing.T) {
	store := raster.NewMemStore()
	src := uniform("/in/tile.tif", 30, raster.Int16)
	got, err := NewNormalizer(store).Normalize(src, 25, outDir)
	require.NoError(t, err)
	assert.Equal(t, raster.Float32, got.DataType)
	assert.InDelta(t, 1.2, got.Values[0], 1e-6)
}

func TestNormalize_RejectsBadDivisor(t *testing.T) {
	n := NewNormalizer(raster.NewMemStore())
	src := uniform("/in/tile.tif", 30, raster.Float32)
	for _, d := range []float64{0, math.NaN(), math.Inf(1)} {
		_, err := n.Normalize(src, d, outDir)
		assert.Error(t, err)
	}
}

func TestNormalize_RenormalizingKeepsPreviousOutput(t *testing.T) {
	store := raster.NewMemStore()
	n := NewNormalizer(store)
	src := uniform("/in/tile.tif", 50000, raster.Float32)

	first, err := n.Normalize(src, 25, outDir)
	require.NoError(t, err)
	second, err := n.Normalize(first, 25, outDir)
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)
	kept, err := store.Read(first.Path)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, kept.Values[0])
}

// ---------------------------------------------------------------------------
// Controller
// ---------------------------------------------------------------------------

func newController(store raster.Store, workers int) *Controller {
	return NewController(store, NewChecker(50), NewNormalizer(store), workers)
}

func TestCorrect_ScenarioA_AlreadyPlausible(t *testing.T) {
	store := raster.NewMemStore()
	store.Put(uniform("/in/a.tif", 8, raster.Float32))

	a, err := newController(store, 1).Correct("/in/a.tif", 25, outDir)
	require.NoError(t, err)
	assert.Equal(t, Passed, a.State)
	assert.Equal(t, 0, a.Attempts)
	assert.Equal(t, "/in/a.tif", a.Working)
	assert.Equal(t, []string{"/in/a.tif"}, store.Paths(), "no normalization artifact")
}

func TestCorrect_ScenarioB_OneNormalization(t *testing.T) {
	store := raster.NewMemStore()
	store.Put(uniform("/in/b.tif", 1200, raster.Float32))

	a, err := newController(store, 1).Correct("/in/b.tif", 25, outDir)
	require.NoError(t, err)
	assert.Equal(t, Passed, a.State)
	assert.Equal(t, 1, a.Attempts)
	assert.Equal(t, 48.0, a.Median)
	assert.Equal(t, filepath.Join(outDir, raster.NormalizedDir, "b_DIVIDED_BY_25.tif"), a.Working)
}

func TestCorrect_ScenarioC_Exhausted(t *testing.T) {
	store := raster.NewMemStore()
	store.Put(uniform("/in/c.tif", 50000, raster.Float32))

	a, err := newController(store, 1).Correct("/in/c.tif", 25, outDir)
	require.NoError(t, err)
	assert.Equal(t, Failed, a.State)
	assert.Equal(t, MaxAttempts, a.Attempts)
	assert.Equal(t, "/in/c.tif", a.Original)
	assert.Equal(t, 80.0, a.Median)

	assert.True(t, store.Exists(filepath.Join(outDir, raster.NormalizedDir, "c_DIVIDED_BY_25.tif")))
	assert.True(t, store.Exists(filepath.Join(outDir, raster.NormalizedDir, "c_DIVIDED_BY_25_DIVIDED_BY_25.tif")))
	assert.Len(t, store.Paths(), 3, "exactly two normalization artifacts")
}

func TestCorrect_ReadError(t *testing.T) {
	_, err := newController(raster.NewMemStore(), 1).Correct("/in/missing.tif", 25, outDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "units: read")
}

func TestProcess_MixedBatch(t *testing.T) {
	for _, workers := range []int{1, 4} {
		store := raster.NewMemStore()
		store.Put(uniform("/in/a.tif", 8, raster.Float32))
		store.Put(uniform("/in/b.tif", 1200, raster.Float32))
		store.Put(uniform("/in/c.tif", 50000, raster.Float32))

		out, err := newController(store, workers).Process(context.Background(),
			[]string{"/in/a.tif", "/in/b.tif", "/in/c.tif"}, 25, outDir)
		require.NoError(t, err)

		assert.Equal(t, []string{"/in/a.tif", filepath.Join(outDir, raster.NormalizedDir, "b_DIVIDED_BY_25.tif")}, out.PassedPaths())
		assert.Equal(t, []string{"/in/c.tif"}, out.FailedPaths())

		err = out.Gate(25)
		var exhausted *ExhaustedError
		require.True(t, errors.As(err, &exhausted))
		assert.Equal(t, []string{"/in/c.tif"}, exhausted.Failed)
		assert.Contains(t, err.Error(), "/in/c.tif")
	}
}

func TestProcess_AllPassGateOpen(t *testing.T) {
	store := raster.NewMemStore()
	store.Put(uniform("/in/a.tif", 8, raster.Float32))

	out, err := newController(store, 2).Process(context.Background(), []string{"/in/a.tif"}, 25, outDir)
	require.NoError(t, err)
	assert.NoError(t, out.Gate(25))
	assert.Empty(t, out.FailedPaths())
}

func TestProcess_ReadErrorAborts(t *testing.T) {
	store := raster.NewMemStore()
	store.Put(uniform("/in/a.tif", 8, raster.Float32))

	_, err := newController(store, 1).Process(context.Background(), []string{"/in/a.tif", "/in/missing.tif"}, 25, outDir)
	require.Error(t, err)
}

func TestProcess_CancelledContext(t *testing.T) {
	store := raster.NewMemStore()
	store.Put(uniform("/in/a.tif", 8, raster.Float32))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newController(store, 1).Process(ctx, []string{"/in/a.tif"}, 25, outDir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "passed", Passed.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
