package pipeline

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/lidarqa/density-cli/internal/geo"
	"github.com/lidarqa/density-cli/internal/mask"
	"github.com/lidarqa/density-cli/internal/raster"
)

// --- Loader Mock ---

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) Load(paths []string) ([]geo.Polygon, error) {
	args := m.Called(paths)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]geo.Polygon), args.Error(1)
}

// --- Resolver Mock ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, project []geo.Polygon) ([]geo.Polygon, error) {
	args := m.Called(ctx, project)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]geo.Polygon), args.Error(1)
}

// --- Masker Mock ---

type mockMasker struct {
	mock.Mock
}

func (m *mockMasker) Mask(r *raster.DensityRaster, include, exclude []geo.Polygon, outputDir string) (*mask.Result, error) {
	args := m.Called(r, include, exclude, outputDir)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mask.Result), args.Error(1)
}

// --- Observer ---

type recordingObserver struct {
	mu       sync.Mutex
	polygons map[string]int
	masked   []string
	flushed  int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{polygons: map[string]int{}}
}

func (o *recordingObserver) Polygons(kind string, polys []geo.Polygon) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.polygons[kind] = len(polys)
}

func (o *recordingObserver) Masked(res *mask.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.masked = append(o.masked, res.Source)
}

func (o *recordingObserver) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushed++
	return nil
}

// --- Water connector ---

// countingWater hands out a resolver and counts releases.
type countingWater struct {
	resolver WaterResolver
	err      error
	acquired int
	released int
}

func (w *countingWater) connect(context.Context) (WaterResolver, func(), error) {
	if w.err != nil {
		return nil, nil, w.err
	}
	w.acquired++
	return w.resolver, func() { w.released++ }, nil
}
