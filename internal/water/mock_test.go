package water

import (
	"context"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/mock"

	"github.com/lidarqa/density-cli/internal/geo"
)

type mockQuerier struct{ mock.Mock }

func (m *mockQuerier) QueryLayer(ctx context.Context, layer string, bbox *geom.Bounds) ([]string, error) {
	args := m.Called(ctx, layer, bbox)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type mockLoader struct{ mock.Mock }

func (m *mockLoader) Load(paths []string) ([]geo.Polygon, error) {
	args := m.Called(paths)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]geo.Polygon), args.Error(1)
}
