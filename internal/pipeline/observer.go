package pipeline

import (
	"github.com/lidarqa/density-cli/internal/geo"
	"github.com/lidarqa/density-cli/internal/mask"
)

// Observer receives intermediate state for diagnostics. Masked may be called
// from several goroutines. Implementations must not modify their arguments.
type Observer interface {
	Polygons(kind string, polys []geo.Polygon)
	Masked(res *mask.Result)
	Flush() error
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) Polygons(string, []geo.Polygon) {}
func (NopObserver) Masked(*mask.Result)            {}
func (NopObserver) Flush() error                   { return nil }
