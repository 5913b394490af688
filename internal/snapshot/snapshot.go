// Package snapshot records the polygons and masked arrays of a run to a gob
// file for offline inspection.
package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lidarqa/density-cli/internal/geo"
	"github.com/lidarqa/density-cli/internal/mask"
)

// FileName is the snapshot written under the output directory.
const FileName = "density_values.gob"

// Array is one masked raster. NaN marks missing cells.
type Array struct {
	Source   string
	DataType string
	Width    int
	Height   int
	Values   []float64
}

// Snapshot is the on-disk payload.
type Snapshot struct {
	Polygons map[string][]geom.Polygon
	CRS      map[string]string
	Arrays   []Array
}

// Recorder collects pipeline state and writes it on Flush.
type Recorder struct {
	path string

	mu   sync.Mutex
	snap Snapshot
}

// NewRecorder creates a Recorder writing to outputDir/density_values.gob.
func NewRecorder(outputDir string) *Recorder {
	return &Recorder{
		path: filepath.Join(outputDir, FileName),
		snap: Snapshot{Polygons: map[string][]geom.Polygon{}, CRS: map[string]string{}},
	}
}

// Path returns the snapshot file path.
func (r *Recorder) Path() string { return r.path }

func (r *Recorder) Polygons(kind string, polys []geo.Polygon) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]geom.Polygon, len(polys))
	for i, p := range polys {
		out[i] = p.Geom
	}
	r.snap.Polygons[kind] = out
	if len(polys) > 0 {
		r.snap.CRS[kind] = polys[0].CRS.String()
	}
}

func (r *Recorder) Masked(res *mask.Result) {
	vals := make([]float64, len(res.Values))
	copy(vals, res.Values)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Arrays = append(r.snap.Arrays, Array{
		Source:   res.Source,
		DataType: res.DataType.String(),
		Width:    res.Width,
		Height:   res.Height,
		Values:   vals,
	})
}

// Flush writes the snapshot. Arrays are sorted by source path so parallel
// runs produce identical files.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.Slice(r.snap.Arrays, func(i, j int) bool { return r.snap.Arrays[i].Source < r.snap.Arrays[j].Source })

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return eris.Wrap(err, "snapshot: create dir")
	}
	f, err := os.Create(r.path)
	if err != nil {
		return eris.Wrap(err, "snapshot: create file")
	}
	if err := gob.NewEncoder(f).Encode(&r.snap); err != nil {
		f.Close()
		return eris.Wrap(err, "snapshot: encode")
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "snapshot: close")
	}
	zap.L().Info("snapshot written", zap.String("path", r.path), zap.Int("arrays", len(r.snap.Arrays)))
	return nil
}

// Read loads a snapshot written by Flush.
func Read(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: open")
	}
	defer f.Close()
	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, eris.Wrap(err, "snapshot: decode")
	}
	return &s, nil
}
