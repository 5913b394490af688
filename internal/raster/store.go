package raster

import (
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// Output subdirectories created under the run's output directory.
const (
	NormalizedDir = "NORMALIZED_DENSITY_GRIDS"
	MaskedDir     = "DENSITY_GRIDS_MASKED"
)

// Store reads and writes single-band rasters.
type Store interface {
	Read(path string) (*DensityRaster, error)
	// Write persists r at path in r.DataType, replacing nothing but path.
	Write(path string, r *DensityRaster) error
	Remove(path string) error
}

// Stem splits a raster path into its base name without extension and the
// extension (with leading dot).
func Stem(path string) (string, string) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}

// FormatDivisor renders a divisor the way it appears in file names (25, 2.5).
func FormatDivisor(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}

// NormalizedPath is where a raster divided by divisor is written.
func NormalizedPath(outputDir, src string, divisor float64) string {
	name, ext := Stem(src)
	return filepath.Join(outputDir, NormalizedDir, name+"_DIVIDED_BY_"+FormatDivisor(divisor)+ext)
}

// MaskedPath is where the final masked raster is written.
func MaskedPath(outputDir, src, suffix string) string {
	name, ext := Stem(src)
	return filepath.Join(outputDir, MaskedDir, name+"_"+suffix+ext)
}

// IntermediatePath is a raster-unique scratch path next to the masked output.
func IntermediatePath(outputDir, src, token string) string {
	name, ext := Stem(src)
	return filepath.Join(outputDir, MaskedDir, name+"_PROJECT_AREA_"+token+ext)
}

// MemStore is an in-memory Store. Written values are cast to the raster's
// data type so reads observe the same truncation a file would.
type MemStore struct {
	mu      sync.Mutex
	rasters map[string]*DensityRaster
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{rasters: make(map[string]*DensityRaster)}
}

// Put stores r under r.Path without casting.
func (m *MemStore) Put(r *DensityRaster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rasters[filepath.Clean(r.Path)] = r.Clone()
}

func (m *MemStore) Read(path string) (*DensityRaster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rasters[filepath.Clean(path)]
	if !ok {
		return nil, eris.Errorf("raster: %s does not exist", path)
	}
	return r.Clone(), nil
}

func (m *MemStore) Write(path string, r *DensityRaster) error {
	if err := r.Validate(); err != nil {
		return err
	}
	c := r.Clone()
	c.Path = filepath.Clean(path)
	nodata := c.NoDataValue()
	for i, v := range c.Values {
		if math.IsNaN(v) {
			c.Values[i] = nodata
			continue
		}
		c.Values[i] = c.DataType.Cast(v)
	}
	c.NoData, c.HasNoData = nodata, true

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rasters[c.Path] = c
	return nil
}

func (m *MemStore) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rasters, filepath.Clean(path))
	return nil
}

// Exists reports whether path holds a raster.
func (m *MemStore) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rasters[filepath.Clean(path)]
	return ok
}

// Paths lists stored paths in sorted order.
func (m *MemStore) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.rasters))
	for p := range m.rasters {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
