// Package gdalraster reads and writes single-band GeoTIFF density grids through GDAL.
package gdalraster

import (
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/lukeroth/gdal"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lidarqa/density-cli/internal/raster"
)

var toGDAL = map[raster.DataType]gdal.DataType{
	raster.Byte:    gdal.Byte,
	raster.UInt16:  gdal.UInt16,
	raster.Int16:   gdal.Int16,
	raster.UInt32:  gdal.UInt32,
	raster.Int32:   gdal.Int32,
	raster.Float32: gdal.Float32,
	raster.Float64: gdal.Float64,
}

// Store implements raster.Store on top of GDAL.
type Store struct {
	driver  string
	options []string
	log     *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithDriver selects the GDAL driver used for writes (default GTiff).
func WithDriver(name string) Option {
	return func(s *Store) { s.driver = name }
}

// WithCompression sets the GTiff COMPRESS creation option; empty disables it.
func WithCompression(method string) Option {
	return func(s *Store) {
		s.options = nil
		if method != "" {
			s.options = []string{"COMPRESS=" + strings.ToUpper(method)}
		}
	}
}

// New creates a GDAL-backed store writing LZW-compressed GeoTIFFs.
func New(opts ...Option) *Store {
	s := &Store{
		driver:  "GTiff",
		options: []string{"COMPRESS=LZW"},
		log:     zap.L().With(zap.String("component", "gdal_store")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Read loads band 1 of path as float64 values.
func (s *Store) Read(path string) (*raster.DensityRaster, error) {
	ds, err := gdal.Open(path, gdal.ReadOnly)
	if err != nil {
		return nil, eris.Wrapf(err, "gdalraster: open %s", path)
	}
	defer ds.Close()

	if ds.RasterCount() < 1 {
		return nil, eris.Errorf("gdalraster: %s has no bands", path)
	}
	if ds.RasterCount() > 1 {
		s.log.Warn("raster has multiple bands, using band 1", zap.String("path", path), zap.Int("bands", ds.RasterCount()))
	}

	band := ds.RasterBand(1)
	w, h := ds.RasterXSize(), ds.RasterYSize()
	values := make([]float64, w*h)
	if err := band.IO(gdal.Read, 0, 0, w, h, values, w, h, 0, 0); err != nil {
		return nil, eris.Wrapf(err, "gdalraster: read %s", path)
	}

	nodata, hasNoData := band.NoDataValue()
	wkt := ds.Projection()

	r := &raster.DensityRaster{
		Path:          path,
		Width:         w,
		Height:        h,
		Values:        values,
		NoData:        nodata,
		HasNoData:     hasNoData,
		CRS:           proj4Of(wkt),
		ProjectionWKT: wkt,
		Transform:     raster.GeoTransform(ds.GeoTransform()),
		DataType:      fromGDAL(band.RasterDataType()),
	}
	if r.DataType == raster.Unknown {
		return nil, eris.Errorf("gdalraster: %s has unsupported band type %s", path, band.RasterDataType().Name())
	}
	return r, nil
}

// Write creates path (and its directory) holding r cast to r.DataType. NaN
// cells are written as the band nodata value.
func (s *Store) Write(path string, r *raster.DensityRaster) error {
	if err := r.Validate(); err != nil {
		return err
	}
	dt, ok := toGDAL[r.DataType]
	if !ok {
		return eris.Errorf("gdalraster: cannot write band type %s", r.DataType)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "gdalraster: create dir for %s", path)
	}

	driver, err := gdal.GetDriverByName(s.driver)
	if err != nil {
		return eris.Wrapf(err, "gdalraster: driver %s", s.driver)
	}
	ds := driver.Create(path, r.Width, r.Height, 1, dt, s.options)
	defer ds.Close()

	if err := ds.SetGeoTransform([6]float64(r.Transform)); err != nil {
		return eris.Wrapf(err, "gdalraster: set geotransform on %s", path)
	}
	if wkt := projectionFor(r); wkt != "" {
		if err := ds.SetProjection(wkt); err != nil {
			return eris.Wrapf(err, "gdalraster: set projection on %s", path)
		}
	}

	nodata := r.NoDataValue()
	band := ds.RasterBand(1)
	if err := band.SetNoDataValue(nodata); err != nil {
		return eris.Wrapf(err, "gdalraster: set nodata on %s", path)
	}

	buf := make([]float64, len(r.Values))
	for i, v := range r.Values {
		if math.IsNaN(v) {
			buf[i] = nodata
			continue
		}
		buf[i] = r.DataType.Cast(v)
	}
	if err := band.IO(gdal.Write, 0, 0, r.Width, r.Height, buf, r.Width, r.Height, 0, 0); err != nil {
		return eris.Wrapf(err, "gdalraster: write %s", path)
	}
	ds.FlushCache()

	s.log.Debug("wrote raster",
		zap.String("path", path),
		zap.String("type", r.DataType.String()),
		zap.Int("width", r.Width),
		zap.Int("height", r.Height),
	)
	return nil
}

// Remove deletes path and the auxiliary metadata GDAL may leave beside it.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "gdalraster: remove %s", path)
	}
	_ = os.Remove(path + ".aux.xml")
	return nil
}

func fromGDAL(dt gdal.DataType) raster.DataType {
	for k, v := range toGDAL {
		if v == dt {
			return k
		}
	}
	return raster.Unknown
}

// proj4Of converts a WKT definition to proj4, falling back to the WKT.
func proj4Of(wkt string) string {
	if wkt == "" {
		return ""
	}
	sr := gdal.CreateSpatialReference(wkt)
	defer sr.Destroy()
	p4, err := sr.ToProj4()
	if err != nil || strings.TrimSpace(p4) == "" {
		return wkt
	}
	return strings.TrimSpace(p4)
}

func projectionFor(r *raster.DensityRaster) string {
	if r.ProjectionWKT != "" {
		return r.ProjectionWKT
	}
	if !strings.HasPrefix(r.CRS, "+") {
		return r.CRS
	}
	sr := gdal.CreateSpatialReference("")
	defer sr.Destroy()
	if err := sr.FromProj4(r.CRS); err != nil {
		return ""
	}
	wkt, err := sr.ToWKT()
	if err != nil {
		return ""
	}
	return wkt
}
