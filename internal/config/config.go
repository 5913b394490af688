package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CanonicalCRS is BC Environment Albers Equal Area (EPSG:3005) as a proj4 definition.
const CanonicalCRS = "+proj=aea +lat_0=45 +lon_0=-126 +lat_1=50 +lat_2=58.5 +x_0=1000000 +y_0=0 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs"

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Water    WaterConfig    `yaml:"water" mapstructure:"water"`
	Units    UnitsConfig    `yaml:"units" mapstructure:"units"`
	Mask     MaskConfig     `yaml:"mask" mapstructure:"mask"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
}

// DatabaseConfig configures the PostGIS connection holding the water layers.
type DatabaseConfig struct {
	URL             string `yaml:"url" mapstructure:"url"`
	MaxConns        int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns        int32  `yaml:"min_conns" mapstructure:"min_conns"`
	ConnectAttempts int    `yaml:"connect_attempts" mapstructure:"connect_attempts"`
}

// WaterConfig lists the water layers queried for every project polygon.
type WaterConfig struct {
	Layers         []string `yaml:"layers" mapstructure:"layers"`
	GeometryColumn string   `yaml:"geometry_column" mapstructure:"geometry_column"`
	SRID           int      `yaml:"srid" mapstructure:"srid"`
	OceanFile      string   `yaml:"ocean_file" mapstructure:"ocean_file"`
	CachePath      string   `yaml:"cache_path" mapstructure:"cache_path"`
}

// UnitsConfig controls the unit plausibility check and auto-normalization.
type UnitsConfig struct {
	Limit   float64 `yaml:"limit" mapstructure:"limit"`
	Divisor float64 `yaml:"divisor" mapstructure:"divisor"`
}

// MaskConfig controls rasterization of include and exclude polygons.
type MaskConfig struct {
	AllTouched     bool   `yaml:"all_touched" mapstructure:"all_touched"`
	Suffix         string `yaml:"suffix" mapstructure:"suffix"`
	QuietNoOverlap bool   `yaml:"quiet_no_overlap" mapstructure:"quiet_no_overlap"`
}

// PipelineConfig configures batch execution.
type PipelineConfig struct {
	Workers      int    `yaml:"workers" mapstructure:"workers"`
	CanonicalCRS string `yaml:"canonical_crs" mapstructure:"canonical_crs"`
	Compress     string `yaml:"compress" mapstructure:"compress"`
	Snapshot     bool   `yaml:"snapshot" mapstructure:"snapshot"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and DENSITY_* environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DENSITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.connect_attempts", 3)
	v.SetDefault("water.layers", []string{
		"whse_basemapping.fwa_lakes_poly",
		"whse_basemapping.fwa_rivers_poly",
		"whse_basemapping.fwa_manmade_waterbodies_poly",
	})
	v.SetDefault("water.geometry_column", "geom")
	v.SetDefault("water.srid", 3005)
	v.SetDefault("water.ocean_file", "")
	v.SetDefault("water.cache_path", "")
	v.SetDefault("units.limit", 50.0)
	v.SetDefault("units.divisor", 25.0)
	v.SetDefault("mask.all_touched", true)
	v.SetDefault("mask.suffix", "MASKED")
	v.SetDefault("mask.quiet_no_overlap", true)
	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.canonical_crs", CanonicalCRS)
	v.SetDefault("pipeline.compress", "LZW")
	v.SetDefault("pipeline.snapshot", false)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Units.Divisor <= 0 {
		return eris.Errorf("config: units.divisor must be positive, got %g", c.Units.Divisor)
	}
	if c.Units.Limit <= 0 {
		return eris.Errorf("config: units.limit must be positive, got %g", c.Units.Limit)
	}
	if c.Pipeline.Workers < 1 {
		return eris.Errorf("config: pipeline.workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.CanonicalCRS == "" {
		return eris.New("config: pipeline.canonical_crs is required")
	}
	if c.Mask.Suffix == "" {
		return eris.New("config: mask.suffix is required")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return eris.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
