package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Google    GoogleConfig    `yaml:"google" mapstructure:"google"`
	Geoapify  GeoapifyConfig  `yaml:"geoapify" mapstructure:"geoapify"`
	PlaceKit  PlaceKitConfig  `yaml:"placekit" mapstructure:"placekit"`
	Nominatim NominatimConfig `yaml:"nominatim" mapstructure:"nominatim"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Flags     FlagsConfig     `yaml:"flags" mapstructure:"flags"`
	PGCache   PGCacheConfig   `yaml:"pgcache" mapstructure:"pgcache"`
	Trails    TrailsConfig    `yaml:"trails" mapstructure:"trails"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key     string  `yaml:"key" mapstructure:"key"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// GeoapifyConfig holds Geoapify API settings.
type GeoapifyConfig struct {
	Key     string  `yaml:"key" mapstructure:"key"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// PlaceKitConfig holds PlaceKit API settings.
type PlaceKitConfig struct {
	Key     string  `yaml:"key" mapstructure:"key"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// NominatimConfig holds Nominatim settings. No key; the public instance
// requires an identifying user agent and at most 1 req/s.
type NominatimConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent string  `yaml:"user_agent" mapstructure:"user_agent"`
	RPS       float64 `yaml:"rps" mapstructure:"rps"`
}

// CacheConfig bounds the in-memory suggestion cache.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
	MaxAgeMins int `yaml:"max_age_mins" mapstructure:"max_age_mins"`
}

// FlagsConfig locates the sqlite feature-flag store.
type FlagsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PGCacheConfig configures the optional durable suggestion cache tier.
type PGCacheConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	TTLHours    int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// TrailsConfig configures the trail map data sources.
type TrailsConfig struct {
	OverpassURL   string `yaml:"overpass_url" mapstructure:"overpass_url"`
	TrailheadsURL string `yaml:"trailheads_url" mapstructure:"trailheads_url"`
	ShapefilePath string `yaml:"shapefile_path" mapstructure:"shapefile_path"`
}

// BatchConfig configures the batch geocoding command.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRAILGEO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("google.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("geoapify.base_url", "https://api.geoapify.com")
	v.SetDefault("placekit.base_url", "https://api.placekit.co")
	v.SetDefault("nominatim.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("nominatim.user_agent", "trailgeo/1.0 (+https://github.com/trailmix-app/trailgeo)")
	v.SetDefault("nominatim.rps", 1)
	v.SetDefault("cache.max_entries", 200)
	v.SetDefault("cache.max_age_mins", 30)
	v.SetDefault("flags.path", "trailgeo.db")
	v.SetDefault("pgcache.ttl_hours", 24)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("trails.overpass_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("trails.trailheads_url", "https://carto.nationalmap.gov/arcgis/rest/services/structures/MapServer/1/query")

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

// Validate checks the settings a command mode depends on. Modes: "serve",
// "batch", "trails".
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func() {
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 32 {
			problems = append(problems, "batch.concurrency must be between 1 and 32")
		}
		if c.Cache.MaxEntries < 1 {
			problems = append(problems, "cache.max_entries must be > 0")
		}
		if c.Cache.MaxAgeMins < 1 {
			problems = append(problems, "cache.max_age_mins must be > 0")
		}
		if c.PGCache.Enabled && c.PGCache.DatabaseURL == "" {
			problems = append(problems, "pgcache.database_url is required when pgcache is enabled")
		}
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		check()
	case "batch":
		check()
	case "trails":
		if c.Trails.OverpassURL == "" {
			problems = append(problems, "trails.overpass_url is required")
		}
		check()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
