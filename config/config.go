// Package config holds the YAML configuration of the imgresolve command.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Durable tier kinds.
const (
	DurableNone      = "none"
	DurableFile      = "file"
	DurableRedis     = "redis"
	DurableS3        = "s3"
	DurableBigCache  = "bigcache"
	DurableRistretto = "ristretto"
)

// Payload codecs.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
	CodecCBOR    = "cbor"
)

// Config is the complete configuration
type Config struct {
	LogLevel string `yaml:"log_level"`
	// Version is the build marker; a change invalidates cached entries on startup.
	Version  string         `yaml:"version"`
	Cache    CacheConfig    `yaml:"cache"`
	Resolver ResolverConfig `yaml:"resolver"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// CacheConfig configures the two-tier store
type CacheConfig struct {
	Prefix    string        `yaml:"prefix"`
	Group     string        `yaml:"group"`
	TTL       time.Duration `yaml:"ttl"`
	GuessTTL  time.Duration `yaml:"guess_ttl"`
	Codec     string        `yaml:"codec"`
	MaxDecode int           `yaml:"max_decode"`
	Durable   DurableConfig `yaml:"durable"`
}

// DurableConfig selects and configures the durable tier
type DurableConfig struct {
	Kind      string          `yaml:"kind"`
	File      FileConfig      `yaml:"file"`
	Redis     RedisConfig     `yaml:"redis"`
	S3        S3Config        `yaml:"s3"`
	BigCache  BigCacheConfig  `yaml:"bigcache"`
	Ristretto RistrettoConfig `yaml:"ristretto"`
}

type FileConfig struct {
	Dir string `yaml:"dir"`
}

type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	MarkerTTL time.Duration `yaml:"marker_ttl"`
}

type S3Config struct {
	Bucket         string `yaml:"bucket"`
	Root           string `yaml:"root"`
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
	MaxRetries     int    `yaml:"max_retries"`
}

type BigCacheConfig struct {
	LifeWindow         time.Duration `yaml:"life_window"`
	HardMaxCacheSizeMB int           `yaml:"hard_max_cache_size_mb"`
}

type RistrettoConfig struct {
	MaxCost     int64 `yaml:"max_cost"`
	NumCounters int64 `yaml:"num_counters"`
}

// ResolverConfig configures candidate probing and materialization
type ResolverConfig struct {
	Timeout               time.Duration `yaml:"timeout"`
	MaterializeTimeout    time.Duration `yaml:"materialize_timeout"`
	ThumbnailSize         int           `yaml:"thumbnail_size"`
	EarlyMaterializeAfter int           `yaml:"early_materialize_after"`
	APIKey                string        `yaml:"api_key"`
	MaxBytes              int64         `yaml:"max_bytes"`
}

// HTTPConfig configures the optional metrics and blob endpoint
type HTTPConfig struct {
	Listen      string `yaml:"listen"`
	MetricsPath string `yaml:"metrics_path"`
	BlobPath    string `yaml:"blob_path"`
	Namespace   string `yaml:"namespace"`
}

// NewDefault creates a configuration with default values
func NewDefault() *Config {
	return &Config{
		LogLevel: "info",
		Version:  "dev",
		Cache: CacheConfig{
			Prefix:   "imgcache:",
			TTL:      24 * time.Hour,
			GuessTTL: time.Minute,
			Codec:    CodecJSON,
			Durable: DurableConfig{
				Kind: DurableNone,
				Redis: RedisConfig{
					Addr:      "localhost:6379",
					MarkerTTL: 30 * 24 * time.Hour,
				},
				BigCache: BigCacheConfig{
					LifeWindow: 24 * time.Hour,
				},
				Ristretto: RistrettoConfig{
					MaxCost:     64 << 20,
					NumCounters: 100_000,
				},
			},
		},
		Resolver: ResolverConfig{
			Timeout:               6 * time.Second,
			MaterializeTimeout:    30 * time.Second,
			ThumbnailSize:         1000,
			EarlyMaterializeAfter: 1,
			MaxBytes:              32 << 20,
		},
		HTTP: HTTPConfig{
			MetricsPath: "/metrics",
			BlobPath:    "/blob/",
			Namespace:   "imgcache",
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv overrides configuration with IMGCACHE_* environment variables.
// Malformed numbers and durations are reported, not ignored.
func (c *Config) LoadFromEnv() error {
	var errs []error

	if val := os.Getenv("IMGCACHE_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("IMGCACHE_VERSION"); val != "" {
		c.Version = val
	}

	// Cache settings
	if val := os.Getenv("IMGCACHE_PREFIX"); val != "" {
		c.Cache.Prefix = val
	}
	if val := os.Getenv("IMGCACHE_GROUP"); val != "" {
		c.Cache.Group = val
	}
	if val := os.Getenv("IMGCACHE_CACHE_TTL"); val != "" {
		errs = append(errs, setDuration(&c.Cache.TTL, "IMGCACHE_CACHE_TTL", val))
	}
	if val := os.Getenv("IMGCACHE_CODEC"); val != "" {
		c.Cache.Codec = strings.ToLower(val)
	}
	if val := os.Getenv("IMGCACHE_DURABLE"); val != "" {
		c.Cache.Durable.Kind = strings.ToLower(val)
	}
	if val := os.Getenv("IMGCACHE_FILE_DIR"); val != "" {
		c.Cache.Durable.File.Dir = val
	}
	if val := os.Getenv("IMGCACHE_REDIS_ADDR"); val != "" {
		c.Cache.Durable.Redis.Addr = val
	}
	if val := os.Getenv("IMGCACHE_REDIS_PASSWORD"); val != "" {
		c.Cache.Durable.Redis.Password = val
	}
	if val := os.Getenv("IMGCACHE_S3_BUCKET"); val != "" {
		c.Cache.Durable.S3.Bucket = val
	}
	if val := os.Getenv("IMGCACHE_S3_ENDPOINT"); val != "" {
		c.Cache.Durable.S3.Endpoint = val
	}

	// Resolver settings
	if val := os.Getenv("IMGCACHE_API_KEY"); val != "" {
		c.Resolver.APIKey = val
	}
	if val := os.Getenv("IMGCACHE_TIMEOUT"); val != "" {
		errs = append(errs, setDuration(&c.Resolver.Timeout, "IMGCACHE_TIMEOUT", val))
	}
	if val := os.Getenv("IMGCACHE_THUMBNAIL_SIZE"); val != "" {
		errs = append(errs, setInt(&c.Resolver.ThumbnailSize, "IMGCACHE_THUMBNAIL_SIZE", val))
	}
	if val := os.Getenv("IMGCACHE_EARLY_MATERIALIZE_AFTER"); val != "" {
		errs = append(errs, setInt(&c.Resolver.EarlyMaterializeAfter, "IMGCACHE_EARLY_MATERIALIZE_AFTER", val))
	}

	if val := os.Getenv("IMGCACHE_LISTEN"); val != "" {
		c.HTTP.Listen = val
	}

	return errors.Join(errs...)
}

func setDuration(dst *time.Duration, name, val string) error {
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, name, val string) error {
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

// SaveToFile writes the configuration as YAML
func (c *Config) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}
	switch c.Cache.Codec {
	case CodecJSON, CodecMsgpack, CodecCBOR:
	default:
		return fmt.Errorf("invalid codec: %s", c.Cache.Codec)
	}

	d := c.Cache.Durable
	switch d.Kind {
	case DurableNone, "":
	case DurableFile:
		if d.File.Dir == "" {
			return fmt.Errorf("durable file tier requires cache.durable.file.dir")
		}
	case DurableRedis:
		if d.Redis.Addr == "" {
			return fmt.Errorf("durable redis tier requires cache.durable.redis.addr")
		}
	case DurableS3:
		if d.S3.Bucket == "" {
			return fmt.Errorf("durable s3 tier requires cache.durable.s3.bucket")
		}
	case DurableBigCache:
	case DurableRistretto:
		if d.Ristretto.MaxCost <= 0 || d.Ristretto.NumCounters <= 0 {
			return fmt.Errorf("durable ristretto tier requires positive max_cost and num_counters")
		}
	default:
		return fmt.Errorf("invalid durable tier: %s", d.Kind)
	}

	if c.Resolver.Timeout <= 0 {
		return fmt.Errorf("resolver timeout must be positive")
	}
	if c.Resolver.ThumbnailSize < 0 {
		return fmt.Errorf("thumbnail size must not be negative")
	}

	return nil
}
