package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-pagepdf/export"
	"github.com/spf13/viper"
)

const envPrefix = "PAGEPDF"

// Store drivers.
const (
	StoreFS     = "fs"
	StoreS3     = "s3"
	StoreMemory = "memory"
	StoreNone   = "none"
)

// Config holds the service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Chromium ChromiumConfig `mapstructure:"chromium"`
	Export   ExportConfig   `mapstructure:"export"`
	Store    StoreConfig    `mapstructure:"store"`
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	MaxConcurrent  int64         `mapstructure:"max_concurrent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// ChromiumConfig configures the headless browser.
type ChromiumConfig struct {
	Path                string        `mapstructure:"path"`
	Headless            bool          `mapstructure:"headless"`
	Args                []string      `mapstructure:"args"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ViewportWidth       int64         `mapstructure:"viewport_width"`
	ViewportHeight      int64         `mapstructure:"viewport_height"`
	BlockExternalAssets bool          `mapstructure:"block_external_assets"`
}

// ExportConfig holds pipeline tunables.
type ExportConfig struct {
	CaptureWindow   float64       `mapstructure:"capture_window"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	Scale           float64       `mapstructure:"scale"`
	JPEGQuality     int           `mapstructure:"jpeg_quality"`
	Background      string        `mapstructure:"background"`
	Padding         string        `mapstructure:"padding"`
	LastPagePadding string        `mapstructure:"last_page_padding"`
	HeaderReserve   float64       `mapstructure:"header_reserve"`
	DateLayout      string        `mapstructure:"date_layout"`
}

// StoreConfig selects where finished documents are kept.
type StoreConfig struct {
	Driver string        `mapstructure:"driver"`
	Prefix string        `mapstructure:"prefix"`
	TTL    time.Duration `mapstructure:"ttl"`
	// CleanupInterval is how often serve sweeps expired documents; zero disables it.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	// LinkTTL bounds signed download links in history responses.
	LinkTTL time.Duration `mapstructure:"link_ttl"`
	FS      FSConfig      `mapstructure:"fs"`
	S3      S3Config      `mapstructure:"s3"`
}

// FSConfig configures the filesystem store.
type FSConfig struct {
	Root          string `mapstructure:"root"`
	BaseURL       string `mapstructure:"base_url"`
	SigningSecret string `mapstructure:"signing_secret"`
}

// S3Config configures the S3 store.
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// TrackerConfig configures export history.
type TrackerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// Defaults returns a Config with the reference pipeline settings.
func Defaults() Config {
	opts := export.DefaultOptions()
	return Config{
		Server: ServerConfig{
			Host:           "localhost",
			Port:           "8080",
			MaxConcurrent:  2,
			RequestTimeout: 2 * time.Minute,
		},
		Chromium: ChromiumConfig{
			Headless:       true,
			Timeout:        30 * time.Second,
			ViewportWidth:  1280,
			ViewportHeight: 1200,
		},
		Export: ExportConfig{
			CaptureWindow:   opts.CaptureWindow,
			SettleDelay:     opts.Settle(),
			Scale:           opts.Scale,
			JPEGQuality:     opts.JPEGQuality,
			Background:      opts.Background,
			Padding:         opts.Padding,
			LastPagePadding: opts.LastPagePadding,
			HeaderReserve:   opts.HeaderReserve,
			DateLayout:      opts.DateLayout,
		},
		Store: StoreConfig{
			Driver:          StoreFS,
			Prefix:          "exports",
			TTL:             24 * time.Hour,
			CleanupInterval: time.Hour,
			LinkTTL:         15 * time.Minute,
			FS: FSConfig{
				Root: "./artifacts",
			},
			S3: S3Config{
				Region: "us-east-1",
				UseSSL: true,
			},
		},
		Tracker: TrackerConfig{
			Enabled: true,
			DSN:     "file:pagepdf.db?cache=shared",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from path (optional) and PAGEPDF_* environment
// variables, on top of Defaults. Environment variables win.
func Load(path string) (Config, error) {
	v := viper.New()
	setValues(v, Defaults())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to path. The format follows the file extension.
func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	v := viper.New()
	setValues(v, cfg)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration before use.
func (c Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.MaxConcurrent <= 0 {
		return fmt.Errorf("server.max_concurrent must be positive")
	}
	if c.Chromium.ViewportWidth < 0 || c.Chromium.ViewportHeight < 0 {
		return fmt.Errorf("chromium viewport cannot be negative")
	}

	switch c.Store.Driver {
	case StoreFS:
		if c.Store.FS.Root == "" {
			return fmt.Errorf("store.fs.root is required for the fs driver")
		}
		if c.Store.FS.BaseURL != "" && c.Store.FS.SigningSecret == "" {
			return fmt.Errorf("store.fs.signing_secret is required when store.fs.base_url is set")
		}
	case StoreS3:
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("store.s3.bucket is required for the s3 driver")
		}
		if (c.Store.S3.AccessKey == "") != (c.Store.S3.SecretKey == "") {
			return fmt.Errorf("store.s3.access_key and store.s3.secret_key must be set together")
		}
	case StoreMemory, StoreNone:
	default:
		return fmt.Errorf("store.driver must be one of fs, s3, memory, none; got %q", c.Store.Driver)
	}
	if c.Store.TTL < 0 {
		return fmt.Errorf("store.ttl cannot be negative")
	}
	if c.Store.CleanupInterval < 0 {
		return fmt.Errorf("store.cleanup_interval cannot be negative")
	}
	if c.Store.LinkTTL < 0 {
		return fmt.Errorf("store.link_ttl cannot be negative")
	}

	if c.Tracker.Enabled && c.Tracker.DSN == "" {
		return fmt.Errorf("tracker.dsn is required when the tracker is enabled")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console; got %q", c.Log.Format)
	}

	return c.ExportOptions().Validate()
}

// ExportOptions converts the export section into pipeline options.
func (c Config) ExportOptions() export.Options {
	opts := export.DefaultOptions()
	opts.CaptureWindow = c.Export.CaptureWindow
	settle := c.Export.SettleDelay
	opts.SettleDelay = &settle
	opts.Scale = c.Export.Scale
	opts.JPEGQuality = c.Export.JPEGQuality
	opts.Background = c.Export.Background
	opts.Padding = c.Export.Padding
	opts.LastPagePadding = c.Export.LastPagePadding
	opts.HeaderReserve = c.Export.HeaderReserve
	opts.DateLayout = c.Export.DateLayout
	return opts
}

func setValues(v *viper.Viper, c Config) {
	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.max_concurrent", c.Server.MaxConcurrent)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)

	v.SetDefault("chromium.path", c.Chromium.Path)
	v.SetDefault("chromium.headless", c.Chromium.Headless)
	v.SetDefault("chromium.args", c.Chromium.Args)
	v.SetDefault("chromium.timeout", c.Chromium.Timeout)
	v.SetDefault("chromium.viewport_width", c.Chromium.ViewportWidth)
	v.SetDefault("chromium.viewport_height", c.Chromium.ViewportHeight)
	v.SetDefault("chromium.block_external_assets", c.Chromium.BlockExternalAssets)

	v.SetDefault("export.capture_window", c.Export.CaptureWindow)
	v.SetDefault("export.settle_delay", c.Export.SettleDelay)
	v.SetDefault("export.scale", c.Export.Scale)
	v.SetDefault("export.jpeg_quality", c.Export.JPEGQuality)
	v.SetDefault("export.background", c.Export.Background)
	v.SetDefault("export.padding", c.Export.Padding)
	v.SetDefault("export.last_page_padding", c.Export.LastPagePadding)
	v.SetDefault("export.header_reserve", c.Export.HeaderReserve)
	v.SetDefault("export.date_layout", c.Export.DateLayout)

	v.SetDefault("store.driver", c.Store.Driver)
	v.SetDefault("store.prefix", c.Store.Prefix)
	v.SetDefault("store.ttl", c.Store.TTL)
	v.SetDefault("store.cleanup_interval", c.Store.CleanupInterval)
	v.SetDefault("store.link_ttl", c.Store.LinkTTL)
	v.SetDefault("store.fs.root", c.Store.FS.Root)
	v.SetDefault("store.fs.base_url", c.Store.FS.BaseURL)
	v.SetDefault("store.fs.signing_secret", c.Store.FS.SigningSecret)
	v.SetDefault("store.s3.bucket", c.Store.S3.Bucket)
	v.SetDefault("store.s3.region", c.Store.S3.Region)
	v.SetDefault("store.s3.endpoint", c.Store.S3.Endpoint)
	v.SetDefault("store.s3.access_key", c.Store.S3.AccessKey)
	v.SetDefault("store.s3.secret_key", c.Store.S3.SecretKey)
	v.SetDefault("store.s3.use_ssl", c.Store.S3.UseSSL)
	v.SetDefault("store.s3.use_path_style", c.Store.S3.UsePathStyle)

	v.SetDefault("tracker.enabled", c.Tracker.Enabled)
	v.SetDefault("tracker.dsn", c.Tracker.DSN)

	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
}
