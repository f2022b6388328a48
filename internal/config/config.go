// Package config loads service configuration from environment variables and
// an optional YAML file, with sane defaults for everything except the remote
// base URL, whose absence is a first-class runtime condition rather than a
// startup failure.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string

	// RemoteBaseURL is the public bucket base URL, e.g.
	// "https://jinendra-archana-pdfs.s3.us-east-1.amazonaws.com".
	// Empty means the remote is unconfigured; sync and streaming fail fast
	// with data.ErrNotConfigured.
	RemoteBaseURL string

	// DevMode selects the PDFsDev remote folder and restricts the
	// sync-eligible catalogue subset to DevBooks.
	DevMode  bool
	DevBooks []string

	// MaxRetries bounds per-document download retries.
	MaxRetries int

	// RequestTimeout applies per HTTP request; ResourceTimeout bounds the
	// whole transfer of a single document.
	RequestTimeout  time.Duration
	ResourceTimeout time.Duration

	// StorageDir is the flat directory holding downloaded PDFs.
	// BundleDir holds PDFs shipped with the app, used as a read fallback.
	StorageDir string
	BundleDir  string

	// LogFile, when set, adds a size-rotated file sink next to stdout.
	LogFile string

	// PostgresDSN enables the Postgres session-history repo; empty keeps
	// history in memory.
	PostgresDSN string
}

// Load reads configuration. An explicit file path is required to exist;
// otherwise an optional granthsync.yaml in the working directory is merged
// when present. Environment variables use the GRANTH_ prefix, e.g.
// GRANTH_REMOTE_BASE_URL.
func Load(file string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("granth")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":9090")
	v.SetDefault("remote_base_url", "")
	v.SetDefault("dev_mode", false)
	v.SetDefault("dev_books", []string{"Darshan Stuti", "Darshan Stuti 2"})
	v.SetDefault("max_retries", 3)
	v.SetDefault("request_timeout", "60s")
	v.SetDefault("resource_timeout", "300s")
	v.SetDefault("storage_dir", "data/PDFs")
	v.SetDefault("bundle_dir", "assets/PDFs")
	v.SetDefault("log_file", "")
	v.SetDefault("postgres_dsn", "")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("granthsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{
		ListenAddr:      v.GetString("listen_addr"),
		RemoteBaseURL:   v.GetString("remote_base_url"),
		DevMode:         v.GetBool("dev_mode"),
		DevBooks:        v.GetStringSlice("dev_books"),
		MaxRetries:      v.GetInt("max_retries"),
		RequestTimeout:  v.GetDuration("request_timeout"),
		ResourceTimeout: v.GetDuration("resource_timeout"),
		StorageDir:      v.GetString("storage_dir"),
		BundleDir:       v.GetString("bundle_dir"),
		LogFile:         v.GetString("log_file"),
		PostgresDSN:     v.GetString("postgres_dsn"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.ResourceTimeout <= 0 {
		return fmt.Errorf("resource_timeout must be positive, got %s", c.ResourceTimeout)
	}
	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir must not be empty")
	}
	return nil
}
