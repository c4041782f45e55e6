package config

import (
	"os"
	"path/filepath"
	"time"
)

// Source types
const (
	SourceGitHub = "github"
	SourceLocal  = "local"
	// SourceAuto picks local when a local root is configured, else github
	SourceAuto = "auto"
)

// Default values
const (
	// Docs defaults
	DefaultDocsPath    = "docs"
	DefaultLang        = "en"
	DefaultMaxFileSize = "10MB"

	// Cache defaults
	DefaultMenuCapacity  = 10
	DefaultDocCapacity   = 300
	DefaultImageCapacity = 500
	DefaultMenuTTL       = 5 * time.Minute
	DefaultDocTTL        = 5 * time.Minute
	DefaultImageTTL      = 24 * time.Hour
	DefaultRefsTTL       = 5 * time.Minute

	// Source defaults
	DefaultSourceType    = SourceGitHub
	DefaultSourceTimeout = 30 * time.Second
	DefaultMaxRetries    = 3

	// Server defaults
	DefaultServerAddr      = ":8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "pretty"
)

// EnvPrefix prefixes environment overrides, e.g. DOCGATE_SOURCE_TOKEN
const EnvPrefix = "DOCGATE"

// ConfigDir returns the config directory path
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docgate"
	}
	return filepath.Join(home, ".docgate")
}

// CacheDir returns the cache directory path
func CacheDir() string {
	return filepath.Join(ConfigDir(), "cache")
}

// ConfigFilePath returns the config file path
func ConfigFilePath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Docs: DocsConfig{
			Path:        DefaultDocsPath,
			DefaultLang: DefaultLang,
			MaxFileSize: DefaultMaxFileSize,
		},
		Cache: CacheConfig{
			Menu:      CacheSpec{Capacity: DefaultMenuCapacity, TTL: DefaultMenuTTL},
			Doc:       CacheSpec{Capacity: DefaultDocCapacity, TTL: DefaultDocTTL},
			Image:     CacheSpec{Capacity: DefaultImageCapacity, TTL: DefaultImageTTL},
			RefsTTL:   DefaultRefsTTL,
			Directory: CacheDir(),
		},
		Source: SourceConfig{
			Type:       DefaultSourceType,
			Timeout:    DefaultSourceTimeout,
			MaxRetries: DefaultMaxRetries,
		},
		Server: ServerConfig{
			Addr:            DefaultServerAddr,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
