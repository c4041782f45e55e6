package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Docs    DocsConfig    `mapstructure:"docs" yaml:"docs"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Source  SourceConfig  `mapstructure:"source" yaml:"source"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// DocsConfig selects where documentation lives inside a repository
type DocsConfig struct {
	Path        string `mapstructure:"path" yaml:"path"`
	DefaultLang string `mapstructure:"default_lang" yaml:"default_lang"`
	Repo        string `mapstructure:"repo" yaml:"repo"`
	MaxFileSize string `mapstructure:"max_file_size" yaml:"max_file_size"`
}

// MaxFileSizeBytes returns the parsed per-file size cap
func (d DocsConfig) MaxFileSizeBytes() int64 {
	n, err := ParseSize(d.MaxFileSize)
	if err != nil || n == 0 {
		n, _ = ParseSize(DefaultMaxFileSize)
	}
	return n
}

// CacheSpec sizes one in-memory cache
type CacheSpec struct {
	Capacity int           `mapstructure:"capacity" yaml:"capacity"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// CacheConfig contains cache settings
type CacheConfig struct {
	NoCache   bool          `mapstructure:"no_cache" yaml:"no_cache"`
	Menu      CacheSpec     `mapstructure:"menu" yaml:"menu"`
	Doc       CacheSpec     `mapstructure:"doc" yaml:"doc"`
	Image     CacheSpec     `mapstructure:"image" yaml:"image"`
	RefsTTL   time.Duration `mapstructure:"refs_ttl" yaml:"refs_ttl"`
	Directory string        `mapstructure:"directory" yaml:"directory"`
	InMemory  bool          `mapstructure:"in_memory" yaml:"in_memory"`
}

// SourceConfig selects and configures the repository provider
type SourceConfig struct {
	Type       string        `mapstructure:"type" yaml:"type"`
	Token      string        `mapstructure:"token" yaml:"token"`
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	Owner      string        `mapstructure:"owner" yaml:"owner"`
	LocalRoot  string        `mapstructure:"local_root" yaml:"local_root"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Validate repairs out-of-range values and rejects ones that cannot be repaired
func (c *Config) Validate() error {
	c.Docs.Path = strings.Trim(c.Docs.Path, "/")
	if c.Docs.Path == "" {
		c.Docs.Path = DefaultDocsPath
	}
	if c.Docs.DefaultLang == "" {
		c.Docs.DefaultLang = DefaultLang
	}
	if c.Docs.MaxFileSize == "" {
		c.Docs.MaxFileSize = DefaultMaxFileSize
	} else if _, err := ParseSize(c.Docs.MaxFileSize); err != nil {
		return fmt.Errorf("invalid docs.max_file_size: %w", err)
	}

	repairSpec(&c.Cache.Menu, DefaultMenuCapacity, DefaultMenuTTL)
	repairSpec(&c.Cache.Doc, DefaultDocCapacity, DefaultDocTTL)
	repairSpec(&c.Cache.Image, DefaultImageCapacity, DefaultImageTTL)
	if c.Cache.RefsTTL < time.Second {
		c.Cache.RefsTTL = DefaultRefsTTL
	}

	c.Source.Type = strings.ToLower(strings.TrimSpace(c.Source.Type))
	switch c.Source.Type {
	case "":
		c.Source.Type = DefaultSourceType
	case SourceGitHub, SourceLocal, SourceAuto:
	default:
		return fmt.Errorf("invalid source.type %q: want %s, %s or %s", c.Source.Type, SourceGitHub, SourceLocal, SourceAuto)
	}
	if c.Source.Timeout < time.Second {
		c.Source.Timeout = DefaultSourceTimeout
	}
	if c.Source.MaxRetries < 0 {
		c.Source.MaxRetries = DefaultMaxRetries
	}

	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.ReadTimeout < time.Second {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout < time.Second {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout < time.Second {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	return nil
}

func repairSpec(s *CacheSpec, capacity int, ttl time.Duration) {
	if s.Capacity < 1 {
		s.Capacity = capacity
	}
	if s.TTL < time.Second {
		s.TTL = ttl
	}
}

// ParseSize parses sizes such as "512", "64KB", "10MB" or "1GB"
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	var multiplier int64 = 1
	if strings.HasSuffix(s, "GB") {
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "GB")
	} else if strings.HasSuffix(s, "MB") {
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "MB")
	} else if strings.HasSuffix(s, "KB") {
		multiplier = 1024
		s = strings.TrimSuffix(s, "KB")
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("no numeric value in size string")
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value: %w", err)
	}

	if n < 0 {
		return 0, fmt.Errorf("negative size not allowed")
	}

	return n * multiplier, nil
}
