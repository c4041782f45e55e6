package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from file, environment, and defaults.
// It uses the global viper instance so CLI flag bindings apply.
func Load() (*Config, error) {
	return load(viper.GetViper())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// SetConfigName would drop a file set with SetConfigFile
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
	}

	// a missing config file is fine unless it was named explicitly
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	// Environment variables (DOCGATE_*)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers every value of Default with viper
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("docs.path", d.Docs.Path)
	v.SetDefault("docs.default_lang", d.Docs.DefaultLang)
	v.SetDefault("docs.repo", d.Docs.Repo)
	v.SetDefault("docs.max_file_size", d.Docs.MaxFileSize)

	v.SetDefault("cache.no_cache", d.Cache.NoCache)
	v.SetDefault("cache.menu.capacity", d.Cache.Menu.Capacity)
	v.SetDefault("cache.menu.ttl", d.Cache.Menu.TTL)
	v.SetDefault("cache.doc.capacity", d.Cache.Doc.Capacity)
	v.SetDefault("cache.doc.ttl", d.Cache.Doc.TTL)
	v.SetDefault("cache.image.capacity", d.Cache.Image.Capacity)
	v.SetDefault("cache.image.ttl", d.Cache.Image.TTL)
	v.SetDefault("cache.refs_ttl", d.Cache.RefsTTL)
	v.SetDefault("cache.directory", d.Cache.Directory)
	v.SetDefault("cache.in_memory", d.Cache.InMemory)

	v.SetDefault("source.type", d.Source.Type)
	v.SetDefault("source.token", d.Source.Token)
	v.SetDefault("source.base_url", d.Source.BaseURL)
	v.SetDefault("source.owner", d.Source.Owner)
	v.SetDefault("source.local_root", d.Source.LocalRoot)
	v.SetDefault("source.timeout", d.Source.Timeout)
	v.SetDefault("source.max_retries", d.Source.MaxRetries)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}
