package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. DECLWIDGETS_SERVER_PORT
const EnvPrefix = "DECLWIDGETS"

// FileName is the config file base name looked up in the working directory
const FileName = "declwidgets"

// Config represents the declwidgets configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Transport TransportConfig `mapstructure:"transport"`
	Widgets   WidgetsConfig   `mapstructure:"widgets"`
	Install   InstallConfig   `mapstructure:"install"`
	Serialize SerializeConfig `mapstructure:"serialize"`
	Store     StoreConfig     `mapstructure:"store"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
	// TokenSecret signs websocket tokens; empty disables auth
	TokenSecret    string   `mapstructure:"token_secret"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// InstallRate caps package installs per client per minute; 0 disables
	InstallRate int `mapstructure:"install_rate"`
	// Profiling mounts pprof and stats under {base_url}/debug
	Profiling bool `mapstructure:"profiling"`
}

// TransportConfig selects the websocket frame codec
type TransportConfig struct {
	Codec string `mapstructure:"codec"`
}

// WidgetsConfig locates the front-end assets
type WidgetsConfig struct {
	Dir   string `mapstructure:"dir"`
	Bower string `mapstructure:"bower"`
}

// InstallConfig represents the install history database
type InstallConfig struct {
	DBDriver string `mapstructure:"db_driver"`
	DBDSN    string `mapstructure:"db_dsn"`
}

// SerializeConfig represents serializer defaults
type SerializeConfig struct {
	Limit int `mapstructure:"limit"`
}

// StoreConfig represents the channel state store
type StoreConfig struct {
	Backend   string `mapstructure:"backend"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
	Prefix    string `mapstructure:"prefix"`
}

// ChannelsConfig represents channel behaviour
type ChannelsConfig struct {
	ReplayOnConnect bool `mapstructure:"replay_on_connect"`
}

// LogConfig represents logger settings
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// DefaultWidgetsDir returns the nbextensions directory the widgets live in
func DefaultWidgetsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".local", "share", "jupyter", "nbextensions", "urth_widgets")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8888)
	v.SetDefault("server.base_url", "/")
	v.SetDefault("server.token_secret", "")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.install_rate", 10)
	v.SetDefault("server.profiling", false)
	v.SetDefault("transport.codec", "json")
	v.SetDefault("widgets.dir", DefaultWidgetsDir())
	v.SetDefault("widgets.bower", "bower")
	v.SetDefault("install.db_driver", "sqlite3")
	v.SetDefault("install.db_dsn", "")
	v.SetDefault("serialize.limit", 100)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.prefix", "declwidgets:")
	v.SetDefault("channels.replay_on_connect", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads declwidgets.yaml (or .yml) from the working directory, or the
// file at path when it is not empty, and applies DECLWIDGETS_ overrides
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Install.DBDSN == "" {
		config.Install.DBDSN = filepath.Join(config.Widgets.Dir, "installs.db")
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Address returns the host:port the server listens on
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// NewLogger builds the process logger from the log section
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got: %d", cfg.Server.Port)
	}
	if !strings.HasPrefix(cfg.Server.BaseURL, "/") {
		return fmt.Errorf("server.base_url must start with '/', got: %s", cfg.Server.BaseURL)
	}
	if cfg.Server.InstallRate < 0 {
		return fmt.Errorf("server.install_rate must not be negative, got: %d", cfg.Server.InstallRate)
	}

	switch cfg.Transport.Codec {
	case "json", "msgpack":
	default:
		return fmt.Errorf("transport.codec must be json or msgpack, got: %s", cfg.Transport.Codec)
	}

	switch cfg.Store.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("store.backend must be memory or redis, got: %s", cfg.Store.Backend)
	}

	switch cfg.Install.DBDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("install.db_driver must be sqlite3 or postgres, got: %s", cfg.Install.DBDriver)
	}

	if cfg.Serialize.Limit <= 0 {
		return fmt.Errorf("serialize.limit must be positive, got: %d", cfg.Serialize.Limit)
	}

	if _, err := parseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}

func parseLevel(name string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return level, fmt.Errorf("invalid log.level %q: %w", name, err)
	}
	return level, nil
}

// Write saves cfg as YAML at path
func Write(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("server.host", cfg.Server.Host)
	v.Set("server.port", cfg.Server.Port)
	v.Set("server.base_url", cfg.Server.BaseURL)
	v.Set("server.token_secret", cfg.Server.TokenSecret)
	v.Set("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.Set("server.install_rate", cfg.Server.InstallRate)
	v.Set("server.profiling", cfg.Server.Profiling)
	v.Set("transport.codec", cfg.Transport.Codec)
	v.Set("widgets.dir", cfg.Widgets.Dir)
	v.Set("widgets.bower", cfg.Widgets.Bower)
	v.Set("install.db_driver", cfg.Install.DBDriver)
	v.Set("install.db_dsn", cfg.Install.DBDSN)
	v.Set("serialize.limit", cfg.Serialize.Limit)
	v.Set("store.backend", cfg.Store.Backend)
	v.Set("store.redis_addr", cfg.Store.RedisAddr)
	v.Set("store.redis_db", cfg.Store.RedisDB)
	v.Set("store.prefix", cfg.Store.Prefix)
	v.Set("channels.replay_on_connect", cfg.Channels.ReplayOnConnect)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.development", cfg.Log.Development)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Defaults returns the configuration used when no file or override is present
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	// Defaults always decode
	_ = v.Unmarshal(&config)
	config.Install.DBDSN = filepath.Join(config.Widgets.Dir, "installs.db")
	return &config
}
