package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"mongokit/internal/store"
)

// EnvPrefix — префикс переменных окружения (MONGOKIT_PORT, MONGOKIT_DSL_DIR, ...).
const EnvPrefix = "MONGOKIT"

type Config struct {
	Port     string `mapstructure:"port"`
	DSLDir   string `mapstructure:"dsl_dir"`
	EnumsDir string `mapstructure:"enums_dir"`

	// MongoURI — соединение main; "" или memory:// — хранилище в памяти.
	MongoURI string `mapstructure:"mongo_uri"`
	// Databases — дополнительные именованные соединения: имя -> URI.
	Databases      map[string]string `mapstructure:"databases"`
	PoolSize       uint64            `mapstructure:"pool_size"`
	ConnectTimeout time.Duration     `mapstructure:"connect_timeout"`
	Debug          bool              `mapstructure:"debug"`
	AutoIndex      bool              `mapstructure:"auto_index"`

	LogLevel       string `mapstructure:"log_level"`
	LogDevelopment bool   `mapstructure:"log_development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("dsl_dir", "dsl")
	v.SetDefault("enums_dir", "reference/enums")
	v.SetDefault("mongo_uri", "")
	v.SetDefault("databases", map[string]string{})
	v.SetDefault("pool_size", store.DefaultPoolSize)
	v.SetDefault("connect_timeout", store.DefaultConnectTimeout)
	v.SetDefault("debug", false)
	v.SetDefault("auto_index", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_development", false)
}

// флаг -> ключ конфигурации
var flagKeys = map[string]string{
	"port":            "port",
	"dsl":             "dsl_dir",
	"enums":           "enums_dir",
	"mongo-uri":       "mongo_uri",
	"pool-size":       "pool_size",
	"connect-timeout": "connect_timeout",
	"debug":           "debug",
	"auto-index":      "auto_index",
	"log-level":       "log_level",
	"log-dev":         "log_development",
}

// Bind регистрирует флаги конфигурации. Значения по умолчанию — пустые:
// незаданный флаг ничего не перекрывает.
func Bind(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to config YAML (default ./mongokit.yaml if present)")
	fs.String("port", "", "HTTP port")
	fs.String("dsl", "", "Path to DSL directory")
	fs.String("enums", "", "Path to enums directory")
	fs.String("mongo-uri", "", "MongoDB URI for the main connection (empty = in-memory)")
	fs.Uint64("pool-size", 0, "Connection pool size")
	fs.Duration("connect-timeout", 0, "Connect timeout")
	fs.Bool("debug", false, "Log driver commands")
	fs.Bool("auto-index", true, "Create indexes when models are registered")
	fs.String("log-level", "", "Log level (debug, info, warn, error)")
	fs.Bool("log-dev", false, "Human-readable development logging")
}

// Load собирает конфигурацию: значения по умолчанию -> YAML -> ENV -> флаги.
// fs может быть nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	// короткие имена без префикса
	_ = v.BindEnv("mongo_uri", EnvPrefix+"_MONGO_URI", "MONGO_URI")
	_ = v.BindEnv("pool_size", EnvPrefix+"_POOL_SIZE", "POOL_SIZE")

	path := getenv(EnvPrefix+"_CONFIG", "")
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed {
			path = f.Value.String()
		}
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mongokit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// DB_DEBUG: любое значение, кроме пустого, false и 0, включает отладку.
	if raw, ok := os.LookupEnv("DB_DEBUG"); ok && !flagChanged(fs, "debug") {
		cfg.Debug = envTruthy(raw)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Port = strings.TrimSpace(c.Port)
	if c.Port == "" {
		return fmt.Errorf("config: port is required")
	}
	if c.PoolSize == 0 {
		return fmt.Errorf("config: pool_size must be positive")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("config: connect_timeout must be positive")
	}
	for name := range c.Databases {
		if name == "" || name == "main" {
			return fmt.Errorf("config: database name %q is reserved, use mongo_uri", name)
		}
	}
	return nil
}

func flagChanged(fs *pflag.FlagSet, name string) bool {
	if fs == nil {
		return false
	}
	f := fs.Lookup(name)
	return f != nil && f.Changed
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func envTruthy(v string) bool {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "", "false", "0":
		return false
	}
	return true
}
