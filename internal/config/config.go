package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Admin    AdminConfig    `mapstructure:"admin"`
	DevStore DevStoreConfig `mapstructure:"devstore"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
}

type AdminConfig struct {
	Port         int           `mapstructure:"port"`
	StoreURL     string        `mapstructure:"store_url"`
	PublicURL    string        `mapstructure:"public_url"` // where non-admins are sent
	Timezone     string        `mapstructure:"timezone"`   // wall clock used by datetime inputs
	ListPageSize int           `mapstructure:"list_page_size"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	SessionIdle  time.Duration `mapstructure:"session_idle"`
}

type DevStoreConfig struct {
	Port      int    `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`
	SeedFile  string `mapstructure:"seed_file"`
}

type StorageConfig struct {
	LocalPath   string `mapstructure:"local_path"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files, or ":memory:"
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.IsSQLite() {
		if d.Path == ":memory:" {
			return "file:" + d.Name + "?mode=memory&cache=shared"
		}
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// Location resolves the configured timezone, falling back to the process local zone.
func (a AdminConfig) Location() (*time.Location, error) {
	if a.Timezone == "" || strings.EqualFold(a.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

// SetDefaults registers a default for every key so env overrides work without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("admin.port", 8090)
	v.SetDefault("admin.store_url", "http://localhost:8091")
	v.SetDefault("admin.public_url", "/")
	v.SetDefault("admin.timezone", "Local")
	v.SetDefault("admin.list_page_size", 200)
	v.SetDefault("admin.session_ttl", 12*time.Hour)
	v.SetDefault("admin.session_idle", time.Hour)
	v.SetDefault("devstore.port", 8091)
	v.SetDefault("devstore.jwt_secret", "changeme-secret")
	v.SetDefault("devstore.seed_file", "")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "labdesk")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("storage.local_path", "./uploads")
	v.SetDefault("storage.max_file_size", 10485760)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads labdesk.yaml (if present) plus LABDESK_* environment overrides.
// An explicit path that cannot be read is an error; a missing default file is not.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("labdesk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("labdesk")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
