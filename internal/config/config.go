// Package config loads service configuration from defaults, an optional
// YAML file, an optional .env file and REPORTS_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/benbakir04-create/teachers-report/backend/internal/errors"
)

// EnvPrefix prefixes every environment variable, e.g. REPORTS_DATA_DIR.
const EnvPrefix = "REPORTS"

// Config is the full service configuration.
type Config struct {
	DataDir      string             `mapstructure:"data_dir" validate:"required"`
	ListenAddr   string             `mapstructure:"listen_addr" validate:"required"`
	Remote       RemoteConfig       `mapstructure:"remote"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Log          LogConfig          `mapstructure:"log"`
	Secrets      SecretsConfig      `mapstructure:"secrets"`
}

// RemoteConfig describes the remote web app endpoint.
type RemoteConfig struct {
	Endpoint      string        `mapstructure:"endpoint" validate:"omitempty,url"`
	AuthToken     string        `mapstructure:"auth_token"`
	SubmitTimeout time.Duration `mapstructure:"submit_timeout" validate:"gte=0"`
	Resource      string        `mapstructure:"resource"`
}

// SyncConfig tunes draining.
type SyncConfig struct {
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"`
	Interval   time.Duration `mapstructure:"interval" validate:"gte=0"`
}

// ConnectivityConfig configures the optional reachability probe. An empty
// ProbeURL leaves connectivity to explicit signals.
type ConnectivityConfig struct {
	ProbeURL      string        `mapstructure:"probe_url" validate:"omitempty,url"`
	ProbeInterval time.Duration `mapstructure:"probe_interval" validate:"gte=0"`
	AssumeOnline  bool          `mapstructure:"assume_online"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

// SecretsConfig holds key material for encrypted settings.
type SecretsConfig struct {
	Passphrase string `mapstructure:"passphrase"`
}

// Options selects configuration sources.
type Options struct {
	File    string // YAML config file; empty skips it
	EnvFile string // .env file; empty tries ".env" and ignores its absence
}

// New returns a viper instance carrying every default.
func New() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("data_dir", "./data")
	v.SetDefault("listen_addr", "127.0.0.1:8090")
	v.SetDefault("remote.endpoint", "")
	v.SetDefault("remote.auth_token", "")
	v.SetDefault("remote.submit_timeout", 15*time.Second)
	v.SetDefault("remote.resource", "Reports!A1")
	v.SetDefault("sync.max_retries", 0)
	v.SetDefault("sync.interval", time.Duration(0))
	v.SetDefault("connectivity.probe_url", "")
	v.SetDefault("connectivity.probe_interval", 30*time.Second)
	v.SetDefault("connectivity.assume_online", false)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("secrets.passphrase", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from opts into a validated Config. The returned
// viper instance lets callers bind flags before calling Decode again.
func Load(opts Options) (*Config, *viper.Viper, error) {
	if err := loadDotEnv(opts.EnvFile); err != nil {
		return nil, nil, err
	}

	v := New()
	if opts.File != "" {
		v.SetConfigFile(opts.File)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, apperrors.Wrap(apperrors.ErrInvalid, "read config file "+opts.File, err)
		}
	}

	cfg, err := Decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Decode unmarshals and validates v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "decode config", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid config", err)
	}
	return &cfg, nil
}

// load .env if it exists (ignore if it does not); an explicit path must exist
func loadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return apperrors.Wrap(apperrors.ErrInvalid, fmt.Sprintf("stat env file %s", path), err)
	}
	if err := godotenv.Load(path); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, fmt.Sprintf("load env file %s", path), err)
	}
	return nil
}
