// Package config loads contract-analyzer settings from a YAML file, CONTRACT_ANALYZER_*
// environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "CONTRACT_ANALYZER"
	ConfigName     = ".contract-analyzer"
	DefaultAddr    = ":8080"
	DefaultService = "contract-analyzer"
)

type OTel struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Insecure    bool   `mapstructure:"insecure"`
}

type Config struct {
	LogLevel    string `mapstructure:"log_level"`
	LogJSON     bool   `mapstructure:"log_json"`
	RulesFile   string `mapstructure:"rules_file"`
	Addr        string `mapstructure:"addr"`
	WebDir      string `mapstructure:"web_dir"`
	MaxUploadMB int    `mapstructure:"max_upload_mb"`
	MaxPDFPages int    `mapstructure:"max_pdf_pages"`
	MinChars    int    `mapstructure:"min_chars"`
	ChromePath  string `mapstructure:"chrome_path"`
	MaxAnalyses int    `mapstructure:"max_analyses"`
	OTel        OTel   `mapstructure:"otel"`

	SessionTTL  time.Duration `mapstructure:"session_ttl"`
	MaxSessions int           `mapstructure:"max_sessions"`
}

// SetDefaults registers every key so environment variables resolve during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("rules_file", "")
	v.SetDefault("addr", DefaultAddr)
	v.SetDefault("web_dir", "")
	v.SetDefault("max_upload_mb", 10)
	v.SetDefault("max_pdf_pages", 10)
	v.SetDefault("min_chars", 50)
	v.SetDefault("chrome_path", "")
	v.SetDefault("max_analyses", 500)
	v.SetDefault("session_ttl", "24h")
	v.SetDefault("max_sessions", 10000)
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.service_name", DefaultService)
	v.SetDefault("otel.insecure", false)
}

// Load reads path (or $HOME/.contract-analyzer.yaml when path is empty) into v and decodes
// the result. A missing default file is not an error; a missing explicit file is.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigType("yaml")
		v.SetConfigName(ConfigName)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("max_upload_mb must be > 0"))
	}
	if c.MaxPDFPages <= 0 {
		errs = append(errs, errors.New("max_pdf_pages must be > 0"))
	}
	if c.MinChars < 0 {
		errs = append(errs, errors.New("min_chars must be >= 0"))
	}
	if c.MaxAnalyses <= 0 {
		errs = append(errs, errors.New("max_analyses must be > 0"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session_ttl must be > 0"))
	}
	if c.MaxSessions <= 0 {
		errs = append(errs, errors.New("max_sessions must be > 0"))
	}
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	return errors.Join(errs...)
}

func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}
