// Package config loads server settings from an optional YAML file with
// DIGITWIN_* environment overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// SMTP holds the mail relay settings. An empty Host disables email delivery;
// the server degrades to "saved but not emailed".
type SMTP struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type Config struct {
	Addr          string
	DatabasePath  string
	StaticDir     string
	AdminEmail    string
	AutosaveDelay time.Duration
	SMTP          SMTP
}

// fileConfig is the YAML shape. Durations are strings there ("2s", "750ms")
// because yaml.v3 has no native time.Duration decoding.
type fileConfig struct {
	Addr          string `yaml:"addr"`
	DatabasePath  string `yaml:"database_path"`
	StaticDir     string `yaml:"static_dir"`
	AdminEmail    string `yaml:"admin_email"`
	AutosaveDelay string `yaml:"autosave_delay"`
	SMTP          SMTP   `yaml:"smtp"`
}

func defaults() *Config {
	return &Config{
		Addr:          ":8080",
		DatabasePath:  "digitwin.db",
		AutosaveDelay: 2 * time.Second,
		SMTP:          SMTP{Port: 587},
	}
}

// Load reads path (when non-empty) and applies environment overrides on the
// defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := mergeFile(cfg, fc); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if cfg.Addr == "" {
		return nil, fmt.Errorf("addr must not be empty")
	}
	if cfg.AutosaveDelay <= 0 {
		return nil, fmt.Errorf("autosave_delay must be positive")
	}
	return cfg, nil
}

func mergeFile(cfg *Config, fc fileConfig) error {
	if fc.Addr != "" {
		cfg.Addr = fc.Addr
	}
	if fc.DatabasePath != "" {
		cfg.DatabasePath = fc.DatabasePath
	}
	if fc.StaticDir != "" {
		cfg.StaticDir = fc.StaticDir
	}
	if fc.AdminEmail != "" {
		cfg.AdminEmail = fc.AdminEmail
	}
	if fc.AutosaveDelay != "" {
		d, err := time.ParseDuration(fc.AutosaveDelay)
		if err != nil {
			return fmt.Errorf("autosave_delay: %w", err)
		}
		cfg.AutosaveDelay = d
	}
	if fc.SMTP.Host != "" {
		cfg.SMTP.Host = fc.SMTP.Host
	}
	if fc.SMTP.Port != 0 {
		cfg.SMTP.Port = fc.SMTP.Port
	}
	if fc.SMTP.Username != "" {
		cfg.SMTP.Username = fc.SMTP.Username
	}
	if fc.SMTP.Password != "" {
		cfg.SMTP.Password = fc.SMTP.Password
	}
	if fc.SMTP.From != "" {
		cfg.SMTP.From = fc.SMTP.From
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Addr, "DIGITWIN_ADDR")
	setString(&cfg.DatabasePath, "DIGITWIN_DATABASE_PATH")
	setString(&cfg.StaticDir, "DIGITWIN_STATIC_DIR")
	setString(&cfg.AdminEmail, "DIGITWIN_ADMIN_EMAIL")
	if v := os.Getenv("DIGITWIN_AUTOSAVE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AutosaveDelay = d
		}
	}
	setString(&cfg.SMTP.Host, "DIGITWIN_SMTP_HOST")
	if v := os.Getenv("DIGITWIN_SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.SMTP.Port = p
		}
	}
	setString(&cfg.SMTP.Username, "DIGITWIN_SMTP_USERNAME")
	setString(&cfg.SMTP.Password, "DIGITWIN_SMTP_PASSWORD")
	setString(&cfg.SMTP.From, "DIGITWIN_SMTP_FROM")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
