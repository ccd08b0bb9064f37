// Package config loads server and engine configuration from YAML with
// environment overrides and sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Listen         string   `yaml:"listen"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Database struct {
		SQLitePath      string `yaml:"sqlite_path"`
		AutosaveSeconds int    `yaml:"autosave_seconds"`
	} `yaml:"database"`
	Plan struct {
		HorizonYears      int    `yaml:"horizon_years"`
		DefaultGrowthRate string `yaml:"default_growth_rate"` // annual percent
	} `yaml:"plan"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides, then fills defaults. A missing file is not an error: every
// field has a usable default.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("PLAN_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("PLAN_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("PLAN_HORIZON_YEARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Plan.HorizonYears = n
		}
	}

	// Defaults
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "plan.db"
	}
	if cfg.Database.AutosaveSeconds <= 0 {
		cfg.Database.AutosaveSeconds = 30
	}
	if cfg.Plan.HorizonYears <= 0 {
		cfg.Plan.HorizonYears = 50
	}
	if cfg.Plan.DefaultGrowthRate == "" {
		cfg.Plan.DefaultGrowthRate = "5"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AutosaveInterval converts the configured seconds to a duration.
func (c *Config) AutosaveInterval() time.Duration {
	return time.Duration(c.Database.AutosaveSeconds) * time.Second
}

func (c *Config) validate() error {
	if _, err := strconv.ParseFloat(c.Plan.DefaultGrowthRate, 64); err != nil {
		return fmt.Errorf("default_growth_rate %q is not numeric", c.Plan.DefaultGrowthRate)
	}
	if c.Plan.HorizonYears > 200 {
		return fmt.Errorf("horizon_years %d is unreasonably large", c.Plan.HorizonYears)
	}
	return nil
}
