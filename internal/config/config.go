package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server struct {
		Port      string `json:"port"`
		StaticDir string `json:"static_dir"`
		Debug     bool   `json:"debug"`
		LogMode   string `json:"log_mode"` // "development" or "production"
	} `json:"server"`

	Backend struct {
		URL            string `json:"url"`
		Token          string `json:"token"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	} `json:"backend"`

	Cache struct {
		Store                 string `json:"store"` // "memory", "sqlite" or "redis"
		Path                  string `json:"path"`
		CapacityBytes         int64  `json:"capacity_bytes"`
		RedisAddr             string `json:"redis_addr"`
		RedisPassword         string `json:"redis_password"`
		RedisDB               int    `json:"redis_db"`
		DashboardTTLMinutes   int    `json:"dashboard_ttl_minutes"`
		ObservationTTLMinutes int    `json:"observation_ttl_minutes"`
	} `json:"cache"`

	ML struct {
		Type       string `json:"type"` // "backend" or "google"
		ConfigPath string `json:"config_path"`
	} `json:"ml"`
}

// LoadConfig loads configuration from a JSON file, then lets the environment
// fill or override connection settings.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() {
	overrideString(&c.Server.Port, "LIVESTOCK_PORT")
	overrideString(&c.Backend.URL, "LIVESTOCK_BACKEND_URL")
	overrideString(&c.Backend.Token, "LIVESTOCK_BACKEND_TOKEN")
	overrideString(&c.Cache.Store, "LIVESTOCK_CACHE_STORE")
	overrideString(&c.Cache.RedisAddr, "LIVESTOCK_REDIS_ADDR")
	overrideString(&c.Cache.RedisPassword, "LIVESTOCK_REDIS_PASSWORD")
	overrideString(&c.ML.Type, "LIVESTOCK_ML_TYPE")
	if v, err := strconv.ParseBool(os.Getenv("LIVESTOCK_DEBUG")); err == nil {
		c.Server.Debug = v
	}
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "./static"
	}
	if c.Server.LogMode == "" {
		c.Server.LogMode = "production"
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = 30
	}
	if c.Cache.Store == "" {
		c.Cache.Store = "memory"
	}
	if c.Cache.Path == "" {
		c.Cache.Path = "livestock-cache.db"
	}
	if c.Cache.CapacityBytes <= 0 {
		c.Cache.CapacityBytes = 5 << 20
	}
	if c.Cache.DashboardTTLMinutes <= 0 {
		c.Cache.DashboardTTLMinutes = 15
	}
	if c.Cache.ObservationTTLMinutes <= 0 {
		c.Cache.ObservationTTLMinutes = 30
	}
	if c.ML.Type == "" {
		c.ML.Type = "backend"
	}
}

// Validate reports the first missing or inconsistent setting
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is not set in config file")
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("backend url is not set")
	}
	switch c.Cache.Store {
	case "memory", "sqlite":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("redis cache store requires redis_addr")
		}
	default:
		return fmt.Errorf("unsupported cache store: %s", c.Cache.Store)
	}
	switch c.ML.Type {
	case "backend", "google":
	default:
		return fmt.Errorf("unsupported ml type: %s", c.ML.Type)
	}
	return nil
}

func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func (c *Config) DashboardTTL() time.Duration {
	return time.Duration(c.Cache.DashboardTTLMinutes) * time.Minute
}

func (c *Config) ObservationTTL() time.Duration {
	return time.Duration(c.Cache.ObservationTTLMinutes) * time.Minute
}

// GetConfigPath returns the path to the configuration file
func GetConfigPath() string {
	if path := os.Getenv("LIVESTOCK_CONFIG"); path != "" {
		return path
	}

	configDir := "config"
	if _, err := os.Stat(configDir); err == nil {
		return filepath.Join(configDir, "config.json")
	}

	return "config.json"
}
