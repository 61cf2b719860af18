// Package config loads the crawler configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Twitter  TwitterConfig  `yaml:"twitter"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Server   ServerConfig   `yaml:"server"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TwitterConfig configures API access.
type TwitterConfig struct {
	BearerToken string `yaml:"bearer_token"`
	// RateLimitPerWindow is the request budget per 15-minute window, shared
	// by every outbound call including pagination pages.
	RateLimitPerWindow int `yaml:"rate_limit_per_window"`
}

// CrawlConfig configures cycle scheduling and fetch depth.
type CrawlConfig struct {
	Interval         string `yaml:"interval"`
	HistoryDepthDays int    `yaml:"history_depth_days"`
}

// ParseInterval returns the crawl interval as a time.Duration.
func (c CrawlConfig) ParseInterval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return time.Hour
	}
	return d
}

// ServerConfig configures the status HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./moodwatch.db"},
		Twitter:  TwitterConfig{RateLimitPerWindow: 450},
		Crawl: CrawlConfig{
			Interval:         "1h",
			HistoryDepthDays: 90,
		},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate checks settings the process cannot start without.
func (c *Config) Validate() error {
	if c.Twitter.BearerToken == "" {
		return fmt.Errorf("twitter bearer token is required (set TWITTER_BEARER_TOKEN)")
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MOODWATCH_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TWITTER_BEARER_TOKEN"); v != "" {
		cfg.Twitter.BearerToken = v
	}
	if v := os.Getenv("CRAWL_INTERVAL"); v != "" {
		cfg.Crawl.Interval = v
	}
	if v := os.Getenv("HISTORY_DEPTH_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Crawl.HistoryDepthDays = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_PER_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Twitter.RateLimitPerWindow = n
		}
	}
}
