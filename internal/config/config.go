package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Questions struct {
		File  string `yaml:"file"`
		SetID string `yaml:"set_id"`
		TTL   string `yaml:"ttl"`
	} `yaml:"questions"`
	Identity struct {
		ValidIDsFile string `yaml:"valid_ids_file"`
		ClaimTTL     string `yaml:"claim_ttl"`
	} `yaml:"identity"`
	Session struct {
		StalenessHorizon string `yaml:"staleness_horizon"`
		ProgressFile     string `yaml:"progress_file"`
		FinalizeAttempts int    `yaml:"finalize_attempts"`
		FinalizeBackoff  string `yaml:"finalize_backoff"`
		FinalizeTimeout  string `yaml:"finalize_timeout"`
	} `yaml:"session"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty or invalid.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
