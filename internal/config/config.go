package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/savegress/dbpulse/internal/catalog"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Baseline  BaselineConfig  `yaml:"baseline"`
	Detection DetectionConfig `yaml:"detection"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Instances []string        `yaml:"instances"`

	// Metrics overrides the built-in metric catalog when set
	Metrics []catalog.MetricDefinition `yaml:"metrics,omitempty"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`
}

type StorageConfig struct {
	Type     string                 `yaml:"type"` // embedded, postgres
	Embedded *EmbeddedStorageConfig `yaml:"embedded,omitempty"`
	Postgres *PostgresStorageConfig `yaml:"postgres,omitempty"`
}

type EmbeddedStorageConfig struct {
	Path string `yaml:"path"`
}

type PostgresStorageConfig struct {
	URL string `yaml:"url"`
}

type BaselineConfig struct {
	TrainingDays int      `yaml:"training_days"`
	Interval     Duration `yaml:"interval"`
}

type DetectionConfig struct {
	Interval Duration `yaml:"interval"`
}

// Duration decodes yaml values like "5m" or "24h" into a duration
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// Std returns the duration as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type AlertsConfig struct {
	Webhook *WebhookConfig `yaml:"webhook,omitempty"`
}

type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// Load reads a yaml config file, expanding environment variables
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)
	return &cfg, nil
}

// LoadFromEnv builds a config from defaults plus environment overrides
func LoadFromEnv() *Config {
	cfg := &Config{}
	setDefaults(cfg)

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Storage.Type = "postgres"
		cfg.Storage.Postgres = &PostgresStorageConfig{URL: dbURL}
	}
	if webhook := os.Getenv("ALERT_WEBHOOK_URL"); webhook != "" {
		cfg.Alerts.Webhook = &WebhookConfig{URL: webhook}
	}

	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3007
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = "development"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "embedded"
	}
	if cfg.Baseline.TrainingDays == 0 {
		cfg.Baseline.TrainingDays = 30
	}
	if cfg.Baseline.Interval == 0 {
		cfg.Baseline.Interval = Duration(24 * time.Hour)
	}
	if cfg.Detection.Interval == 0 {
		cfg.Detection.Interval = Duration(5 * time.Minute)
	}
	if len(cfg.Instances) == 0 {
		cfg.Instances = []string{"default"}
	}
}

// Catalog returns the configured metric catalog, or the built-in one
// when the config does not override it
func (c *Config) Catalog() catalog.Catalog {
	if len(c.Metrics) == 0 {
		return catalog.Default()
	}
	return catalog.Catalog(c.Metrics)
}
