package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     string `yaml:"port"`
	DBDSN    string `yaml:"db_dsn"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	TraceStdout  bool     `yaml:"trace_stdout"`

	// RateLimit requests per RateWindow for each caller on mutating routes.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`

	// BulkDeadline is the collection window for bulk orders created without one.
	BulkDeadline time.Duration `yaml:"bulk_deadline"`
}

func defaults() Config {
	return Config{
		Port:         "8080",
		DBDSN:        "agrobulk.db", // sqlite file in project root
		LogLevel:     "info",
		KafkaTopic:   "agrobulk.events",
		RateLimit:    60,
		RateWindow:   time.Minute,
		BulkDeadline: 7 * 24 * time.Hour,
	}
}

// Load reads defaults, then the YAML file named by AGROBULK_CONFIG if any,
// then environment variables. Later sources win.
func Load() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("AGROBULK_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &cfg.Port)
	str("DB_DSN", &cfg.DBDSN)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FILE", &cfg.LogFile)
	str("KAFKA_TOPIC", &cfg.KafkaTopic)

	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		cfg.KafkaBrokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	if v, ok := lookup("TRACE_STDOUT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRACE_STDOUT: %w", err)
		}
		cfg.TraceStdout = b
	}
	if v, ok := lookup("RATE_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT: %w", err)
		}
		cfg.RateLimit = n
	}
	for key, dst := range map[string]*time.Duration{"RATE_WINDOW": &cfg.RateWindow, "BULK_DEADLINE": &cfg.BulkDeadline} {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}
