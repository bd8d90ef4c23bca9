package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	LogFormat   string `yaml:"logFormat"`
	DatabaseURL string `yaml:"databaseURL"`

	QueueDriver   string `yaml:"queueDriver"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	QueueStream   string `yaml:"queueStream"`
	QueueGroup    string `yaml:"queueGroup"`
	AMQPURL       string `yaml:"amqpURL"`
	AMQPQueue     string `yaml:"amqpQueue"`

	Concurrency int    `yaml:"concurrency"`
	MaxRetries  int    `yaml:"maxRetries"`
	RetryDelay  string `yaml:"retryDelay"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("QUEUE_DRIVER"); v != "" {
		cfg.QueueDriver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("LOGWORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("LOGWORKER_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	cfg.QueueDriver = strings.ToLower(strings.TrimSpace(cfg.QueueDriver))
	if cfg.QueueDriver == "" {
		cfg.QueueDriver = "redis"
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	switch cfg.QueueDriver {
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
		}
	case "rabbitmq":
		if cfg.AMQPURL == "" {
			return errors.New("config: amqpURL is required (set in config.yaml or AMQP_URL)")
		}
	default:
		return fmt.Errorf("config: unsupported queueDriver %q (redis|rabbitmq)", cfg.QueueDriver)
	}
	if cfg.Concurrency < 0 || cfg.MaxRetries < 0 {
		return errors.New("config: concurrency and maxRetries must be >= 0")
	}
	if _, err := ParseRetryDelay(cfg.RetryDelay); err != nil {
		return err
	}
	return nil
}

// ParseRetryDelay parses retryDelay; empty means the queue default.
func ParseRetryDelay(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("config: invalid retryDelay %q", raw)
	}
	return d, nil
}
