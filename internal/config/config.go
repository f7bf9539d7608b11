package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Printers  PrintersConfig  `yaml:"printers"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	History   HistoryConfig   `yaml:"history"`
	Limits    LimitsConfig    `yaml:"limits"`
	Processor ProcessorConfig `yaml:"processor"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type StorageConfig struct {
	UploadDir    string `yaml:"upload_dir"`
	ProcessedDir string `yaml:"processed_dir"`
	MaxUploadMB  int64  `yaml:"max_upload_mb"`
}

type PrintersConfig struct {
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	ConnectionTimeout   time.Duration `yaml:"connection_timeout"`
}

type MonitorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	FallbackStep int           `yaml:"fallback_step"`
}

type HistoryConfig struct {
	Cap   int           `yaml:"cap"`
	Grace time.Duration `yaml:"grace"`
}

type LimitsConfig struct {
	MaxCopies     int `yaml:"max_copies"`
	ScaleMin      int `yaml:"scale_min"`
	ScaleMax      int `yaml:"scale_max"`
	BrightnessMin int `yaml:"brightness_min"`
	BrightnessMax int `yaml:"brightness_max"`
	ContrastMin   int `yaml:"contrast_min"`
	ContrastMax   int `yaml:"contrast_max"`
}

type ProcessorConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WebhooksConfig struct {
	WorkerCount int           `yaml:"worker_count"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	QueueSize   int           `yaml:"queue_size"`
}

type SecurityConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/printserver.db",
		},
		Storage: StorageConfig{
			UploadDir:    "./data/uploads",
			ProcessedDir: "./data/processed",
			MaxUploadMB:  64,
		},
		Printers: PrintersConfig{
			HealthCheckInterval: 30 * time.Second,
			ConnectionTimeout:   10 * time.Second,
		},
		Monitor: MonitorConfig{
			PollInterval: 3 * time.Second,
			FallbackStep: 5,
		},
		History: HistoryConfig{
			Cap:   20,
			Grace: 5 * time.Second,
		},
		Limits: LimitsConfig{
			MaxCopies:     999,
			ScaleMin:      1,
			ScaleMax:      500,
			BrightnessMin: -100,
			BrightnessMax: 100,
			ContrastMin:   -100,
			ContrastMax:   100,
		},
		Processor: ProcessorConfig{
			Timeout: 2 * time.Minute,
		},
		Webhooks: WebhooksConfig{
			WorkerCount: 2,
			MaxRetries:  3,
			RetryDelay:  10 * time.Second,
			QueueSize:   100,
		},
		Security: SecurityConfig{
			TokenExpiry: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

// applyEnv layers environment overrides on top of file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("PRINTSERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	if v := os.Getenv("PRINTSERVER_DB_PATH"); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv("PRINTSERVER_UPLOAD_DIR"); v != "" {
		c.Storage.UploadDir = v
	}

	if v := os.Getenv("PRINTSERVER_PROCESSOR_URL"); v != "" {
		c.Processor.URL = v
	}

	if v := os.Getenv("PRINTSERVER_JWT_SECRET"); v != "" {
		c.Security.JWTSecret = v
	}

	if v := os.Getenv("PRINTSERVER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Storage.UploadDir == "" {
		return fmt.Errorf("upload directory is required")
	}

	if c.Storage.MaxUploadMB < 1 {
		return fmt.Errorf("max upload size must be at least 1 MB")
	}

	if c.Printers.HealthCheckInterval < 0 {
		return fmt.Errorf("health check interval must be non-negative")
	}

	if c.Printers.ConnectionTimeout < 0 {
		return fmt.Errorf("connection timeout must be non-negative")
	}

	if c.Monitor.PollInterval < time.Millisecond {
		return fmt.Errorf("monitor poll interval must be at least 1ms")
	}

	if c.Monitor.FallbackStep < 1 || c.Monitor.FallbackStep > 95 {
		return fmt.Errorf("monitor fallback step must be between 1 and 95")
	}

	if c.History.Cap < 1 {
		return fmt.Errorf("history cap must be at least 1")
	}

	if c.History.Grace < 0 {
		return fmt.Errorf("history grace must be non-negative")
	}

	if c.Limits.MaxCopies < 1 {
		return fmt.Errorf("max copies must be at least 1")
	}

	if c.Limits.ScaleMin < 1 || c.Limits.ScaleMax < c.Limits.ScaleMin {
		return fmt.Errorf("scale bounds must be ascending and positive")
	}

	if c.Limits.BrightnessMax < c.Limits.BrightnessMin {
		return fmt.Errorf("brightness bounds must be ascending")
	}

	if c.Limits.ContrastMax < c.Limits.ContrastMin {
		return fmt.Errorf("contrast bounds must be ascending")
	}

	if c.Webhooks.WorkerCount < 1 {
		return fmt.Errorf("webhook worker count must be at least 1")
	}

	if c.Webhooks.MaxRetries < 0 {
		return fmt.Errorf("webhook max retries must be non-negative")
	}

	if c.Webhooks.RetryDelay < 0 {
		return fmt.Errorf("webhook retry delay must be non-negative")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}
