// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Model backends.
const (
	BackendRscript = "rscript"
	BackendDocker  = "docker"
	BackendGRPC    = "grpc"
)

// Config holds all application configuration.
type Config struct {
	Port                  string
	AllowedOrigins        []string
	LogLevel              slog.Level
	MaxRequestBodyBytes   int64
	ValidationErrorStatus int // status for invalid requests: 400 or 500
	MetricsEnabled        bool
	Model                 ModelConfig
}

// ModelConfig selects and configures the model backend.
type ModelConfig struct {
	Backend         string
	RscriptPath     string
	Source          string
	WorkDir         string
	Container       string
	ContainerSource string
	GRPCAddr        string
	Timeout         time.Duration // 0 = no timeout
	Serialize       bool
}

// fileConfig is the optional YAML config file. Environment variables win
// over anything set here.
type fileConfig struct {
	Port                  string   `yaml:"port"`
	AllowedOrigins        []string `yaml:"allowedOrigins"`
	LogLevel              string   `yaml:"logLevel"`
	MaxRequestBodyBytes   int64    `yaml:"maxRequestBodyBytes"`
	ValidationErrorStatus int      `yaml:"validationErrorStatus"`
	MetricsEnabled        *bool    `yaml:"metricsEnabled"`
	Model                 struct {
		Backend         string        `yaml:"backend"`
		RscriptPath     string        `yaml:"rscriptPath"`
		Source          string        `yaml:"source"`
		WorkDir         string        `yaml:"workDir"`
		Container       string        `yaml:"container"`
		ContainerSource string        `yaml:"containerSource"`
		GRPCAddr        string        `yaml:"grpcAddr"`
		Timeout         time.Duration `yaml:"timeout"`
		Serialize       *bool         `yaml:"serialize"`
	} `yaml:"model"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:                  "8123",
		AllowedOrigins:        []string{"*"},
		LogLevel:              slog.LevelInfo,
		MaxRequestBodyBytes:   1 << 20,
		ValidationErrorStatus: http.StatusInternalServerError,
		MetricsEnabled:        true,
		Model: ModelConfig{
			Backend:         BackendRscript,
			RscriptPath:     "Rscript",
			Source:          "functions.R",
			ContainerSource: "/model/functions.R",
			GRPCAddr:        "localhost:50051",
			Serialize:       true,
		},
	}
}

// Load reads configuration from CONFIG_FILE (if set) and then from
// environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if f.Port != "" {
		c.Port = f.Port
	}
	if f.AllowedOrigins != nil {
		c.AllowedOrigins = f.AllowedOrigins
	}
	if f.LogLevel != "" {
		level, err := parseLevel(f.LogLevel)
		if err != nil {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		c.LogLevel = level
	}
	if f.MaxRequestBodyBytes != 0 {
		c.MaxRequestBodyBytes = f.MaxRequestBodyBytes
	}
	if f.ValidationErrorStatus != 0 {
		c.ValidationErrorStatus = f.ValidationErrorStatus
	}
	if f.MetricsEnabled != nil {
		c.MetricsEnabled = *f.MetricsEnabled
	}

	m := f.Model
	if m.Backend != "" {
		c.Model.Backend = m.Backend
	}
	if m.RscriptPath != "" {
		c.Model.RscriptPath = m.RscriptPath
	}
	if m.Source != "" {
		c.Model.Source = m.Source
	}
	if m.WorkDir != "" {
		c.Model.WorkDir = m.WorkDir
	}
	if m.Container != "" {
		c.Model.Container = m.Container
	}
	if m.ContainerSource != "" {
		c.Model.ContainerSource = m.ContainerSource
	}
	if m.GRPCAddr != "" {
		c.Model.GRPCAddr = m.GRPCAddr
	}
	if m.Timeout != 0 {
		c.Model.Timeout = m.Timeout
	}
	if m.Serialize != nil {
		c.Model.Serialize = *m.Serialize
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	if origins := getEnv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}
	if raw := getEnv("LOG_LEVEL", ""); raw != "" {
		level, err := parseLevel(raw)
		if err != nil {
			return fmt.Errorf("LOG_LEVEL: %w", err)
		}
		c.LogLevel = level
	}
	c.MaxRequestBodyBytes = int64(getEnvInt("MAX_REQUEST_BODY_BYTES", int(c.MaxRequestBodyBytes)))
	c.ValidationErrorStatus = getEnvInt("VALIDATION_ERROR_STATUS", c.ValidationErrorStatus)
	c.MetricsEnabled = getEnvBool("METRICS_ENABLED", c.MetricsEnabled)

	c.Model.Backend = strings.ToLower(getEnv("MODEL_BACKEND", c.Model.Backend))
	c.Model.RscriptPath = getEnv("RSCRIPT_PATH", c.Model.RscriptPath)
	c.Model.Source = getEnv("MODEL_SOURCE", c.Model.Source)
	c.Model.WorkDir = getEnv("MODEL_WORKDIR", c.Model.WorkDir)
	c.Model.Container = getEnv("MODEL_CONTAINER", c.Model.Container)
	c.Model.ContainerSource = getEnv("MODEL_CONTAINER_SOURCE", c.Model.ContainerSource)
	c.Model.GRPCAddr = getEnv("MODEL_GRPC_ADDR", c.Model.GRPCAddr)
	c.Model.Timeout = getEnvDuration("MODEL_TIMEOUT", c.Model.Timeout)
	c.Model.Serialize = getEnvBool("MODEL_SERIALIZE", c.Model.Serialize)
	return nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS cannot be empty")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.ValidationErrorStatus != http.StatusBadRequest && c.ValidationErrorStatus != http.StatusInternalServerError {
		return fmt.Errorf("VALIDATION_ERROR_STATUS must be 400 or 500, got %d", c.ValidationErrorStatus)
	}
	if c.Model.Timeout < 0 {
		return fmt.Errorf("MODEL_TIMEOUT cannot be negative")
	}

	switch c.Model.Backend {
	case BackendRscript:
		if c.Model.RscriptPath == "" {
			return fmt.Errorf("RSCRIPT_PATH cannot be empty")
		}
		if c.Model.Source == "" {
			return fmt.Errorf("MODEL_SOURCE cannot be empty")
		}
	case BackendDocker:
		if c.Model.Container == "" {
			return fmt.Errorf("MODEL_CONTAINER is required for the docker backend")
		}
		if c.Model.ContainerSource == "" {
			return fmt.Errorf("MODEL_CONTAINER_SOURCE cannot be empty")
		}
	case BackendGRPC:
		if c.Model.GRPCAddr == "" {
			return fmt.Errorf("MODEL_GRPC_ADDR is required for the grpc backend")
		}
	default:
		return fmt.Errorf("unknown MODEL_BACKEND %q", c.Model.Backend)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
