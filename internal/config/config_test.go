package config

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8123" {
		t.Errorf("Expected port 8123, got %s", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("Expected wildcard origin, got %v", cfg.AllowedOrigins)
	}
	if cfg.ValidationErrorStatus != http.StatusInternalServerError {
		t.Errorf("Expected validation status 500, got %d", cfg.ValidationErrorStatus)
	}
	if cfg.Model.Backend != BackendRscript || !cfg.Model.Serialize || cfg.Model.Timeout != 0 {
		t.Errorf("Unexpected model defaults %+v", cfg.Model)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("VALIDATION_ERROR_STATUS", "400")
	t.Setenv("METRICS_ENABLED", "off")
	t.Setenv("MODEL_BACKEND", "GRPC")
	t.Setenv("MODEL_GRPC_ADDR", "model:50051")
	t.Setenv("MODEL_TIMEOUT", "90s")
	t.Setenv("MODEL_SERIALIZE", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("Unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("Expected debug level, got %v", cfg.LogLevel)
	}
	if cfg.ValidationErrorStatus != http.StatusBadRequest {
		t.Errorf("Expected validation status 400, got %d", cfg.ValidationErrorStatus)
	}
	if cfg.MetricsEnabled {
		t.Error("Expected metrics disabled")
	}
	if cfg.Model.Backend != BackendGRPC || cfg.Model.GRPCAddr != "model:50051" {
		t.Errorf("Unexpected model backend %+v", cfg.Model)
	}
	if cfg.Model.Timeout != 90*time.Second {
		t.Errorf("Expected 90s timeout, got %v", cfg.Model.Timeout)
	}
	if cfg.Model.Serialize {
		t.Error("Expected serialization disabled")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`port: "7000"
logLevel: warn
metricsEnabled: false
model:
  backend: docker
  container: intentions-model
  timeout: 2m
  serialize: false
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "7001" {
		t.Errorf("Expected env to override file port, got %s", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Errorf("Expected warn level, got %v", cfg.LogLevel)
	}
	if cfg.MetricsEnabled {
		t.Error("Expected metrics disabled by file")
	}
	if cfg.Model.Backend != BackendDocker || cfg.Model.Container != "intentions-model" {
		t.Errorf("Unexpected model config %+v", cfg.Model)
	}
	if cfg.Model.ContainerSource != "/model/functions.R" {
		t.Errorf("Expected default container source, got %s", cfg.Model.ContainerSource)
	}
	if cfg.Model.Timeout != 2*time.Minute {
		t.Errorf("Expected 2m timeout, got %v", cfg.Model.Timeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Run("env", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", "")
		t.Setenv("LOG_LEVEL", "verbose")
		if _, err := Load(); err == nil {
			t.Error("Expected error for invalid LOG_LEVEL")
		}
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("logLevel: verbose\n"), 0o600); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}
		t.Setenv("CONFIG_FILE", path)
		t.Setenv("LOG_LEVEL", "")
		if _, err := Load(); err == nil {
			t.Error("Expected error for invalid logLevel in file")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"bad status", func(c *Config) { c.ValidationErrorStatus = 422 }},
		{"unknown backend", func(c *Config) { c.Model.Backend = "python" }},
		{"docker without container", func(c *Config) { c.Model.Backend = BackendDocker }},
		{"grpc without addr", func(c *Config) { c.Model.Backend = BackendGRPC; c.Model.GRPCAddr = "" }},
		{"negative timeout", func(c *Config) { c.Model.Timeout = -time.Second }},
		{"no origins", func(c *Config) { c.AllowedOrigins = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}
