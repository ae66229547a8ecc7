package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HendryAvila/toolrelay/internal/tasks"
)

// --- Defaults ---

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 3001 {
		t.Errorf("Port = %d, want 3001", cfg.Port)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %s, want 0.0.0.0", cfg.Host)
	}
	if cfg.DefaultPriority != tasks.PriorityMedium {
		t.Errorf("DefaultPriority = %s, want medium", cfg.DefaultPriority)
	}
	if cfg.ToolTimeout != 30*time.Second {
		t.Errorf("ToolTimeout = %s, want 30s", cfg.ToolTimeout)
	}
	if cfg.StrictArgs {
		t.Error("StrictArgs should default to false")
	}
	if cfg.GeocoderURL != DefaultGeocoderURL {
		t.Errorf("GeocoderURL = %s, want %s", cfg.GeocoderURL, DefaultGeocoderURL)
	}
	if cfg.Addr() != "0.0.0.0:3001" {
		t.Errorf("Addr = %s, want 0.0.0.0:3001", cfg.Addr())
	}
}

// --- Environment ---

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("STRICT_ARGS", "true")
	t.Setenv("TOOL_TIMEOUT", "5s")
	t.Setenv("DEFAULT_PRIORITY", "high")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if !cfg.StrictArgs {
		t.Error("StrictArgs should be true")
	}
	if cfg.ToolTimeout != 5*time.Second {
		t.Errorf("ToolTimeout = %s, want 5s", cfg.ToolTimeout)
	}
	if cfg.DefaultPriority != tasks.PriorityHigh {
		t.Errorf("DefaultPriority = %s, want high", cfg.DefaultPriority)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		value   string
		wantErr string
	}{
		{"port too high", "PORT", "70000", "invalid port"},
		{"unknown priority", "DEFAULT_PRIORITY", "someday", "invalid default priority"},
		{"negative timeout", "TOOL_TIMEOUT", "-1s", "invalid tool timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := Load(NewViper())
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

// --- Config file ---

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolrelay.yaml")
	content := "port: 4000\ntasks_dir: /srv/tasks\nlog_format: json\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	v := NewViper()
	v.SetConfigFile(path)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 4000 {
		t.Errorf("Port = %d, want 4000", cfg.Port)
	}
	if cfg.TasksDir != "/srv/tasks" {
		t.Errorf("TasksDir = %s, want /srv/tasks", cfg.TasksDir)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %s, want json", cfg.LogFormat)
	}
}

// --- .env ---

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TOOLRELAY_TEST_VALUE=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("TOOLRELAY_TEST_VALUE") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("TOOLRELAY_TEST_VALUE"); got != "from-dotenv" {
		t.Errorf("TOOLRELAY_TEST_VALUE = %q, want from-dotenv", got)
	}
}

func TestLoadDotEnv_MissingFileIsNotAnError(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("LoadDotEnv on missing file: %v", err)
	}
}
