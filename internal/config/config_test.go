package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "ws://localhost:8080" {
		t.Errorf("Expected default server URL, got %s", cfg.ServerURL)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.StateDir == "" {
		t.Error("Expected non-empty state dir")
	}
}

func TestLoadOverridesOnlyProvidedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"server_url":"ws://team.example:9000","log_level":"debug"}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "ws://team.example:9000" {
		t.Errorf("Expected overridden server URL, got %s", cfg.ServerURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected debug log level, got %s", cfg.LogLevel)
	}
	if cfg.APIBaseURL != "http://localhost:8080" {
		t.Errorf("Expected default API URL to survive, got %s", cfg.APIBaseURL)
	}
}

func TestLoadCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for corrupt config")
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server_url":"ws://file.example"}`), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DEVROOM_SERVER_URL", "ws://env.example")
	t.Setenv("DEVROOM_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "ws://env.example" {
		t.Errorf("Expected env override to win, got %s", cfg.ServerURL)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("Expected env log level, got %s", cfg.LogLevel)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.ServerURL = "ws://saved.example"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ServerURL != "ws://saved.example" {
		t.Errorf("Expected saved server URL, got %s", loaded.ServerURL)
	}
}
