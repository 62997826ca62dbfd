package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Config represents application configuration
type Config struct {
	ServerURL   string `json:"server_url"`   // websocket endpoint of the realtime channel
	APIBaseURL  string `json:"api_base_url"` // REST API that owns projects and users
	StateDir    string `json:"state_dir"`    // where the local session database lives
	SandboxDir  string `json:"sandbox_dir"`  // root the file tree is mounted into
	LogLevel    string `json:"log_level"`    // debug, info, warn, error, none
	LogPath     string `json:"-"`
	MountBudget int    `json:"mount_budget_seconds,omitempty"` // per-mount deadline, 0 keeps the default
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "devroom")
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "devroom")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", "devroom")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "devroom")
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, "devroom")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "devroom")
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, "devroom")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", "devroom")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "devroom")
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	stateDir := defaultStateDir()

	return &Config{
		ServerURL:  "ws://localhost:8080",
		APIBaseURL: "http://localhost:8080",
		StateDir:   stateDir,
		SandboxDir: filepath.Join(os.TempDir(), "devroom-sandbox"),
		LogLevel:   "info",
		LogPath:    filepath.Join(stateDir, "devroom.log"),
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config if file doesn't exist
			return config, nil
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	// Ensure critical fields have defaults if still empty
	stateDir := defaultStateDir()
	if config.ServerURL == "" {
		config.ServerURL = "ws://localhost:8080"
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = "http://localhost:8080"
	}
	if config.StateDir == "" {
		config.StateDir = stateDir
	}
	if config.SandboxDir == "" {
		config.SandboxDir = filepath.Join(os.TempDir(), "devroom-sandbox")
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogPath == "" {
		config.LogPath = filepath.Join(stateDir, "devroom.log")
	}

	applyEnvOverrides(config)

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := strings.TrimSpace(os.Getenv("DEVROOM_SERVER_URL")); v != "" {
		config.ServerURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DEVROOM_API_URL")); v != "" {
		config.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DEVROOM_STATE_DIR")); v != "" {
		config.StateDir = v
	}
	if v := strings.TrimSpace(os.Getenv("DEVROOM_SANDBOX_DIR")); v != "" {
		config.SandboxDir = v
	}
	if v := strings.TrimSpace(os.Getenv("DEVROOM_LOG_LEVEL")); v != "" {
		config.LogLevel = v
	}
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}
