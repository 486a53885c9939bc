package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings loaded from roadmap.yml.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Editor  EditorConfig  `yaml:"editor"`
	Save    SaveConfig    `yaml:"save"`
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig points the client at the remote roadmap service.
type APIConfig struct {
	BaseURL string            `yaml:"baseURL,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// EditorConfig holds editing-session defaults.
type EditorConfig struct {
	DebounceWindow time.Duration `yaml:"debounceWindow,omitempty"`
	HistoryLimit   int           `yaml:"historyLimit,omitempty"`
	ConnectionType string        `yaml:"connectionType,omitempty"`
	EdgeType       string        `yaml:"edgeType,omitempty"`
	EdgeStroke     string        `yaml:"edgeStroke,omitempty"`
	EdgeWidth      float64       `yaml:"edgeWidth,omitempty"`
	ReadOnly       bool          `yaml:"readOnly,omitempty"`
}

// SaveConfig tunes the save coordinator.
type SaveConfig struct {
	BatchSize        int `yaml:"batchSize,omitempty"`
	BatchConcurrency int `yaml:"batchConcurrency,omitempty"`
}

// ServerConfig configures the reference roadmap server.
type ServerConfig struct {
	Addr           string   `yaml:"addr,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// StoreConfig selects the server-side repository backend.
type StoreConfig struct {
	Backend string `yaml:"backend,omitempty"` // memory | badger | kuzu
	Path    string `yaml:"path,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Editor: EditorConfig{
			DebounceWindow: 500 * time.Millisecond,
			HistoryLimit:   100,
			ConnectionType: "arrow",
			EdgeType:       "smoothstep",
			EdgeStroke:     "#6d28d9",
			EdgeWidth:      1,
		},
		Save: SaveConfig{
			BatchSize:        5,
			BatchConcurrency: 1,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads roadmap.yml or roadmap.yaml from dir on top of Defaults.
// A missing file is not an error. Environment overrides are applied last.
func Load(dir string) (*Config, error) {
	cfg := Defaults()
	for _, name := range []string{"roadmap.yml", "roadmap.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		break
	}
	applyEnv(&cfg)
	return &cfg, cfg.Validate()
}

// LoadFile reads a specific config file on top of Defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyEnv(&cfg)
	return &cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ROADMAP_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("ROADMAP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ROADMAP_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("api.baseURL: %w", err))
	}
	if c.Save.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("save.batchSize must be >= 1, got %d", c.Save.BatchSize))
	}
	if c.Save.BatchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("save.batchConcurrency must be >= 1, got %d", c.Save.BatchConcurrency))
	}
	if c.Editor.DebounceWindow < 0 {
		errs = append(errs, fmt.Errorf("editor.debounceWindow must not be negative"))
	}
	switch c.Editor.ConnectionType {
	case "arrow", "none":
	default:
		errs = append(errs, fmt.Errorf("editor.connectionType must be arrow or none, got %q", c.Editor.ConnectionType))
	}
	switch c.Store.Backend {
	case "memory":
	case "badger", "kuzu":
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for backend %q", c.Store.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be memory, badger or kuzu, got %q", c.Store.Backend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
