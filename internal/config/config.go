package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/menta2k/image-pipeline/pkg/detect/ollama"
	"github.com/menta2k/image-pipeline/pkg/pipeline"
)

// Config holds the application configuration
type Config struct {
	Engine   EngineConfig   `json:"engine"`
	Store    StoreConfig    `json:"store"`
	Detector DetectorConfig `json:"detector"`
	Output   OutputConfig   `json:"output"`
}

// EngineConfig holds the encoder settings
type EngineConfig struct {
	JPEGQuality  int     `json:"jpeg_quality"`
	WebPQuality  float32 `json:"webp_quality"`
	WebPLossless bool    `json:"webp_lossless"`
}

// StoreConfig addresses the object store overlay sources are read from
type StoreConfig struct {
	Root string `json:"root"`
}

// DetectorConfig selects and addresses the vision model backend used
// for the smart crop operations
type DetectorConfig struct {
	Backend string `json:"backend"`
	URL     string `json:"url"`
	Model   string `json:"model"`
}

// OutputConfig bounds the encoded result
type OutputConfig struct {
	DefaultFormat string `json:"default_format"`
	MaxBytes      int    `json:"max_bytes"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			JPEGQuality: 90,
			WebPQuality: 90,
		},
		Store: StoreConfig{
			Root: "./assets",
		},
		Detector: DetectorConfig{
			Backend: "ollama",
			URL:     "http://localhost:11434",
			Model:   ollama.DefaultModel,
		},
		Output: OutputConfig{
			DefaultFormat: "",
			MaxBytes:      pipeline.DefaultMaxOutputBytes,
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Engine.JPEGQuality < 1 || c.Engine.JPEGQuality > 100 {
		return fmt.Errorf("engine.jpeg_quality must be between 1 and 100")
	}

	if c.Engine.WebPQuality < 1 || c.Engine.WebPQuality > 100 {
		return fmt.Errorf("engine.webp_quality must be between 1 and 100")
	}

	switch c.Detector.Backend {
	case "ollama", "llamacpp":
	default:
		return fmt.Errorf("detector.backend must be %q or %q", "ollama", "llamacpp")
	}

	if c.Output.MaxBytes < 0 {
		return fmt.Errorf("output.max_bytes cannot be negative")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "image-pipeline", "config.json")
}
