// Package config handles Quill configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./quill.yaml, ~/.config/quill/config.yaml, /etc/quill/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"quill.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "quill", "config.yaml"))
	}

	paths = append(paths, "/etc/quill/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Quill configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Database   DatabaseConfig   `yaml:"database"`
	Models     ModelsConfig     `yaml:"models"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Search     SearchConfig     `yaml:"search"`
	Canned     CannedConfig     `yaml:"canned"`
	Quota      QuotaConfig      `yaml:"quota"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	PersonaFile string          `yaml:"persona_file"`
	LogLevel    string          `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`    // Default: 8180
}

// DatabaseConfig defines the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"` // Default: quill.db
}

// ModelsConfig defines model routing settings.
type ModelsConfig struct {
	// BaseURL is the chat completion endpoint root (Ollama-compatible).
	BaseURL string `yaml:"base_url"`
	// Fast is used for prompts matched by the simple-keyword heuristic.
	Fast string `yaml:"fast"`
	// Capable is used for everything else, and always when tools are attached.
	Capable string `yaml:"capable"`
	// Title is the cheap model used to name new conversations.
	Title string `yaml:"title"`
	// SimpleKeywords override the built-in fast-path keyword list.
	SimpleKeywords []string `yaml:"simple_keywords"`
	// ToolKeywords override the built-in needs-tools keyword list.
	ToolKeywords []string `yaml:"tool_keywords"`
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	Model   string `yaml:"model"`    // Embedding model name (e.g., nomic-embed-text)
	BaseURL string `yaml:"base_url"` // Defaults to models.base_url
}

// SearchConfig defines the web search provider.
type SearchConfig struct {
	Provider string `yaml:"provider"` // "searxng" (default when URL set)
	URL      string `yaml:"url"`      // SearXNG instance root URL
}

// CannedConfig holds the static answer table. Keys are matched against
// the normalized prompt; see the canned package for normalization rules.
type CannedConfig struct {
	Answers map[string]string `yaml:"answers"`
}

// QuotaConfig defines per-role daily message limits.
type QuotaConfig struct {
	DirectorDaily int `yaml:"director_daily"` // Default: 40
	MemberDaily   int `yaml:"member_daily"`   // Default: 20
}

// MQTTConfig defines the optional turn-completed notifier.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"` // e.g., "mqtt://localhost:1883"
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"` // Default: "quill/turns"
}

// Load reads and parses the config file at path, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8180
	}
	if c.Database.Path == "" {
		c.Database.Path = "quill.db"
	}
	if c.Models.BaseURL == "" {
		c.Models.BaseURL = "http://localhost:11434"
	}
	if c.Models.Fast == "" {
		c.Models.Fast = "qwen3:4b"
	}
	if c.Models.Capable == "" {
		c.Models.Capable = "qwen3:30b"
	}
	if c.Models.Title == "" {
		c.Models.Title = c.Models.Fast
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "nomic-embed-text"
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = c.Models.BaseURL
	}
	if c.Search.Provider == "" && c.Search.URL != "" {
		c.Search.Provider = "searxng"
	}
	if c.Quota.DirectorDaily == 0 {
		c.Quota.DirectorDaily = 40
	}
	if c.Quota.MemberDaily == 0 {
		c.Quota.MemberDaily = 20
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "quill/turns"
	}
}
