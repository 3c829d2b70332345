package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete lodestar configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig configures where index data lives.
type PathsConfig struct {
	// DataDir is the directory holding the index database and model cache.
	// Defaults to ~/.lodestar.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// SearchConfig configures hybrid search parameters.
type SearchConfig struct {
	// RRFConstant is the RRF fusion smoothing parameter (k).
	// Default: 60 (industry standard used by Azure AI Search, OpenSearch).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// TextBackend selects the full-text index backend.
	// Options: "sqlite" (default, FTS5) or "bleve".
	TextBackend string `yaml:"text_backend" json:"text_backend"`

	// MaxResults caps the result count a single query may request.
	MaxResults int `yaml:"max_results" json:"max_results"`

	// QueryTimeout bounds embedding generation during a query.
	QueryTimeout time.Duration `yaml:"query_timeout" json:"query_timeout"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend: "remote", "local", or "static".
	Provider string `yaml:"provider" json:"provider"`

	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`

	// Dimensions is the embedding vector width. 0 means provider default.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// Endpoint is the remote provider base URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// APIKey authenticates against the remote provider.
	// LODESTAR_API_KEY overrides this; prefer the env var over the file.
	APIKey string `yaml:"api_key" json:"api_key"`

	// BatchDelay is the pause between consecutive requests in a batch.
	BatchDelay time.Duration `yaml:"batch_delay" json:"batch_delay"`

	// ModelDownloadTimeout bounds local model weight downloads.
	ModelDownloadTimeout time.Duration `yaml:"model_download_timeout" json:"model_download_timeout"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Search: SearchConfig{
			RRFConstant:  60,
			TextBackend:  "sqlite",
			MaxResults:   20,
			QueryTimeout: 10 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			Provider:             "static",
			Model:                "text-embedding-3-small",
			Dimensions:           0,
			Endpoint:             "https://api.openai.com",
			BatchDelay:           50 * time.Millisecond,
			ModelDownloadTimeout: 10 * time.Minute,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// defaultDataDir returns the default data directory (~/.lodestar).
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".lodestar")
	}
	return filepath.Join(home, ".lodestar")
}

// Load loads configuration with increasing precedence:
//  1. Hardcoded defaults
//  2. Config file (.lodestar.yaml or .lodestar.yml in dir)
//  3. Environment variables (LODESTAR_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load .lodestar.yaml or .lodestar.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".lodestar.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".lodestar.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine, defaults apply.
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}

	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.TextBackend != "" {
		c.Search.TextBackend = other.Search.TextBackend
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.QueryTimeout != 0 {
		c.Search.QueryTimeout = other.Search.QueryTimeout
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.Endpoint != "" {
		c.Embeddings.Endpoint = other.Embeddings.Endpoint
	}
	if other.Embeddings.APIKey != "" {
		c.Embeddings.APIKey = other.Embeddings.APIKey
	}
	if other.Embeddings.BatchDelay != 0 {
		c.Embeddings.BatchDelay = other.Embeddings.BatchDelay
	}
	if other.Embeddings.ModelDownloadTimeout != 0 {
		c.Embeddings.ModelDownloadTimeout = other.Embeddings.ModelDownloadTimeout
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies LODESTAR_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LODESTAR_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("LODESTAR_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("LODESTAR_TEXT_BACKEND"); v != "" {
		c.Search.TextBackend = v
	}
	if v := os.Getenv("LODESTAR_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("LODESTAR_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("LODESTAR_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("LODESTAR_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("LODESTAR_DIMENSIONS"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Embeddings.Dimensions = d
		}
	}
	if v := os.Getenv("LODESTAR_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("LODESTAR_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must be non-negative, got %d", c.Search.MaxResults)
	}

	validBackends := map[string]bool{"sqlite": true, "bleve": true}
	if !validBackends[strings.ToLower(c.Search.TextBackend)] {
		return fmt.Errorf("search.text_backend must be 'sqlite' or 'bleve', got %s", c.Search.TextBackend)
	}

	validProviders := map[string]bool{"remote": true, "local": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'remote', 'local', or 'static', got %s", c.Embeddings.Provider)
	}

	validTransports := map[string]bool{"stdio": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// IndexPath returns the path of the SQLite index database.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Paths.DataDir, "index.db")
}

// TextIndexPath returns the base path for the full-text index.
func (c *Config) TextIndexPath() string {
	return filepath.Join(c.Paths.DataDir, "text-index")
}

// ModelDir returns the directory caching local model weights.
func (c *Config) ModelDir() string {
	return filepath.Join(c.Paths.DataDir, "models")
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
