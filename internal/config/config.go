// Package config provides configuration loading for vaultd.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/vaultd/internal/logging"
	"github.com/fyrsmithlabs/vaultd/internal/taxonomy"
)

// Config is the full vaultd configuration tree.
type Config struct {
	Vault       VaultConfig       `koanf:"vault"`
	Metadata    MetadataConfig    `koanf:"metadata"`
	Vectorstore VectorstoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Thresholds  ThresholdsConfig  `koanf:"thresholds"`
	Inbox       InboxConfig       `koanf:"inbox"`
	Server      ServerConfig      `koanf:"server"`
	Logging     logging.Config    `koanf:"logging"`
}

// VaultConfig locates the markdown vault.
type VaultConfig struct {
	// Path is the vault root directory.
	Path string `koanf:"path"`
}

// MetadataConfig locates the SQLite metadata database.
type MetadataConfig struct {
	// Path is the database file path.
	Path string `koanf:"path"`
}

// VectorstoreConfig configures the embedded vector store.
type VectorstoreConfig struct {
	// Path is the persistence directory. Empty means in-memory.
	Path string `koanf:"path"`

	// Collection is the collection name.
	Collection string `koanf:"collection"`

	// Compress enables gzip compression of persisted segments.
	Compress bool `koanf:"compress"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "tei" or "local".
	Provider string `koanf:"provider"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// BaseURL is the TEI endpoint.
	BaseURL string `koanf:"base_url"`

	// RequestsPerSecond throttles outbound embed calls.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// ThresholdsConfig seeds the routing thresholds. Retuning may move them
// afterwards within the guard-rails.
type ThresholdsConfig struct {
	AutoConversation float64 `koanf:"auto_conversation"`
	AutoInbox        float64 `koanf:"auto_inbox"`
	Suggest          float64 `koanf:"suggest"`
}

// InboxConfig configures inbox batch processing and watching.
type InboxConfig struct {
	// Path is the inbox directory. Empty disables inbox processing.
	Path string `koanf:"path"`

	// Concurrency bounds parallel item processing.
	Concurrency int `koanf:"concurrency"`

	// Debounce is the quiet window before the watcher runs a batch.
	Debounce time.Duration `koanf:"debounce"`

	// Watch enables the filesystem watcher in daemon mode.
	Watch bool `koanf:"watch"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// applyDefaults fills in unset values.
func applyDefaults(cfg *Config) {
	if cfg.Vault.Path == "" {
		cfg.Vault.Path = "~/vault"
	}
	if cfg.Metadata.Path == "" {
		cfg.Metadata.Path = "~/.local/share/vaultd/metadata.db"
	}
	if cfg.Vectorstore.Collection == "" {
		cfg.Vectorstore.Collection = "notes"
	}
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "tei"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}

	defaults := taxonomy.DefaultThresholds()
	if cfg.Thresholds.AutoConversation == 0 {
		cfg.Thresholds.AutoConversation = defaults.AutoConversation
	}
	if cfg.Thresholds.AutoInbox == 0 {
		cfg.Thresholds.AutoInbox = defaults.AutoInbox
	}
	if cfg.Thresholds.Suggest == 0 {
		cfg.Thresholds.Suggest = defaults.Suggest
	}

	if cfg.Inbox.Concurrency == 0 {
		cfg.Inbox.Concurrency = 4
	}
	if cfg.Inbox.Debounce == 0 {
		cfg.Inbox.Debounce = 2 * time.Second
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9273
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Vault.Path == "" {
		return fmt.Errorf("vault.path is required")
	}
	if c.Metadata.Path == "" {
		return fmt.Errorf("metadata.path is required")
	}
	switch c.Embeddings.Provider {
	case "tei", "local":
	default:
		return fmt.Errorf("embeddings.provider must be tei or local, got %q", c.Embeddings.Provider)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.http_port must be in 1-65535, got %d", c.Server.Port)
	}

	thresholds := c.ThresholdSet()
	if err := thresholds.Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// ThresholdSet converts the configured thresholds into the taxonomy type.
func (c *Config) ThresholdSet() taxonomy.ThresholdSet {
	return taxonomy.ThresholdSet{
		AutoConversation: c.Thresholds.AutoConversation,
		AutoInbox:        c.Thresholds.AutoInbox,
		Suggest:          c.Thresholds.Suggest,
	}
}
