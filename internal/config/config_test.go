package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadWithFile_Defaults(t *testing.T) {
	// A missing file is fine; everything comes from defaults.
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "~/vault", cfg.Vault.Path)
	assert.Equal(t, "~/.local/share/vaultd/metadata.db", cfg.Metadata.Path)
	assert.Equal(t, "notes", cfg.Vectorstore.Collection)
	assert.Equal(t, "tei", cfg.Embeddings.Provider)
	assert.Equal(t, "http://localhost:8080", cfg.Embeddings.BaseURL)
	assert.InDelta(t, 0.80, cfg.Thresholds.AutoConversation, 0.0001)
	assert.InDelta(t, 0.85, cfg.Thresholds.AutoInbox, 0.0001)
	assert.InDelta(t, 0.60, cfg.Thresholds.Suggest, 0.0001)
	assert.Equal(t, 4, cfg.Inbox.Concurrency)
	assert.Equal(t, 2*time.Second, cfg.Inbox.Debounce)
	assert.Equal(t, 9273, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadWithFile_YAMLOverrides(t *testing.T) {
	path := writeConfig(t, `
vault:
  path: /data/vault
embeddings:
  provider: local
thresholds:
  auto_inbox: 0.9
inbox:
  path: /data/vault/0-inbox
  watch: true
server:
  http_port: 8088
logging:
  level: debug
  format: console
`)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/vault", cfg.Vault.Path)
	assert.Equal(t, "local", cfg.Embeddings.Provider)
	assert.InDelta(t, 0.9, cfg.Thresholds.AutoInbox, 0.0001)
	assert.Equal(t, "/data/vault/0-inbox", cfg.Inbox.Path)
	assert.True(t, cfg.Inbox.Watch)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, "notes", cfg.Vectorstore.Collection)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 8088
`)
	t.Setenv("VAULTD_SERVER_HTTP_PORT", "9999")
	t.Setenv("VAULTD_VAULT_PATH", "/env/vault")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "/env/vault", cfg.Vault.Path)
}

func TestLoadWithFile_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "unknown embedding provider",
			yaml:    "embeddings:\n  provider: openai\n",
			wantMsg: "embeddings.provider",
		},
		{
			name:    "port out of range",
			yaml:    "server:\n  http_port: 70000\n",
			wantMsg: "http_port",
		},
		{
			name:    "suggest above auto",
			yaml:    "thresholds:\n  suggest: 0.95\n",
			wantMsg: "thresholds",
		},
		{
			name:    "bad log level",
			yaml:    "logging:\n  level: loud\n",
			wantMsg: "logging",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWithFile(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadWithFile_MalformedYAML(t *testing.T) {
	_, err := LoadWithFile(writeConfig(t, "vault: [unclosed"))
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/vault")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "vault"), got)

	got, err = ExpandPath("/absolute/path")
	require.NoError(t, err)
	assert.Equal(t, "/absolute/path", got)
}
