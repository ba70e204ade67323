package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Dispatch.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.Tick())
	assert.Equal(t, 10*time.Second, cfg.ListTimeout())
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg := DefaultConfig()
	cfg.Workspace = "/tmp/den"
	cfg.Provider.APIKey = "sk-test"
	cfg.Dispatch.MaxConcurrent = 2
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/den", loaded.Workspace)
	assert.Equal(t, "sk-test", loaded.Provider.APIKey)
	assert.Equal(t, 2, loaded.Dispatch.MaxConcurrent)
	// omitted fields fall back to defaults
	assert.Equal(t, 500*time.Millisecond, loaded.PollInterval())
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"workspace":"/w"}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/w", cfg.Workspace)
	assert.Equal(t, filepath.Join("/w", "mailbox"), cfg.MailboxDir())
	assert.Equal(t, filepath.Join("/w", "agents.yaml"), cfg.AgentsFile())
	assert.Equal(t, 300*time.Second, cfg.RunTimeout())
}

func TestExplicitMailboxDirWins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mailbox.Dir = "/var/mail/den"
	assert.Equal(t, "/var/mail/den", cfg.MailboxDir())
}
