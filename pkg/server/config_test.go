package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultTOMLConfig(), cfg)

	// The default file was written and is parseable on the next load.
	_, err = os.Stat(path)
	require.NoError(t, err)
	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server.TCPPort, again.Server.TCPPort)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
tcp_port = 9000
data_path = "/tmp/chat-test.db"

[limits]
max_name_length = 12
tick_interval_ms = 25

[chat]
manager_names = ["root", "admin"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.TCPPort)
	assert.Equal(t, "/tmp/chat-test.db", cfg.Server.DataPath)
	assert.Equal(t, 12, cfg.Limits.MaxNameLength)
	assert.Equal(t, []string{"root", "admin"}, cfg.Chat.ManagerNames)

	runtime := cfg.ToConfig()
	assert.Equal(t, 9000, runtime.TCPPort)
	assert.Equal(t, 25*time.Millisecond, runtime.TickInterval)
	assert.Equal(t, DefaultConfig().DecryptFailureLimit, runtime.DecryptFailureLimit)
	assert.Equal(t, DefaultConfig().Colors, runtime.Colors)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHATPROG_SERVER_TCP_PORT", "7777")
	t.Setenv("CHATPROG_LIMITS_DECRYPT_FAILURE_LIMIT", "3")
	t.Setenv("CHATPROG_CHAT_MANAGER_NAMES", "alice, bob")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.TCPPort)
	assert.Equal(t, 3, cfg.Limits.DecryptFailureLimit)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Chat.ManagerNames)
}

func TestManagerNamesFlowIntoRuntimeConfig(t *testing.T) {
	def := DefaultTOMLConfig()
	def.Chat.ManagerNames = []string{"zed"}
	assert.Equal(t, []string{"zed"}, def.ToConfig().ManagerNames)
}
