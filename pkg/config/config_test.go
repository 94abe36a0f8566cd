package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"VPNCTL_STATE", "VPNCTL_STORE", "VPNCTL_LOG_LEVEL", "VPNCTL_LISTEN_PORT", "VPNCTL_KEYS"} {
		t.Setenv(k, "")
	}
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "vpn.json", cfg.StatePath)
	assert.Equal(t, StoreFile, cfg.Store)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "keys.yaml", cfg.KeysPath)
	assert.Equal(t, 51820, cfg.ListenPort)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("VPNCTL_STATE", "/tmp/office.ini")
	t.Setenv("VPNCTL_STORE", "sqlite")
	t.Setenv("VPNCTL_LISTEN_PORT", "40000")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/office.ini", cfg.StatePath)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, 40000, cfg.ListenPort)
}

func TestFromEnvInvalid(t *testing.T) {
	t.Setenv("VPNCTL_LISTEN_PORT", "70000")
	_, err := FromEnv()
	assert.Error(t, err)

	t.Setenv("VPNCTL_LISTEN_PORT", "")
	t.Setenv("VPNCTL_STORE", "consul")
	_, err = FromEnv()
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("VPNCTL_LOG_LEVEL", "")
	os.Unsetenv("VPNCTL_LOG_LEVEL")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("VPNCTL_LOG_LEVEL=debug\n"), 0o600))
	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "debug", os.Getenv("VPNCTL_LOG_LEVEL"))

	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
