package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg"))
	t.Setenv("KEDGE_STORE_ROOT", "")
	t.Setenv("KEDGE_MOVED_ROOT", "")
	t.Setenv("KEDGE_WEB_UI", "")
	t.Setenv("LT_PEERID_PREFIX", "")
	t.Setenv("DHT_BOOTSTRAP_NODES", "")

	cfg, help, err := Load(nil)
	require.NoError(t, err)
	assert.False(t, help)
	assert.Equal(t, DefaultListens, cfg.Listens)
	assert.Equal(t, DefaultPeerIDPrefix, cfg.PeerIDPrefix)
	assert.Equal(t, filepath.Join(tmp, "Downloads"), cfg.StoreRoot)
	assert.Equal(t, filepath.Join(tmp, "xdg", AppName), cfg.ConfDir)
	assert.Empty(t, cfg.DHTBootstrapNodes)
}

func TestLoadFlags(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg"))

	cfg, help, err := Load([]string{"-l", "0.0.0.0:7000", "--peer-id", "-KD-", "--dht-bootstrap-nodes", "a:1, b:2"})
	require.NoError(t, err)
	assert.False(t, help)
	assert.Equal(t, "0.0.0.0:7000", cfg.Listens)
	assert.Equal(t, "-KD-", cfg.PeerIDPrefix)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.DHTBootstrapNodes)
}

func TestLoadEnvOverridesFlag(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg"))
	t.Setenv("LT_PEERID_PREFIX", "-EV-")

	cfg, _, err := Load([]string{"--peer-id", "-FL-"})
	require.NoError(t, err)
	assert.Equal(t, "-EV-", cfg.PeerIDPrefix, "environment alias must win over an explicit flag")
}

func TestLoadHelp(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg"))

	cfg, help, err := Load([]string{"-h"})
	require.NoError(t, err)
	assert.True(t, help)
	assert.Nil(t, cfg)
}
