package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "config.json")

	cfg, err := ConfigLoad(path)
	require.NoError(t, err)
	assert.Equal(t, SplitAuto, cfg.Behavior.SplitBehavior)
	assert.True(t, cfg.Behavior.Logical())
	assert.Equal(t, 30*time.Second, time.Duration(cfg.PresenceTimeout))

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, err := ConfigLoad(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestConfigLoadNormalizesBehavior(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"relay_url": "ws://relay.example:9000",
		"presence_timeout": "10s",
		"behavior": {"split_behavior": "sideways"}
	}`), 0644))

	cfg, err := ConfigLoad(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://relay.example:9000", cfg.RelayURL)
	assert.Equal(t, 10*time.Second, time.Duration(cfg.PresenceTimeout))
	assert.Equal(t, SplitAuto, cfg.Behavior.SplitBehavior)
	assert.True(t, cfg.Behavior.Logical())
	assert.Equal(t, "nestnote.db", cfg.DatabaseFile)
}

func TestBehaviorLogicalOutdent(t *testing.T) {
	off := false
	b := Behavior{SplitBehavior: SplitChild, LogicalOutdent: &off}.Normalize()
	assert.Equal(t, SplitChild, b.SplitBehavior)
	assert.False(t, b.Logical())
	assert.True(t, Behavior{}.Logical())
}

func TestConfigLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"presence_timeout": "soon"}`), 0644))
	_, err := ConfigLoad(path)
	assert.Error(t, err)
}

func TestChannel(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "nestnote-doc1", cfg.Channel("doc1"))
	cfg.ChannelPrefix = ""
	assert.Equal(t, "doc1", cfg.Channel("doc1"))
}
