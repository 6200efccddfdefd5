package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/botlink-go/internal/frame"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"port": 9999, "tokens": {"k1": "secret"}},
		"transport": {"queueSize": 8}
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.Tokens["k1"])
	assert.Equal(t, 8, cfg.Transport.QueueSize)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, 3, cfg.Transport.MaxForwardDepth)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server": {"port": 9999}}`), 0644))

	t.Setenv("BOTLINK_SERVER_PORT", "7777")
	t.Setenv("BOTLINK_MAX_FORWARD_DEPTH", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Transport.MaxForwardDepth)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg := DefaultConfig()
	cfg.Server.Port = 12345
	cfg.TargetsFile = "/etc/botlink/targets.yaml"
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
targets:
  - api_key: k1
    platform: qq
    url: ws://127.0.0.1:18800/ws
    token: secret
  - api_key: k2
    platform: wechat
    url: ws://127.0.0.1:18801/ws
`), 0644))

	targets, err := LoadTargets(path)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, frame.RoutingKey{APIKey: "k1", Platform: "qq"}, targets[0].Key())
	assert.Equal(t, "secret", targets[0].Token)
	assert.Equal(t, "ws://127.0.0.1:18801/ws", targets[1].URL)

	m := TargetMap(targets)
	assert.Len(t, m, 2)
	assert.Equal(t, targets[1], m[targets[1].Key()])
}

func TestLoadTargets_MissingFileIsNotAnError(t *testing.T) {
	targets, err := LoadTargets(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Nil(t, targets)
}

func TestLoadTargets_RejectsIncompleteEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
targets:
  - api_key: k1
    platform: qq
`), 0644))

	_, err := LoadTargets(path)
	assert.Error(t, err)
}
