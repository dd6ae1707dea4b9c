package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 32, cfg.Pool.Workers)
	assert.Equal(t, DefaultForwardTools, cfg.Tools.Forward)
	assert.Equal(t, 30*time.Second, cfg.Tools.ForwardTimeout())
	assert.Equal(t, 25, cfg.LLM.MaxSteps)
}

func TestLoadProjectFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "sman.json", `{
		"server": {"port": 9090},
		"llm": {"endpoint": "http://localhost:11434/v1/chat/completions", "model": "qwen3"}
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "qwen3", cfg.LLM.Model)
	// Unset fields keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Server.Hostname)
	assert.Equal(t, 32, cfg.Pool.Workers)
}

func TestLoadJSONCWithComments(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "sman.jsonc", `{
		// listen on all interfaces
		"server": {"hostname": "0.0.0.0"},
		"pool": {"workers": 8}, // small box
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Hostname)
	assert.Equal(t, 8, cfg.Pool.Workers)
}

func TestLoadEnvInterpolation(t *testing.T) {
	t.Setenv("TEST_SMAN_KEY", "secret-key")
	dir := t.TempDir()
	writeConfig(t, dir, "sman.json", `{"llm": {"apiKey": "{env:TEST_SMAN_KEY}"}}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.LLM.APIKey)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SMAN_PORT", "7070")
	t.Setenv("SMAN_FORWARD_TOOLS", "read_file,grep_file")
	t.Setenv("SMAN_LOG_LEVEL", "DEBUG")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"read_file", "grep_file"}, cfg.Tools.Forward)
	assert.Equal(t, "DEBUG", cfg.Log.Level)
}

func TestLoadExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"storage": {"dir": "/tmp/sman-test"}}`), 0o644))
	t.Setenv("SMAN_CONFIG", path)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/sman-test", cfg.Storage.Dir)
}

func TestLoadIgnoresBrokenFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "sman.json", `{not json at all`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}
