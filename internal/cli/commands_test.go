package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	path := writeConfig(t, `
[postgres]
password = "hunter2"

[server]
api_key = "dashboard-key"
`)
	out, err := execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "dashboard-key")
	assert.Contains(t, out, `"***"`)
}

func TestConfigValidate(t *testing.T) {
	good := writeConfig(t, `mode = "server"`)
	out, err := execute(t, "--config", good, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")

	bad := writeConfig(t, `mode = "trade"`)
	_, err = execute(t, "--config", bad, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	path := writeConfig(t, `
[storage]
driver = "memory"
`)
	_, err := execute(t, "--config", path, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not postgres")
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
