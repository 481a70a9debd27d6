package integration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFileCreatedOnFirstRun(t *testing.T) {
	env := NewTestEnv(t)
	env.MustRun("init")

	data, err := os.ReadFile(filepath.Join(env.Config, "config.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	env := NewTestEnv(t)
	env.MustRun("config", "set", "backup_retention", "3")

	env.Env = []string{"CIDIAN_BACKUP_RETENTION=7"}
	result := env.MustRun("config", "get", "backup_retention")
	assert.Equal(t, "7\n", result.Stdout)
}

func TestDotEnvInConfigDir(t *testing.T) {
	env := NewTestEnv(t)
	backups := filepath.Join(t.TempDir(), "from-dotenv")
	require.NoError(t, os.MkdirAll(env.Config, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.Config, ".env"),
		[]byte("CIDIAN_BACKUP_DIRECTORY="+backups+"\n"), 0o644))

	result := env.MustRun("config", "get", "backup_directory")
	assert.Equal(t, backups+"\n", result.Stdout)

	env.MustRun("backup")
	entries, err := os.ReadDir(backups)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
