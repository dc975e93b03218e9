package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfigurationDefaults(t *testing.T) {
	cfg, err := ReadConfiguration("", GetFlagSet())
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.GracePeriod)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "@every 1m", cfg.StatsCron)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, "", cfg.PersistenceConfig.Type)
}

func TestReadConfigurationFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	err := ioutil.WriteFile(filepath.Join(dir, "relay.toml"), []byte(`
grace_period = "10s"
log_level = "DEBUG"

[persistence]
type = "buntdb"
dsn = "/tmp/events.db"
`), 0o600)
	require.NoError(t, err)
	err = ioutil.WriteFile(filepath.Join(dir, "extra.toml"), []byte(`stats_cron = ""`), 0o600)
	require.NoError(t, err)

	t.Setenv("PORT", "8080")

	cfg, err := ReadConfiguration(dir, GetFlagSet())
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.GracePeriod)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "", cfg.StatsCron)
	assert.Equal(t, "buntdb", cfg.PersistenceConfig.Type)
	assert.Equal(t, "/tmp/events.db.lock", cfg.PersistenceConfig.LockPath)

	flagSet := GetFlagSet()
	require.NoError(t, flagSet.Parse([]string{"--grace-period", "2s", "-P", "9000"}))
	cfg, err = ReadConfiguration(dir, flagSet)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.GracePeriod)
}

func TestReadConfigurationMissingFile(t *testing.T) {
	_, err := ReadConfiguration(filepath.Join(t.TempDir(), "missing.toml"), nil)
	assert.Error(t, err)
}
