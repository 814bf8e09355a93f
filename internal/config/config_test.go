package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (*Options, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return Load(fs)
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	opts, err := load(t, "--data_dir", dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "budget.db"), opts.AppDatabase)
	assert.Equal(t, filepath.Join(dir, "settings.json"), opts.SettingsFile)
	assert.Equal(t, filepath.Join(dir, "sync.lock"), opts.LockFile)
	assert.Equal(t, filepath.Join(dir, "staging"), opts.StagingDir())
	assert.Equal(t, "budgetkeeper/budget.db", opts.SnapshotName)
	assert.True(t, opts.Compression)
	assert.Equal(t, 5*time.Minute, opts.SyncTimeout)
	assert.Equal(t, "localhost:8080", opts.ListenAddr)
	assert.False(t, opts.TLS)
	assert.Equal(t, filepath.Join(dir, "tls", "api.crt"), opts.TLSCert)
	assert.Equal(t, filepath.Join(dir, "tls", "api.key"), opts.TLSKey)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`{
		"listen_addr": "0.0.0.0:9000",
		"log_level": "debug",
		"snapshot_name": "from-file.db",
		"sync_timeout": "30s"
	}`), 0o600))

	t.Setenv("BUDGETKEEPER_LOG_LEVEL", "warn")
	t.Setenv("BUDGETKEEPER_SNAPSHOT_NAME", "from-env.db")

	opts, err := load(t, "-c", cfgFile, "--data_dir", dir, "--snapshot_name", "from-flag.db")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", opts.ListenAddr, "file beats default")
	assert.Equal(t, "warn", opts.LogLevel, "env beats file")
	assert.Equal(t, "from-flag.db", opts.SnapshotName, "flag beats env")
	assert.Equal(t, 30*time.Second, opts.SyncTimeout)
}

func TestLoad_MissingConfigFileIgnored(t *testing.T) {
	dir := t.TempDir()
	_, err := load(t, "-c", filepath.Join(dir, "absent.json"), "--data_dir", dir)
	assert.NoError(t, err)
}

func TestLoad_BadConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgFile, []byte("{"), 0o600))

	_, err := load(t, "-c", cfgFile, "--data_dir", dir)
	assert.ErrorContains(t, err, "read config file")
}

func TestLoad_Validation(t *testing.T) {
	dir := t.TempDir()
	_, err := load(t, "--data_dir", dir, "--sync_timeout", "0s")
	assert.ErrorContains(t, err, KeySyncTimeout)

	_, err = load(t, "--data_dir", dir, "--auto_sync_interval", "-1m")
	assert.ErrorContains(t, err, KeyAutoSyncInterval)
}
