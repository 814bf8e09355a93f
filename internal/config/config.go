// Package config loads BudgetKeeper options from command-line flags,
// BUDGETKEEPER_* environment variables and an optional JSON config file.
// Flags win over the environment, the environment wins over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. BUDGETKEEPER_DATA_DIR.
const EnvPrefix = "BUDGETKEEPER"

// Keys shared by flags, environment and config file.
const (
	KeyConfig           = "config"
	KeyDataDir          = "data_dir"
	KeyAppDatabase      = "app_database"
	KeyPostgresDSN      = "postgres_dsn"
	KeySettingsFile     = "settings_file"
	KeySettingsKeyFile  = "settings_key_file"
	KeySnapshotName     = "snapshot_name"
	KeyCompression      = "compression"
	KeySyncTimeout      = "sync_timeout"
	KeyLockFile         = "lock_file"
	KeyLogLevel         = "log_level"
	KeyLogFile          = "log_file"
	KeyListenAddr       = "listen_addr"
	KeyAPIToken         = "api_token"
	KeyAutoSyncInterval = "auto_sync_interval"
	KeyStagingRetention = "staging_retention"
	KeyTLS              = "tls"
	KeyTLSCert          = "tls_cert"
	KeyTLSKey           = "tls_key"
)

// Options holds the configuration values for the application.
type Options struct {
	// Config is the path to the JSON config file.
	Config string `mapstructure:"config"`

	// DataDir holds the app database, settings, lock and staging files
	// unless their paths are set explicitly.
	DataDir string `mapstructure:"data_dir"`

	// AppDatabase is the SQLite file of the app dataset.
	AppDatabase string `mapstructure:"app_database"`

	// PostgresDSN, when set, hosts the app dataset in PostgreSQL instead.
	PostgresDSN string `mapstructure:"postgres_dsn"`

	SettingsFile string `mapstructure:"settings_file"`

	// SettingsKeyFile seals stored credentials with a key derived from its
	// contents.
	SettingsKeyFile string `mapstructure:"settings_key_file"`

	SnapshotName string        `mapstructure:"snapshot_name"`
	Compression  bool          `mapstructure:"compression"`
	SyncTimeout  time.Duration `mapstructure:"sync_timeout"`
	LockFile     string        `mapstructure:"lock_file"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	// ListenAddr is the control API address (ip:port).
	ListenAddr string `mapstructure:"listen_addr"`
	// APIToken is the bearer token the control API requires. Empty
	// disables auth.
	APIToken string `mapstructure:"api_token"`

	// TLS serves the control API over HTTPS. A self-signed pair is
	// generated at TLSCert and TLSKey when they do not exist.
	TLS     bool   `mapstructure:"tls"`
	TLSCert string `mapstructure:"tls_cert"`
	TLSKey  string `mapstructure:"tls_key"`

	AutoSyncInterval time.Duration `mapstructure:"auto_sync_interval"`
	StagingRetention time.Duration `mapstructure:"staging_retention"`
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "budgetkeeper")
	}
	return ".budgetkeeper"
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(KeyConfig, "c", "", "path to JSON config file")
	fs.String(KeyDataDir, defaultDataDir(), "directory for the app database, settings and staging files")
	fs.String(KeyAppDatabase, "", "app database file (default <data_dir>/budget.db)")
	fs.String(KeyPostgresDSN, "", "host the app dataset in PostgreSQL")
	fs.String(KeySettingsFile, "", "settings file (default <data_dir>/settings.json)")
	fs.String(KeySettingsKeyFile, "", "key file used to seal stored credentials")
	fs.String(KeySnapshotName, "budgetkeeper/budget.db", "snapshot path on the remote")
	fs.Bool(KeyCompression, true, "gzip the remote snapshot")
	fs.Duration(KeySyncTimeout, 5*time.Minute, "deadline of one sync")
	fs.String(KeyLockFile, "", "cross-process sync lock (default <data_dir>/sync.lock)")
	fs.String(KeyLogLevel, "info", "log level")
	fs.String(KeyLogFile, "", "log to this file with rotation instead of stderr")
	fs.StringP(KeyListenAddr, "a", "localhost:8080", "control API address")
	fs.String(KeyAPIToken, "", "bearer token for the control API")
	fs.Bool(KeyTLS, false, "serve the control API over HTTPS")
	fs.String(KeyTLSCert, "", "control API certificate (default <data_dir>/tls/api.crt)")
	fs.String(KeyTLSKey, "", "control API private key (default <data_dir>/tls/api.key)")
	fs.Duration(KeyAutoSyncInterval, 0, "sync periodically while serving (0 disables)")
	fs.Duration(KeyStagingRetention, 24*time.Hour, "remove staging files older than this")
}

// Load resolves the options. fs must have been passed to RegisterFlags and
// parsed.
func Load(fs *pflag.FlagSet) (*Options, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	opts := &Options{}
	if err := v.Unmarshal(opts); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	opts.fill()
	return opts, opts.validate()
}

func (o *Options) fill() {
	if o.DataDir == "" {
		o.DataDir = defaultDataDir()
	}
	if o.AppDatabase == "" {
		o.AppDatabase = filepath.Join(o.DataDir, "budget.db")
	}
	if o.SettingsFile == "" {
		o.SettingsFile = filepath.Join(o.DataDir, "settings.json")
	}
	if o.LockFile == "" {
		o.LockFile = filepath.Join(o.DataDir, "sync.lock")
	}
	if o.TLSCert == "" {
		o.TLSCert = filepath.Join(o.DataDir, "tls", "api.crt")
	}
	if o.TLSKey == "" {
		o.TLSKey = filepath.Join(o.DataDir, "tls", "api.key")
	}
}

func (o *Options) validate() error {
	if o.SyncTimeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeySyncTimeout, o.SyncTimeout)
	}
	if o.AutoSyncInterval < 0 {
		return fmt.Errorf("%s must not be negative", KeyAutoSyncInterval)
	}
	if o.SnapshotName == "" {
		return fmt.Errorf("%s is required", KeySnapshotName)
	}
	return nil
}

// StagingDir is where per-attempt staging databases are created.
func (o *Options) StagingDir() string {
	return filepath.Join(o.DataDir, "staging")
}
