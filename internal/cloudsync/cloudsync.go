// Package cloudsync is the entry point the application uses to configure
// and run cloud sync. It owns the persisted mode, the provider handshakes
// and the staging database of each attempt.
package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/BudgetKeeper/internal/dataset"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem/dropbox"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem/s3"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem/webdav"
	"github.com/atinyakov/BudgetKeeper/internal/metrics"
	"github.com/atinyakov/BudgetKeeper/internal/result"
	"github.com/atinyakov/BudgetKeeper/internal/settings"
	"github.com/atinyakov/BudgetKeeper/internal/staging"
	"github.com/atinyakov/BudgetKeeper/internal/transport"
)

// Defaults for Config.
const (
	DefaultSnapshotName = "budgetkeeper/budget.db"
	DefaultTimeout      = 5 * time.Minute
)

// ErrSyncDisabled is returned when an operation needs an enabled mode.
var ErrSyncDisabled = errors.New("cloud sync is not enabled")

// Config wires a CloudSync.
type Config struct {
	AppDataset dataset.Dataset
	Settings   settings.Store
	Engine     *transport.Engine
	// StagingDir holds the per-attempt staging databases.
	StagingDir   string
	SnapshotName string
	Compression  bool
	Timeout      time.Duration

	Dropbox dropbox.Options
	S3      s3.Options

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// CloudSync manages the sync mode and runs syncs against the configured
// provider.
type CloudSync struct {
	cfg Config
	log *zap.Logger
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*CloudSync, error) {
	if cfg.AppDataset == nil {
		return nil, errors.New("app dataset is required")
	}
	if cfg.Settings == nil {
		return nil, errors.New("settings store is required")
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = os.TempDir()
	}
	if cfg.SnapshotName == "" {
		cfg.SnapshotName = DefaultSnapshotName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Engine == nil {
		cfg.Engine = transport.NewEngine(nil, cfg.Logger, cfg.Metrics)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CloudSync{cfg: cfg, log: cfg.Logger}, nil
}

// Mode returns the persisted sync mode.
func (c *CloudSync) Mode(ctx context.Context) (SyncMode, error) {
	v, _, err := c.cfg.Settings.Get(ctx, settings.KeySyncMode)
	if err != nil {
		return "", err
	}
	return ParseMode(v)
}

// AuthorizationURL returns the Dropbox consent page for appKey.
func (c *CloudSync) AuthorizationURL(appKey string) string {
	return dropbox.AuthorizationURL(appKey, c.cfg.Dropbox)
}

// newProvider returns an unauthenticated provider for mode.
func (c *CloudSync) newProvider(mode SyncMode) (filesystem.FileSystem, error) {
	switch mode {
	case ModeDropbox:
		return dropbox.New(c.cfg.Dropbox), nil
	case ModeWebDav:
		return webdav.New(), nil
	case ModeS3:
		return s3.New(c.cfg.S3), nil
	default:
		return nil, fmt.Errorf("no provider for sync mode %q", mode)
	}
}

// EnableCloudSync authenticates against the provider for mode and, only if
// the handshake succeeds, persists the credentials and the mode.
// ModeNone disables sync.
func (c *CloudSync) EnableCloudSync(ctx context.Context, mode SyncMode, input map[string]string) result.Result {
	if mode == ModeNone {
		return c.DisableCloudSync(ctx)
	}
	creds, err := c.handshake(ctx, mode, input)
	if err != nil {
		c.log.Warn("enable cloud sync failed", zap.Stringer("mode", mode), zap.Error(err))
		return result.FromError("enable "+mode.String(), err)
	}

	values := map[string]string{settings.KeySyncMode: mode.String()}
	for k, v := range creds {
		values[settings.CredentialKey(mode.String(), k)] = v
	}
	// Credentials from an earlier enable of the same mode are dropped so a
	// smaller set (e.g. a plain token after a code exchange) stands alone.
	drop := func(k string) bool {
		return k == settings.KeyLastSyncDateTime || settings.HasCredentialPrefix(k, mode.String())
	}
	if err := c.cfg.Settings.Replace(ctx, values, drop); err != nil {
		return result.FromError("save settings", err)
	}
	c.log.Info("cloud sync enabled", zap.Stringer("mode", mode))
	return result.OK()
}

func (c *CloudSync) handshake(ctx context.Context, mode SyncMode, input map[string]string) (map[string]string, error) {
	fsys, err := c.newProvider(mode)
	if err != nil {
		return nil, err
	}
	creds := pick(mode, input)

	switch p := fsys.(type) {
	case *dropbox.FS:
		if code := input[InputAuthorizationCode]; code != "" {
			if creds, err = dropbox.Exchange(ctx, input[dropbox.KeyAppKey], input[dropbox.KeyAppSecret], code, c.cfg.Dropbox); err != nil {
				return nil, err
			}
		}
		if err := p.SetAuthentication(creds); err != nil {
			return nil, err
		}
		acct, err := p.Verify(ctx)
		if err != nil {
			return nil, err
		}
		c.log.Info("dropbox account verified", zap.String("account_id", acct.AccountID))
	case *webdav.FS:
		if err := p.SetAuthentication(creds); err != nil {
			return nil, err
		}
		if err := p.Connect(ctx); err != nil {
			return nil, err
		}
	case *s3.FS:
		if err := p.SetAuthentication(creds); err != nil {
			return nil, err
		}
		if err := p.Verify(ctx); err != nil {
			return nil, err
		}
	}
	return creds, nil
}

// DisableCloudSync clears the mode and the last sync time. Credentials are
// kept so the mode can be re-enabled without a new handshake.
func (c *CloudSync) DisableCloudSync(ctx context.Context) result.Result {
	err := c.cfg.Settings.Delete(ctx, settings.KeySyncMode, settings.KeyLastSyncDateTime)
	if err != nil {
		return result.FromError("disable cloud sync", err)
	}
	c.log.Info("cloud sync disabled")
	return result.OK()
}

// GetLastSyncDateTime returns the time of the last successful sync, or nil
// if there has been none since sync was enabled.
func (c *CloudSync) GetLastSyncDateTime(ctx context.Context) (*time.Time, error) {
	v, ok, err := c.cfg.Settings.Get(ctx, settings.KeyLastSyncDateTime)
	if err != nil || !ok || v == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", settings.KeyLastSyncDateTime, err)
	}
	return &t, nil
}

// Status is a snapshot of the façade state.
type Status struct {
	Mode     SyncMode   `json:"mode"`
	LastSync *time.Time `json:"last_sync,omitempty"`
}

// Status reports the mode and last sync time.
func (c *CloudSync) Status(ctx context.Context) (Status, error) {
	mode, err := c.Mode(ctx)
	if err != nil {
		return Status{}, err
	}
	last, err := c.GetLastSyncDateTime(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Mode: mode, LastSync: last}, nil
}

// provider returns the authenticated provider for the persisted mode.
func (c *CloudSync) provider(ctx context.Context, mode SyncMode) (filesystem.FileSystem, error) {
	fsys, err := c.newProvider(mode)
	if err != nil {
		return nil, err
	}
	creds, err := settings.Credentials(ctx, c.cfg.Settings, mode.String())
	if err != nil {
		return nil, err
	}
	if err := fsys.SetAuthentication(creds); err != nil {
		return nil, err
	}
	return fsys, nil
}

// Sync runs one two-way sync with the configured provider. It is a
// successful no-op when sync is disabled.
func (c *CloudSync) Sync(ctx context.Context) result.Result {
	mode, err := c.Mode(ctx)
	if err != nil {
		return result.FromError("sync", err)
	}
	if mode == ModeNone {
		return result.OK()
	}
	remote, err := c.provider(ctx, mode)
	if err != nil {
		return result.FromError("sync", err)
	}

	area, err := staging.Open(c.cfg.StagingDir)
	if err != nil {
		return result.FromError("sync", err)
	}
	defer func() {
		if err := area.Discard(); err != nil {
			c.log.Warn("discard staging database", zap.String("path", area.Path()), zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	r := c.cfg.Engine.FileBasedSync(ctx, transport.SyncRequest{
		Compression: c.cfg.Compression,
		SyncFS:      remote,
		SyncFile:    c.cfg.SnapshotName,
		TempFS:      area.FS,
		TempFile:    area.File,
		TempDataset: area.Dataset,
		AppDataset:  c.cfg.AppDataset,
	})
	if !r.Success {
		return r
	}

	now := c.cfg.Now().UTC()
	if err := settings.Set(ctx, c.cfg.Settings, settings.KeyLastSyncDateTime, now.Format(time.RFC3339Nano)); err != nil {
		return result.FromError("save last sync time", err)
	}
	c.cfg.Metrics.SetLastSync(now)
	return r
}

// StartAutoSync runs Sync every interval until ctx is done.
func (c *CloudSync) StartAutoSync(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if r := c.Sync(ctx); !r.Success {
					c.log.Error("auto sync failed", zap.String("reason", r.Message))
				}
			}
		}
	}()
}
