package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/atinyakov/BudgetKeeper/internal/cloudsync"
	"github.com/atinyakov/BudgetKeeper/internal/config"
	"github.com/atinyakov/BudgetKeeper/internal/dataset/sqldb"
	"github.com/atinyakov/BudgetKeeper/internal/logger"
	"github.com/atinyakov/BudgetKeeper/internal/metrics"
	"github.com/atinyakov/BudgetKeeper/internal/settings"
	"github.com/atinyakov/BudgetKeeper/internal/synclock"
	"github.com/atinyakov/BudgetKeeper/internal/transport"
)

// app is the object graph one command works with.
type app struct {
	opts      *config.Options
	log       *zap.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	lock      synclock.Locker
	dataset   *sqldb.Store
	settings  settings.Store
	engine    *transport.Engine
	cloudSync *cloudsync.CloudSync
}

func newApp(ctx context.Context, opts *config.Options) (*app, error) {
	l := logger.New()
	if err := l.Init(opts.LogLevel, opts.LogFile); err != nil {
		return nil, err
	}
	a := &app{opts: opts, log: l.Log, registry: prometheus.NewRegistry()}
	a.metrics = metrics.New(a.registry)

	// In-process callers queue on the semaphore; the file lock keeps a
	// second process (e.g. a cron sync next to serve) out.
	a.lock = synclock.Chain(synclock.NewSemaphore(), synclock.NewFileLock(opts.LockFile, a.log))

	if opts.PostgresDSN != "" {
		a.dataset = sqldb.NewPostgres(opts.PostgresDSN)
	} else {
		a.dataset = sqldb.NewSQLite(opts.AppDatabase)
	}
	if err := a.dataset.Init(ctx); err != nil {
		return nil, fmt.Errorf("open app database: %w", err)
	}

	var sealer *settings.Sealer
	if opts.SettingsKeyFile != "" {
		key, err := os.ReadFile(opts.SettingsKeyFile)
		if err != nil {
			_ = a.dataset.Close()
			return nil, fmt.Errorf("read settings key: %w", err)
		}
		if sealer, err = settings.NewSealer(key); err != nil {
			_ = a.dataset.Close()
			return nil, err
		}
	}
	a.settings = settings.NewFileStore(opts.SettingsFile, sealer)

	a.engine = transport.NewEngine(a.lock, a.log, a.metrics)
	cs, err := cloudsync.New(cloudsync.Config{
		AppDataset:   a.dataset,
		Settings:     a.settings,
		Engine:       a.engine,
		StagingDir:   opts.StagingDir(),
		SnapshotName: opts.SnapshotName,
		Compression:  opts.Compression,
		Timeout:      opts.SyncTimeout,
		Logger:       a.log,
		Metrics:      a.metrics,
	})
	if err != nil {
		_ = a.dataset.Close()
		return nil, err
	}
	a.cloudSync = cs
	return a, nil
}

func (a *app) Close() error {
	_ = a.log.Sync()
	return a.dataset.Close()
}

// withApp runs fn with a freshly wired app and closes it afterwards.
func withApp(ctx context.Context, root *RootOptions, fn func(*app) error) error {
	a, err := newApp(ctx, root.Opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
