// Package transport moves whole datasets between devices as a single
// snapshot file: the SQLite database of a staging dataset, optionally
// gzipped, stored on any filesystem provider.
package transport

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/BudgetKeeper/internal/dataset"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem"
	"github.com/atinyakov/BudgetKeeper/internal/metrics"
	"github.com/atinyakov/BudgetKeeper/internal/result"
	"github.com/atinyakov/BudgetKeeper/internal/synclock"
	"github.com/atinyakov/BudgetKeeper/internal/syncer"
)

// ErrSnapshotNotFound is reported by FileBasedImport when there is no
// snapshot to import.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ImportRequest describes a snapshot download merged into the app dataset.
type ImportRequest struct {
	ImportFS    filesystem.FileSystem
	ImportFile  string
	Compression bool
	TempFS      filesystem.FileSystem
	TempFile    string
	// TempDataset must be backed by TempFile on TempFS and not yet opened.
	TempDataset dataset.Dataset
	AppDataset  dataset.Dataset
}

// ExportRequest describes the app dataset written out as a snapshot.
type ExportRequest struct {
	AppDataset  dataset.Dataset
	TempDataset dataset.Dataset
	TempFS      filesystem.FileSystem
	TempFile    string
	Compression bool
	ExportFile  string
	ExportFS    filesystem.FileSystem
}

// SyncRequest describes a two-way sync against a remote snapshot.
type SyncRequest struct {
	Compression bool
	SyncFS      filesystem.FileSystem
	SyncFile    string
	TempFS      filesystem.FileSystem
	TempFile    string
	TempDataset dataset.Dataset
	AppDataset  dataset.Dataset
}

// Engine runs imports, exports and syncs. FileBasedSync is single-flight
// per lock: callers wait for the running sync.
type Engine struct {
	lock    synclock.Locker
	merger  *syncer.Syncer
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewEngine returns an engine serialized by lock.
func NewEngine(lock synclock.Locker, log *zap.Logger, m *metrics.Metrics) *Engine {
	if lock == nil {
		lock = synclock.NewSemaphore()
	}
	if log == nil {
		log = zap.NewNop()
	}
	// The merger's own lock is never taken here: only MergeAll is used.
	return &Engine{lock: lock, merger: syncer.New(nil, log, m), log: log, metrics: m}
}

// Import merges importDS into appDS. Nothing is ever deleted from appDS.
func (e *Engine) Import(ctx context.Context, importDS, appDS dataset.Dataset) result.Result {
	return result.FromError("import", e.mergeInto(ctx, importDS, appDS))
}

// Export merges appDS into exportDS. Nothing is ever deleted from exportDS.
func (e *Engine) Export(ctx context.Context, appDS, exportDS dataset.Dataset) result.Result {
	return result.FromError("export", e.mergeInto(ctx, appDS, exportDS))
}

func (e *Engine) mergeInto(ctx context.Context, source, target dataset.Dataset) error {
	if err := source.Init(ctx); err != nil {
		return fmt.Errorf("init source: %w", err)
	}
	if err := target.Init(ctx); err != nil {
		return fmt.Errorf("init target: %w", err)
	}
	_, err := e.merger.MergeAll(ctx, source, target)
	return err
}

func snapshotName(name string, compression bool) string {
	if compression {
		return CompressedName(name)
	}
	return name
}

// FileBasedImport downloads the snapshot, stages it in TempFile and merges it
// into the app dataset. A missing snapshot is a failure matching
// ErrSnapshotNotFound.
func (e *Engine) FileBasedImport(ctx context.Context, req ImportRequest) result.Result {
	return result.FromError("import", e.fileImport(ctx, req))
}

func (e *Engine) fileImport(ctx context.Context, req ImportRequest) error {
	name := snapshotName(req.ImportFile, req.Compression)
	exists, err := req.ImportFS.FileExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check snapshot: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
	}

	data, err := req.ImportFS.ReadFile(ctx, name)
	if err != nil {
		return fmt.Errorf("download snapshot: %w", err)
	}
	if req.Compression {
		if data, err = Decompress(data); err != nil {
			return err
		}
	}
	if err := req.TempFS.WriteFile(ctx, req.TempFile, data); err != nil {
		return fmt.Errorf("stage snapshot: %w", err)
	}
	e.log.Debug("snapshot staged", zap.String("file", name), zap.Int("bytes", len(data)))

	return e.mergeInto(ctx, req.TempDataset, req.AppDataset)
}

// FileBasedExport merges the app dataset into the staging dataset and
// uploads TempFile as the snapshot.
func (e *Engine) FileBasedExport(ctx context.Context, req ExportRequest) result.Result {
	return result.FromError("export", e.fileExport(ctx, req))
}

func (e *Engine) fileExport(ctx context.Context, req ExportRequest) error {
	if err := e.mergeInto(ctx, req.AppDataset, req.TempDataset); err != nil {
		return err
	}
	// Close flushes the staging database so the file on disk is complete.
	if err := req.TempDataset.Close(); err != nil {
		return fmt.Errorf("close staging dataset: %w", err)
	}

	exists, err := req.TempFS.FileExists(ctx, req.TempFile)
	if err != nil {
		return fmt.Errorf("check staging file: %w", err)
	}
	if !exists {
		return fmt.Errorf("staging file %s: %w", req.TempFile, filesystem.ErrNotFound)
	}
	data, err := req.TempFS.ReadFile(ctx, req.TempFile)
	if err != nil {
		return fmt.Errorf("read staging file: %w", err)
	}

	name := snapshotName(req.ExportFile, req.Compression)
	if req.Compression {
		if data, err = Compress(data); err != nil {
			return err
		}
	}
	if err := ensureDir(ctx, req.ExportFS, path.Dir(name)); err != nil {
		return err
	}
	if err := req.ExportFS.WriteFile(ctx, name, data); err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	e.log.Debug("snapshot uploaded", zap.String("file", name), zap.Int("bytes", len(data)))
	return nil
}

func ensureDir(ctx context.Context, fsys filesystem.FileSystem, dir string) error {
	if dir == "." || dir == "/" || dir == "" {
		return nil
	}
	ok, err := fsys.DirExists(ctx, dir)
	if err != nil {
		return fmt.Errorf("check snapshot directory: %w", err)
	}
	if ok {
		return nil
	}
	if err := fsys.CreateDir(ctx, dir); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	return nil
}

// FileBasedSync imports the remote snapshot if there is one, then exports the
// merged app dataset back. A missing snapshot counts as an empty remote. The
// export only runs after a successful import.
func (e *Engine) FileBasedSync(ctx context.Context, req SyncRequest) result.Result {
	if err := e.lock.Lock(ctx); err != nil {
		return result.FromError("sync", fmt.Errorf("wait for running sync: %w", err))
	}
	defer e.lock.Unlock()

	start := time.Now()
	err := e.fileSync(ctx, req)
	e.metrics.ObserveSync(err == nil, time.Since(start))
	if err != nil {
		e.log.Error("sync failed", zap.String("file", req.SyncFile), zap.Error(err))
		return result.FromError("sync", err)
	}
	e.log.Info("sync complete", zap.String("file", req.SyncFile), zap.Duration("took", time.Since(start)))
	return result.OK()
}

func (e *Engine) fileSync(ctx context.Context, req SyncRequest) error {
	name := snapshotName(req.SyncFile, req.Compression)
	exists, err := req.SyncFS.FileExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check snapshot: %w", err)
	}
	if exists {
		err := e.fileImport(ctx, ImportRequest{
			ImportFS:    req.SyncFS,
			ImportFile:  req.SyncFile,
			Compression: req.Compression,
			TempFS:      req.TempFS,
			TempFile:    req.TempFile,
			TempDataset: req.TempDataset,
			AppDataset:  req.AppDataset,
		})
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
	} else {
		e.log.Info("no remote snapshot, first sync", zap.String("file", name))
	}

	if err := e.fileExport(ctx, ExportRequest{
		AppDataset:  req.AppDataset,
		TempDataset: req.TempDataset,
		TempFS:      req.TempFS,
		TempFile:    req.TempFile,
		Compression: req.Compression,
		ExportFile:  req.SyncFile,
		ExportFS:    req.SyncFS,
	}); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
