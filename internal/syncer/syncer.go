// Package syncer runs entity merges across every entity type, in dependency
// order, in either direction between a local and a remote dataset.
package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/atinyakov/BudgetKeeper/internal/dataset"
	"github.com/atinyakov/BudgetKeeper/internal/merge"
	"github.com/atinyakov/BudgetKeeper/internal/metrics"
	"github.com/atinyakov/BudgetKeeper/internal/result"
	"github.com/atinyakov/BudgetKeeper/internal/synclock"
)

// Report lists per-entity stats of one pass, in the order the steps ran.
type Report []merge.Stats

// Writes returns the total number of creates and updates in the pass.
func (r Report) Writes() int {
	n := 0
	for _, s := range r {
		n += s.Writes()
	}
	return n
}

// Syncer merges whole datasets. Pull, Push and FullSync are single-flight per
// Syncer; MergeAll is not locked and is shared with the file transport.
type Syncer struct {
	lock    synclock.Locker
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New returns a Syncer guarded by lock. A nil lock gets a fresh semaphore and
// a nil logger discards output.
func New(lock synclock.Locker, log *zap.Logger, m *metrics.Metrics) *Syncer {
	if lock == nil {
		lock = synclock.NewSemaphore()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{lock: lock, log: log, metrics: m}
}

// MergeAll merges source into target for every entity type. It stops at the
// first failing entity; entities merged before it stay merged.
func (s *Syncer) MergeAll(ctx context.Context, source, target dataset.Dataset) (Report, error) {
	var report Report
	for _, step := range merge.Steps() {
		stats, err := step.Run(ctx, source, target)
		s.metrics.AddMerged(step.Entity, stats.Created, stats.Updated)
		if err != nil {
			s.log.Error("merge failed", zap.String("entity", step.Entity), zap.Error(err))
			return report, err
		}
		s.log.Debug("merged",
			zap.String("entity", step.Entity),
			zap.Int("created", stats.Created),
			zap.Int("updated", stats.Updated),
			zap.Int("unchanged", stats.Unchanged),
		)
		report = append(report, stats)
	}
	return report, nil
}

// Pull merges remote into local.
func (s *Syncer) Pull(ctx context.Context, remote, local dataset.Dataset) result.Result {
	if err := s.lock.Lock(ctx); err != nil {
		return result.FromError("pull", err)
	}
	defer s.lock.Unlock()
	return s.pass(ctx, "pull", remote, local)
}

// Push merges local into remote.
func (s *Syncer) Push(ctx context.Context, remote, local dataset.Dataset) result.Result {
	if err := s.lock.Lock(ctx); err != nil {
		return result.FromError("push", err)
	}
	defer s.lock.Unlock()
	return s.pass(ctx, "push", local, remote)
}

// FullSync pulls, then pushes if the pull succeeded.
func (s *Syncer) FullSync(ctx context.Context, remote, local dataset.Dataset) result.Result {
	if err := s.lock.Lock(ctx); err != nil {
		return result.FromError("sync", err)
	}
	defer s.lock.Unlock()

	if r := s.pass(ctx, "pull", remote, local); !r.Success {
		return r
	}
	return s.pass(ctx, "push", local, remote)
}

func (s *Syncer) pass(ctx context.Context, name string, source, target dataset.Dataset) result.Result {
	if err := source.Init(ctx); err != nil {
		return result.FromError(name, fmt.Errorf("init source: %w", err))
	}
	if err := target.Init(ctx); err != nil {
		return result.FromError(name, fmt.Errorf("init target: %w", err))
	}
	report, err := s.MergeAll(ctx, source, target)
	if err != nil {
		return result.FromError(name, err)
	}
	s.log.Info(name+" complete", zap.Int("writes", report.Writes()))
	return result.OK()
}
