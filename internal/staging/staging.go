// Package staging names the per-attempt staging databases and sweeps the
// ones a crashed process left behind.
package staging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	prefix = "budgetkeeper-stage-"
	suffix = ".db"
)

// JournalSuffix is the SQLite rollback journal suffix.
const JournalSuffix = "-journal"

// Name returns a fresh staging file name.
func Name() string {
	return prefix + uuid.NewString() + suffix
}

// IsStagingFile reports whether name (a base name) belongs to a staging
// database or its journal.
func IsStagingFile(name string) bool {
	name = strings.TrimSuffix(name, JournalSuffix)
	return strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix)
}

// Sweep removes staging files in dir last modified before cutoff and
// returns how many were removed.
func Sweep(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !IsStagingFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// StartCleaner sweeps dir every interval, removing staging files older than
// retention, until ctx is done.
func StartCleaner(
	ctx context.Context,
	dir string,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	if log == nil {
		log = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := Sweep(dir, time.Now().Add(-retention))
				if err != nil {
					log.Error("failed to clean staging files", zap.String("dir", dir), zap.Error(err))
					continue
				}
				if n > 0 {
					log.Info("cleaned staging files", zap.Int("removed", n))
				}
			}
		}
	}()
}
