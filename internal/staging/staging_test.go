package staging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func touch(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	mt := time.Now().Add(-age)
	if err := os.Chtimes(p, mt, mt); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
	return p
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func TestName(t *testing.T) {
	a, b := Name(), Name()
	if a == b {
		t.Fatalf("Name() returned %q twice", a)
	}
	if !IsStagingFile(a) || !IsStagingFile(a+JournalSuffix) {
		t.Errorf("IsStagingFile(%q) = false", a)
	}
	for _, other := range []string{"budget.db", "budgetkeeper-stage-x.txt", "notes"} {
		if IsStagingFile(other) {
			t.Errorf("IsStagingFile(%q) = true", other)
		}
	}
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	old := touch(t, dir, Name(), 2*time.Hour)
	oldJournal := touch(t, dir, filepath.Base(old)+JournalSuffix, 2*time.Hour)
	fresh := touch(t, dir, Name(), 0)
	app := touch(t, dir, "budget.db", 2*time.Hour)

	n, err := Sweep(dir, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}
	if exists(old) || exists(oldJournal) {
		t.Error("old staging files still present")
	}
	if !exists(fresh) || !exists(app) {
		t.Error("sweep removed a file it should keep")
	}
}

func TestSweep_MissingDir(t *testing.T) {
	n, err := Sweep(filepath.Join(t.TempDir(), "absent"), time.Now())
	if err != nil || n != 0 {
		t.Fatalf("Sweep = %d, %v; want 0, nil", n, err)
	}
}

func TestStartCleaner_RemovesStale(t *testing.T) {
	dir := t.TempDir()
	old := touch(t, dir, Name(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartCleaner(ctx, dir, 10*time.Millisecond, time.Minute, zap.NewNop())

	deadline := time.Now().Add(2 * time.Second)
	for exists(old) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	if exists(old) {
		t.Fatal("stale staging file was not removed")
	}
}

func TestStartCleaner_ErrorLogged(t *testing.T) {
	// A file where the directory should be makes ReadDir fail.
	dir := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(dir, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	var buf syncBuffer
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(&buf),
		zapcore.ErrorLevel,
	)
	ctx, cancel := context.WithCancel(context.Background())
	StartCleaner(ctx, dir, 10*time.Millisecond, time.Minute, zap.New(core))
	time.Sleep(100 * time.Millisecond)
	cancel()

	if out := buf.String(); !strings.Contains(out, "failed to clean staging files") {
		t.Errorf("expected error log, got:\n%s", out)
	}
}

func TestStartCleaner_CancelBeforeTick(t *testing.T) {
	dir := t.TempDir()
	old := touch(t, dir, Name(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	StartCleaner(ctx, dir, 50*time.Millisecond, time.Minute, nil)
	time.Sleep(120 * time.Millisecond)

	if !exists(old) {
		t.Error("cleaner ran after cancellation")
	}
}

func TestArea_Discard(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !IsStagingFile(a.File) {
		t.Errorf("File = %q; not a staging name", a.File)
	}
	if err := a.Dataset.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	touch(t, dir, a.File+JournalSuffix, 0)
	if !exists(a.Path()) {
		t.Fatal("staging database not created")
	}

	if err := a.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("left behind: %v", entries)
	}
	if err := a.Discard(); err != nil {
		t.Errorf("second Discard: %v", err)
	}
}
