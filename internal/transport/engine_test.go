package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/BudgetKeeper/internal/dataset/memory"
	"github.com/atinyakov/BudgetKeeper/internal/dataset/sqldb"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem/local"
	"github.com/atinyakov/BudgetKeeper/internal/models"
	"github.com/atinyakov/BudgetKeeper/internal/synclock"
)

const syncFile = "Apps/BudgetKeeper/budget.db"

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *memory.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Init(ctx))

	at := models.AccountType{ID: uuid.New(), Description: "Savings", Audit: models.NewAudit(t0)}
	acct := models.Account{ID: uuid.New(), Description: "Rainy day", TypeID: at.ID, Audit: models.NewAudit(t0)}
	payee := models.Payee{ID: uuid.New(), Description: "Landlord", Audit: models.NewAudit(t0)}
	group := models.EnvelopeGroup{ID: uuid.New(), Description: "Home", Audit: models.NewAudit(t0)}
	env := models.Envelope{ID: uuid.New(), Description: "Rent", GroupID: group.ID, Audit: models.NewAudit(t0)}
	period := models.BudgetPeriod{ID: uuid.New(), StartDate: t0, EndDate: t0.AddDate(0, 1, 0), Audit: models.NewAudit(t0)}
	budget := models.Budget{ID: uuid.New(), EnvelopeID: env.ID, BudgetPeriodID: period.ID,
		Amount: decimal.RequireFromString("1200.50"), Audit: models.NewAudit(t0)}
	tx := models.Transaction{ID: uuid.New(), Amount: decimal.NewFromInt(-1200), ServiceDate: t0,
		AccountID: acct.ID, PayeeID: payee.ID, EnvelopeID: env.ID, Audit: models.NewAudit(t0)}

	require.NoError(t, s.CreateAccountType(ctx, at))
	require.NoError(t, s.CreateAccount(ctx, acct))
	require.NoError(t, s.CreatePayee(ctx, payee))
	require.NoError(t, s.CreateEnvelopeGroup(ctx, group))
	require.NoError(t, s.CreateEnvelope(ctx, env))
	require.NoError(t, s.CreateBudgetPeriod(ctx, period))
	require.NoError(t, s.CreateBudget(ctx, budget))
	require.NoError(t, s.CreateTransaction(ctx, tx))
	s.ResetWrites()
}

type device struct {
	app  *memory.Store
	temp *local.FS
	n    int
}

func newDevice(t *testing.T) *device {
	t.Helper()
	temp, err := local.New(t.TempDir())
	require.NoError(t, err)
	app := memory.New()
	require.NoError(t, app.Init(context.Background()))
	return &device{app: app, temp: temp}
}

// request builds a sync request with a fresh staging file.
func (d *device) request(t *testing.T, remote filesystem.FileSystem) SyncRequest {
	t.Helper()
	d.n++
	name := fmt.Sprintf("stage-%d.db", d.n)
	p, err := d.temp.Abs(name)
	require.NoError(t, err)
	stage := sqldb.NewSQLite(p)
	t.Cleanup(func() { _ = stage.Close() })
	return SyncRequest{
		Compression: true,
		SyncFS:      remote,
		SyncFile:    syncFile,
		TempFS:      d.temp,
		TempFile:    name,
		TempDataset: stage,
		AppDataset:  d.app,
	}
}

func newRemote(t *testing.T) *local.FS {
	t.Helper()
	fsys, err := local.New(t.TempDir())
	require.NoError(t, err)
	return fsys
}

func TestFileBasedSync_BootstrapsSecondDevice(t *testing.T) {
	ctx := context.Background()
	remote := newRemote(t)
	a, b := newDevice(t), newDevice(t)
	seed(t, a.app)
	e := NewEngine(nil, nil, nil)

	r := e.FileBasedSync(ctx, a.request(t, remote))
	require.True(t, r.Success, r.Message)
	ok, err := remote.FileExists(ctx, CompressedName(syncFile))
	require.NoError(t, err)
	require.True(t, ok)

	r = e.FileBasedSync(ctx, b.request(t, remote))
	require.True(t, r.Success, r.Message)

	want, _ := a.app.ReadBudgets(ctx)
	got, _ := b.app.ReadBudgets(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, want[0].ID, got[0].ID)
	assert.True(t, want[0].Amount.Equal(got[0].Amount))

	txs, _ := b.app.ReadTransactions(ctx)
	assert.Len(t, txs, 1)
}

func TestFileBasedSync_Idempotent(t *testing.T) {
	ctx := context.Background()
	remote := newRemote(t)
	a := newDevice(t)
	seed(t, a.app)
	e := NewEngine(nil, nil, nil)

	require.True(t, e.FileBasedSync(ctx, a.request(t, remote)).Success)
	a.app.ResetWrites()

	r := e.FileBasedSync(ctx, a.request(t, remote))
	require.True(t, r.Success, r.Message)
	creates, updates := a.app.Writes()
	assert.Zero(t, creates)
	assert.Zero(t, updates)
}

func TestFileBasedSync_MergesBothWays(t *testing.T) {
	ctx := context.Background()
	remote := newRemote(t)
	a, b := newDevice(t), newDevice(t)
	seed(t, a.app)
	seed(t, b.app)
	e := NewEngine(nil, nil, nil)

	require.True(t, e.FileBasedSync(ctx, a.request(t, remote)).Success)
	require.True(t, e.FileBasedSync(ctx, b.request(t, remote)).Success)
	require.True(t, e.FileBasedSync(ctx, a.request(t, remote)).Success)

	pa, _ := a.app.ReadPayees(ctx)
	pb, _ := b.app.ReadPayees(ctx)
	assert.Len(t, pa, 2)
	assert.Len(t, pb, 2)
}

func TestFileBasedSync_MissingSnapshotIsFirstSync(t *testing.T) {
	ctx := context.Background()
	remote := newRemote(t)
	a := newDevice(t)
	e := NewEngine(nil, nil, nil)

	r := e.FileBasedSync(ctx, a.request(t, remote))
	require.True(t, r.Success, r.Message)
	ok, err := remote.DirExists(ctx, "Apps/BudgetKeeper")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileBasedImport_MissingSnapshot(t *testing.T) {
	ctx := context.Background()
	remote := newRemote(t)
	a := newDevice(t)
	req := a.request(t, remote)

	r := NewEngine(nil, nil, nil).FileBasedImport(ctx, ImportRequest{
		ImportFS:    remote,
		ImportFile:  syncFile,
		Compression: true,
		TempFS:      req.TempFS,
		TempFile:    req.TempFile,
		TempDataset: req.TempDataset,
		AppDataset:  a.app,
	})
	assert.False(t, r.Success)
	assert.ErrorIs(t, r.Error(), ErrSnapshotNotFound)
}

func TestFileBasedExport_Uncompressed(t *testing.T) {
	ctx := context.Background()
	remote := newRemote(t)
	a := newDevice(t)
	seed(t, a.app)
	req := a.request(t, remote)

	r := NewEngine(nil, nil, nil).FileBasedExport(ctx, ExportRequest{
		AppDataset:  a.app,
		TempDataset: req.TempDataset,
		TempFS:      req.TempFS,
		TempFile:    req.TempFile,
		ExportFile:  syncFile,
		ExportFS:    remote,
	})
	require.True(t, r.Success, r.Message)

	data, err := remote.ReadFile(ctx, syncFile)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(data[:16]))
}

func TestFileBasedSync_NoExportAfterFailedImport(t *testing.T) {
	ctx := context.Background()
	remote := newRemote(t)
	require.NoError(t, remote.WriteFile(ctx, CompressedName(syncFile), []byte("not a snapshot")))
	a := newDevice(t)
	seed(t, a.app)

	r := NewEngine(nil, nil, nil).FileBasedSync(ctx, a.request(t, remote))
	assert.False(t, r.Success)

	data, err := remote.ReadFile(ctx, CompressedName(syncFile))
	require.NoError(t, err)
	assert.Equal(t, "not a snapshot", string(data))
}

func TestFileBasedSync_WaitHonoursContext(t *testing.T) {
	lock := synclock.NewSemaphore()
	require.NoError(t, lock.Lock(context.Background()))
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	a := newDevice(t)
	r := NewEngine(lock, nil, nil).FileBasedSync(ctx, a.request(t, newRemote(t)))
	assert.False(t, r.Success)
	assert.ErrorIs(t, r.Error(), context.DeadlineExceeded)
}

// traced records which sync touched the remote, in order.
type traced struct {
	filesystem.FileSystem
	owner string
	mu    *sync.Mutex
	log   *[]string
}

func (f traced) mark() {
	f.mu.Lock()
	*f.log = append(*f.log, f.owner)
	f.mu.Unlock()
	time.Sleep(2 * time.Millisecond)
}

func (f traced) FileExists(ctx context.Context, name string) (bool, error) {
	f.mark()
	return f.FileSystem.FileExists(ctx, name)
}

func (f traced) ReadFile(ctx context.Context, name string) ([]byte, error) {
	f.mark()
	return f.FileSystem.ReadFile(ctx, name)
}

func (f traced) WriteFile(ctx context.Context, name string, data []byte) error {
	f.mark()
	return f.FileSystem.WriteFile(ctx, name, data)
}

func TestFileBasedSync_SingleFlight(t *testing.T) {
	ctx := context.Background()
	remote := newRemote(t)
	e := NewEngine(nil, nil, nil)

	var (
		mu  sync.Mutex
		log []string
		wg  sync.WaitGroup
	)
	const runs = 4
	for i := 0; i < runs; i++ {
		d := newDevice(t)
		seed(t, d.app)
		fsys := traced{FileSystem: remote, owner: fmt.Sprint(i), mu: &mu, log: &log}
		req := d.request(t, fsys)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := e.FileBasedSync(ctx, req)
			assert.True(t, r.Success, r.Message)
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for i, owner := range log {
		if i > 0 && log[i-1] == owner {
			continue
		}
		assert.False(t, seen[owner], "sync %s interleaved with another: %v", owner, log)
		seen[owner] = true
	}
	assert.Len(t, seen, runs)
}

func TestImportExport_Datasets(t *testing.T) {
	ctx := context.Background()
	src, app, out := memory.New(), memory.New(), memory.New()
	seed(t, src)
	e := NewEngine(nil, nil, nil)

	require.True(t, e.Import(ctx, src, app).Success)
	require.True(t, e.Export(ctx, app, out).Success)
	envs, _ := out.ReadEnvelopes(ctx)
	assert.Len(t, envs, 1)

}

func TestImport_StopsOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	src, app := memory.New(), memory.New()
	seed(t, src)
	require.NoError(t, app.Init(ctx))
	boom := errors.New("disk full")
	app.FailOn["CreateAccount"] = boom

	r := NewEngine(nil, nil, nil).Import(ctx, src, app)
	assert.False(t, r.Success)
	assert.ErrorIs(t, r.Error(), boom)
	txs, _ := app.ReadTransactions(ctx)
	assert.Empty(t, txs)
}
