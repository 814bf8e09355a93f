package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/BudgetKeeper/internal/dataset/memory"
	"github.com/atinyakov/BudgetKeeper/internal/merge"
	"github.com/atinyakov/BudgetKeeper/internal/models"
	"github.com/atinyakov/BudgetKeeper/internal/synclock"
)

var t0 = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *memory.Store) (models.Envelope, models.BudgetPeriod) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Init(ctx))

	at := models.AccountType{ID: uuid.New(), Description: "Checking", Audit: models.NewAudit(t0)}
	acct := models.Account{ID: uuid.New(), Description: "Main", TypeID: at.ID, OnBudget: true, Audit: models.NewAudit(t0)}
	payee := models.Payee{ID: uuid.New(), Description: "Grocer", Audit: models.NewAudit(t0)}
	group := models.EnvelopeGroup{ID: uuid.New(), Description: "Living", Audit: models.NewAudit(t0)}
	env := models.Envelope{ID: uuid.New(), Description: "Food", GroupID: group.ID, Audit: models.NewAudit(t0)}
	period := models.BudgetPeriod{ID: uuid.New(), StartDate: t0, EndDate: t0.AddDate(0, 1, 0), Audit: models.NewAudit(t0)}
	budget := models.Budget{ID: uuid.New(), EnvelopeID: env.ID, BudgetPeriodID: period.ID,
		Amount: decimal.NewFromInt(300), Audit: models.NewAudit(t0)}
	tx := models.Transaction{ID: uuid.New(), Amount: decimal.NewFromInt(-20), ServiceDate: t0,
		AccountID: acct.ID, PayeeID: payee.ID, EnvelopeID: env.ID, Audit: models.NewAudit(t0)}

	require.NoError(t, s.CreateAccountType(ctx, at))
	require.NoError(t, s.CreateAccount(ctx, acct))
	require.NoError(t, s.CreatePayee(ctx, payee))
	require.NoError(t, s.CreateEnvelopeGroup(ctx, group))
	require.NoError(t, s.CreateEnvelope(ctx, env))
	require.NoError(t, s.CreateBudgetPeriod(ctx, period))
	require.NoError(t, s.CreateBudget(ctx, budget))
	require.NoError(t, s.CreateTransaction(ctx, tx))
	return env, period
}

func TestMergeAll_Order(t *testing.T) {
	src, dst := memory.New(), memory.New()
	seed(t, src)
	require.NoError(t, dst.Init(context.Background()))

	report, err := New(nil, nil, nil).MergeAll(context.Background(), src, dst)
	require.NoError(t, err)
	require.Len(t, report, len(merge.Steps()))
	assert.Equal(t, 8, report.Writes())

	var creates []string
	for _, c := range dst.Calls() {
		if len(c) > 6 && c[:6] == "Create" {
			creates = append(creates, c)
		}
	}
	assert.Equal(t, []string{
		"CreateAccountType", "CreateAccount", "CreatePayee", "CreateEnvelopeGroup",
		"CreateEnvelope", "CreateBudgetPeriod", "CreateBudget", "CreateTransaction",
	}, creates)
}

func TestFullSync_Idempotent(t *testing.T) {
	ctx := context.Background()
	local, remote := memory.New(), memory.New()
	seed(t, local)
	seed(t, remote)
	s := New(nil, nil, nil)

	require.True(t, s.FullSync(ctx, remote, local).Success)
	local.ResetWrites()
	remote.ResetWrites()

	r := s.FullSync(ctx, remote, local)
	require.True(t, r.Success, r.Message)
	lc, lu := local.Writes()
	rc, ru := remote.Writes()
	assert.Zero(t, lc+lu+rc+ru)

	la, _ := local.ReadAccounts(ctx)
	ra, _ := remote.ReadAccounts(ctx)
	assert.ElementsMatch(t, la, ra)
}

func TestFullSync_PushSkippedWhenPullFails(t *testing.T) {
	ctx := context.Background()
	local, remote := memory.New(), memory.New()
	seed(t, remote)
	seed(t, local)
	boom := errors.New("locked database")
	local.FailOn["CreateEnvelope"] = boom

	r := New(nil, nil, nil).FullSync(ctx, remote, local)
	assert.False(t, r.Success)
	assert.ErrorIs(t, r.Error(), boom)

	// Pull stopped at envelopes: earlier entities merged, later ones untouched.
	groups, _ := local.ReadEnvelopeGroups(ctx)
	assert.Len(t, groups, 2)
	budgets, _ := local.ReadBudgets(ctx)
	assert.Len(t, budgets, 1)

	creates, updates := remote.Writes()
	assert.Equal(t, 8, creates, "only the remote's own seed writes")
	assert.Zero(t, updates)
}

func TestPullPush_Direction(t *testing.T) {
	ctx := context.Background()
	local, remote := memory.New(), memory.New()
	seed(t, remote)
	require.NoError(t, local.Init(ctx))
	s := New(nil, nil, nil)

	require.True(t, s.Push(ctx, remote, local).Success)
	payees, _ := local.ReadPayees(ctx)
	assert.Empty(t, payees)

	require.True(t, s.Pull(ctx, remote, local).Success)
	payees, _ = local.ReadPayees(ctx)
	assert.Len(t, payees, 1)
}

func TestConflict_RemoteNewerWins(t *testing.T) {
	ctx := context.Background()
	local, remote := memory.New(), memory.New()
	require.NoError(t, local.Init(ctx))
	require.NoError(t, remote.Init(ctx))

	id := uuid.New()
	mine := models.Account{ID: id, Description: "local", Audit: models.NewAudit(t0)}
	theirs := models.Account{ID: id, Description: "remote", OnBudget: true, Audit: models.NewAudit(t0)}
	theirs.Touch(t0.Add(time.Hour))
	require.NoError(t, local.CreateAccount(ctx, mine))
	require.NoError(t, remote.CreateAccount(ctx, theirs))

	require.True(t, New(nil, nil, nil).FullSync(ctx, remote, local).Success)

	la, _ := local.ReadAccounts(ctx)
	ra, _ := remote.ReadAccounts(ctx)
	assert.Equal(t, []models.Account{theirs}, la)
	assert.Equal(t, []models.Account{theirs}, ra)
}

func TestCompositeKey_RemoteOnlyBudget(t *testing.T) {
	ctx := context.Background()
	local, remote := memory.New(), memory.New()
	env, period := seed(t, remote)
	require.NoError(t, local.Init(ctx))

	require.True(t, New(nil, nil, nil).FullSync(ctx, remote, local).Success)

	budgets, _ := local.ReadBudgets(ctx)
	require.Len(t, budgets, 1)
	assert.Equal(t, models.BudgetKey{EnvelopeID: env.ID, BudgetPeriodID: period.ID}, budgets[0].Key())
	assert.True(t, budgets[0].Amount.Equal(decimal.NewFromInt(300)))
}

type blockingLocker struct {
	synclock.Locker
	mu       sync.Mutex
	attempts int
}

func (b *blockingLocker) Lock(ctx context.Context) error {
	b.mu.Lock()
	b.attempts++
	b.mu.Unlock()
	return b.Locker.Lock(ctx)
}

func TestSyncer_LockTimeout(t *testing.T) {
	lock := &blockingLocker{Locker: synclock.NewSemaphore()}
	require.NoError(t, lock.Lock(context.Background()))
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r := New(lock, nil, nil).FullSync(ctx, memory.New(), memory.New())
	assert.False(t, r.Success)
	assert.ErrorIs(t, r.Error(), context.DeadlineExceeded)
	assert.Equal(t, 2, lock.attempts)
}
