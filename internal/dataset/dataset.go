// Package dataset defines the storage surface the sync core reads and writes.
//
// A Dataset is one copy of the budget data: the app database, a staging
// database holding a downloaded snapshot, or a remote peer. Reads return every
// row including hidden and deleted ones; creates insert a record verbatim and
// updates replace a whole record.
package dataset

import (
	"context"

	"github.com/atinyakov/BudgetKeeper/internal/models"
)

// Dataset is implemented by the storage layer.
type Dataset interface {
	// Init prepares the dataset for use. It is idempotent.
	Init(ctx context.Context) error
	// Close releases any resources held by the dataset.
	Close() error

	ReadAccountTypes(ctx context.Context) ([]models.AccountType, error)
	CreateAccountType(ctx context.Context, t models.AccountType) error
	UpdateAccountType(ctx context.Context, t models.AccountType) error

	ReadAccounts(ctx context.Context) ([]models.Account, error)
	CreateAccount(ctx context.Context, a models.Account) error
	UpdateAccount(ctx context.Context, a models.Account) error

	ReadPayees(ctx context.Context) ([]models.Payee, error)
	CreatePayee(ctx context.Context, p models.Payee) error
	UpdatePayee(ctx context.Context, p models.Payee) error

	ReadEnvelopeGroups(ctx context.Context) ([]models.EnvelopeGroup, error)
	CreateEnvelopeGroup(ctx context.Context, g models.EnvelopeGroup) error
	UpdateEnvelopeGroup(ctx context.Context, g models.EnvelopeGroup) error

	ReadEnvelopes(ctx context.Context) ([]models.Envelope, error)
	CreateEnvelope(ctx context.Context, e models.Envelope) error
	UpdateEnvelope(ctx context.Context, e models.Envelope) error

	ReadBudgetPeriods(ctx context.Context) ([]models.BudgetPeriod, error)
	CreateBudgetPeriod(ctx context.Context, p models.BudgetPeriod) error
	UpdateBudgetPeriod(ctx context.Context, p models.BudgetPeriod) error

	ReadBudgets(ctx context.Context) ([]models.Budget, error)
	CreateBudget(ctx context.Context, b models.Budget) error
	// UpdateBudget replaces the budget with the same composite key, ID included.
	UpdateBudget(ctx context.Context, b models.Budget) error

	ReadTransactions(ctx context.Context) ([]models.Transaction, error)
	CreateTransaction(ctx context.Context, t models.Transaction) error
	UpdateTransaction(ctx context.Context, t models.Transaction) error
}
