package merge

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/atinyakov/BudgetKeeper/internal/dataset"
	"github.com/atinyakov/BudgetKeeper/internal/models"
)

// Entity names, also used as metric and log labels.
const (
	EntityAccountType   = "account_type"
	EntityAccount       = "account"
	EntityPayee         = "payee"
	EntityEnvelopeGroup = "envelope_group"
	EntityEnvelope      = "envelope"
	EntityBudgetPeriod  = "budget_period"
	EntityBudget        = "budget"
	EntityTransaction   = "transaction"
)

// Step merges one entity type.
type Step struct {
	Entity string
	Run    func(ctx context.Context, source, target dataset.Dataset) (Stats, error)
}

func step[T any, K comparable](c Capabilities[T, K]) Step {
	return Step{
		Entity: c.Entity,
		Run: func(ctx context.Context, source, target dataset.Dataset) (Stats, error) {
			return Merge(ctx, c, source, target)
		},
	}
}

// byID builds capabilities for entities identified by their own ID.
func byID[T any](
	entity string,
	read func(dataset.Dataset, context.Context) ([]T, error),
	create, update func(dataset.Dataset, context.Context, T) error,
	id func(T) uuid.UUID,
	modified func(T) time.Time,
) Capabilities[T, uuid.UUID] {
	return Capabilities[T, uuid.UUID]{
		Entity:     entity,
		ReadAll:    func(ctx context.Context, ds dataset.Dataset) ([]T, error) { return read(ds, ctx) },
		Create:     func(ctx context.Context, ds dataset.Dataset, v T) error { return create(ds, ctx, v) },
		Update:     func(ctx context.Context, ds dataset.Dataset, v T) error { return update(ds, ctx, v) },
		KeyOf:      id,
		ModifiedOf: modified,
	}
}

var (
	AccountTypes = byID(EntityAccountType,
		dataset.Dataset.ReadAccountTypes, dataset.Dataset.CreateAccountType, dataset.Dataset.UpdateAccountType,
		func(v models.AccountType) uuid.UUID { return v.ID },
		func(v models.AccountType) time.Time { return v.Modified() })

	Accounts = byID(EntityAccount,
		dataset.Dataset.ReadAccounts, dataset.Dataset.CreateAccount, dataset.Dataset.UpdateAccount,
		func(v models.Account) uuid.UUID { return v.ID },
		func(v models.Account) time.Time { return v.Modified() })

	Payees = byID(EntityPayee,
		dataset.Dataset.ReadPayees, dataset.Dataset.CreatePayee, dataset.Dataset.UpdatePayee,
		func(v models.Payee) uuid.UUID { return v.ID },
		func(v models.Payee) time.Time { return v.Modified() })

	EnvelopeGroups = byID(EntityEnvelopeGroup,
		dataset.Dataset.ReadEnvelopeGroups, dataset.Dataset.CreateEnvelopeGroup, dataset.Dataset.UpdateEnvelopeGroup,
		func(v models.EnvelopeGroup) uuid.UUID { return v.ID },
		func(v models.EnvelopeGroup) time.Time { return v.Modified() })

	Envelopes = byID(EntityEnvelope,
		dataset.Dataset.ReadEnvelopes, dataset.Dataset.CreateEnvelope, dataset.Dataset.UpdateEnvelope,
		func(v models.Envelope) uuid.UUID { return v.ID },
		func(v models.Envelope) time.Time { return v.Modified() })

	BudgetPeriods = byID(EntityBudgetPeriod,
		dataset.Dataset.ReadBudgetPeriods, dataset.Dataset.CreateBudgetPeriod, dataset.Dataset.UpdateBudgetPeriod,
		func(v models.BudgetPeriod) uuid.UUID { return v.ID },
		func(v models.BudgetPeriod) time.Time { return v.Modified() })

	// Budgets are matched on envelope and period, never on ID.
	Budgets = Capabilities[models.Budget, models.BudgetKey]{
		Entity:     EntityBudget,
		ReadAll:    func(ctx context.Context, ds dataset.Dataset) ([]models.Budget, error) { return ds.ReadBudgets(ctx) },
		Create:     func(ctx context.Context, ds dataset.Dataset, v models.Budget) error { return ds.CreateBudget(ctx, v) },
		Update:     func(ctx context.Context, ds dataset.Dataset, v models.Budget) error { return ds.UpdateBudget(ctx, v) },
		KeyOf:      models.Budget.Key,
		ModifiedOf: func(v models.Budget) time.Time { return v.Modified() },
	}

	Transactions = byID(EntityTransaction,
		dataset.Dataset.ReadTransactions, dataset.Dataset.CreateTransaction, dataset.Dataset.UpdateTransaction,
		func(v models.Transaction) uuid.UUID { return v.ID },
		func(v models.Transaction) time.Time { return v.Modified() })
)

// Steps returns the merge steps in dependency order: every entity is merged
// after the entities it references.
func Steps() []Step {
	return []Step{
		step(AccountTypes),
		step(Accounts),
		step(Payees),
		step(EnvelopeGroups),
		step(Envelopes),
		step(BudgetPeriods),
		step(Budgets),
		step(Transactions),
	}
}
