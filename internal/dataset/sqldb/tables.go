package sqldb

import (
	"context"

	"github.com/google/uuid"

	"github.com/atinyakov/BudgetKeeper/internal/models"
)

func withAudit(cols ...string) []string {
	return append(cols, auditColumns...)
}

func byID(id uuid.UUID) []any { return []any{id} }

var accountTypes = table[models.AccountType]{
	name:    "account_types",
	columns: withAudit("id", "description"),
	keys:    []string{"id"},
	args: func(t models.AccountType) []any {
		return append([]any{t.ID, t.Description}, auditArgs(t.Audit)...)
	},
	keyArgs: func(t models.AccountType) []any { return byID(t.ID) },
	scan: func(r rowScanner) (models.AccountType, error) {
		var t models.AccountType
		err := r.Scan(append([]any{&t.ID, &t.Description}, auditTargets(&t.Audit)...)...)
		return t, err
	},
}

var accounts = table[models.Account]{
	name:    "accounts",
	columns: withAudit("id", "description", "notes", "type_id", "on_budget"),
	keys:    []string{"id"},
	args: func(v models.Account) []any {
		return append([]any{v.ID, v.Description, v.Notes, v.TypeID, v.OnBudget}, auditArgs(v.Audit)...)
	},
	keyArgs: func(v models.Account) []any { return byID(v.ID) },
	scan: func(r rowScanner) (models.Account, error) {
		var v models.Account
		err := r.Scan(append([]any{&v.ID, &v.Description, &v.Notes, &v.TypeID, &v.OnBudget}, auditTargets(&v.Audit)...)...)
		return v, err
	},
}

var payees = table[models.Payee]{
	name:    "payees",
	columns: withAudit("id", "description", "notes"),
	keys:    []string{"id"},
	args: func(v models.Payee) []any {
		return append([]any{v.ID, v.Description, v.Notes}, auditArgs(v.Audit)...)
	},
	keyArgs: func(v models.Payee) []any { return byID(v.ID) },
	scan: func(r rowScanner) (models.Payee, error) {
		var v models.Payee
		err := r.Scan(append([]any{&v.ID, &v.Description, &v.Notes}, auditTargets(&v.Audit)...)...)
		return v, err
	},
}

var envelopeGroups = table[models.EnvelopeGroup]{
	name:    "envelope_groups",
	columns: withAudit("id", "description", "notes"),
	keys:    []string{"id"},
	args: func(v models.EnvelopeGroup) []any {
		return append([]any{v.ID, v.Description, v.Notes}, auditArgs(v.Audit)...)
	},
	keyArgs: func(v models.EnvelopeGroup) []any { return byID(v.ID) },
	scan: func(r rowScanner) (models.EnvelopeGroup, error) {
		var v models.EnvelopeGroup
		err := r.Scan(append([]any{&v.ID, &v.Description, &v.Notes}, auditTargets(&v.Audit)...)...)
		return v, err
	},
}

var envelopes = table[models.Envelope]{
	name:    "envelopes",
	columns: withAudit("id", "description", "notes", "group_id", "ignore_overspend"),
	keys:    []string{"id"},
	args: func(v models.Envelope) []any {
		return append([]any{v.ID, v.Description, v.Notes, v.GroupID, v.IgnoreOverspend}, auditArgs(v.Audit)...)
	},
	keyArgs: func(v models.Envelope) []any { return byID(v.ID) },
	scan: func(r rowScanner) (models.Envelope, error) {
		var v models.Envelope
		err := r.Scan(append([]any{&v.ID, &v.Description, &v.Notes, &v.GroupID, &v.IgnoreOverspend}, auditTargets(&v.Audit)...)...)
		return v, err
	},
}

var budgetPeriods = table[models.BudgetPeriod]{
	name:    "budget_periods",
	columns: withAudit("id", "start_date", "end_date"),
	keys:    []string{"id"},
	args: func(v models.BudgetPeriod) []any {
		return append([]any{v.ID, &stamp{&v.StartDate}, &stamp{&v.EndDate}}, auditArgs(v.Audit)...)
	},
	keyArgs: func(v models.BudgetPeriod) []any { return byID(v.ID) },
	scan: func(r rowScanner) (models.BudgetPeriod, error) {
		var v models.BudgetPeriod
		err := r.Scan(append([]any{&v.ID, &stamp{&v.StartDate}, &stamp{&v.EndDate}}, auditTargets(&v.Audit)...)...)
		return v, err
	},
}

// budgets are addressed by envelope and period, so an update rewrites the
// id column too.
var budgets = table[models.Budget]{
	name:    "budgets",
	columns: withAudit("id", "envelope_id", "budget_period_id", "amount", "ignore_overspend"),
	keys:    []string{"envelope_id", "budget_period_id"},
	args: func(v models.Budget) []any {
		return append([]any{v.ID, v.EnvelopeID, v.BudgetPeriodID, v.Amount, v.IgnoreOverspend}, auditArgs(v.Audit)...)
	},
	keyArgs: func(v models.Budget) []any { return []any{v.EnvelopeID, v.BudgetPeriodID} },
	scan: func(r rowScanner) (models.Budget, error) {
		var v models.Budget
		err := r.Scan(append([]any{&v.ID, &v.EnvelopeID, &v.BudgetPeriodID, &v.Amount, &v.IgnoreOverspend}, auditTargets(&v.Audit)...)...)
		return v, err
	},
}

var transactions = table[models.Transaction]{
	name: "transactions",
	columns: withAudit("id", "amount", "posted", "reconciled", "service_date",
		"account_id", "payee_id", "envelope_id", "split_id", "notes"),
	keys: []string{"id"},
	args: func(v models.Transaction) []any {
		return append([]any{v.ID, v.Amount, v.Posted, v.Reconciled, &stamp{&v.ServiceDate},
			v.AccountID, v.PayeeID, v.EnvelopeID, v.SplitID, v.Notes}, auditArgs(v.Audit)...)
	},
	keyArgs: func(v models.Transaction) []any { return byID(v.ID) },
	scan: func(r rowScanner) (models.Transaction, error) {
		var v models.Transaction
		err := r.Scan(append([]any{&v.ID, &v.Amount, &v.Posted, &v.Reconciled, &stamp{&v.ServiceDate},
			&v.AccountID, &v.PayeeID, &v.EnvelopeID, &v.SplitID, &v.Notes}, auditTargets(&v.Audit)...)...)
		return v, err
	},
}

func (s *Store) ReadAccountTypes(ctx context.Context) ([]models.AccountType, error) {
	return readAll(ctx, s, accountTypes)
}

func (s *Store) CreateAccountType(ctx context.Context, t models.AccountType) error {
	return insert(ctx, s, accountTypes, t)
}

func (s *Store) UpdateAccountType(ctx context.Context, t models.AccountType) error {
	return update(ctx, s, accountTypes, t)
}

func (s *Store) ReadAccounts(ctx context.Context) ([]models.Account, error) {
	return readAll(ctx, s, accounts)
}

func (s *Store) CreateAccount(ctx context.Context, a models.Account) error {
	return insert(ctx, s, accounts, a)
}

func (s *Store) UpdateAccount(ctx context.Context, a models.Account) error {
	return update(ctx, s, accounts, a)
}

func (s *Store) ReadPayees(ctx context.Context) ([]models.Payee, error) {
	return readAll(ctx, s, payees)
}

func (s *Store) CreatePayee(ctx context.Context, p models.Payee) error {
	return insert(ctx, s, payees, p)
}

func (s *Store) UpdatePayee(ctx context.Context, p models.Payee) error {
	return update(ctx, s, payees, p)
}

func (s *Store) ReadEnvelopeGroups(ctx context.Context) ([]models.EnvelopeGroup, error) {
	return readAll(ctx, s, envelopeGroups)
}

func (s *Store) CreateEnvelopeGroup(ctx context.Context, g models.EnvelopeGroup) error {
	return insert(ctx, s, envelopeGroups, g)
}

func (s *Store) UpdateEnvelopeGroup(ctx context.Context, g models.EnvelopeGroup) error {
	return update(ctx, s, envelopeGroups, g)
}

func (s *Store) ReadEnvelopes(ctx context.Context) ([]models.Envelope, error) {
	return readAll(ctx, s, envelopes)
}

func (s *Store) CreateEnvelope(ctx context.Context, e models.Envelope) error {
	return insert(ctx, s, envelopes, e)
}

func (s *Store) UpdateEnvelope(ctx context.Context, e models.Envelope) error {
	return update(ctx, s, envelopes, e)
}

func (s *Store) ReadBudgetPeriods(ctx context.Context) ([]models.BudgetPeriod, error) {
	return readAll(ctx, s, budgetPeriods)
}

func (s *Store) CreateBudgetPeriod(ctx context.Context, p models.BudgetPeriod) error {
	return insert(ctx, s, budgetPeriods, p)
}

func (s *Store) UpdateBudgetPeriod(ctx context.Context, p models.BudgetPeriod) error {
	return update(ctx, s, budgetPeriods, p)
}

func (s *Store) ReadBudgets(ctx context.Context) ([]models.Budget, error) {
	return readAll(ctx, s, budgets)
}

func (s *Store) CreateBudget(ctx context.Context, b models.Budget) error {
	return insert(ctx, s, budgets, b)
}

func (s *Store) UpdateBudget(ctx context.Context, b models.Budget) error {
	return update(ctx, s, budgets, b)
}

func (s *Store) ReadTransactions(ctx context.Context) ([]models.Transaction, error) {
	return readAll(ctx, s, transactions)
}

func (s *Store) CreateTransaction(ctx context.Context, t models.Transaction) error {
	return insert(ctx, s, transactions, t)
}

func (s *Store) UpdateTransaction(ctx context.Context, t models.Transaction) error {
	return update(ctx, s, transactions, t)
}
