// Package memory implements an in-memory dataset.Dataset for tests and
// dry runs. It counts creates and updates so callers can assert how much
// work a merge performed.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/atinyakov/BudgetKeeper/internal/dataset"
	"github.com/atinyakov/BudgetKeeper/internal/models"
)

var _ dataset.Dataset = (*Store)(nil)

type table[K comparable, T any] struct {
	rows  map[K]T
	order []K
}

func newTable[K comparable, T any]() *table[K, T] {
	return &table[K, T]{rows: make(map[K]T)}
}

func (t *table[K, T]) all() []T {
	out := make([]T, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.rows[k])
	}
	return out
}

func (t *table[K, T]) create(k K, v T) error {
	if _, ok := t.rows[k]; ok {
		return fmt.Errorf("%w: %v", dataset.ErrExists, k)
	}
	t.rows[k] = v
	t.order = append(t.order, k)
	return nil
}

func (t *table[K, T]) update(k K, v T) error {
	if _, ok := t.rows[k]; !ok {
		return fmt.Errorf("%w: %v", dataset.ErrNotFound, k)
	}
	t.rows[k] = v
	return nil
}

// Store is a map-backed dataset.
type Store struct {
	mu          sync.Mutex
	initialized bool

	accountTypes   *table[any, models.AccountType]
	accounts       *table[any, models.Account]
	payees         *table[any, models.Payee]
	envelopeGroups *table[any, models.EnvelopeGroup]
	envelopes      *table[any, models.Envelope]
	budgetPeriods  *table[any, models.BudgetPeriod]
	budgets        *table[any, models.Budget]
	transactions   *table[any, models.Transaction]

	creates int
	updates int
	calls   []string

	// FailOn makes the named operation (e.g. "CreateBudget") return the error.
	FailOn map[string]error
}

// New returns an empty store. It still has to be initialized with Init.
func New() *Store {
	return &Store{
		accountTypes:   newTable[any, models.AccountType](),
		accounts:       newTable[any, models.Account](),
		payees:         newTable[any, models.Payee](),
		envelopeGroups: newTable[any, models.EnvelopeGroup](),
		envelopes:      newTable[any, models.Envelope](),
		budgetPeriods:  newTable[any, models.BudgetPeriod](),
		budgets:        newTable[any, models.Budget](),
		transactions:   newTable[any, models.Transaction](),
		FailOn:         make(map[string]error),
	}
}

// Init marks the store ready.
func (s *Store) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Writes returns how many creates and updates the store has served.
func (s *Store) Writes() (creates, updates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.updates
}

// ResetWrites zeroes the write counters and the call log.
func (s *Store) ResetWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates, s.updates = 0, 0
	s.calls = nil
}

// Calls returns the operations served so far, in order.
func (s *Store) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Store) enter(op string) error {
	if !s.initialized {
		return dataset.ErrNotInitialized
	}
	s.calls = append(s.calls, op)
	if err, ok := s.FailOn[op]; ok {
		return err
	}
	return nil
}

func read[T any](s *Store, op string, t *table[any, T]) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(op); err != nil {
		return nil, err
	}
	return t.all(), nil
}

func create[T any](s *Store, op string, t *table[any, T], k any, v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(op); err != nil {
		return err
	}
	if err := t.create(k, v); err != nil {
		return err
	}
	s.creates++
	return nil
}

func update[T any](s *Store, op string, t *table[any, T], k any, v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(op); err != nil {
		return err
	}
	if err := t.update(k, v); err != nil {
		return err
	}
	s.updates++
	return nil
}

func (s *Store) ReadAccountTypes(_ context.Context) ([]models.AccountType, error) {
	return read(s, "ReadAccountTypes", s.accountTypes)
}

func (s *Store) CreateAccountType(_ context.Context, t models.AccountType) error {
	return create(s, "CreateAccountType", s.accountTypes, t.ID, t)
}

func (s *Store) UpdateAccountType(_ context.Context, t models.AccountType) error {
	return update(s, "UpdateAccountType", s.accountTypes, t.ID, t)
}

func (s *Store) ReadAccounts(_ context.Context) ([]models.Account, error) {
	return read(s, "ReadAccounts", s.accounts)
}

func (s *Store) CreateAccount(_ context.Context, a models.Account) error {
	return create(s, "CreateAccount", s.accounts, a.ID, a)
}

func (s *Store) UpdateAccount(_ context.Context, a models.Account) error {
	return update(s, "UpdateAccount", s.accounts, a.ID, a)
}

func (s *Store) ReadPayees(_ context.Context) ([]models.Payee, error) {
	return read(s, "ReadPayees", s.payees)
}

func (s *Store) CreatePayee(_ context.Context, p models.Payee) error {
	return create(s, "CreatePayee", s.payees, p.ID, p)
}

func (s *Store) UpdatePayee(_ context.Context, p models.Payee) error {
	return update(s, "UpdatePayee", s.payees, p.ID, p)
}

func (s *Store) ReadEnvelopeGroups(_ context.Context) ([]models.EnvelopeGroup, error) {
	return read(s, "ReadEnvelopeGroups", s.envelopeGroups)
}

func (s *Store) CreateEnvelopeGroup(_ context.Context, g models.EnvelopeGroup) error {
	return create(s, "CreateEnvelopeGroup", s.envelopeGroups, g.ID, g)
}

func (s *Store) UpdateEnvelopeGroup(_ context.Context, g models.EnvelopeGroup) error {
	return update(s, "UpdateEnvelopeGroup", s.envelopeGroups, g.ID, g)
}

func (s *Store) ReadEnvelopes(_ context.Context) ([]models.Envelope, error) {
	return read(s, "ReadEnvelopes", s.envelopes)
}

func (s *Store) CreateEnvelope(_ context.Context, e models.Envelope) error {
	return create(s, "CreateEnvelope", s.envelopes, e.ID, e)
}

func (s *Store) UpdateEnvelope(_ context.Context, e models.Envelope) error {
	return update(s, "UpdateEnvelope", s.envelopes, e.ID, e)
}

func (s *Store) ReadBudgetPeriods(_ context.Context) ([]models.BudgetPeriod, error) {
	return read(s, "ReadBudgetPeriods", s.budgetPeriods)
}

func (s *Store) CreateBudgetPeriod(_ context.Context, p models.BudgetPeriod) error {
	return create(s, "CreateBudgetPeriod", s.budgetPeriods, p.ID, p)
}

func (s *Store) UpdateBudgetPeriod(_ context.Context, p models.BudgetPeriod) error {
	return update(s, "UpdateBudgetPeriod", s.budgetPeriods, p.ID, p)
}

func (s *Store) ReadBudgets(_ context.Context) ([]models.Budget, error) {
	return read(s, "ReadBudgets", s.budgets)
}

// CreateBudget keys the row by envelope and period.
func (s *Store) CreateBudget(_ context.Context, b models.Budget) error {
	return create(s, "CreateBudget", s.budgets, b.Key(), b)
}

// UpdateBudget replaces the row with the same envelope and period, ID included.
func (s *Store) UpdateBudget(_ context.Context, b models.Budget) error {
	return update(s, "UpdateBudget", s.budgets, b.Key(), b)
}

func (s *Store) ReadTransactions(_ context.Context) ([]models.Transaction, error) {
	return read(s, "ReadTransactions", s.transactions)
}

func (s *Store) CreateTransaction(_ context.Context, t models.Transaction) error {
	return create(s, "CreateTransaction", s.transactions, t.ID, t)
}

func (s *Store) UpdateTransaction(_ context.Context, t models.Transaction) error {
	return update(s, "UpdateTransaction", s.transactions, t.ID, t)
}
