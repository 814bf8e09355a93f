package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Well-known envelope group IDs for the pseudo-groups every dataset carries.
var (
	SystemGroupID = uuid.MustParse("c1a0f3e4-2b7d-4e55-8f61-0d9a7b3c4e10")
	IncomeGroupID = uuid.MustParse("c1a0f3e4-2b7d-4e55-8f61-0d9a7b3c4e11")
	DebtGroupID   = uuid.MustParse("c1a0f3e4-2b7d-4e55-8f61-0d9a7b3c4e12")
)

// EnvelopeGroup is a budget category group.
type EnvelopeGroup struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Notes       string    `json:"notes"`
	Audit
}

// IsSystem reports whether g is one of the pseudo-groups.
func (g EnvelopeGroup) IsSystem() bool {
	return g.ID == SystemGroupID || g.ID == IncomeGroupID || g.ID == DebtGroupID
}

// Envelope is a budget category.
type Envelope struct {
	ID              uuid.UUID `json:"id"`
	Description     string    `json:"description"`
	Notes           string    `json:"notes"`
	GroupID         uuid.UUID `json:"group_id"`
	IgnoreOverspend bool      `json:"ignore_overspend"`
	Audit
}

// BudgetPeriod is the date range a set of budgets applies to.
type BudgetPeriod struct {
	ID        uuid.UUID `json:"id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Audit
}

// Contains reports whether t falls inside the period, start inclusive and end exclusive.
func (p BudgetPeriod) Contains(t time.Time) bool {
	return !t.Before(p.StartDate) && t.Before(p.EndDate)
}

// BudgetKey is the identity of a Budget: one budget per envelope and period.
type BudgetKey struct {
	EnvelopeID     uuid.UUID
	BudgetPeriodID uuid.UUID
}

// Budget is the amount assigned to one envelope for one period.
// Its identity across devices is Key(), not ID.
type Budget struct {
	ID              uuid.UUID       `json:"id"`
	EnvelopeID      uuid.UUID       `json:"envelope_id"`
	BudgetPeriodID  uuid.UUID       `json:"budget_period_id"`
	Amount          decimal.Decimal `json:"amount"`
	IgnoreOverspend bool            `json:"ignore_overspend"`
	Audit
}

// Key returns the composite identity of b.
func (b Budget) Key() BudgetKey {
	return BudgetKey{EnvelopeID: b.EnvelopeID, BudgetPeriodID: b.BudgetPeriodID}
}
