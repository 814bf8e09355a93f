package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction moves money between an account and a payee, charged to an envelope.
type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Posted      bool            `json:"posted"`
	Reconciled  bool            `json:"reconciled"`
	ServiceDate time.Time       `json:"service_date"`
	AccountID   uuid.UUID       `json:"account_id"`
	PayeeID     uuid.UUID       `json:"payee_id"`
	EnvelopeID  uuid.UUID       `json:"envelope_id"`
	// SplitID groups the parts of one split transaction.
	SplitID uuid.NullUUID `json:"split_id"`
	Notes   string        `json:"notes"`
	Audit
}

// IsSplit reports whether t is part of a split.
func (t Transaction) IsSplit() bool { return t.SplitID.Valid }

// Outflow reports whether t takes money out of its account.
func (t Transaction) Outflow() bool { return t.Amount.IsNegative() }
