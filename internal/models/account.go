package models

import "github.com/google/uuid"

// AccountType classifies accounts (checking, savings, credit card...).
type AccountType struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Audit
}

// Account is a place money lives.
type Account struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Notes       string    `json:"notes"`
	// TypeID references an AccountType.
	TypeID uuid.UUID `json:"type_id"`
	// OnBudget separates budget accounts from reporting-only (tracking) accounts.
	OnBudget bool `json:"on_budget"`
	Audit
}

// Payee is the other side of a transaction.
type Payee struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Notes       string    `json:"notes"`
	Audit
}

// Well-known payee IDs shared by every installation.
var (
	// StartingBalancePayeeID is the synthetic payee of opening-balance transactions.
	StartingBalancePayeeID = uuid.MustParse("a0e5d6b2-6f0c-4c3e-9b51-1c0f6a9d2e01")
)

// IsStartingBalance reports whether p is the synthetic starting-balance payee.
func (p Payee) IsStartingBalance() bool { return p.ID == StartingBalancePayeeID }

// IsAccountTransfer reports whether p stands for a transfer into an account.
// Transfer payees reuse the ID of the account they point at.
func (p Payee) IsAccountTransfer(accounts []Account) bool {
	for _, a := range accounts {
		if a.ID == p.ID {
			return true
		}
	}
	return false
}
