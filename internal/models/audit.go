package models

import "time"

// Audit holds the bookkeeping timestamps shared by every entity.
type Audit struct {
	// CreatedDateTime is when the record was first created on any device.
	CreatedDateTime time.Time `json:"created_date_time"`
	// ModifiedDateTime is bumped on every edit. It is the only conflict clock.
	ModifiedDateTime time.Time `json:"modified_date_time"`
	// DeletedDateTime marks a tombstone. Deleted records are never purged.
	DeletedDateTime *time.Time `json:"deleted_date_time,omitempty"`
	// HiddenDateTime marks a record hidden from day-to-day views.
	HiddenDateTime *time.Time `json:"hidden_date_time,omitempty"`
}

// IsDeleted reports whether the record carries a tombstone.
func (a Audit) IsDeleted() bool { return a.DeletedDateTime != nil }

// IsHidden reports whether the record is hidden.
func (a Audit) IsHidden() bool { return a.HiddenDateTime != nil }

// Modified returns ModifiedDateTime.
func (a Audit) Modified() time.Time { return a.ModifiedDateTime }

// NewAudit returns an Audit stamped with now for both creation and modification.
func NewAudit(now time.Time) Audit {
	now = now.UTC()
	return Audit{CreatedDateTime: now, ModifiedDateTime: now}
}

// Touch bumps ModifiedDateTime to now, never moving it backwards.
func (a *Audit) Touch(now time.Time) {
	now = now.UTC()
	if now.After(a.ModifiedDateTime) {
		a.ModifiedDateTime = now
	}
}

// MarkDeleted sets the tombstone and bumps the modification clock.
func (a *Audit) MarkDeleted(now time.Time) {
	t := now.UTC()
	a.DeletedDateTime = &t
	a.Touch(now)
}

// MarkHidden hides the record and bumps the modification clock.
func (a *Audit) MarkHidden(now time.Time) {
	t := now.UTC()
	a.HiddenDateTime = &t
	a.Touch(now)
}
