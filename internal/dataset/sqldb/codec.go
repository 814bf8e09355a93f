package sqldb

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/atinyakov/BudgetKeeper/internal/models"
)

// stamp maps a time.Time field to a TEXT column holding RFC 3339 with
// nanoseconds in UTC. The zero time is stored as NULL.
type stamp struct{ t *time.Time }

func (s *stamp) Value() (driver.Value, error) {
	if s.t.IsZero() {
		return nil, nil
	}
	return encodeTime(*s.t)
}

func (s *stamp) Scan(src any) error {
	if src == nil {
		*s.t = time.Time{}
		return nil
	}
	t, err := decodeTime(src)
	if err != nil {
		return err
	}
	*s.t = t
	return nil
}

// optStamp maps an optional time to a TEXT column; nil is NULL.
type optStamp struct{ t **time.Time }

func (s *optStamp) Value() (driver.Value, error) {
	if *s.t == nil {
		return nil, nil
	}
	return encodeTime(**s.t)
}

func (s *optStamp) Scan(src any) error {
	if src == nil {
		*s.t = nil
		return nil
	}
	t, err := decodeTime(src)
	if err != nil {
		return err
	}
	*s.t = &t
	return nil
}

// encodeTime fails for years outside 0..9999 instead of writing a value
// that cannot be read back.
func encodeTime(t time.Time) (driver.Value, error) {
	b, err := t.UTC().MarshalText()
	if err != nil {
		return nil, fmt.Errorf("encode time %v: %w", t, err)
	}
	return string(b), nil
}

func decodeTime(src any) (time.Time, error) {
	var text string
	switch v := src.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	case time.Time:
		return v.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("decode time: unsupported column type %T", src)
	}
	t, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode time: %w", err)
	}
	return t.UTC(), nil
}

// auditColumns are appended to every table's column list.
var auditColumns = []string{"created_date_time", "modified_date_time", "deleted_date_time", "hidden_date_time"}

func auditArgs(a models.Audit) []any {
	return auditTargets(&a)
}

// auditTargets binds the audit columns to the fields of a, for both
// arguments and scan destinations.
func auditTargets(a *models.Audit) []any {
	return []any{
		&stamp{&a.CreatedDateTime},
		&stamp{&a.ModifiedDateTime},
		&optStamp{&a.DeletedDateTime},
		&optStamp{&a.HiddenDateTime},
	}
}
