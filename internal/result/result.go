// Package result carries the outcome of a public sync operation.
package result

import "errors"

// Result is returned by every entry point instead of an error. Message is
// meant for people; Err keeps the cause for errors.Is and logging.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Err     error  `json:"-"`
}

// OK returns a successful result.
func OK() Result { return Result{Success: true} }

// Fail returns a failed result with msg.
func Fail(msg string) Result {
	return Result{Message: msg, Err: errors.New(msg)}
}

// FromError returns a failed result for err, prefixing msg when given.
// A nil err yields OK.
func FromError(msg string, err error) Result {
	if err == nil {
		return OK()
	}
	if msg == "" {
		return Result{Message: err.Error(), Err: err}
	}
	return Result{Message: msg + ": " + err.Error(), Err: err}
}

// Error returns the failure cause, or nil on success.
func (r Result) Error() error {
	if r.Success {
		return nil
	}
	if r.Err == nil {
		return errors.New(r.Message)
	}
	return r.Err
}
