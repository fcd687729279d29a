// Package errors defines the typed error taxonomy surfaced to API callers.
// Every guard violation carries a stable code so the UI can tell retry-safe
// failures from terminal ones instead of guessing from a 500.
package errors

import "fmt"

// DomainError is an error with a stable, machine-readable code.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// WithDetail returns a copy of the error with extra context appended to the
// message. The code is preserved so callers can still match on it.
func (e *DomainError) WithDetail(format string, args ...interface{}) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message + ": " + fmt.Sprintf(format, args...),
	}
}

// Is lets errors.Is match any DomainError against its template by code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}
