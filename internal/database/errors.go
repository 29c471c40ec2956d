package database

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by table operations. Both are recoverable: the
// caller chose a bad id or an id that is already taken.
var (
	ErrNotFound    = errors.New("row not found")
	ErrDuplicateID = errors.New("duplicate id")
)

// IntegrityError indicates a broken persistence invariant (row index
// collision, conversion mismatch). It is fatal: the operation must abort
// rather than continue on corrupt state.
type IntegrityError struct {
	Table  string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation in %s: %s", e.Table, e.Detail)
}

// IsIntegrityError reports whether err is (or wraps) an IntegrityError.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
