package storage

import (
	"errors"
	"fmt"
)

// ErrCorrupt marks errors caused by a damaged database. Background tasks stop on it.
var ErrCorrupt = errors.New("store corrupted")

// StoreError wraps a failed store operation. The write it belonged to was rolled back.
type StoreError struct {
	Op      string
	Err     error
	Corrupt bool
}

func (e *StoreError) Error() string {
	if e.Corrupt {
		return fmt.Sprintf("store %s: corrupted: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool {
	return target == ErrCorrupt && e.Corrupt
}

func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}
