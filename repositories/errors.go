package repositories

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
)

// ErrorKind classifies every error leaving the store. Callers branch on the
// kind instead of probing driver errors.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindConflict
	KindTransient
	KindInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindInvalid:
		return "invalid"
	}
	return "internal"
}

var (
	ErrNotFound     = errors.New("record not found")
	ErrConflict     = errors.New("conditional write conflict")
	ErrTransient    = errors.New("transient store failure")
	ErrInvalidInput = errors.New("invalid store input")
)

// StoreError is the single error shape returned by repositories.
type StoreError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrConflict) and friends match on kind.
func (e *StoreError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrInvalidInput:
		return e.Kind == KindInvalid
	}
	return false
}

// KindOf returns the kind of a store error, KindInternal for anything else.
func KindOf(err error) ErrorKind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsTransient reports whether retrying the call later may succeed.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

func newStoreError(kind ErrorKind, op string, err error) error {
	return &StoreError{Kind: kind, Op: op, Err: err}
}

// decodeError maps driver errors to a StoreError once, at the repository boundary.
func decodeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return newStoreError(KindNotFound, op, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return newStoreError(KindTransient, op, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return newStoreError(KindTransient, op, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return newStoreError(kindForPQ(pqErr), op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return newStoreError(KindTransient, op, err)
	}

	return newStoreError(KindInternal, op, err)
}

func kindForPQ(pqErr *pq.Error) ErrorKind {
	switch pqErr.Code {
	case "23505":
		return KindConflict
	case "23503", "23514", "22P02", "23502":
		return KindInvalid
	case "40001", "40P01", "57014", "53300", "57P01":
		return KindTransient
	}
	if pqErr.Code.Class() == "08" {
		return KindTransient
	}
	return KindInternal
}
