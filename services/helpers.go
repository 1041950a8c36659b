package services

import (
	"errors"
	"fmt"

	"github.com/Dosada05/bracket-automation/repositories"
)

// Notifier pushes a message to every client in a room. *brackets.Hub satisfies it.
type Notifier interface {
	BroadcastToRoom(roomID string, message interface{})
}

type nopNotifier struct{}

func (nopNotifier) BroadcastToRoom(string, interface{}) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// mapStoreError decodes a store error into the service vocabulary.
// notFound is the sentinel to use when the record is missing.
func mapStoreError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	switch repositories.KindOf(err) {
	case repositories.KindNotFound:
		return fmt.Errorf("%w: %w", notFound, err)
	case repositories.KindTransient:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	case repositories.KindInvalid:
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	return err
}

// isRetryable reports whether a later attempt may succeed without operator action.
func isRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || repositories.IsTransient(err)
}

func detail(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
