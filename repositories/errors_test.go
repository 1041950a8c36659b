package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestDecodeError_Kinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"no rows", sql.ErrNoRows, KindNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", sql.ErrNoRows), KindNotFound},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"unique violation", &pq.Error{Code: "23505"}, KindConflict},
		{"foreign key", &pq.Error{Code: "23503"}, KindInvalid},
		{"serialization", &pq.Error{Code: "40001"}, KindTransient},
		{"connection class", &pq.Error{Code: "08006"}, KindTransient},
		{"syntax error", &pq.Error{Code: "42601"}, KindInternal},
		{"plain error", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decodeError("op", tt.err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestDecodeError_NilAndIdempotent(t *testing.T) {
	assert.NoError(t, decodeError("op", nil))

	first := decodeError("inner", sql.ErrNoRows)
	second := decodeError("outer", first)
	assert.Same(t, first, second)
}

func TestStoreError_IsSentinels(t *testing.T) {
	err := fmt.Errorf("advance: %w", newStoreError(KindConflict, "fill slot", nil))

	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.False(t, IsTransient(err))
	assert.True(t, IsTransient(newStoreError(KindTransient, "op", nil)))
}
