package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/bracket-automation/services"
)

func TestMapServiceErrorToHTTP(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("load: %w", services.ErrTournamentNotFound), http.StatusNotFound},
		{services.ErrMatchNotFound, http.StatusNotFound},
		{&services.AdvancementConflictError{TournamentID: 1}, http.StatusConflict},
		{&services.RepairExhaustedError{TournamentID: 1, Passes: 3}, http.StatusConflict},
		{services.ErrMatchAlreadyCompleted, http.StatusConflict},
		{fmt.Errorf("%w: name is required", services.ErrValidationFailed), http.StatusBadRequest},
		{services.ErrInvalidSeeds, http.StatusUnprocessableEntity},
		{&services.InvalidStateError{MatchID: 3}, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: pq: too many connections", services.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{services.ErrMonitorStopped, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			mapServiceErrorToHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestMapServiceErrorToHTTP_TransientSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	mapServiceErrorToHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil), services.ErrStoreUnavailable)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.NotContains(t, rec.Body.String(), "pq:")
}

func TestGetIDFromURL(t *testing.T) {
	read := func(raw string) (int, error) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("tournamentID", raw)
		r = r.WithContext(contextWithRoute(r, rctx))
		return getIDFromURL(r, "tournamentID")
	}

	id, err := read("12")
	require.NoError(t, err)
	assert.Equal(t, 12, id)

	for _, bad := range []string{"", "x1", "0", "-4"} {
		_, err := read(bad)
		assert.Error(t, err, bad)
	}
}

func TestReadJSON(t *testing.T) {
	var dst struct {
		Seeds []int `json:"seeds"`
	}
	decode := func(body string) error {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		return readJSON(httptest.NewRecorder(), r, &dst)
	}

	require.NoError(t, decode(`{"seeds":[1,2]}`))
	assert.Equal(t, []int{1, 2}, dst.Seeds)
	assert.ErrorContains(t, decode(``), "must not be empty")
	assert.ErrorContains(t, decode(`{"seeds":"x"}`), "incorrect JSON type")
	assert.ErrorContains(t, decode(`{"players":[]}`), "unknown key")
	assert.ErrorContains(t, decode(`{"seeds":[1]}{}`), "single JSON value")
	assert.ErrorContains(t, decode(`{"seeds":[1,}`), "badly-formed")
}

func contextWithRoute(r *http.Request, rctx *chi.Context) context.Context {
	return context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
}
