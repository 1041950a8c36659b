package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/bracket-automation/models"
)

var testSecret = []byte("test-secret")

func protected(roles ...models.UserRole) http.Handler {
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := GetPrincipalFromContext(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	})
	return Authenticate(testSecret, zerolog.Nop())(RequireRole(roles...)(final))
}

func TestAuthenticate_AcceptsValidToken(t *testing.T) {
	token, err := IssueToken(testSecret, models.Principal{UserID: 42, Role: models.RoleOrganizer}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected(models.RoleAdmin, models.RoleOrganizer).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var p models.Principal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, models.Principal{UserID: 42, Role: models.RoleOrganizer}, p)
}

func TestAuthenticate_TokenFromQueryForWebsocket(t *testing.T) {
	token, err := IssueToken(testSecret, models.Principal{UserID: 7, Role: models.RolePlayer}, 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	protected(models.RolePlayer).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticate_Rejects(t *testing.T) {
	expired, err := IssueToken(testSecret, models.Principal{UserID: 1, Role: models.RoleAdmin}, -time.Minute)
	require.NoError(t, err)
	foreign, err := IssueToken([]byte("other"), models.Principal{UserID: 1, Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": 1, "role": "admin"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"no header":     "",
		"wrong scheme":  "Basic abc",
		"expired":       "Bearer " + expired,
		"wrong secret":  "Bearer " + foreign,
		"unsigned":      "Bearer " + none,
		"garbage token": "Bearer not.a.token",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			protected(models.RoleAdmin).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireRole_ForbidsOtherRoles(t *testing.T) {
	token, err := IssueToken(testSecret, models.Principal{UserID: 3, Role: models.RolePlayer}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected(models.RoleAdmin, models.RoleOrganizer).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIssueToken_RejectsUnknownRole(t *testing.T) {
	_, err := IssueToken(testSecret, models.Principal{UserID: 1, Role: "root"}, time.Hour)
	assert.Error(t, err)
}
