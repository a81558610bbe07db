package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens("s3cret", "rover-ingest")

	raw, err := tokens.Issue("key-123", "pro", false, time.Hour)
	require.NoError(t, err)

	p, err := tokens.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, &Principal{Identity: "key-123", Tier: "pro"}, p)
}

func TestTokens_Rejects(t *testing.T) {
	tokens := NewTokens("s3cret", "rover-ingest")
	valid, err := tokens.Issue("key-123", "free", false, time.Hour)
	require.NoError(t, err)

	otherSecret, err := NewTokens("other", "rover-ingest").Issue("key-123", "free", false, time.Hour)
	require.NoError(t, err)
	otherIssuer, err := NewTokens("s3cret", "someone-else").Issue("key-123", "free", false, time.Hour)
	require.NoError(t, err)
	noSubject, err := tokens.Issue("", "free", false, time.Hour)
	require.NoError(t, err)

	expiring := NewTokens("s3cret", "rover-ingest")
	expiring.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiring.Issue("key-123", "free", false, time.Hour)
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"garbage":      "not-a-jwt",
		"wrong secret": otherSecret,
		"wrong issuer": otherIssuer,
		"no subject":   noSubject,
		"expired":      expired,
		"tampered":     valid + "x",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Validate(raw)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = NewTokens("", "").Validate(valid)
	require.ErrorIs(t, err, ErrSecretNotConfigured)
}

func TestMiddleware(t *testing.T) {
	tokens := NewTokens("s3cret", "")
	var seen *Principal
	h := Middleware(tokens, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	raw, err := tokens.Issue("key-1", "free", true, 0)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+raw)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "key-1", seen.Identity)
	assert.True(t, seen.Admin)
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "no principal")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), &Principal{Identity: "k"}))
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, "authenticated but not admin")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), &Principal{Identity: "k", Admin: true}))
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
