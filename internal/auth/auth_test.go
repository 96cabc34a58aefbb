package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "secret", Issuer: "stepcause-test"}

func issue(t *testing.T, cfg Config, exp time.Time, scopes ...string) string {
	t.Helper()
	token, err := Issue(cfg, Claims{Subject: "user-1", Email: "u@example.com", Scopes: NewScopes(scopes...), ExpiresAt: exp})
	require.NoError(t, err)
	return token
}

func TestParseRoundTrip(t *testing.T) {
	token := issue(t, testConfig, time.Now().Add(time.Hour), ScopeStepsWrite, ScopeStepsRead)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "u@example.com", claims.Email)
	require.True(t, claims.HasScope(ScopeStepsWrite))
	require.False(t, claims.HasScope(ScopeCausesWrite))
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"expired":      issue(t, testConfig, time.Now().Add(-time.Hour)),
		"wrong secret": issue(t, Config{Secret: "other", Issuer: testConfig.Issuer}, time.Now().Add(time.Hour)),
		"wrong issuer": issue(t, Config{Secret: testConfig.Secret, Issuer: "someone-else"}, time.Now().Add(time.Hour)),
		"garbage":      "not-a-jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(token, testConfig)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err := Parse("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	handler := NewMiddleware(testConfig).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing token on protected route", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/steps", nil))
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("public route without token", func(t *testing.T) {
		seen = nil
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/causes/abc", nil))
		require.Equal(t, http.StatusNoContent, rr.Code)
		require.Nil(t, seen)
	})

	t.Run("valid token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/steps", nil)
		req.Header.Set("Authorization", "Bearer "+issue(t, testConfig, time.Now().Add(time.Hour), ScopeStepsWrite))
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusNoContent, rr.Code)
		require.NotNil(t, seen)
		require.Equal(t, "user-1", seen.Subject)
	})
}

func TestPublicRoutes(t *testing.T) {
	cases := []struct {
		method, path string
		public       bool
	}{
		{http.MethodGet, "/healthz", true},
		{http.MethodGet, "/v1/causes", true},
		{http.MethodPost, "/v1/causes", false},
		{http.MethodGet, "/v1/causes/most-active", true},
		{http.MethodGet, "/v1/causes/abc", true},
		{http.MethodGet, "/v1/causes/abc/supporters", false},
		{http.MethodDelete, "/v1/causes/abc", false},
		{http.MethodGet, "/v1/steps/history", false},
		{http.MethodGet, "/v1/messages/cause/abc", true},
		{http.MethodGet, "/v1/messages/cause/abc/top", true},
		{http.MethodGet, "/v1/messages/user/u1", true},
		{http.MethodPost, "/v1/messages", false},
		{http.MethodPost, "/v1/messages/m1/like", false},
		{http.MethodDelete, "/v1/messages/m1", false},
		{http.MethodGet, "/v1/users/profile", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.public, PublicRoutes(httptest.NewRequest(tc.method, tc.path, nil)), tc.method+" "+tc.path)
	}
}
