package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "directory-test"}

func TestIssueAndParseRoundTrip(t *testing.T) {
	token, expires, err := Issue(testConfig, "svc", DefaultScopes, time.Hour, time.Now())
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "svc", claims.Subject)
	require.True(t, claims.HasScope(ScopeDirectoryRead))
	require.True(t, claims.HasScope(ScopeDirectoryWrite))
	require.Equal(t, []string{ScopeDirectoryRead, ScopeDirectoryWrite}, claims.ScopeList())
}

func TestParseRejectsBadTokens(t *testing.T) {
	expired, _, err := Issue(testConfig, "svc", nil, -time.Minute, time.Now())
	require.NoError(t, err)

	otherIssuer, _, err := Issue(Config{Secret: testConfig.Secret, Issuer: "someone-else"}, "svc", nil, time.Hour, time.Now())
	require.NoError(t, err)

	otherSecret, _, err := Issue(Config{Secret: "nope", Issuer: testConfig.Issuer}, "svc", nil, time.Hour, time.Now())
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "svc",
		"iss": testConfig.Issuer,
	}).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":   expired,
		"issuer":    otherIssuer,
		"secret":    otherSecret,
		"no expiry": noExpiry,
		"garbage":   "a.b.c",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(token, testConfig)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = Parse("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestIssueRequiresSubjectAndSecret(t *testing.T) {
	_, _, err := Issue(testConfig, " ", nil, time.Hour, time.Now())
	require.Error(t, err)
	_, _, err = Issue(Config{}, "svc", nil, time.Hour, time.Now())
	require.Error(t, err)
}

func TestNormalizeScopes(t *testing.T) {
	require.Len(t, normalizeScopes([]interface{}{"a", "", 3, "b"}), 2)
	require.Len(t, normalizeScopes("a  b a"), 2)
	require.Empty(t, normalizeScopes(nil))

	var nilClaims *Claims
	require.False(t, nilClaims.HasScope("a"))
	require.False(t, nilClaims.HasAnyScope("a", "b"))
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(testConfig).Wrap(next)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/organizations", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "unauthorized")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Nil(t, seen)

	token, _, err := Issue(testConfig, "svc", []string{ScopeDirectoryRead}, time.Hour, time.Now())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, seen)
	require.Equal(t, "svc", seen.Subject)
	require.False(t, seen.HasScope(ScopeDirectoryWrite))
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, BearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	require.Empty(t, BearerToken(req))

	req.Header.Set("Authorization", "Bearer  abc ")
	require.Equal(t, "abc", BearerToken(req))

	require.False(t, errors.Is(ErrMissingToken, ErrInvalidToken))
}
