package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func actorEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(actorFromContext(r.Context())))
	})
}

func serveWithAuth(secret string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	actorMiddleware(secret, "X-Actor-ID")(actorEcho()).ServeHTTP(rec, req)
	return rec
}

func TestActorMiddleware_HeaderFallback(t *testing.T) {
	rec := serveWithAuth("", map[string]string{"X-Actor-ID": " editor-7 "})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "editor-7", rec.Body.String())

	rec = serveWithAuth("", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestActorMiddleware_BearerToken(t *testing.T) {
	valid := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
		Subject:   "editor-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	rec := serveWithAuth(testSecret, map[string]string{"Authorization": "Bearer " + valid})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "editor-1", rec.Body.String())

	// the header is ignored once tokens are required
	rec = serveWithAuth(testSecret, map[string]string{"X-Actor-ID": "spoofed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestActorMiddleware_RejectsBadTokens(t *testing.T) {
	expired := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
		Subject:   "editor-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	wrongKey := signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.RegisteredClaims{
		Subject:   "editor-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	noSubject := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	noExpiry := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{Subject: "editor-1"})

	for name, header := range map[string]string{
		"expired":    "Bearer " + expired,
		"wrong key":  "Bearer " + wrongKey,
		"no subject": "Bearer " + noSubject,
		"no expiry":  "Bearer " + noExpiry,
		"not bearer": "Basic abc",
	} {
		t.Run(name, func(t *testing.T) {
			rec := serveWithAuth(testSecret, map[string]string{"Authorization": header})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
