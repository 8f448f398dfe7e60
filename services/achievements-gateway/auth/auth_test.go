package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	opts := Options{Secret: "test-secret", Issuer: "girochain-test"}
	mw, err := NewMiddleware(opts)
	require.NoError(t, err)

	token, err := IssueToken(opts, "Giro1Wallet", time.Minute)
	require.NoError(t, err)

	var seenWallet string
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet, ok := WalletFromContext(r.Context())
		require.True(t, ok)
		seenWallet = wallet
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "giro1wallet", seenWallet)
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	opts := Options{Secret: "test-secret", Issuer: "girochain-test"}
	mw, err := NewMiddleware(opts)
	require.NoError(t, err)

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"garbage token":  "Bearer not-a-jwt",
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		require.Equal(t, http.StatusUnauthorized, recorder.Code, name)
	}

	// Token signed with a different secret.
	other, err := IssueToken(Options{Secret: "other-secret"}, "giro1wallet", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	opts := Options{Secret: "test-secret"}
	mw, err := NewMiddleware(opts)
	require.NoError(t, err)

	token, err := IssueToken(opts, "giro1wallet", -2*time.Minute)
	require.NoError(t, err)

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}
