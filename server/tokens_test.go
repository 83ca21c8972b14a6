package server_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lsst-sqre/gafaelfawr/keyset"
	"github.com/lsst-sqre/gafaelfawr/provider"
	"github.com/lsst-sqre/gafaelfawr/server"
	"github.com/lsst-sqre/gafaelfawr/storage"
	"github.com/lsst-sqre/gafaelfawr/storage/memory"
	"github.com/lsst-sqre/gafaelfawr/token"
)

// loggedInSession builds a server plus a browser session cookie for a user
// already holding read:all, the precondition every /auth/tokens test needs.
func loggedInSession(t *testing.T) (*server.Server, *http.Cookie) {
	t.Helper()
	keys, err := keyset.Generate("kid-1")
	require.NoError(t, err)
	issuer, err := token.NewIssuer(keys, testIssuer, "https://example.com", time.Hour)
	require.NoError(t, err)
	verifier := token.NewVerifier(testIssuer, keys.PublicJWKS(), nil, nil, nil)
	store := storage.NewStore(memory.New())

	cfg := server.Config{
		Issuer:          testIssuer,
		DefaultAudience: "https://example.com",
		KnownScopes:     []string{"read:all", "exec:admin"},
		SessionSecret:   [32]byte{4, 4, 4},
	}
	s := server.New(cfg, keys, store, issuer, verifier, map[string]provider.Provider{})

	p := fakeProvider{identity: provider.Identity{Username: "alice", UID: "1000", Name: "Alice", Email: "alice@example.com", Groups: []string{"g_users"}}}
	sWithProvider := server.New(server.Config{
		Issuer: testIssuer, DefaultAudience: "https://example.com", SessionSecret: cfg.SessionSecret,
		AllowedHosts: []string{"example.com"}, GroupMapping: map[string][]string{"g_users": {"read:all"}},
	}, keys, store, issuer, verifier, map[string]provider.Provider{"fake": p})

	start := httptest.NewRequest(http.MethodGet, "/login?rd=https://example.com/", nil)
	startRec := httptest.NewRecorder()
	sWithProvider.Handler().ServeHTTP(startRec, start)
	loc := startRec.Header().Get("Location")
	state := loc[len(loc)-22:]

	callback := httptest.NewRequest(http.MethodGet, "/login?code=abc&state="+state, nil)
	callbackRec := httptest.NewRecorder()
	sWithProvider.Handler().ServeHTTP(callbackRec, callback)
	cookies := callbackRec.Result().Cookies()
	require.Len(t, cookies, 1)

	return s, cookies[0]
}

func TestTokensListRequiresSession(t *testing.T) {
	s, _ := loggedInSession(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/tokens", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenNewRequiresCSRF(t *testing.T) {
	s, cookie := loggedInSession(t)

	form := url.Values{"scope": {"read:all"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/tokens/new", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
