package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lsst-sqre/gafaelfawr/handle"
	"github.com/lsst-sqre/gafaelfawr/keyset"
	"github.com/lsst-sqre/gafaelfawr/provider"
	"github.com/lsst-sqre/gafaelfawr/server"
	"github.com/lsst-sqre/gafaelfawr/storage"
	"github.com/lsst-sqre/gafaelfawr/storage/memory"
	"github.com/lsst-sqre/gafaelfawr/token"
)

const testIssuer = "https://gafaelfawr.example.com"

func newTestServer(t *testing.T) (*server.Server, *keyset.Keys, *token.Issuer) {
	t.Helper()
	keys, err := keyset.Generate("kid-1")
	require.NoError(t, err)

	issuer, err := token.NewIssuer(keys, testIssuer, "https://example.com", time.Hour)
	require.NoError(t, err)
	verifier := token.NewVerifier(testIssuer, keys.PublicJWKS(), nil, nil, nil)

	store := storage.NewStore(memory.New())
	cfg := server.Config{
		Issuer:           testIssuer,
		DefaultAudience:  "https://example.com",
		InternalAudience: "https://internal.example.com",
		KnownScopes:      []string{"read:all", "exec:admin"},
		Realm:            "gafaelfawr",
		SetUserHeaders:   true,
		SessionSecret:    [32]byte{1, 2, 3, 4},
	}
	s := server.New(cfg, keys, store, issuer, verifier, map[string]provider.Provider{})
	return s, keys, issuer
}

func TestAuthNoCredential(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/auth?scope=read:all", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestAuthAuthorizedWithScope(t *testing.T) {
	s, _, issuer := newTestServer(t)
	raw, _, err := issuer.Issue(time.Now().UTC(), "alice", "alice@example.com", "Alice", "1000",
		[]string{"g_users"}, []string{"read:all"}, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth?scope=read:all", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alice", rec.Header().Get("X-Auth-Request-User"))
	require.Equal(t, "alice@example.com", rec.Header().Get("X-Auth-Request-Email"))
	require.Equal(t, "read:all", rec.Header().Get("X-Auth-Request-Scopes-Accepted"))
}

func TestAuthForbiddenMissingScope(t *testing.T) {
	s, _, issuer := newTestServer(t)
	raw, _, err := issuer.Issue(time.Now().UTC(), "alice", "", "", "", nil, []string{"read:all"}, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth?scope=exec:admin", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "read:all", rec.Header().Get("X-Auth-Request-Token-Scopes"))
	require.Equal(t, "exec:admin", rec.Header().Get("X-Auth-Request-Scopes-Accepted"))
}

func TestAuthSatisfyAnyAcceptsEitherScope(t *testing.T) {
	s, _, issuer := newTestServer(t)
	raw, _, err := issuer.Issue(time.Now().UTC(), "alice", "", "", "", nil, []string{"exec:admin"}, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth?scope=read:all&scope=exec:admin&satisfy=any", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "exec:admin read:all", rec.Header().Get("X-Auth-Request-Scopes-Accepted"))
	require.Equal(t, "any", rec.Header().Get("X-Auth-Request-Scopes-Satisfy"))
}

func TestAuthInternalAudienceReissue(t *testing.T) {
	s, keys, issuer := newTestServer(t)
	raw, priorClaims, err := issuer.Issue(time.Now().UTC(), "alice", "", "", "", nil, []string{"read:all"}, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth?scope=read:all&audience=https://internal.example.com", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	reissued := rec.Header().Get("X-Auth-Request-Token")
	require.NotEmpty(t, reissued)
	require.NotEqual(t, raw, reissued)

	verifier := token.NewVerifier(testIssuer, keys.PublicJWKS(), nil, nil, nil)
	claims, err := verifier.Verify(context.Background(), reissued)
	require.NoError(t, err)
	require.Equal(t, "https://internal.example.com", claims.Audience)
	require.NotNil(t, claims.Act)
	require.Equal(t, testIssuer, claims.Act.Issuer)
	require.Equal(t, "https://example.com", claims.Act.Audience)
	require.Equal(t, priorClaims.JTI, claims.Act.JTI)
}

// TestAuthIngressExchange covers §8 scenario 5: a bearer token from an
// untrusted-by-default external issuer, combined with a legacy ticket
// cookie, is reissued under this deployment's own issuer with jti equal
// to the ticket's key and act recording the prior token's iss/aud/jti.
func TestAuthIngressExchange(t *testing.T) {
	origKeys, err := keyset.Generate("orig-kid")
	require.NoError(t, err)

	jwksSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(origKeys.PublicJWKS())
	}))
	defer jwksSrv.Close()
	origIssuer := jwksSrv.URL

	origTokenIssuer, err := token.NewIssuer(origKeys, origIssuer, "https://orig.example.com/aud", time.Hour)
	require.NoError(t, err)
	raw, priorClaims, err := origTokenIssuer.Issue(time.Now().UTC(), "alice", "", "", "", nil, []string{"read:all"}, nil)
	require.NoError(t, err)

	keys, err := keyset.Generate("kid-1")
	require.NoError(t, err)
	issuer, err := token.NewIssuer(keys, testIssuer, "https://example.com", time.Hour)
	require.NoError(t, err)
	verifier := token.NewVerifier(testIssuer, keys.PublicJWKS(), []string{origIssuer}, nil, http.DefaultClient)
	store := storage.NewStore(memory.New())

	cfg := server.Config{
		Issuer:          testIssuer,
		DefaultAudience: "https://example.com",
		KnownScopes:     []string{"read:all"},
		SetUserHeaders:  true,
		SessionSecret:   [32]byte{5, 5, 5},
	}
	s := server.New(cfg, keys, store, issuer, verifier, map[string]provider.Provider{})

	h, err := handle.New()
	require.NoError(t, err)
	ticket := handle.Ticket{Handle: h, Prefix: "oauth2_proxy"}

	req := httptest.NewRequest(http.MethodGet, "/auth?scope=read:all&reissue_token=true", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	req.AddCookie(&http.Cookie{Name: "oauth2_proxy", Value: ticket.Encode()})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	reissued := rec.Header().Get("X-Auth-Request-Token")
	require.NotEmpty(t, reissued)

	localVerifier := token.NewVerifier(testIssuer, keys.PublicJWKS(), nil, nil, nil)
	claims, err := localVerifier.Verify(context.Background(), reissued)
	require.NoError(t, err)
	require.Equal(t, testIssuer, claims.Issuer)
	require.Equal(t, h.Key, claims.JTI)
	require.NotNil(t, claims.Act)
	require.Equal(t, origIssuer, claims.Act.Issuer)
	require.Equal(t, "https://orig.example.com/aud", claims.Act.Audience)
	require.Equal(t, priorClaims.JTI, claims.Act.JTI)
}
