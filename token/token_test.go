package token_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lsst-sqre/gafaelfawr/keyset"
	"github.com/lsst-sqre/gafaelfawr/token"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	keys, err := keyset.Generate("kid-1")
	require.NoError(t, err)

	issuer, err := token.NewIssuer(keys, "https://gafaelfawr.example.com", "https://example.com", time.Hour)
	require.NoError(t, err)

	now := time.Now().UTC()
	raw, claims, err := issuer.Issue(now, "alice", "alice@example.com", "Alice Example", "1000", []string{"g_users"}, []string{"read:all"}, nil)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Subject)

	verifier := token.NewVerifier("https://gafaelfawr.example.com", keys.PublicJWKS(), nil, nil, nil)
	got, err := verifier.Verify(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Subject)
	require.Equal(t, []string{"read:all"}, got.Scopes())
}

func TestVerifyRejectsUntrustedIssuer(t *testing.T) {
	keys, err := keyset.Generate("kid-1")
	require.NoError(t, err)
	issuer, err := token.NewIssuer(keys, "https://evil.example.com", "https://example.com", time.Hour)
	require.NoError(t, err)

	raw, _, err := issuer.Issue(time.Now().UTC(), "alice", "", "", "", nil, []string{"read:all"}, nil)
	require.NoError(t, err)

	verifier := token.NewVerifier("https://gafaelfawr.example.com", keys.PublicJWKS(), nil, nil, nil)
	_, err = verifier.Verify(context.Background(), raw)
	require.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	keys, err := keyset.Generate("kid-1")
	require.NoError(t, err)
	issuer, err := token.NewIssuer(keys, "https://gafaelfawr.example.com", "https://example.com", time.Hour)
	require.NoError(t, err)

	past := time.Now().UTC().Add(-2 * time.Hour)
	raw, _, err := issuer.Issue(past, "alice", "", "", "", nil, []string{"read:all"}, nil)
	require.NoError(t, err)

	verifier := token.NewVerifier("https://gafaelfawr.example.com", keys.PublicJWKS(), nil, nil, nil)
	_, err = verifier.Verify(context.Background(), raw)
	require.Error(t, err)
}

func TestVerifyRejectsUnacceptedAudience(t *testing.T) {
	keys, err := keyset.Generate("kid-1")
	require.NoError(t, err)
	issuer, err := token.NewIssuer(keys, "https://gafaelfawr.example.com", "https://other.example.com", time.Hour)
	require.NoError(t, err)

	raw, _, err := issuer.Issue(time.Now().UTC(), "alice", "", "", "", nil, []string{"read:all"}, nil)
	require.NoError(t, err)

	verifier := token.NewVerifier("https://gafaelfawr.example.com", keys.PublicJWKS(), nil, []string{"https://example.com"}, nil)
	_, err = verifier.Verify(context.Background(), raw)
	require.Error(t, err)
}

func TestVerifyRejectsMissingRequiredClaims(t *testing.T) {
	keys, err := keyset.Generate("kid-1")
	require.NoError(t, err)
	issuer, err := token.NewIssuer(keys, "https://gafaelfawr.example.com", "https://example.com", time.Hour)
	require.NoError(t, err)

	raw, _, err := issuer.Issue(time.Now().UTC(), "alice", "", "", "", nil, nil, nil)
	require.NoError(t, err)

	verifier := token.NewVerifier("https://gafaelfawr.example.com", keys.PublicJWKS(), nil, nil, nil)
	_, err = verifier.Verify(context.Background(), raw)
	require.Error(t, err)
}

func TestVerifyFetchesAndCachesUpstreamJWKS(t *testing.T) {
	upstreamKeys, err := keyset.Generate("upstream-kid")
	require.NoError(t, err)
	issuer, err := token.NewIssuer(upstreamKeys, "https://upstream.example.com", "", time.Hour)
	require.NoError(t, err)

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_ = json.NewEncoder(w).Encode(upstreamKeys.PublicJWKS())
	}))
	defer srv.Close()

	localKeys, err := keyset.Generate("local-kid")
	require.NoError(t, err)
	verifier := token.NewVerifier("https://gafaelfawr.example.com", localKeys.PublicJWKS(), []string{srv.URL}, nil, srv.Client())

	// Reissue with the server URL as the issuer so Verify fetches from srv.
	issuerAtURL, err := token.NewIssuer(upstreamKeys, srv.URL, "https://example.com", time.Hour)
	require.NoError(t, err)
	raw, _, err := issuerAtURL.Issue(time.Now().UTC(), "bob", "", "", "", nil, []string{"read:all"}, nil)
	require.NoError(t, err)
	_ = issuer // constructed above only to document the upstream-issuer shape

	for i := 0; i < 3; i++ {
		_, err := verifier.Verify(context.Background(), raw)
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&hits), "JWKS fetch should be cached across repeated verifications")
}
