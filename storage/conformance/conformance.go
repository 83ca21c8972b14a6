// Package conformance provides a shared test suite that any storage.Backend
// implementation must pass, exercised through storage.Store so the suite
// covers the encryption and indexing semantics too. Generalized from dex's
// storage/conformance package, which runs the same table of subTests against
// every storage.Storage backend (redis, memory, ...); here the table runs
// against storage.Store instead, since that is the interface gafaelfawr's
// server code actually calls.
package conformance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lsst-sqre/gafaelfawr/handle"
	"github.com/lsst-sqre/gafaelfawr/storage"
)

type subTest struct {
	name string
	run  func(t *testing.T, s storage.Store)
}

func runTests(t *testing.T, newBackend func() storage.Backend, tests []subTest) {
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := storage.NewStore(newBackend())
			test.run(t, s)
			require.NoError(t, s.Close())
		})
	}
}

// RunTests runs the full conformance suite against a fresh Backend returned
// by newBackend for every subTest, so that bugs in one test can't leak
// state into another.
func RunTests(t *testing.T, newBackend func() storage.Backend) {
	runTests(t, newBackend, []subTest{
		{"SessionRoundTrip", testSessionRoundTrip},
		{"SessionNotFoundUnknownHandle", testSessionNotFoundUnknownHandle},
		{"SessionNotFoundWrongSecret", testSessionNotFoundWrongSecret},
		{"SessionExpiredIsNoOp", testSessionExpiredIsNoOp},
		{"DeleteSession", testDeleteSession},
		{"AnalyzeSession", testAnalyzeSession},
		{"UserTokenIndex", testUserTokenIndex},
		{"RevokeUserToken", testRevokeUserToken},
		{"ExpireUserTokens", testExpireUserTokens},
		{"StoreSessionAndIndex", testStoreSessionAndIndex},
		{"LoginState", testLoginState},
	})
}

var farFuture = time.Now().UTC().Add(24 * time.Hour)

func mustHandle(t *testing.T) storage.Handle {
	t.Helper()
	h, err := handle.New()
	require.NoError(t, err)
	return storageHandle(h)
}

func storageHandle(h handle.Handle) storage.Handle {
	return storage.Handle{Key: h.Key, Secret: h.Secret}
}

func testSessionRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	h := mustHandle(t)
	now := time.Now().UTC()
	session := storage.Session{Token: "tok", Email: "user@example.com", CreatedAt: now, ExpiresOn: farFuture}

	require.NoError(t, s.StoreSession(ctx, h, session, now))

	got, err := s.GetSession(ctx, h)
	require.NoError(t, err)
	require.Equal(t, session.Token, got.Token)
	require.Equal(t, session.Email, got.Email)
}

func testSessionNotFoundUnknownHandle(t *testing.T, s storage.Store) {
	ctx := context.Background()
	h := mustHandle(t)
	_, err := s.GetSession(ctx, h)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testSessionNotFoundWrongSecret(t *testing.T, s storage.Store) {
	ctx := context.Background()
	h := mustHandle(t)
	now := time.Now().UTC()
	require.NoError(t, s.StoreSession(ctx, h, storage.Session{ExpiresOn: farFuture}, now))

	wrong := mustHandle(t)
	wrong.Key = h.Key
	_, err := s.GetSession(ctx, wrong)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testSessionExpiredIsNoOp(t *testing.T, s storage.Store) {
	ctx := context.Background()
	h := mustHandle(t)
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	require.NoError(t, s.StoreSession(ctx, h, storage.Session{ExpiresOn: past}, now))

	_, err := s.GetSession(ctx, h)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testDeleteSession(t *testing.T, s storage.Store) {
	ctx := context.Background()
	h := mustHandle(t)
	now := time.Now().UTC()
	require.NoError(t, s.StoreSession(ctx, h, storage.Session{ExpiresOn: farFuture}, now))

	ok, err := s.DeleteSession(ctx, h)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.DeleteSession(ctx, h)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.GetSession(ctx, h)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testAnalyzeSession(t *testing.T, s storage.Store) {
	ctx := context.Background()
	h := mustHandle(t)
	now := time.Now().UTC()

	a, err := s.AnalyzeSession(ctx, h)
	require.NoError(t, err)
	require.False(t, a.Valid)

	require.NoError(t, s.StoreSession(ctx, h, storage.Session{Email: "user@example.com", ExpiresOn: farFuture}, now))

	a, err = s.AnalyzeSession(ctx, h)
	require.NoError(t, err)
	require.True(t, a.Valid)
	require.Equal(t, "user@example.com", a.Session.Email)
}

func testUserTokenIndex(t *testing.T, s storage.Store) {
	ctx := context.Background()
	entry := storage.TokenEntry{HandleKey: "k1", Scopes: []string{"read:all"}, Expires: farFuture}

	require.NoError(t, s.AddUserToken(ctx, "user", entry))

	entries, err := s.GetUserTokens(ctx, "user")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, entry.HandleKey, entries[0].HandleKey)
}

func testRevokeUserToken(t *testing.T, s storage.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	h := mustHandle(t)
	entry := storage.TokenEntry{HandleKey: h.Key, Expires: farFuture}

	require.NoError(t, s.StoreSession(ctx, h, storage.Session{ExpiresOn: farFuture}, now))
	require.NoError(t, s.AddUserToken(ctx, "user", entry))

	ok, err := s.RevokeUserToken(ctx, "user", h.Key)
	require.NoError(t, err)
	require.True(t, ok)

	entries, err := s.GetUserTokens(ctx, "user")
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = s.GetSession(ctx, h)
	require.ErrorIs(t, err, storage.ErrNotFound)

	ok, err = s.RevokeUserToken(ctx, "user", h.Key)
	require.NoError(t, err)
	require.False(t, ok)
}

func testExpireUserTokens(t *testing.T, s storage.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	live := mustHandle(t)
	dead := mustHandle(t)

	require.NoError(t, s.StoreSession(ctx, live, storage.Session{ExpiresOn: farFuture}, now))
	require.NoError(t, s.AddUserToken(ctx, "user", storage.TokenEntry{HandleKey: live.Key, Expires: farFuture}))
	require.NoError(t, s.AddUserToken(ctx, "user", storage.TokenEntry{HandleKey: dead.Key, Expires: now.Add(-time.Minute)}))

	require.NoError(t, s.ExpireUserTokens(ctx, "user"))

	entries, err := s.GetUserTokens(ctx, "user")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, live.Key, entries[0].HandleKey)
}

func testStoreSessionAndIndex(t *testing.T, s storage.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	h := mustHandle(t)
	entry := storage.TokenEntry{HandleKey: h.Key, Expires: farFuture}

	require.NoError(t, s.StoreSessionAndIndex(ctx, h, storage.Session{Email: "a@example.com", ExpiresOn: farFuture}, "user", entry, now))

	session, err := s.GetSession(ctx, h)
	require.NoError(t, err)
	require.Equal(t, "a@example.com", session.Email)

	entries, err := s.GetUserTokens(ctx, "user")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func testLoginState(t *testing.T, s storage.Store) {
	ctx := context.Background()
	rec := storage.LoginState{ReturnURL: "https://example.com/", CreatedAt: time.Now().UTC()}

	require.NoError(t, s.StoreLoginState(ctx, "state1", rec))

	got, err := s.GetLoginState(ctx, "state1")
	require.NoError(t, err)
	require.Equal(t, rec.ReturnURL, got.ReturnURL)

	require.NoError(t, s.DeleteLoginState(ctx, "state1"))
	_, err = s.GetLoginState(ctx, "state1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
