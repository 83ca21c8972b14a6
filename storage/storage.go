// Package storage defines the persistence interface used by the session
// store (C3), the user-token index (C4), and the login state machine (C9).
// It plays the role dex's storage.Storage interface plays, generalized from
// dex's OAuth2-client-shaped object model (AuthRequest, AuthCode, Client,
// RefreshToken, ...) to gafaelfawr's handle/session shape, and keeps dex's
// create/get/update/delete idiom for the one record type that needs
// read-modify-write (the user-token index).
package storage

import (
	"context"
	"time"
)

// Session is the mutable record a handle names: the encoded JWT it
// currently maps to, the user's email for quick display, and the record's
// lifetime. Serialized as JSON and sealed with the handle's secret before
// it ever reaches a Backend.
type Session struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresOn time.Time `json:"expires_on"`
}

// TokenEntry is one row of a user's token index: metadata about a handle
// the user has minted, without the secret half (the index is a listing,
// never a credential).
type TokenEntry struct {
	HandleKey string    `json:"handle_key"`
	Scopes    []string  `json:"scopes"`
	Created   time.Time `json:"created"`
	Expires   time.Time `json:"expires"`
}

// LoginState is the transient record the login state machine stores under
// state:<state> between the authorization redirect and the callback.
type LoginState struct {
	ReturnURL    string    `json:"return_url"`
	PKCEVerifier string    `json:"pkce_verifier,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Analysis is the result of an admin introspection of a handle: whether its
// session record still resolves, and the record itself if so.
type Analysis struct {
	Valid   bool
	Session *Session
}

// Handle is the minimal shape Store needs to address a session record. It
// is a separate type from handle.Handle with the same two fields; callers
// holding a handle.Handle copy Key and Secret into one.
type Handle struct {
	Key    string
	Secret string
}

// Store is the session-handle persistence contract. It is built on top of
// a Backend (the external key-value store collaborator, §6) and owns the
// encryption, JSON encoding, and the pairing between a session write and
// its user-token-index entry.
type Store interface {
	// StoreSession seals and writes session under handle, with a TTL equal
	// to max(0, session.ExpiresOn-now); a zero or negative TTL is a no-op
	// that still returns success, since the record would already be
	// expired.
	StoreSession(ctx context.Context, handle Handle, session Session, now time.Time) error

	// StoreSessionAndIndex performs StoreSession and AddUserToken as a
	// single pipelined write, so a crash between the two leaves at worst a
	// session with no index pointer (self-healing via TTL), never an index
	// entry with no session.
	StoreSessionAndIndex(ctx context.Context, handle Handle, session Session, uid string, entry TokenEntry, now time.Time) error

	// GetSession returns ErrNotFound for a missing key, a decryption
	// failure (wrong secret), or corrupt JSON alike — callers must not
	// distinguish between those three cases.
	GetSession(ctx context.Context, handle Handle) (Session, error)

	// DeleteSession removes the session record. Returns (false, nil) if
	// the handle was already absent.
	DeleteSession(ctx context.Context, handle Handle) (bool, error)

	// AnalyzeSession is the admin introspection entry point: it reports
	// whether handle currently resolves to a live session.
	AnalyzeSession(ctx context.Context, handle Handle) (Analysis, error)

	// AddUserToken appends entry to uid's token index.
	AddUserToken(ctx context.Context, uid string, entry TokenEntry) error

	// GetUserTokens returns uid's token index in no particular order.
	GetUserTokens(ctx context.Context, uid string) ([]TokenEntry, error)

	// RevokeUserToken removes handleKey from uid's index and deletes its
	// session record. Both are attempted; a partial failure (index
	// removed, session delete failed) is bounded by the session's own TTL,
	// per §4.3. Returns (false, nil) if handleKey was not present in the
	// index.
	RevokeUserToken(ctx context.Context, uid, handleKey string) (bool, error)

	// ExpireUserTokens removes any of uid's index entries whose session
	// has expired or no longer exists. Idempotent; safe under races.
	ExpireUserTokens(ctx context.Context, uid string) error

	// StoreLoginState writes a short-lived login-flow record under
	// state:<state>, TTL 900s.
	StoreLoginState(ctx context.Context, state string, rec LoginState) error

	// GetLoginState returns ErrNotFound if state is unknown or expired.
	GetLoginState(ctx context.Context, state string) (LoginState, error)

	// DeleteLoginState makes state single-use.
	DeleteLoginState(ctx context.Context, state string) error

	Close() error
}
