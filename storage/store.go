package storage

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lsst-sqre/gafaelfawr/pkg/crypto"
)

const (
	sessionPrefix    = "session:"
	userTokensPrefix = "tokens:"
	loginStatePrefix = "state:"

	loginStateTTL = 15 * time.Minute
)

// store implements Store on top of a Backend, generalizing dex's pattern of
// a thin storage.Storage interface with the JSON-encoding and encryption
// concerns handled by the caller (dex's etcd/kubernetes backends do the
// same split, just without the encryption step gafaelfawr's handle-keyed
// sessions require).
type store struct {
	backend Backend
}

// NewStore wraps backend with the session/index/login-state semantics of
// C3/C4/C9.
func NewStore(backend Backend) Store {
	return &store{backend: backend}
}

// sessionKey derives the 256-bit AES key used to seal a handle's session
// record from its secret half. The secret is already a 128-bit CSPRNG draw,
// not a password, so a plain hash is sufficient to stretch it to the AES-256
// key size Encrypt/Decrypt require — there is no attacker-guessable input to
// defend against the way a password-based KDF would.
func sessionKey(handle Handle) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(handle.Secret)
	if err != nil {
		return nil, fmt.Errorf("storage: decode handle secret: %w", err)
	}
	sum := sha256.Sum256(raw)
	return sum[:], nil
}

func (s *store) StoreSession(ctx context.Context, handle Handle, session Session, now time.Time) error {
	ttl := session.ExpiresOn.Sub(now)
	if ttl <= 0 {
		return nil
	}
	sealed, err := s.seal(handle, session)
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, sessionPrefix+handle.Key, sealed, ttl)
}

func (s *store) StoreSessionAndIndex(ctx context.Context, handle Handle, session Session, uid string, entry TokenEntry, now time.Time) error {
	ttl := session.ExpiresOn.Sub(now)
	if ttl <= 0 {
		return nil
	}
	sealed, err := s.seal(handle, session)
	if err != nil {
		return err
	}

	index, err := s.loadIndex(ctx, uid)
	if err != nil {
		return err
	}
	index[entry.HandleKey] = entry
	indexBytes, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("storage: marshal token index: %w", err)
	}

	return s.backend.WriteAll(ctx, []Write{
		{Key: sessionPrefix + handle.Key, Value: sealed, TTL: ttl},
		{Key: userTokensPrefix + uid, Value: indexBytes},
	})
}

func (s *store) seal(handle Handle, session Session) ([]byte, error) {
	plaintext, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal session: %w", err)
	}
	key, err := sessionKey(handle)
	if err != nil {
		return nil, err
	}
	return crypto.Encrypt(plaintext, key)
}

func (s *store) GetSession(ctx context.Context, handle Handle) (Session, error) {
	raw, err := s.backend.Get(ctx, sessionPrefix+handle.Key)
	if err != nil {
		return Session{}, err
	}
	key, err := sessionKey(handle)
	if err != nil {
		return Session{}, ErrNotFound
	}
	plaintext, err := crypto.Decrypt(raw, key)
	if err != nil {
		return Session{}, ErrNotFound
	}
	var session Session
	if err := json.Unmarshal(plaintext, &session); err != nil {
		return Session{}, ErrNotFound
	}
	return session, nil
}

func (s *store) DeleteSession(ctx context.Context, handle Handle) (bool, error) {
	return s.backend.Del(ctx, sessionPrefix+handle.Key)
}

func (s *store) AnalyzeSession(ctx context.Context, handle Handle) (Analysis, error) {
	session, err := s.GetSession(ctx, handle)
	if err != nil {
		if err == ErrNotFound {
			return Analysis{Valid: false}, nil
		}
		return Analysis{}, err
	}
	return Analysis{Valid: true, Session: &session}, nil
}

func (s *store) loadIndex(ctx context.Context, uid string) (map[string]TokenEntry, error) {
	raw, err := s.backend.Get(ctx, userTokensPrefix+uid)
	if err == ErrNotFound {
		return map[string]TokenEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	var index map[string]TokenEntry
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("storage: unmarshal token index: %w", err)
	}
	return index, nil
}

func (s *store) AddUserToken(ctx context.Context, uid string, entry TokenEntry) error {
	index, err := s.loadIndex(ctx, uid)
	if err != nil {
		return err
	}
	index[entry.HandleKey] = entry
	raw, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("storage: marshal token index: %w", err)
	}
	return s.backend.Set(ctx, userTokensPrefix+uid, raw, 0)
}

func (s *store) GetUserTokens(ctx context.Context, uid string) ([]TokenEntry, error) {
	index, err := s.loadIndex(ctx, uid)
	if err != nil {
		return nil, err
	}
	entries := make([]TokenEntry, 0, len(index))
	for _, e := range index {
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *store) RevokeUserToken(ctx context.Context, uid, handleKey string) (bool, error) {
	index, err := s.loadIndex(ctx, uid)
	if err != nil {
		return false, err
	}
	if _, ok := index[handleKey]; !ok {
		return false, nil
	}
	delete(index, handleKey)
	raw, err := json.Marshal(index)
	if err != nil {
		return false, fmt.Errorf("storage: marshal token index: %w", err)
	}
	if err := s.backend.Set(ctx, userTokensPrefix+uid, raw, 0); err != nil {
		return false, err
	}
	if _, err := s.backend.Del(ctx, sessionPrefix+handleKey); err != nil {
		return true, err
	}
	return true, nil
}

func (s *store) ExpireUserTokens(ctx context.Context, uid string) error {
	index, err := s.loadIndex(ctx, uid)
	if err != nil {
		return err
	}
	if len(index) == 0 {
		return nil
	}

	keys := make([]string, 0, len(index))
	handleKeys := make([]string, 0, len(index))
	for hk := range index {
		keys = append(keys, sessionPrefix+hk)
		handleKeys = append(handleKeys, hk)
	}
	values, err := s.backend.MGet(ctx, keys)
	if err != nil {
		return err
	}

	changed := false
	for i, hk := range handleKeys {
		if values[i] == nil {
			delete(index, hk)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	raw, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("storage: marshal token index: %w", err)
	}
	return s.backend.Set(ctx, userTokensPrefix+uid, raw, 0)
}

func (s *store) StoreLoginState(ctx context.Context, state string, rec LoginState) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: marshal login state: %w", err)
	}
	return s.backend.Set(ctx, loginStatePrefix+state, raw, loginStateTTL)
}

func (s *store) GetLoginState(ctx context.Context, state string) (LoginState, error) {
	raw, err := s.backend.Get(ctx, loginStatePrefix+state)
	if err != nil {
		return LoginState{}, err
	}
	var rec LoginState
	if err := json.Unmarshal(raw, &rec); err != nil {
		return LoginState{}, fmt.Errorf("storage: unmarshal login state: %w", err)
	}
	return rec, nil
}

func (s *store) DeleteLoginState(ctx context.Context, state string) error {
	_, err := s.backend.Del(ctx, loginStatePrefix+state)
	return err
}

func (s *store) Close() error {
	return s.backend.Close()
}
