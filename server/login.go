package server

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lsst-sqre/gafaelfawr/handle"
	"github.com/lsst-sqre/gafaelfawr/pkg/crypto"
	"github.com/lsst-sqre/gafaelfawr/provider"
	"github.com/lsst-sqre/gafaelfawr/storage"
	"github.com/lsst-sqre/gafaelfawr/token"
)

const (
	stateBytes      = 16
	maxGroupNameLen = 55
	groupHashLen    = 6
)

// handleLogin implements C9's two request shapes: the redirect-to-provider
// start (no code) and the provider callback (code present).
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("code") != "" {
		s.handleLoginCallback(w, r)
		return
	}
	s.handleLoginStart(w, r)
}

func (s *Server) handleLoginStart(w http.ResponseWriter, r *http.Request) {
	returnURL, ok := s.resolveReturnURL(r)
	if !ok {
		s.writeError(w, errInvalidRequest(ErrMsgInvalidRequest))
		return
	}

	prov, err := s.soleProvider()
	if err != nil {
		s.writeError(w, errInternal(ErrMsgInternalServerError))
		return
	}

	state, err := randomState()
	if err != nil {
		s.writeError(w, errInternal(ErrMsgInternalServerError))
		return
	}

	rec := storage.LoginState{ReturnURL: returnURL, CreatedAt: s.cfg.now()}
	if err := s.store.StoreLoginState(r.Context(), state, rec); err != nil {
		s.writeError(w, errInternal(ErrMsgInternalServerError))
		return
	}

	http.Redirect(w, r, prov.LoginURL(state), http.StatusSeeOther)
}

func (s *Server) handleLoginCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state := r.URL.Query().Get("state")
	if state == "" {
		s.writeError(w, errInvalidRequest(ErrMsgInvalidRequest))
		return
	}

	rec, err := s.store.GetLoginState(ctx, state)
	if err != nil {
		s.writeError(w, errInvalidRequest(ErrMsgInvalidRequest))
		return
	}
	// Single-use: delete on success, same as on any later failure -- a
	// replayed state should never succeed twice.
	_ = s.store.DeleteLoginState(ctx, state)

	prov, err := s.soleProvider()
	if err != nil {
		s.writeError(w, errInternal(ErrMsgInternalServerError))
		return
	}

	identity, err := prov.Exchange(ctx, r)
	if err != nil {
		s.cfg.logger().Warn("login exchange failed", "error", err)
		s.writeError(w, errUnauthorized(ErrMsgLoginError))
		return
	}

	groups := normalizeGroups(identity.Groups)
	scopes := s.scopesForGroups(groups)

	h, err := handle.New()
	if err != nil {
		s.writeError(w, errInternal(ErrMsgInternalServerError))
		return
	}

	now := s.cfg.now()
	raw, claims, err := s.issuer.IssueWithOptions(now, identity.Username, identity.Email, identity.Name, identity.UID,
		groups, scopes, nil, token.IssueOptions{JTI: h.Key})
	if err != nil {
		s.writeError(w, errInternal(ErrMsgInternalServerError))
		return
	}

	session := storage.Session{
		Token:     raw,
		Email:     claims.Email,
		CreatedAt: now,
		ExpiresOn: time.Unix(claims.Expiry, 0).UTC(),
	}
	entry := storage.TokenEntry{HandleKey: h.Key, Scopes: scopes, Created: now, Expires: session.ExpiresOn}
	if err := s.store.StoreSessionAndIndex(ctx, storageHandle(h), session, claims.Subject, entry, now); err != nil {
		s.writeError(w, errInternal(ErrMsgInternalServerError))
		return
	}

	if err := s.setSessionCookie(w, r, h); err != nil {
		s.writeError(w, errInternal(ErrMsgInternalServerError))
		return
	}

	http.Redirect(w, r, rec.ReturnURL, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if h, ok := s.readSessionCookie(r); ok {
		_, _ = s.store.DeleteSession(r.Context(), storageHandle(h))
	}
	s.clearSessionCookie(w, r)
	if s.cfg.AfterLogoutURL != "" {
		http.Redirect(w, r, s.cfg.AfterLogoutURL, http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// soleProvider returns the one configured provider. Multi-provider
// federation within a single deployment is an explicit spec non-goal, so
// a single configured upstream is all NewServer is ever given.
func (s *Server) soleProvider() (provider.Provider, error) {
	for _, p := range s.providers {
		return p, nil
	}
	return nil, fmt.Errorf("server: no login provider configured")
}

// resolveReturnURL implements §4.8's ordered return_url derivation and
// open-redirect guard: the host must be either the current request host
// or one of the configured allow-listed hosts.
func (s *Server) resolveReturnURL(r *http.Request) (string, bool) {
	raw := r.URL.Query().Get("rd")
	if raw == "" {
		raw = r.Header.Get("X-Auth-Request-Redirect")
	}
	if raw == "" {
		raw = r.Header.Get("Referer")
	}
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Host == r.Host {
		return raw, true
	}
	for _, allowed := range s.cfg.AllowedHosts {
		if u.Host == allowed {
			return raw, true
		}
	}
	return "", false
}

func randomState() (string, error) {
	b, err := crypto.RandBytes(stateBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// normalizeGroups applies the group-slug transform (§8): any group name
// longer than 55 characters is truncated and suffixed with a 6-character
// base32 hash of the original, so the result always fits an LDAP-style
// 63-character limit while staying deterministic and collision-resistant.
func normalizeGroups(groups []string) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = truncateGroupName(g)
	}
	return out
}

func truncateGroupName(name string) string {
	if len(name) <= maxGroupNameLen {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	hash := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:]))[:groupHashLen]
	return name[:maxGroupNameLen] + hash
}

// scopesForGroups unions the configured scopes for every group the user
// belongs to, deduplicated.
func (s *Server) scopesForGroups(groups []string) []string {
	seen := make(map[string]struct{})
	var scopes []string
	for _, g := range groups {
		for _, scope := range s.cfg.GroupMapping[g] {
			if _, ok := seen[scope]; ok {
				continue
			}
			seen[scope] = struct{}{}
			scopes = append(scopes, scope)
		}
	}
	return scopes
}
