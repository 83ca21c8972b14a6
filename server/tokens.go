package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/lsst-sqre/gafaelfawr/authorize"
	"github.com/lsst-sqre/gafaelfawr/handle"
	"github.com/lsst-sqre/gafaelfawr/pkg/crypto"
	"github.com/lsst-sqre/gafaelfawr/storage"
	"github.com/lsst-sqre/gafaelfawr/token"
)

const csrfCookieName = "csrf-token"

// currentSession resolves the browser session cookie into the claims of
// the token it names, the same way extractCredential's cookie branch does
// for /auth, but without falling through to any of the proxy-header
// sources -- the token UI is only ever reached with a browser session.
func (s *Server) currentSession(r *http.Request) (token.Claims, bool) {
	h, ok := s.readSessionCookie(r)
	if !ok {
		return token.Claims{}, false
	}
	session, err := s.store.GetSession(r.Context(), storageHandle(h))
	if err != nil {
		return token.Claims{}, false
	}
	claims, err := s.verifier.Verify(r.Context(), session.Token)
	if err != nil {
		return token.Claims{}, false
	}
	return claims, true
}

// setCSRFCookie issues the token a subsequent state-changing request must
// echo back, the double-submit pattern: the cookie is readable by the page
// that renders the form, and the form field it's copied into is what the
// POST handler actually checks.
func (s *Server) setCSRFCookie(w http.ResponseWriter, r *http.Request) (string, error) {
	b, err := crypto.RandBytes(stateBytes)
	if err != nil {
		return "", err
	}
	tok := base64.RawURLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    tok,
		Path:     "/",
		HttpOnly: false,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return tok, nil
}

func (s *Server) checkCSRF(r *http.Request) bool {
	c, err := r.Cookie(csrfCookieName)
	if err != nil || c.Value == "" {
		return false
	}
	submitted := r.Header.Get("X-CSRF-Token")
	if submitted == "" {
		submitted = r.FormValue("csrf_token")
	}
	return submitted != "" && submitted == c.Value
}

func (s *Server) handleTokensList(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.currentSession(r)
	if !ok {
		s.writeError(w, errUnauthorized(ErrMsgAuthenticationFailed))
		return
	}
	entries, err := s.store.GetUserTokens(r.Context(), claims.Subject)
	if err != nil {
		s.writeError(w, errInternal(ErrMsgInternalServerError))
		return
	}
	if _, err := s.setCSRFCookie(w, r); err != nil {
		s.writeError(w, errInternal(ErrMsgInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleTokensNewForm(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.currentSession(r)
	if !ok {
		s.writeError(w, errUnauthorized(ErrMsgAuthenticationFailed))
		return
	}
	if _, err := s.setCSRFCookie(w, r); err != nil {
		s.writeError(w, errInternal(ErrMsgInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"available_scopes": authorize.Held(s.cfg.KnownScopes, claims.Scopes()),
	})
}

func (s *Server) handleTokensNewSubmit(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.currentSession(r)
	if !ok {
		s.writeError(w, errUnauthorized(ErrMsgAuthenticationFailed))
		return
	}
	if err := r.ParseForm(); err != nil {
		s.writeError(w, errInvalidRequest(ErrMsgInvalidRequest))
		return
	}
	if !s.checkCSRF(r) {
		s.writeError(w, errInvalidRequest(ErrMsgInvalidRequest))
		return
	}

	held := make(map[string]struct{})
	for _, sc := range authorize.Held(s.cfg.KnownScopes, claims.Scopes()) {
		held[sc] = struct{}{}
	}
	var scopes []string
	for _, requested := range r.Form["scope"] {
		if _, ok := held[requested]; ok {
			scopes = append(scopes, requested)
		}
	}

	h, err := handle.New()
	if err != nil {
		s.writeError(w, errInternal(ErrMsgInternalServerError))
		return
	}
	now := s.cfg.now()
	raw, issued, err := s.issuer.IssueWithOptions(now, claims.Subject, claims.Email, claims.Name, claims.UID,
		claims.Groups, scopes, nil, token.IssueOptions{JTI: h.Key})
	if err != nil {
		s.writeError(w, errInternal(ErrMsgInternalServerError))
		return
	}

	session := storage.Session{
		Token:     raw,
		Email:     issued.Email,
		CreatedAt: now,
		ExpiresOn: time.Unix(issued.Expiry, 0).UTC(),
	}
	entry := storage.TokenEntry{HandleKey: h.Key, Scopes: scopes, Created: now, Expires: session.ExpiresOn}
	if err := s.store.StoreSessionAndIndex(r.Context(), storageHandle(h), session, claims.Subject, entry, now); err != nil {
		s.writeError(w, errInternal(ErrMsgInternalServerError))
		return
	}

	// The handle is only ever shown here; the store never holds the
	// secret half, so there is no way to recover it after this response.
	writeJSON(w, http.StatusCreated, map[string]string{"token": h.Encode()})
}

func (s *Server) handleTokenShowOrDelete(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.currentSession(r)
	if !ok {
		s.writeError(w, errUnauthorized(ErrMsgAuthenticationFailed))
		return
	}
	handleKey := mux.Vars(r)["handle"]

	if r.Method == http.MethodPost && r.FormValue("method_") == "DELETE" {
		if !s.checkCSRF(r) {
			s.writeError(w, errInvalidRequest(ErrMsgInvalidRequest))
			return
		}
		revoked, err := s.store.RevokeUserToken(r.Context(), claims.Subject, handleKey)
		if err != nil {
			s.writeError(w, errInternal(ErrMsgInternalServerError))
			return
		}
		if !revoked {
			s.writeError(w, newHTTPError(http.StatusNotFound, "not_found", ErrMsgInvalidRequest))
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	entries, err := s.store.GetUserTokens(r.Context(), claims.Subject)
	if err != nil {
		s.writeError(w, errInternal(ErrMsgInternalServerError))
		return
	}
	for _, e := range entries {
		if e.HandleKey == handleKey {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}
	s.writeError(w, newHTTPError(http.StatusNotFound, "not_found", ErrMsgInvalidRequest))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
