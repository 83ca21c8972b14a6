package server

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/lsst-sqre/gafaelfawr/handle"
	"github.com/lsst-sqre/gafaelfawr/pkg/crypto"
)

// setSessionCookie seals h under the configured session secret and sets
// it as the browser session cookie, per §6's cookie format: HttpOnly,
// Secure, SameSite=Lax, path "/".
func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, h handle.Handle) error {
	sealed, err := crypto.SealCookie([]byte(h.Encode()), s.cfg.SessionSecret[:])
	if err != nil {
		return fmt.Errorf("server: seal session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.sessionCookieName(),
		Value:    base64.RawURLEncoding.EncodeToString(sealed),
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// clearSessionCookie expires the session cookie, used by /logout.
func (s *Server) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.sessionCookieName(),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// readSessionCookie opens the browser session cookie and parses the
// handle it carries. The zero value and false are returned identically
// for "no cookie", "can't open" (tampered or wrong secret), and
// "malformed handle" -- a caller never needs to distinguish those.
func (s *Server) readSessionCookie(r *http.Request) (handle.Handle, bool) {
	c, err := r.Cookie(s.cfg.sessionCookieName())
	if err != nil {
		return handle.Handle{}, false
	}
	sealed, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return handle.Handle{}, false
	}
	plain, err := crypto.OpenCookie(sealed, s.cfg.SessionSecret[:])
	if err != nil {
		return handle.Handle{}, false
	}
	h, err := handle.Parse(string(plain))
	if err != nil {
		return handle.Handle{}, false
	}
	return h, true
}

// readTicketCookie looks for the legacy oauth2_proxy ticket cookie
// consulted by the reissue policy's ingress-exchange precondition
// (§4.10 case 1). Unlike the primary session cookie, the ticket cookie
// is not sealed under our AEAD -- it carries the oauth2_proxy-minted
// ticket encoding verbatim, matching what that proxy itself writes.
func (s *Server) readTicketCookie(r *http.Request) (handle.Ticket, bool) {
	c, err := r.Cookie(s.cfg.ticketCookieName())
	if err != nil {
		return handle.Ticket{}, false
	}
	t, err := handle.ParseTicket(c.Value, s.cfg.ticketPrefix())
	if err != nil {
		return handle.Ticket{}, false
	}
	return t, true
}
