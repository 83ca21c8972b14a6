package server

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/lsst-sqre/gafaelfawr/authorize"
	"github.com/lsst-sqre/gafaelfawr/token"
)

// handleAuth implements C8: the /auth probe the reverse proxy issues as
// an auth_request subrequest on every gated request.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	required, satisfy := parseScopeQuery(r, s.cfg.NotebookScopes)

	encoded, source, ok := s.extractCredential(r)
	if !ok {
		s.writeUnauthenticated(w, "No Authorization header", "")
		return
	}

	claims, err := s.verifier.Verify(r.Context(), encoded)
	if err != nil {
		s.writeUnauthenticated(w, "invalid_token", err.Error())
		return
	}

	decision := s.evaluate(required, satisfy, claims.Scopes())
	if !decision.Authorized {
		setScopeHeaders(w, decision, claims.Scope)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprintln(w, ErrMsgNotInRequiredGroups)
		return
	}

	audience := r.URL.Query().Get("audience")
	reissueRequested := r.URL.Query().Get("reissue_token") == "true" || audience != ""
	if reissueRequested {
		reissuedEncoded, reissuedClaims, err := s.maybeReissue(r.Context(), r, encoded, claims, source, audience)
		if err != nil {
			s.writeError(w, errInternal(ErrMsgInternalServerError))
			return
		}
		encoded, claims = reissuedEncoded, reissuedClaims
	}

	setScopeHeaders(w, decision, claims.Scope)
	if s.cfg.SetUserHeaders {
		s.setIdentityHeaders(w, r, claims, encoded)
	}
	w.WriteHeader(http.StatusOK)
}

// parseScopeQuery merges the scope and capability (legacy alias) query
// parameters into one required set, applies the notebook alias, and
// resolves the satisfy mode (defaulting to "all").
func parseScopeQuery(r *http.Request, notebookScopes []string) ([]string, authorize.Satisfy) {
	q := r.URL.Query()

	seen := make(map[string]struct{})
	var required []string
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		required = append(required, v)
	}
	for _, v := range q["scope"] {
		add(v)
	}
	for _, v := range q["capability"] {
		add(v)
	}
	if q.Get("notebook") == "true" {
		for _, v := range notebookScopes {
			add(v)
		}
	}

	satisfy := authorize.Satisfy(q.Get("satisfy"))
	if satisfy == "" {
		satisfy = authorize.SatisfyAll
	}
	return required, satisfy
}

// setScopeHeaders sets the X-Auth-Request-{Token-Scopes,Scopes-Accepted,
// Scopes-Satisfy} headers, emitted on both a 200 and a 403 outcome
// regardless of whether identity-header emission is enabled.
func setScopeHeaders(w http.ResponseWriter, d authorize.Decision, tokenScope string) {
	accepted := append([]string(nil), d.Required...)
	sort.Strings(accepted)
	w.Header().Set("X-Auth-Request-Scopes-Accepted", strings.Join(accepted, " "))
	w.Header().Set("X-Auth-Request-Scopes-Satisfy", string(d.Satisfy))
	if tokenScope != "" {
		w.Header().Set("X-Auth-Request-Token-Scopes", tokenScope)
	}
}

func (s *Server) setIdentityHeaders(w http.ResponseWriter, r *http.Request, claims token.Claims, encodedToken string) {
	if claims.Email != "" {
		w.Header().Set("X-Auth-Request-Email", claims.Email)
	}
	if claims.Subject != "" {
		w.Header().Set("X-Auth-Request-User", claims.Subject)
	}
	if claims.UID != "" {
		w.Header().Set("X-Auth-Request-Uid", claims.UID)
	}
	if len(claims.Groups) > 0 {
		w.Header().Set("X-Auth-Request-Groups", strings.Join(claims.Groups, ","))
	}
	w.Header().Set("X-Auth-Request-Token", encodedToken)

	var ticketForm string
	if ticket, ok := s.readTicketCookie(r); ok {
		ticketForm = ticket.Encode()
	}
	w.Header().Set("X-Auth-Request-Token-Ticket", ticketForm)
}

// writeUnauthenticated emits a 401 with a WWW-Authenticate challenge
// carrying errCode/errDescription, per §4.7's outcome table.
func (s *Server) writeUnauthenticated(w http.ResponseWriter, errCode, errDescription string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(
		`%s realm=%q,error=%q,error_description=%q`,
		s.cfg.wwwAuthenticateScheme(), s.cfg.Realm, errCode, errDescription,
	))
	w.WriteHeader(http.StatusUnauthorized)
}

func (s *Server) writeError(w http.ResponseWriter, herr *httpError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(herr.status)
	fmt.Fprintf(w, `{"error":%q,"message":%q}`, herr.code, herr.message)
}
