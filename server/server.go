// Package server implements the HTTP surface (C8-C11, C1): the /auth
// probe the reverse proxy hits on every gated request, the OIDC/GitHub
// login state machine, well-known discovery documents, and the
// user-token management backend. It mirrors dex's server.Server (config
// + storage + now-func + logger fields, NewServer constructor,
// gorilla/mux router, gorilla/handlers logging) but wires gafaelfawr's
// own collaborators in place of dex's OAuth2 client/auth-request
// machinery.
package server

import (
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/lsst-sqre/gafaelfawr/authorize"
	"github.com/lsst-sqre/gafaelfawr/keyset"
	"github.com/lsst-sqre/gafaelfawr/provider"
	"github.com/lsst-sqre/gafaelfawr/storage"
	"github.com/lsst-sqre/gafaelfawr/token"
)

// Server holds every collaborator a handler needs, constructed once at
// startup and passed by reference into each handler method -- the
// explicit-construction replacement for a framework's decorator-held
// global app state (§9 design notes).
type Server struct {
	cfg       Config
	keys      *keyset.Keys
	store     storage.Store
	issuer    *token.Issuer
	verifier  *token.Verifier
	providers map[string]provider.Provider

	router *mux.Router
}

// New builds a Server and registers its routes. providers is keyed by a
// provider name, e.g. "github" or "oidc"; /login does not select by name and
// uses whichever single provider the map holds.
func New(cfg Config, keys *keyset.Keys, store storage.Store, issuer *token.Issuer, verifier *token.Verifier, providers map[string]provider.Provider) *Server {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	s := &Server{
		cfg:       cfg,
		keys:      keys,
		store:     store,
		issuer:    issuer,
		verifier:  verifier,
		providers: providers,
		router:    mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/auth", s.handleAuth).Methods(http.MethodGet)

	s.router.HandleFunc("/login", s.handleLogin).Methods(http.MethodGet)
	s.router.HandleFunc("/logout", s.handleLogout).Methods(http.MethodGet)

	s.router.HandleFunc("/.well-known/jwks.json", s.handleJWKS).Methods(http.MethodGet)
	s.router.HandleFunc("/.well-known/openid-configuration", s.handleOpenIDConfiguration).Methods(http.MethodGet)

	s.router.HandleFunc("/auth/tokens", s.handleTokensList).Methods(http.MethodGet)
	s.router.HandleFunc("/auth/tokens/new", s.handleTokensNewForm).Methods(http.MethodGet)
	s.router.HandleFunc("/auth/tokens/new", s.handleTokensNewSubmit).Methods(http.MethodPost)
	s.router.HandleFunc("/auth/tokens/{handle}", s.handleTokenShowOrDelete).Methods(http.MethodGet, http.MethodPost)
}

// Handler returns the fully-wrapped HTTP handler: request-context
// injection (so logger.go's slog handler can attach remote-IP/request-ID
// attributes) under gorilla/handlers' combined access log, the same
// layering dex's server/http.go applies over its own router.
func (s *Server) Handler() http.Handler {
	return handlers.CombinedLoggingHandler(os.Stdout, withRequestContext(s.router))
}

// evaluate exposes authorize.Evaluate as a method so handlers read as
// calling a Server collaborator rather than a bare package function.
func (s *Server) evaluate(required []string, satisfy authorize.Satisfy, tokenScopes []string) authorize.Decision {
	return authorize.Evaluate(required, satisfy, tokenScopes)
}
