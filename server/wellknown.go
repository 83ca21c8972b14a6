package server

import (
	"encoding/json"
	"net/http"
)

// handleJWKS serves this deployment's public signing keys, the set a
// relying party fetches to verify a token with iss == s.cfg.Issuer.
func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	s.cfg.logger().Debug("jwks fetch", "remote", r.RemoteAddr)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.keys.PublicJWKS())
}

// openIDConfiguration is the minimal discovery document this deployment
// advertises. Gafaelfawr is not a full OpenID provider -- it never hands
// out an authorization code of its own -- but relying parties that only
// know how to follow OIDC discovery to find a jwks_uri still need one.
type openIDConfiguration struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	JWKSURI                          string   `json:"jwks_uri"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                  []string `json:"scopes_supported,omitempty"`
}

func (s *Server) handleOpenIDConfiguration(w http.ResponseWriter, r *http.Request) {
	doc := openIDConfiguration{
		Issuer:                           s.cfg.Issuer,
		AuthorizationEndpoint:            s.cfg.Issuer + "/login",
		TokenEndpoint:                    s.cfg.Issuer + "/login",
		JWKSURI:                          s.cfg.Issuer + "/.well-known/jwks.json",
		ResponseTypesSupported:           []string{"code"},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
		ScopesSupported:                  s.cfg.KnownScopes,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}
