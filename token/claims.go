// Package token implements the signed-JWT issuer (C5) and verifier (C6):
// minting tokens for this deployment's own issuer and checking the
// signature, issuer, and expiry of any token presented to the auth
// endpoint, whether self-issued or from a trusted upstream.
package token

import "strings"

// Claims is the JWT payload gafaelfawr issues and verifies. It follows the
// RFC 7519 registered claim names plus the isMemberOf/scope extensions the
// auth endpoint's authorization check (authorize.Evaluate) and the groups
// header (X-Auth-Request-Groups) need, and an act chain for delegated
// tokens minted on a user's behalf (§5.4).
type Claims struct {
	Issuer   string `json:"iss"`
	Subject  string `json:"sub"`
	Audience string `json:"aud,omitempty"`
	Expiry   int64  `json:"exp"`
	IssuedAt int64  `json:"iat"`
	JTI      string `json:"jti"`

	Email  string   `json:"email,omitempty"`
	Name   string   `json:"name,omitempty"`
	UID    string   `json:"uid,omitempty"`
	Groups []string `json:"isMemberOf,omitempty"`
	Scope  string   `json:"scope,omitempty"`

	Act *Actor `json:"act,omitempty"`
}

// Actor records one hop of a token's delegation chain: the iss/aud/jti of
// the token that was exchanged to mint this one. Nested Act fields let a
// caller walk the full chain back to the original login.
type Actor struct {
	Issuer   string `json:"iss"`
	Audience string `json:"aud"`
	JTI      string `json:"jti"`
	Act      *Actor `json:"act,omitempty"`
}

// Scopes splits the space-separated scope claim, the OAuth2 convention
// (RFC 6749 §3.3) gafaelfawr's scope string follows.
func (c Claims) Scopes() []string {
	if c.Scope == "" {
		return nil
	}
	return strings.Fields(c.Scope)
}
