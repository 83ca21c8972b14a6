package server

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// credentialSource names which of §4.7's ordered extraction points
// supplied the encoded token being verified, carried through to the
// reissue policy (the ingress-exchange case only fires for a bearer-
// sourced token, never a cookie-sourced one -- a cookie already names an
// internally-issued session).
type credentialSource int

const (
	sourceNone credentialSource = iota
	sourceBearer
	sourceBasic
	sourceForwardedAccessToken
	sourceForwardedTicketIDToken
	sourceCookie
)

// basicSentinel is the well-known placeholder oauth2_proxy's Basic-auth
// interop accepts in either half of the decoded pair: token:x-oauth-basic
// or x-oauth-basic:token.
const basicSentinel = "x-oauth-basic"

// extractCredential resolves the encoded JWT this request should be
// verified against, following §4.7's ordered list with its one
// JupyterHub-interop override: when the Authorization header uses the
// bare "token" scheme and a session cookie is also present, the cookie
// wins outright.
func (s *Server) extractCredential(r *http.Request) (encoded string, source credentialSource, ok bool) {
	scheme, value := splitAuthorization(r.Header.Get("Authorization"))
	h, hasCookie := s.readSessionCookie(r)

	if hasCookie && strings.EqualFold(scheme, "token") {
		if session, err := s.store.GetSession(r.Context(), storageHandle(h)); err == nil {
			return session.Token, sourceCookie, true
		}
	}

	if strings.EqualFold(scheme, "Bearer") && value != "" {
		return value, sourceBearer, true
	}

	if strings.EqualFold(scheme, "Basic") && value != "" {
		if tok, ok := decodeBasicPair(value); ok {
			return tok, sourceBasic, true
		}
	}

	if v := r.Header.Get("X-Forwarded-Access-Token"); v != "" {
		return v, sourceForwardedAccessToken, true
	}

	if v := r.Header.Get("X-Forwarded-Ticket-Id-Token"); v != "" {
		return v, sourceForwardedTicketIDToken, true
	}

	if hasCookie {
		if session, err := s.store.GetSession(r.Context(), storageHandle(h)); err == nil {
			return session.Token, sourceCookie, true
		}
	}

	return "", sourceNone, false
}

// splitAuthorization splits "Scheme value" into its two parts. An empty
// header yields two empty strings.
func splitAuthorization(header string) (scheme, value string) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

// decodeBasicPair decodes a base64 "user:pass" pair and extracts the
// actual token half, accepting the sentinel in either position (both
// orderings are seen in the wild from different oauth2_proxy versions).
func decodeBasicPair(encoded string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", false
	}
	switch {
	case pass == basicSentinel:
		return user, true
	case user == basicSentinel:
		return pass, true
	default:
		return "", false
	}
}
