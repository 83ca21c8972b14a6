package server

import (
	"context"
	"net/http"
	"time"

	"github.com/lsst-sqre/gafaelfawr/handle"
	"github.com/lsst-sqre/gafaelfawr/storage"
	"github.com/lsst-sqre/gafaelfawr/token"
)

// maybeReissue implements the reissue policy (C10). It is only consulted
// when the /auth request asked for it (reissue_token=true or a non-empty
// audience parameter); outside that it returns claims unchanged. Of the
// two disjoint cases in §4.10, at most one applies to any given request;
// neither applying is not an error -- the original token is returned as
// is.
func (s *Server) maybeReissue(ctx context.Context, r *http.Request, encoded string, claims token.Claims, source credentialSource, requestedAudience string) (string, token.Claims, error) {
	now := s.cfg.now()

	// Case 1: ingress exchange. Only a bearer-sourced token can trigger
	// this -- a cookie already names a session this deployment minted
	// itself, so its issuer is always ours.
	if claims.Issuer != s.cfg.Issuer && source != sourceCookie {
		ticket, ok := s.readTicketCookie(r)
		if !ok {
			// Precondition not met: fail closed rather than silently
			// returning the untranslated upstream token.
			return encoded, claims, nil
		}
		return s.issueIngressExchange(ctx, now, ticket, claims)
	}

	// Case 2: internal-audience exchange.
	if claims.Issuer == s.cfg.Issuer && claims.Audience == s.cfg.DefaultAudience &&
		requestedAudience != "" && requestedAudience == s.cfg.InternalAudience {
		return s.issueInternalAudienceExchange(ctx, now, claims, requestedAudience)
	}

	return encoded, claims, nil
}

func (s *Server) issueIngressExchange(ctx context.Context, now time.Time, ticket handle.Ticket, prior token.Claims) (string, token.Claims, error) {
	act := &token.Actor{Issuer: prior.Issuer, Audience: prior.Audience, JTI: prior.JTI, Act: prior.Act}

	raw, claims, err := s.issuer.IssueWithOptions(now, prior.Subject, prior.Email, prior.Name, prior.UID,
		prior.Groups, prior.Scopes(), act, token.IssueOptions{JTI: ticket.Key})
	if err != nil {
		return "", token.Claims{}, err
	}

	session := storage.Session{
		Token:     raw,
		Email:     claims.Email,
		CreatedAt: now,
		ExpiresOn: time.Unix(claims.Expiry, 0).UTC(),
	}
	if err := s.store.StoreSession(ctx, storageHandle(ticket.Handle), session, now); err != nil {
		return "", token.Claims{}, err
	}

	return raw, claims, nil
}

func (s *Server) issueInternalAudienceExchange(ctx context.Context, now time.Time, prior token.Claims, audience string) (string, token.Claims, error) {
	newHandle, err := handle.New()
	if err != nil {
		return "", token.Claims{}, err
	}
	act := &token.Actor{Issuer: prior.Issuer, Audience: prior.Audience, JTI: prior.JTI, Act: prior.Act}

	raw, claims, err := s.issuer.IssueWithOptions(now, prior.Subject, prior.Email, prior.Name, prior.UID,
		prior.Groups, prior.Scopes(), act, token.IssueOptions{JTI: newHandle.Key, Audience: audience})
	if err != nil {
		return "", token.Claims{}, err
	}
	// No session record: an internal-audience token is for
	// backend-to-backend use and is self-contained, bounded by its own
	// expiry -- there is no browser cookie or user-minted handle to back
	// it with.
	return raw, claims, nil
}
