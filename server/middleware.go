package server

import (
	"context"
	"net"
	"net/http"

	"github.com/google/uuid"
)

// requestContextKey namespaces context values middleware.go injects, the
// generalization of dex's connector-middleware request-scoping (removed
// along with the rest of dex's middleware plugin system, which had no
// gafaelfawr equivalent -- see DESIGN.md) to the one thing this server
// actually needs request-scoped: enough to tag a log line.
type requestContextKey string

const (
	// RequestKeyRemoteIP is the context key cmd/gafaelfawr's slog handler
	// reads to attach the caller's address to every log line.
	RequestKeyRemoteIP requestContextKey = "remote_ip"
	// RequestKeyRequestID is the context key cmd/gafaelfawr's slog handler
	// reads to attach a per-request correlation ID.
	RequestKeyRequestID requestContextKey = "request_id"
)

// withRequestContext stamps every request's context with its remote IP
// and a fresh request ID before it reaches the router, so any handler
// (and the structured logger wrapping slog.Default()) can correlate log
// lines for one request.
func withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ctx = context.WithValue(ctx, RequestKeyRemoteIP, host)
		ctx = context.WithValue(ctx, RequestKeyRequestID, uuid.NewString())

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
