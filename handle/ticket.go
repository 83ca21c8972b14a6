package handle

import (
	"regexp"
	"strings"
)

// Ticket is the legacy oauth2_proxy cookie value: a handle prefixed with a
// configuration-fixed string, e.g. "oauth2_proxy-<key>.<secret>". Ticket.Key
// is used directly as the reissued JWT's jti (see the ingress-exchange
// rule in the reissue policy), so a ticket is not just a Handle with a
// prefix stripped — the two must stay byte-for-byte identical.
type Ticket struct {
	Handle
	Prefix string
}

func ticketRE(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `-([A-Za-z0-9_-]{22}\.[A-Za-z0-9_-]{22})$`)
}

// ParseTicket decodes a legacy ticket with the given configured prefix.
func ParseTicket(s, prefix string) (Ticket, error) {
	m := ticketRE(prefix).FindStringSubmatch(s)
	if m == nil {
		return Ticket{}, ErrMalformed
	}
	h, err := Parse(m[1])
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{Handle: h, Prefix: prefix}, nil
}

// Encode returns the ticket's external representation,
// "<prefix>-<key>.<secret>".
func (t Ticket) Encode() string {
	return t.Prefix + "-" + t.Handle.Encode()
}

// IsTicket reports whether s looks like a legacy ticket for prefix, without
// fully parsing it. Used by the reissue policy to decide whether the
// ingress-exchange precondition ("a legacy ticket cookie must be present")
// is met.
func IsTicket(s, prefix string) bool {
	return strings.HasPrefix(s, prefix+"-")
}
