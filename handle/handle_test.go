package handle_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsst-sqre/gafaelfawr/handle"
)

func TestRoundTrip(t *testing.T) {
	h, err := handle.New()
	require.NoError(t, err)

	encoded := h.Encode()
	require.Len(t, encoded, handle.EncodedLen)

	got, err := handle.Parse(encoded)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestNewDistinctDraws(t *testing.T) {
	a, err := handle.New()
	require.NoError(t, err)
	b, err := handle.New()
	require.NoError(t, err)

	require.NotEqual(t, a.Key, b.Key)
	require.NotEqual(t, a.Secret, b.Secret)
}

func TestParseMalformed(t *testing.T) {
	cases := []string{
		"",
		"not-a-handle",
		"short.short",
		"onlyonehalf12345678901",
		"has spaces 1234567890.abcdefghijklmnopqrstuv",
	}
	for _, c := range cases {
		_, err := handle.Parse(c)
		require.ErrorIs(t, err, handle.ErrMalformed)
	}
}

func TestStringNeverExposesSecret(t *testing.T) {
	h, err := handle.New()
	require.NoError(t, err)
	require.NotContains(t, h.String(), h.Secret)
}

func TestTicketRoundTrip(t *testing.T) {
	h, err := handle.New()
	require.NoError(t, err)
	ticket := handle.Ticket{Handle: h, Prefix: "oauth2_proxy"}

	encoded := ticket.Encode()
	require.True(t, handle.IsTicket(encoded, "oauth2_proxy"))

	got, err := handle.ParseTicket(encoded, "oauth2_proxy")
	require.NoError(t, err)
	require.Equal(t, h, got.Handle)
}

func TestParseTicketWrongPrefix(t *testing.T) {
	h, err := handle.New()
	require.NoError(t, err)
	ticket := handle.Ticket{Handle: h, Prefix: "oauth2_proxy"}

	_, err = handle.ParseTicket(ticket.Encode(), "other_prefix")
	require.ErrorIs(t, err, handle.ErrMalformed)
}
