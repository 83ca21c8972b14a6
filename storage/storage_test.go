package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionKeyDeterministicPerSecret(t *testing.T) {
	h1 := Handle{Key: "k1", Secret: "c2VjcmV0LXNlY3JldC1zZWNyZXQh"}
	h2 := Handle{Key: "k2", Secret: h1.Secret}

	k1, err := sessionKey(h1)
	require.NoError(t, err)
	k2, err := sessionKey(h2)
	require.NoError(t, err)
	require.Equal(t, k1, k2, "the derived key depends on the secret, not the key")
	require.Len(t, k1, 32)
}

func TestSessionKeyRejectsMalformedSecret(t *testing.T) {
	_, err := sessionKey(Handle{Key: "k1", Secret: "not base64url!"})
	require.Error(t, err)
}
