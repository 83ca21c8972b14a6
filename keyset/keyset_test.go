package keyset_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsst-sqre/gafaelfawr/keyset"
)

func TestGenerateAndPEMRoundTrip(t *testing.T) {
	keys, err := keyset.Generate("kid-1")
	require.NoError(t, err)
	require.Equal(t, "kid-1", keys.KID)

	pemBytes := keys.EncodePEM()
	require.NotEmpty(t, pemBytes)

	loaded, err := keyset.FromPEM("kid-1", pemBytes)
	require.NoError(t, err)
	require.Equal(t, keys.PrivateKey.N, loaded.PrivateKey.N)
}

func TestPublicJWKSContainsOnlyPublicMaterial(t *testing.T) {
	keys, err := keyset.Generate("kid-1")
	require.NoError(t, err)

	jwks := keys.PublicJWKS()
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "kid-1", jwks.Keys[0].KeyID)
	require.True(t, jwks.Keys[0].IsPublic())
}

func TestFromPEMRejectsGarbage(t *testing.T) {
	_, err := keyset.FromPEM("kid", []byte("not a pem"))
	require.Error(t, err)
}
