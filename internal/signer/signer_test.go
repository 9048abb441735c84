package signer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liteseed/arloader/internal/deephash"
)

func TestGenerate(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)
	assert.Equal(t, KeyBits, s.PrivateKey.Size()*8)
	assert.NotEmpty(t, s.Owner())
	assert.NotEmpty(t, s.AddressString())
}

func TestMarshalRoundTrip(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)

	jwk, err := s.Marshal()
	require.NoError(t, err)

	loaded, err := FromJWK(jwk)
	require.NoError(t, err)
	assert.Equal(t, s.Owner(), loaded.Owner())
	assert.Equal(t, s.Address, loaded.Address)
}

func TestSignVerify(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)

	digest := deephash.Hash(deephash.Blob("hello arweave"))
	sig, err := s.Sign(digest)
	require.NoError(t, err)

	err = Verify(s.OwnerBytes(), digest, sig)
	assert.NoError(t, err)
}

func TestVerifyRejectsWrongDigest(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)

	digest := deephash.Hash(deephash.Blob("hello arweave"))
	sig, err := s.Sign(digest)
	require.NoError(t, err)

	other := deephash.Hash(deephash.Blob("tampered"))
	err = Verify(s.OwnerBytes(), other, sig)
	assert.Error(t, err)
}

func TestAddressIsSHA256OfModulus(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)
	assert.Equal(t, s.Address, AddressFromOwner(s.OwnerBytes()))
}
