package dataitem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liteseed/arloader/internal/signer"
	"github.com/liteseed/arloader/internal/tag"
)

func testSigner(t *testing.T) *signer.Signer {
	t.Helper()
	s, err := signer.Generate()
	require.NoError(t, err)
	return s
}

func TestSignThenVerify(t *testing.T) {
	s := testSigner(t)
	di, err := New([]byte("hello world"), nil, nil, []tag.Tag{{Name: "Content-Type", Value: "text/plain"}})
	require.NoError(t, err)

	require.NoError(t, di.Sign(s))
	assert.NotEmpty(t, di.Signature)
	assert.NotEmpty(t, di.Raw)

	decoded, err := Decode(di.Raw)
	require.NoError(t, err)
	assert.NoError(t, decoded.Verify())
	assert.Equal(t, di.ID, decoded.ID)
	assert.Equal(t, di.Data, decoded.Data)
}

func TestDecodeRoundTripPreservesTargetAndAnchor(t *testing.T) {
	s := testSigner(t)
	target := make([]byte, 32)
	target[0] = 0xAB
	anchor := make([]byte, 32)
	anchor[0] = 0xCD

	di, err := New([]byte("payload"), target, anchor, nil)
	require.NoError(t, err)
	require.NoError(t, di.Sign(s))

	decoded, err := Decode(di.Raw)
	require.NoError(t, err)
	assert.Equal(t, target, decoded.Target)
	assert.Equal(t, anchor, decoded.Anchor)
	assert.NoError(t, decoded.Verify())
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	s := testSigner(t)
	di, err := New([]byte("original"), nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, di.Sign(s))

	decoded, err := Decode(di.Raw)
	require.NoError(t, err)
	decoded.Data = []byte("tampered!")
	assert.Error(t, decoded.Verify())
}

func TestNewRejectsBadTargetLength(t *testing.T) {
	_, err := New([]byte("x"), []byte{1, 2, 3}, nil, nil)
	assert.Error(t, err)
}

func TestNewRejectsInvalidTags(t *testing.T) {
	_, err := New([]byte("x"), nil, nil, []tag.Tag{{Name: "", Value: "v"}})
	assert.Error(t, err)
}

func TestEmptyDataItem(t *testing.T) {
	s := testSigner(t)
	di, err := New(nil, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, di.Sign(s))

	decoded, err := Decode(di.Raw)
	require.NoError(t, err)
	assert.Empty(t, decoded.Data)
	assert.NoError(t, decoded.Verify())
}

func TestIDStringIsBase64Url(t *testing.T) {
	s := testSigner(t)
	di, err := New([]byte("x"), nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, di.Sign(s))
	assert.NotContains(t, di.IDString(), "=")
}
