package transaction

import (
	"crypto/sha256"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liteseed/arloader/internal/signer"
	"github.com/liteseed/arloader/internal/tag"
)

func TestSignThenVerify(t *testing.T) {
	s, err := signer.Generate()
	require.NoError(t, err)

	tx, err := New([]byte("hello arweave"), nil, nil, nil, []tag.Tag{{Name: "App-Name", Value: "arloader"}})
	require.NoError(t, err)
	tx.SetReward(uint256.NewInt(123456789))

	require.NoError(t, tx.Sign(s))
	assert.NotEmpty(t, tx.Signature)
	assert.NoError(t, tx.Verify())
}

func TestVerifyRejectsTamperedReward(t *testing.T) {
	s, err := signer.Generate()
	require.NoError(t, err)

	tx, err := New([]byte("data"), nil, nil, nil, nil)
	require.NoError(t, err)
	tx.SetReward(uint256.NewInt(1))
	require.NoError(t, tx.Sign(s))

	tx.Reward = uint256.NewInt(2)
	assert.Error(t, tx.Verify())
}

func TestDataLessTransactionHasNoDataRoot(t *testing.T) {
	tx, err := New(nil, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, [32]byte{}, tx.DataRoot)
	assert.Empty(t, tx.DataRootString())
}

func TestDataLessTransferHasNoChunks(t *testing.T) {
	target := make([]byte, 32)
	target[0] = 1
	tx, err := New(nil, target, uint256.NewInt(1_000_000_000_000), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, tx.Chunks())
}

func TestNewRejectsBadTargetLength(t *testing.T) {
	_, err := New(nil, []byte{1, 2}, nil, nil, nil)
	assert.Error(t, err)
}

// TestIDIsDerivedFromDigestNotSignature locks in spec.md §4.6 step 3 and
// testable property 6 (§8): the id is SHA-256 of the signable deep hash
// digest, not of the signature, so re-deriving the digest from the
// posted fields reproduces the id even though RSA-PSS salts make the
// signature itself non-deterministic.
func TestIDIsDerivedFromDigestNotSignature(t *testing.T) {
	s, err := signer.Generate()
	require.NoError(t, err)

	tx, err := New([]byte("hello arweave"), nil, nil, nil, nil)
	require.NoError(t, err)
	tx.SetReward(uint256.NewInt(1))
	require.NoError(t, tx.Sign(s))

	digest, err := tx.Digest()
	require.NoError(t, err)
	want := sha256.Sum256(digest[:])
	assert.Equal(t, want, tx.ID)
	assert.NotEqual(t, sha256.Sum256(tx.Signature), tx.ID)
}

func TestIDStringIsBase64Url(t *testing.T) {
	s, err := signer.Generate()
	require.NoError(t, err)
	tx, err := New([]byte("x"), nil, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Sign(s))
	assert.NotContains(t, tx.IDString(), "=")
}
