package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liteseed/arloader/internal/dataitem"
	"github.com/liteseed/arloader/internal/signer"
)

func signedItem(t *testing.T, data string) *dataitem.DataItem {
	t.Helper()
	s, err := signer.Generate()
	require.NoError(t, err)
	di, err := dataitem.New([]byte(data), nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, di.Sign(s))
	return di
}

func TestNewDecodeRoundTrip(t *testing.T) {
	items := []*dataitem.DataItem{
		signedItem(t, "first item"),
		signedItem(t, "second item, a bit longer"),
	}

	b, err := New(items)
	require.NoError(t, err)
	require.NotEmpty(t, b.Raw)

	decoded, err := Decode(b.Raw)
	require.NoError(t, err)
	require.Len(t, decoded.Items, 2)
	assert.Equal(t, items[0].ID, decoded.Items[0].ID)
	assert.Equal(t, items[1].ID, decoded.Items[1].ID)
	assert.NoError(t, decoded.Items[0].Verify())
	assert.NoError(t, decoded.Items[1].Verify())
}

func TestVerify(t *testing.T) {
	items := []*dataitem.DataItem{signedItem(t, "solo")}
	b, err := New(items)
	require.NoError(t, err)

	ok, err := Verify(b.Raw)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsTruncated(t *testing.T) {
	items := []*dataitem.DataItem{signedItem(t, "solo")}
	b, err := New(items)
	require.NoError(t, err)

	ok, err := Verify(b.Raw[:len(b.Raw)-10])
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestNewRejectsUnsignedItem(t *testing.T) {
	di, err := dataitem.New([]byte("x"), nil, nil, nil)
	require.NoError(t, err)
	_, err = New([]*dataitem.DataItem{di})
	assert.Error(t, err)
}

func TestPlanSplitsBySizeLimit(t *testing.T) {
	items := []*dataitem.DataItem{
		signedItem(t, "aaaaaaaaaa"),
		signedItem(t, "bbbbbbbbbb"),
		signedItem(t, "cccccccccc"),
	}

	var maxSize int64 = 32
	for _, item := range items[:2] {
		maxSize += headerEntrySize + int64(len(item.Raw))
	}

	groups := Plan(items, maxSize)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 1)
}

func TestPlanSingleOversizedItemGetsOwnGroup(t *testing.T) {
	big := signedItem(t, "this item alone exceeds the limit")
	small := signedItem(t, "small")

	groups := Plan([]*dataitem.DataItem{big, small}, 10)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 1)
	assert.Len(t, groups[1], 1)
}

func TestPlanEmpty(t *testing.T) {
	assert.Nil(t, Plan(nil, 1000))
}
