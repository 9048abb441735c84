// Package bundle packs data items into an ANS-104 bundle and plans
// upload groups bounded by a maximum bundle size, and decodes/verifies
// bundles retrieved from a gateway.
//
// https://github.com/ArweaveTeam/arweave-standards/blob/master/ans/ANS-104.md
package bundle

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/liteseed/arloader/internal/dataitem"
)

// headerEntrySize is the (32-byte size, 32-byte id) pair preceding each
// item's bytes in a bundle.
const headerEntrySize = 64

// Header describes one entry in a bundle's header table.
type Header struct {
	ID   [32]byte
	Size int64
}

// Bundle is a packed set of signed data items plus their header table.
type Bundle struct {
	Headers []Header
	Items   []*dataitem.DataItem
	Raw     []byte
}

// New packs already-signed data items into a bundle. Every item must
// have a non-empty Raw (the output of (*dataitem.DataItem).Sign).
func New(items []*dataitem.DataItem) (*Bundle, error) {
	if len(items) == 0 {
		return nil, errors.New("bundle: at least one data item required")
	}

	headers := make([]Header, len(items))
	var headerBytes []byte
	var itemBytes []byte

	for i, item := range items {
		if len(item.Raw) == 0 {
			return nil, fmt.Errorf("bundle: item %d has no encoded bytes, sign it first", i)
		}
		headers[i] = Header{ID: item.ID, Size: int64(len(item.Raw))}
		headerBytes = append(headerBytes, encodeUint256LE(headers[i].Size)...)
		headerBytes = append(headerBytes, headers[i].ID[:]...)
		itemBytes = append(itemBytes, item.Raw...)
	}

	raw := make([]byte, 0, 32+len(headerBytes)+len(itemBytes))
	raw = append(raw, encodeUint256LE(int64(len(items)))...)
	raw = append(raw, headerBytes...)
	raw = append(raw, itemBytes...)

	return &Bundle{Headers: headers, Items: items, Raw: raw}, nil
}

// Decode parses a bundle's header table and data items from raw bytes.
func Decode(data []byte) (*Bundle, error) {
	if len(data) < 32 {
		return nil, errors.New("bundle: data shorter than header count field")
	}

	count := decodeUint256LE(data[:32])
	headerTableSize := count * headerEntrySize
	if int64(len(data)) < 32+headerTableSize {
		return nil, errors.New("bundle: truncated header table")
	}

	headers := make([]Header, count)
	pos := 32
	for i := range headers {
		size := decodeUint256LE(data[pos : pos+32])
		var id [32]byte
		copy(id[:], data[pos+32:pos+64])
		headers[i] = Header{ID: id, Size: size}
		pos += headerEntrySize
	}

	items := make([]*dataitem.DataItem, count)
	for i, h := range headers {
		if int64(len(data)) < int64(pos)+h.Size {
			return nil, fmt.Errorf("bundle: truncated item %d", i)
		}
		item, err := dataitem.Decode(data[pos : int64(pos)+h.Size])
		if err != nil {
			return nil, fmt.Errorf("bundle: decode item %d: %w", i, err)
		}
		items[i] = item
		pos += int(h.Size)
	}

	return &Bundle{Headers: headers, Items: items, Raw: data}, nil
}

// Verify checks that a bundle's header table accounts for exactly the
// number of trailing bytes present.
func Verify(data []byte) (bool, error) {
	if len(data) < 32 {
		return false, errors.New("bundle: data shorter than header count field")
	}
	count := decodeUint256LE(data[:32])
	headerTableSize := count * headerEntrySize
	if int64(len(data)) < 32+headerTableSize {
		return false, errors.New("bundle: truncated header table")
	}

	var total int64
	pos := 32
	for i := int64(0); i < count; i++ {
		total += decodeUint256LE(data[pos : pos+32])
		pos += headerEntrySize
	}
	return int64(len(data)) == 32+headerTableSize+total, nil
}

func encodeUint256LE(x int64) []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint64(buf[:8], uint64(x))
	return buf
}

func decodeUint256LE(buf []byte) int64 {
	return int64(binary.LittleEndian.Uint64(buf[:8]))
}

// Plan splits a list of already-signed data items into groups whose
// packed bundle size stays within maxBundleSize, preserving item order.
// A single item larger than maxBundleSize gets its own one-item group.
func Plan(items []*dataitem.DataItem, maxBundleSize int64) [][]*dataitem.DataItem {
	if len(items) == 0 {
		return nil
	}

	var groups [][]*dataitem.DataItem
	var current []*dataitem.DataItem
	var currentSize int64 = 32 // header count field

	for _, item := range items {
		itemCost := headerEntrySize + int64(len(item.Raw))
		if len(current) > 0 && currentSize+itemCost > maxBundleSize {
			groups = append(groups, current)
			current = nil
			currentSize = 32
		}
		current = append(current, item)
		currentSize += itemCost
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}
