// Package tag implements the Arweave tag list: the Avro-encoded binary
// form ANS-104 data items carry, and the name/value pair form both data
// items and v2 transactions feed into the deep hash.
//
// https://github.com/ArweaveTeam/arweave-standards/blob/master/ans/ANS-104.md
package tag

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/linkedin/goavro/v2"

	"github.com/liteseed/arloader/internal/deephash"
)

// MaxTags and the per-field length limits ANS-104 imposes.
const (
	MaxTags        = 128
	MaxNameLength  = 1024
	MaxValueLength = 3072
)

// Tag is a single name/value metadata pair.
type Tag struct {
	Name  string
	Value string
}

const avroSchema = `
{
	"type": "array",
	"items": {
		"type": "record",
		"name": "Tag",
		"fields": [
			{ "name": "name", "type": "bytes" },
			{ "name": "value", "type": "bytes" }
		]
	}
}`

var avroCodec *goavro.Codec

func codecOrPanic() *goavro.Codec {
	if avroCodec != nil {
		return avroCodec
	}
	c, err := goavro.NewCodec(avroSchema)
	if err != nil {
		panic(fmt.Sprintf("tag: invalid avro schema: %v", err))
	}
	avroCodec = c
	return c
}

// Serialize encodes a tag list into its Avro binary form for inclusion in
// a data item's physical layout. An empty list serializes to nil bytes.
func Serialize(tags []Tag) ([]byte, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	if len(tags) > MaxTags {
		return nil, fmt.Errorf("tag: at most %d tags allowed, got %d", MaxTags, len(tags))
	}

	native := make([]map[string]any, 0, len(tags))
	for _, t := range tags {
		native = append(native, map[string]any{
			"name":  []byte(t.Name),
			"value": []byte(t.Value),
		})
	}

	data, err := codecOrPanic().BinaryFromNative(nil, native)
	if err != nil {
		return nil, fmt.Errorf("tag: encode avro: %w", err)
	}
	return data, nil
}

// Deserialize decodes a data item's Avro-encoded tag bytes back into a
// tag list. numberOfTags/tagBytesLen gate whether avroBytes is read at
// all, matching the data item's own length-prefixed framing.
func Deserialize(avroBytes []byte, numberOfTags int) ([]Tag, error) {
	if numberOfTags == 0 || len(avroBytes) == 0 {
		return nil, nil
	}
	if numberOfTags > MaxTags {
		return nil, fmt.Errorf("tag: at most %d tags allowed, got %d", MaxTags, numberOfTags)
	}

	native, _, err := codecOrPanic().NativeFromBinary(avroBytes)
	if err != nil {
		return nil, fmt.Errorf("tag: decode avro: %w", err)
	}

	list, ok := native.([]any)
	if !ok {
		return nil, errors.New("tag: unexpected avro shape")
	}

	tags := make([]Tag, 0, len(list))
	for _, v := range list {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, errors.New("tag: unexpected avro record shape")
		}
		tags = append(tags, Tag{
			Name:  string(m["name"].([]byte)),
			Value: string(m["value"].([]byte)),
		})
	}
	return tags, nil
}

// Validate enforces ANS-104's per-tag length limits.
func Validate(tags []Tag) error {
	if len(tags) > MaxTags {
		return fmt.Errorf("tag: at most %d tags allowed, got %d", MaxTags, len(tags))
	}
	for _, t := range tags {
		if len(t.Name) == 0 || len(t.Name) > MaxNameLength {
			return fmt.Errorf("tag: name %q out of bounds (1..%d bytes)", t.Name, MaxNameLength)
		}
		if len(t.Value) > MaxValueLength {
			return fmt.Errorf("tag: value for %q exceeds %d bytes", t.Name, MaxValueLength)
		}
	}
	return nil
}

// DeepHashList converts a tag list into the List[List[Blob(name),
// Blob(value)]...] term both the v2 transaction and data item signable
// forms embed.
func DeepHashList(tags []Tag) deephash.List {
	pairs := make([][2][]byte, 0, len(tags))
	for _, t := range tags {
		pairs = append(pairs, [2][]byte{[]byte(t.Name), []byte(t.Value)})
	}
	return deephash.Pairs(pairs)
}

// headerSize is the 16-byte little-endian (tag count, tag bytes length)
// prefix preceding the Avro bytes in a data item's physical layout.
const headerSize = 16

// EncodeHeader returns the 16-byte (tagCount, tagBytesLen) little-endian
// header a DataItem's physical layout carries ahead of the Avro bytes.
func EncodeHeader(tagCount int, tagBytesLen int) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(tagCount))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(tagBytesLen))
	return buf
}

// DecodeHeader reads the (tagCount, tagBytesLen) header back out.
func DecodeHeader(buf []byte) (tagCount int, tagBytesLen int, err error) {
	if len(buf) < headerSize {
		return 0, 0, errors.New("tag: header too short")
	}
	tagCount = int(binary.LittleEndian.Uint64(buf[0:8]))
	tagBytesLen = int(binary.LittleEndian.Uint64(buf[8:16]))
	return tagCount, tagBytesLen, nil
}
