// Package dataitem builds, signs, verifies, and decodes ANS-104 data
// items: the bundleable envelope an upload wraps its payload in before
// it is packed into a bundle and anchored by a v2 transaction.
//
// https://github.com/ArweaveTeam/arweave-standards/blob/master/ans/ANS-104.md
package dataitem

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/liteseed/arloader/internal/codec"
	"github.com/liteseed/arloader/internal/deephash"
	"github.com/liteseed/arloader/internal/signer"
	"github.com/liteseed/arloader/internal/tag"
)

// SignatureType identifies the key scheme a data item's signature was
// produced with. Only Arweave is ever produced by this module; the
// others are recognized when decoding items signed elsewhere.
type SignatureType uint16

const (
	Arweave  SignatureType = 1
	ED25519  SignatureType = 2
	Ethereum SignatureType = 3
	Solana   SignatureType = 4
)

type sigMeta struct {
	SignatureLength int
	OwnerLength     int
}

var signatureConfig = map[SignatureType]sigMeta{
	Arweave:  {SignatureLength: 512, OwnerLength: 512},
	ED25519:  {SignatureLength: 64, OwnerLength: 32},
	Ethereum: {SignatureLength: 65, OwnerLength: 65},
	Solana:   {SignatureLength: 64, OwnerLength: 32},
}

// DataItem is one ANS-104 envelope: a signature, the signing owner, an
// optional target address and anchor, a tag list, and an opaque data
// payload.
type DataItem struct {
	ID            [32]byte
	SignatureType SignatureType
	Signature     []byte
	Owner         []byte // raw public key / modulus bytes
	Target        []byte // 0 or 32 bytes
	Anchor        []byte // 0 or 32 bytes
	Tags          []tag.Tag
	Data          []byte

	// Raw caches the encoded byte form once Sign or Decode has run.
	Raw []byte
}

// New constructs an unsigned data item ready for Sign.
func New(data []byte, target []byte, anchor []byte, tags []tag.Tag) (*DataItem, error) {
	if len(target) != 0 && len(target) != 32 {
		return nil, errors.New("dataitem: target must be 0 or 32 bytes")
	}
	if len(anchor) != 0 && len(anchor) != 32 {
		return nil, errors.New("dataitem: anchor must be 0 or 32 bytes")
	}
	if err := tag.Validate(tags); err != nil {
		return nil, err
	}
	return &DataItem{
		SignatureType: Arweave,
		Target:        target,
		Anchor:        anchor,
		Tags:          tags,
		Data:          data,
	}, nil
}

// signableTerm builds the List[Blob("dataitem"), Blob("1"), Blob(sigType),
// owner, target, anchor, tags, data] deep hash term, with tags as a List
// of [name, value] pairs.
func signableTerm(sigType SignatureType, owner, target, anchor []byte, tags []tag.Tag, data []byte) deephash.List {
	return deephash.List{
		deephash.Blob("dataitem"),
		deephash.Blob("1"),
		deephash.Blob(fmt.Sprintf("%d", sigType)),
		deephash.Blob(owner),
		deephash.Blob(target),
		deephash.Blob(anchor),
		tag.DeepHashList(tags),
		deephash.Blob(data),
	}
}

// Sign computes the data item's signature, id, and encoded Raw bytes
// using the given signer.
func (d *DataItem) Sign(s *signer.Signer) error {
	d.SignatureType = Arweave
	d.Owner = s.OwnerBytes()

	rawTags, err := tag.Serialize(d.Tags)
	if err != nil {
		return err
	}

	digest := deephash.Hash(signableTerm(d.SignatureType, d.Owner, d.Target, d.Anchor, d.Tags, d.Data))
	sig, err := s.Sign(digest)
	if err != nil {
		return fmt.Errorf("dataitem: sign: %w", err)
	}

	d.Signature = sig
	d.ID = sha256.Sum256(sig)
	d.Raw = encode(d, rawTags)
	return nil
}

// Verify checks a decoded data item's id, signature, and tag bounds.
func (d *DataItem) Verify() error {
	if sha256.Sum256(d.Signature) != d.ID {
		return errors.New("dataitem: id does not match signature")
	}

	meta, ok := signatureConfig[d.SignatureType]
	if !ok {
		return fmt.Errorf("dataitem: unsupported signature type %d", d.SignatureType)
	}
	if len(d.Signature) != meta.SignatureLength || len(d.Owner) != meta.OwnerLength {
		return errors.New("dataitem: signature/owner length mismatch for signature type")
	}

	if err := tag.Validate(d.Tags); err != nil {
		return err
	}
	if len(d.Anchor) > 32 {
		return errors.New("dataitem: anchor exceeds 32 bytes")
	}

	if d.SignatureType != Arweave {
		// Non-Arweave signature schemes are accepted opaquely: this
		// module only ever produces Arweave-signed items.
		return nil
	}

	digest := deephash.Hash(signableTerm(d.SignatureType, d.Owner, d.Target, d.Anchor, d.Tags, d.Data))
	return signer.Verify(d.Owner, digest, d.Signature)
}

// encode lays out the data item's physical byte form: the two-byte
// signature type, signature, owner, presence-flagged target and anchor,
// the tag header plus Avro bytes, and finally the data payload.
func encode(d *DataItem, rawTags []byte) []byte {
	buf := make([]byte, 0, 2+len(d.Signature)+len(d.Owner)+64+len(rawTags)+len(d.Data))

	sigType := make([]byte, 2)
	binary.LittleEndian.PutUint16(sigType, uint16(d.SignatureType))
	buf = append(buf, sigType...)
	buf = append(buf, d.Signature...)
	buf = append(buf, d.Owner...)

	buf = append(buf, presenceFlag(d.Target))
	buf = append(buf, d.Target...)

	buf = append(buf, presenceFlag(d.Anchor))
	buf = append(buf, d.Anchor...)

	buf = append(buf, tag.EncodeHeader(len(d.Tags), len(rawTags))...)
	buf = append(buf, rawTags...)
	buf = append(buf, d.Data...)
	return buf
}

func presenceFlag(b []byte) byte {
	if len(b) == 0 {
		return 0
	}
	return 1
}

// Decode parses a data item's physical byte form, as produced by encode
// or received inside an unbundled item.
func Decode(raw []byte) (*DataItem, error) {
	if len(raw) < 2 {
		return nil, errors.New("dataitem: too short")
	}

	sigType := SignatureType(binary.LittleEndian.Uint16(raw[:2]))
	meta, ok := signatureConfig[sigType]
	if !ok {
		return nil, fmt.Errorf("dataitem: unsupported signature type %d", sigType)
	}

	pos := 2
	if len(raw) < pos+meta.SignatureLength {
		return nil, errors.New("dataitem: truncated signature")
	}
	signature := raw[pos : pos+meta.SignatureLength]
	pos += meta.SignatureLength

	if len(raw) < pos+meta.OwnerLength {
		return nil, errors.New("dataitem: truncated owner")
	}
	owner := raw[pos : pos+meta.OwnerLength]
	pos += meta.OwnerLength

	target, pos, err := readOptional32(raw, pos)
	if err != nil {
		return nil, err
	}
	anchor, pos, err := readOptional32(raw, pos)
	if err != nil {
		return nil, err
	}

	tagCount, tagBytesLen, err := tag.DecodeHeader(raw[pos:])
	if err != nil {
		return nil, err
	}
	pos += 16
	if len(raw) < pos+tagBytesLen {
		return nil, errors.New("dataitem: truncated tag bytes")
	}
	tags, err := tag.Deserialize(raw[pos:pos+tagBytesLen], tagCount)
	if err != nil {
		return nil, err
	}
	pos += tagBytesLen

	data := raw[pos:]

	return &DataItem{
		ID:            sha256.Sum256(signature),
		SignatureType: sigType,
		Signature:     append([]byte(nil), signature...),
		Owner:         append([]byte(nil), owner...),
		Target:        target,
		Anchor:        anchor,
		Tags:          tags,
		Data:          append([]byte(nil), data...),
		Raw:           raw,
	}, nil
}

func readOptional32(raw []byte, pos int) ([]byte, int, error) {
	if pos >= len(raw) {
		return nil, 0, errors.New("dataitem: truncated presence flag")
	}
	present := raw[pos]
	pos++
	if present == 0 {
		return nil, pos, nil
	}
	if present != 1 {
		return nil, 0, errors.New("dataitem: invalid presence flag")
	}
	if len(raw) < pos+32 {
		return nil, 0, errors.New("dataitem: truncated 32-byte field")
	}
	v := append([]byte(nil), raw[pos:pos+32]...)
	return v, pos + 32, nil
}

// IDString returns the base64url-encoded id, as carried in bundle
// headers and status records.
func (d *DataItem) IDString() string {
	return codec.Encode(d.ID[:])
}
