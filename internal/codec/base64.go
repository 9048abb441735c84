// Package codec provides the unpadded base64url encoding used throughout
// the Arweave protocol for ids, signatures, and other binary fields.
package codec

import "encoding/base64"

// Encode returns the unpadded base64url encoding of data, per RFC 4648 §5.
func Encode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode parses an unpadded base64url string back into bytes.
func Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// MustDecode panics on invalid input. Only used for values this package
// itself just produced with Encode, never for caller-supplied data.
func MustDecode(s string) []byte {
	b, err := Decode(s)
	if err != nil {
		panic(err)
	}
	return b
}
