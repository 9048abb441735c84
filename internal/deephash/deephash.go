// Package deephash implements Arweave's deep hash algorithm: a tagged
// recursive SHA-384 digest over a small term grammar of Blobs and Lists.
// It is the basis for both the v2 transaction and ANS-104 data item
// signable forms.
//
// https://www.arweave.org/yellow-paper.pdf
package deephash

import (
	"crypto/sha512"
	"strconv"
)

// Term is the deep hash term grammar: either a Blob or a List of Terms,
// a closed two-constructor sum type rather than reflect-driven dispatch
// over `any`.
type Term interface {
	term()
}

// Blob is a leaf term: raw bytes.
type Blob []byte

func (Blob) term() {}

// List is a branch term: an ordered sequence of sub-terms.
type List []Term

func (List) term() {}

// Hash computes the 48-byte (384-bit) deep hash digest of a term.
func Hash(t Term) [48]byte {
	switch v := t.(type) {
	case Blob:
		return hashBlob(v)
	case List:
		return hashList(v)
	default:
		panic("deephash: unknown term type")
	}
}

func hashBlob(b Blob) [48]byte {
	tag := append([]byte("blob"), []byte(strconv.Itoa(len(b)))...)
	tagHash := sha512.Sum384(tag)
	dataHash := sha512.Sum384(b)
	return sha512.Sum384(append(tagHash[:], dataHash[:]...))
}

func hashList(l List) [48]byte {
	tag := append([]byte("list"), []byte(strconv.Itoa(len(l)))...)
	acc := sha512.Sum384(tag)
	for _, t := range l {
		h := Hash(t)
		acc = sha512.Sum384(append(acc[:], h[:]...))
	}
	return acc
}

// Pairs builds a List of [Blob(name), Blob(value)] lists, the shape both
// the v2 transaction and the data item signable forms use for tags.
func Pairs(pairs [][2][]byte) List {
	l := make(List, 0, len(pairs))
	for _, p := range pairs {
		l = append(l, List{Blob(p[0]), Blob(p[1])})
	}
	return l
}
