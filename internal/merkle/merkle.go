// Package merkle implements Arweave's chunked Merkle tree: splitting a
// byte stream into bounded leaves, building a binary tree over them, and
// producing per-leaf inclusion proofs against the tree's data root.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

const (
	// MaxChunkSize is the largest a non-final leaf may be.
	MaxChunkSize = 256 * 1024
	// MinChunkSize is the tail-rebalance threshold: when the final chunk
	// would be this size or smaller, the last two chunks are re-split into
	// two near-equal halves.
	MinChunkSize = 32 * 1024

	hashSize = 32
	noteSize = 32
)

// Chunk is one leaf's data-hash plus its byte range within the stream.
type Chunk struct {
	DataHash     [32]byte
	MinByteRange int64
	MaxByteRange int64
}

func (c Chunk) Size() int64 { return c.MaxByteRange - c.MinByteRange }

// Proof is the inclusion proof for one chunk, keyed by its end offset.
type Proof struct {
	Offset int64
	Proof  []byte
}

// Tree holds the computed chunk boundaries, the root id (data root), and
// one proof per chunk.
type Tree struct {
	DataRoot [32]byte
	Chunks   []Chunk
	Proofs   []Proof
}

// node is an internal tree node; leaves carry DataHash, branches carry
// Left/Right.
type node struct {
	id           [32]byte
	dataHash     [32]byte
	maxByteRange int64
	byteRange    int64
	isLeaf       bool
	left, right  *node
}

// GenerateTree splits data into chunks, builds the Merkle tree, and
// returns the data root, the chunk boundaries, and a proof per chunk.
//
// Empty input returns an error; every other caller assumes len(data) >= 1.
func GenerateTree(data []byte) (*Tree, error) {
	if len(data) == 0 {
		return nil, errors.New("merkle: cannot chunk empty data")
	}
	chunks := chunkData(data)
	leaves := generateLeaves(chunks)
	root, err := buildLayer(leaves)
	if err != nil {
		return nil, err
	}
	proofs := generateProofs(root, nil)

	return &Tree{
		DataRoot: root.id,
		Chunks:   chunks,
		Proofs:   proofs,
	}, nil
}

// chunkData splits data into MaxChunkSize leaves, rebalancing the final
// two leaves per the tail rule when the naive last leaf would be <=
// MinChunkSize and there is more than one leaf total.
func chunkData(data []byte) []Chunk {
	var chunks []Chunk
	rest := data
	var cursor int64

	for int64(len(rest)) >= MaxChunkSize {
		chunkSize := MaxChunkSize
		remaining := len(rest) - MaxChunkSize

		if remaining > 0 && remaining <= MinChunkSize {
			chunkSize = ceilDiv(len(rest), 2)
		}

		chunk := rest[:chunkSize]
		hash := sha256.Sum256(chunk)
		cursor += int64(len(chunk))
		chunks = append(chunks, Chunk{
			DataHash:     hash,
			MinByteRange: cursor - int64(len(chunk)),
			MaxByteRange: cursor,
		})
		rest = rest[chunkSize:]
	}

	hash := sha256.Sum256(rest)
	chunks = append(chunks, Chunk{
		DataHash:     hash,
		MinByteRange: cursor,
		MaxByteRange: cursor + int64(len(rest)),
	})
	return chunks
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}

func generateLeaves(chunks []Chunk) []*node {
	leaves := make([]*node, 0, len(chunks))
	for _, c := range chunks {
		leaves = append(leaves, &node{
			id:           leafID(c.DataHash, c.MaxByteRange),
			dataHash:     c.DataHash,
			maxByteRange: c.MaxByteRange,
			isLeaf:       true,
		})
	}
	return leaves
}

func leafID(dataHash [32]byte, maxByteRange int64) [32]byte {
	h1 := sha256.Sum256(dataHash[:])
	h2 := sha256.Sum256(encodeUint256(maxByteRange))
	return sha256.Sum256(append(h1[:], h2[:]...))
}

// buildLayer pairs adjacent nodes bottom-up. An odd node out at any level
// is promoted unchanged, never duplicated.
func buildLayer(nodes []*node) (*node, error) {
	if len(nodes) == 0 {
		return nil, errors.New("merkle: no leaves")
	}
	for len(nodes) > 1 {
		next := make([]*node, 0, (len(nodes)+1)/2)
		for i := 0; i < len(nodes); i += 2 {
			if i+1 < len(nodes) {
				next = append(next, hashBranch(nodes[i], nodes[i+1]))
			} else {
				next = append(next, nodes[i])
			}
		}
		nodes = next
	}
	return nodes[0], nil
}

func hashBranch(left, right *node) *node {
	leftHash := sha256.Sum256(left.id[:])
	rightHash := sha256.Sum256(right.id[:])
	rangeHash := sha256.Sum256(encodeUint256(left.maxByteRange))

	buf := make([]byte, 0, 96)
	buf = append(buf, leftHash[:]...)
	buf = append(buf, rightHash[:]...)
	buf = append(buf, rangeHash[:]...)

	return &node{
		id:           sha256.Sum256(buf),
		byteRange:    left.maxByteRange,
		maxByteRange: right.maxByteRange,
		left:         left,
		right:        right,
	}
}

// generateProofs walks the tree from the root down, recording at each
// internal node the (left id, right id, pivot) triple, and at each leaf
// the (data hash, max byte range) pair.
func generateProofs(n *node, prefix []byte) []Proof {
	if n.isLeaf {
		p := make([]byte, 0, len(prefix)+hashSize+noteSize)
		p = append(p, prefix...)
		p = append(p, n.dataHash[:]...)
		p = append(p, encodeUint256(n.maxByteRange)...)
		return []Proof{{Offset: n.maxByteRange - 1, Proof: p}}
	}

	branch := make([]byte, 0, len(prefix)+hashSize*2+noteSize)
	branch = append(branch, prefix...)
	branch = append(branch, n.left.id[:]...)
	branch = append(branch, n.right.id[:]...)
	branch = append(branch, encodeUint256(n.byteRange)...)

	proofs := generateProofs(n.left, branch)
	proofs = append(proofs, generateProofs(n.right, branch)...)
	return proofs
}

// encodeUint256 encodes a non-negative integer as a 32-byte big-endian
// value.
func encodeUint256(x int64) []byte {
	buf := make([]byte, 32)
	binary.BigEndian.PutUint64(buf[24:], uint64(x))
	return buf
}

// Verify checks that a single chunk's proof is consistent with the
// given data root.
func Verify(dataRoot [32]byte, chunk Chunk, proof []byte) bool {
	return verifyPath(dataRoot, chunk.MaxByteRange-1, proof, chunk.DataHash)
}

func verifyPath(id [32]byte, dest int64, path []byte, wantHash [32]byte) bool {
	for {
		if len(path) == hashSize+noteSize {
			dataHash := path[:hashSize]
			offsetBuf := path[hashSize : hashSize+noteSize]

			h1 := sha256.Sum256(dataHash)
			h2 := sha256.Sum256(offsetBuf)
			got := sha256.Sum256(append(append([]byte{}, h1[:]...), h2[:]...))

			if !bytes.Equal(got[:], id[:]) {
				return false
			}
			return bytes.Equal(dataHash, wantHash[:])
		}

		if len(path) < hashSize*2+noteSize {
			return false
		}
		left := path[:hashSize]
		right := path[hashSize : hashSize*2]
		offsetBuf := path[hashSize*2 : hashSize*2+noteSize]
		remainder := path[hashSize*2+noteSize:]

		lh := sha256.Sum256(left)
		rh := sha256.Sum256(right)
		oh := sha256.Sum256(offsetBuf)
		combined := append(append(append([]byte{}, lh[:]...), rh[:]...), oh[:]...)
		got := sha256.Sum256(combined)
		if !bytes.Equal(got[:], id[:]) {
			return false
		}

		offset := int64(binary.BigEndian.Uint64(offsetBuf[24:]))
		if dest < offset {
			var next [32]byte
			copy(next[:], left)
			id = next
		} else {
			var next [32]byte
			copy(next[:], right)
			id = next
		}
		path = remainder
	}
}

// CountChunks returns how many chunks chunkData produces for a payload
// of size bytes, without reading the payload.
func CountChunks(size int64) int64 {
	if size == 0 {
		return 0
	}
	full := size / MaxChunkSize
	rem := size % MaxChunkSize
	if rem == 0 {
		return full
	}
	if rem < MinChunkSize && full > 0 {
		return full + 1
	}
	return full + 1
}
