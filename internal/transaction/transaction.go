// Package transaction builds, signs, and verifies Arweave v2
// transactions: the on-chain anchor a bundle (or a single file's raw
// bytes) is submitted under.
package transaction

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/liteseed/arloader/internal/codec"
	"github.com/liteseed/arloader/internal/deephash"
	"github.com/liteseed/arloader/internal/merkle"
	"github.com/liteseed/arloader/internal/signer"
	"github.com/liteseed/arloader/internal/tag"
)

// Format is the only transaction format this package produces.
const Format = 2

// Transaction is a v2 Arweave transaction. Quantity and Reward are held
// as *uint256.Int (winston, the 10^-12 AR base unit) to avoid the
// precision loss a native integer type risks at AR's total supply.
type Transaction struct {
	Format    int
	ID        [32]byte
	LastTx    []byte // anchor: 0 bytes, or a previous tx id / recent block hash
	Owner     []byte
	Tags      []tag.Tag
	Target    []byte // 0 or 32 bytes
	Quantity  *uint256.Int
	Data      []byte
	Reward    *uint256.Int
	Signature []byte
	DataSize  int64
	DataRoot  [32]byte

	chunks *merkle.Tree
}

// New constructs an unsigned v2 transaction. Quantity and target are
// used for AR transfers; data-only uploads leave them zero/empty.
func New(data []byte, target []byte, quantity *uint256.Int, anchor []byte, tags []tag.Tag) (*Transaction, error) {
	if len(target) != 0 && len(target) != 32 {
		return nil, errors.New("transaction: target must be 0 or 32 bytes")
	}
	if err := tag.Validate(tags); err != nil {
		return nil, err
	}
	if quantity == nil {
		quantity = uint256.NewInt(0)
	}

	tx := &Transaction{
		Format:   Format,
		LastTx:   anchor,
		Tags:     tags,
		Target:   target,
		Quantity: quantity,
		Data:     data,
		Reward:   uint256.NewInt(0),
		DataSize: int64(len(data)),
	}

	if len(data) > 0 {
		tree, err := merkle.GenerateTree(data)
		if err != nil {
			return nil, fmt.Errorf("transaction: chunk data: %w", err)
		}
		tx.chunks = tree
		tx.DataRoot = tree.DataRoot
	}

	return tx, nil
}

// Chunks returns the Merkle tree computed over the transaction's data,
// or nil for a data-less (or not-yet-prepared) transaction.
func (tx *Transaction) Chunks() *merkle.Tree { return tx.chunks }

// SetReward sets the miner reward (network fee) in winston, as quoted by
// a gateway's /price endpoint.
func (tx *Transaction) SetReward(reward *uint256.Int) { tx.Reward = reward }

// Sign computes the transaction's signature data, signs it, and derives
// the transaction id.
func (tx *Transaction) Sign(s *signer.Signer) error {
	tx.Owner = s.OwnerBytes()
	digest, err := tx.signatureDigest()
	if err != nil {
		return err
	}

	sig, err := s.Sign(digest)
	if err != nil {
		return fmt.Errorf("transaction: sign: %w", err)
	}
	tx.Signature = sig
	tx.ID = sha256.Sum256(digest[:])
	return nil
}

// Verify checks a transaction's signature against its owner.
func (tx *Transaction) Verify() error {
	digest, err := tx.signatureDigest()
	if err != nil {
		return err
	}
	return signer.Verify(tx.Owner, digest, tx.Signature)
}

// Digest exposes the deep hash digest a signature must cover, for
// co-signing flows (e.g. a Solana co-signer) that produce the signature
// outside this package. tx.Owner must already be set.
func (tx *Transaction) Digest() ([48]byte, error) {
	return tx.signatureDigest()
}

// ApplySignature attaches a signature produced externally (e.g. by a
// co-signer) and derives the transaction id from the same deep-hash
// digest the external signer signed over. tx.Owner must already be set.
func (tx *Transaction) ApplySignature(sig []byte) error {
	digest, err := tx.signatureDigest()
	if err != nil {
		return err
	}
	tx.Signature = sig
	tx.ID = sha256.Sum256(digest[:])
	return nil
}

// signatureDigest builds the deep hash digest over
// List[Blob("2"), owner, target, quantity, reward, last_tx, tags,
// data_size, data_root], the v2 transaction signable form.
func (tx *Transaction) signatureDigest() ([48]byte, error) {
	if tx.Format != Format {
		return [48]byte{}, fmt.Errorf("transaction: unsupported format %d", tx.Format)
	}

	term := deephash.List{
		deephash.Blob("2"),
		deephash.Blob(tx.Owner),
		deephash.Blob(tx.Target),
		deephash.Blob([]byte(tx.Quantity.String())),
		deephash.Blob([]byte(tx.Reward.String())),
		deephash.Blob(tx.LastTx),
		tag.DeepHashList(tx.Tags),
		deephash.Blob([]byte(fmt.Sprint(tx.DataSize))),
		deephash.Blob(tx.DataRoot[:]),
	}
	return deephash.Hash(term), nil
}

// IDString and the other base64url string accessors mirror the wire
// encoding a gateway's JSON transaction format expects.
func (tx *Transaction) IDString() string { return codec.Encode(tx.ID[:]) }

func (tx *Transaction) OwnerString() string { return codec.Encode(tx.Owner) }

func (tx *Transaction) TargetString() string {
	if len(tx.Target) == 0 {
		return ""
	}
	return codec.Encode(tx.Target)
}

func (tx *Transaction) LastTxString() string {
	if len(tx.LastTx) == 0 {
		return ""
	}
	return codec.Encode(tx.LastTx)
}

func (tx *Transaction) SignatureString() string { return codec.Encode(tx.Signature) }

func (tx *Transaction) DataRootString() string {
	if tx.DataSize == 0 {
		return ""
	}
	return codec.Encode(tx.DataRoot[:])
}

func (tx *Transaction) DataString() string { return codec.Encode(tx.Data) }

// wireTransaction is the gateway's POST /tx JSON shape: every binary
// field base64url-encoded, quantity/reward as decimal winston strings.
type wireTransaction struct {
	Format    int       `json:"format"`
	ID        string    `json:"id"`
	LastTx    string    `json:"last_tx"`
	Owner     string    `json:"owner"`
	Tags      []wireTag `json:"tags"`
	Target    string    `json:"target"`
	Quantity  string    `json:"quantity"`
	Data      string    `json:"data"`
	Reward    string    `json:"reward"`
	Signature string    `json:"signature"`
	DataSize  string    `json:"data_size"`
	DataRoot  string    `json:"data_root"`
}

type wireTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EncodeJSON marshals a signed transaction into the gateway's POST /tx
// body, omitting Data when omitData is true for the chunked fallback.
func (tx *Transaction) EncodeJSON(omitData bool) ([]byte, error) {
	w := wireTransaction{
		Format:    tx.Format,
		ID:        tx.IDString(),
		LastTx:    tx.LastTxString(),
		Owner:     tx.OwnerString(),
		Target:    tx.TargetString(),
		Quantity:  tx.Quantity.String(),
		Reward:    tx.Reward.String(),
		Signature: tx.SignatureString(),
		DataSize:  fmt.Sprint(tx.DataSize),
		DataRoot:  tx.DataRootString(),
	}
	if !omitData {
		w.Data = tx.DataString()
	}
	for _, t := range tx.Tags {
		w.Tags = append(w.Tags, wireTag{
			Name:  codec.Encode([]byte(t.Name)),
			Value: codec.Encode([]byte(t.Value)),
		})
	}
	return json.Marshal(w)
}
