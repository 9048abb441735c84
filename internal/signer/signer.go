// Package signer manages an Arweave wallet's RSA-4096 keypair: loading it
// from a JWK wallet file, deriving the owner/address fields transactions
// and data items carry, and producing RSA-PSS-SHA256 signatures over deep
// hash digests.
package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"math/big"
	"os"

	"github.com/everFinance/gojwk"

	"github.com/liteseed/arloader/internal/codec"
)

// KeyBits is the RSA modulus size Arweave wallets use.
const KeyBits = 4096

// Signer holds an Arweave wallet's RSA keypair and its derived identity.
type Signer struct {
	Address    [32]byte
	PublicKey  *rsa.PublicKey
	PrivateKey *rsa.PrivateKey
}

// Generate creates a new Signer backed by a freshly generated RSA-4096
// key, suitable for wallet generation flows.
func Generate() (*Signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("signer: generate key: %w", err)
	}
	return fromPrivateKey(key), nil
}

// FromPath loads a Signer from a JWK wallet file on disk.
func FromPath(path string) (*Signer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signer: read wallet file: %w", err)
	}
	return FromJWK(b)
}

// FromJWK loads a Signer from JWK-encoded wallet bytes in memory.
func FromJWK(b []byte) (*Signer, error) {
	key, err := gojwk.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("signer: parse jwk: %w", err)
	}

	rawPriv, err := key.DecodePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("signer: decode private key: %w", err)
	}
	priv, ok := rawPriv.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signer: jwk is not an RSA private key")
	}

	return fromPrivateKey(priv), nil
}

func fromPrivateKey(priv *rsa.PrivateKey) *Signer {
	pub := &priv.PublicKey
	return &Signer{
		Address:    sha256.Sum256(pub.N.Bytes()),
		PublicKey:  pub,
		PrivateKey: priv,
	}
}

// Marshal serializes the Signer's private key as JWK bytes, for wallet
// generation flows that need to persist the new key to disk.
func (s *Signer) Marshal() ([]byte, error) {
	jwk, err := gojwk.PrivateKey(s.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("signer: marshal jwk: %w", err)
	}
	return gojwk.Marshal(jwk)
}

// Owner returns the base64url-encoded RSA modulus (512 bytes for a
// 4096-bit key), as carried in the `owner` field of transactions and
// data items.
func (s *Signer) Owner() string {
	return codec.Encode(ownerBytes(s.PublicKey))
}

// OwnerBytes returns the raw, left-padded 512-byte RSA modulus.
func (s *Signer) OwnerBytes() []byte {
	return ownerBytes(s.PublicKey)
}

func ownerBytes(pub *rsa.PublicKey) []byte {
	n := pub.N.Bytes()
	if len(n) == 512 {
		return n
	}
	padded := make([]byte, 512)
	copy(padded[512-len(n):], n)
	return padded
}

// AddressString returns the base64url-encoded wallet address.
func (s *Signer) AddressString() string {
	return codec.Encode(s.Address[:])
}

// Sign produces an RSA-PSS signature over a 48-byte deep hash digest
// using SHA-256 and a 32-byte salt.
func (s *Signer) Sign(digest [48]byte) ([]byte, error) {
	hashed := sha256.Sum256(digest[:])
	return rsa.SignPSS(rand.Reader, s.PrivateKey, crypto.SHA256, hashed[:], &rsa.PSSOptions{
		SaltLength: 32,
		Hash:       crypto.SHA256,
	})
}

// Verify checks an RSA-PSS signature over a deep hash digest against an
// owner's public key (given as the raw modulus bytes).
func Verify(ownerBytes []byte, digest [48]byte, signature []byte) error {
	pub := PublicKeyFromOwner(ownerBytes)
	hashed := sha256.Sum256(digest[:])
	return rsa.VerifyPSS(pub, crypto.SHA256, hashed[:], signature, &rsa.PSSOptions{
		SaltLength: 32,
		Hash:       crypto.SHA256,
	})
}

// PublicKeyFromOwner reconstructs an RSA public key from the raw owner
// modulus bytes, assuming Arweave's fixed public exponent.
func PublicKeyFromOwner(ownerBytes []byte) *rsa.PublicKey {
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(ownerBytes),
		E: 65537,
	}
}

// AddressFromOwner derives a wallet address (SHA-256 of the modulus) from
// raw owner bytes, for verifying transactions built by other signers.
func AddressFromOwner(ownerBytes []byte) [32]byte {
	return sha256.Sum256(ownerBytes)
}
