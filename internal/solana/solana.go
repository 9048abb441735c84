// Package solana implements the Solana co-signer RPC client: a black
// box the core sends (deep_hash_digest, owner, reward) to and gets
// back a signature to attach in place of the wallet self-signing.
// Nothing about Solana transaction construction, accounts, or program
// calls lives here, only the wire shape the upload pipeline touches.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/holiman/uint256"

	"github.com/liteseed/arloader/internal/codec"
)

// Client is a co-signer RPC client bound to one payer keypair's public
// key (base58-encoded, as every Solana address is).
type Client struct {
	url        string
	payerPub   []byte
	httpClient *http.Client
}

// New constructs a Client. payerPub is the Solana payer's raw 32-byte
// ed25519 public key.
func New(url string, payerPub []byte) *Client {
	return &Client{
		url:        url,
		payerPub:   payerPub,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type coSignRequest struct {
	DeepHashDigest string `json:"deep_hash_digest"`
	Owner          string `json:"owner"`
	Reward         string `json:"reward"`
	PayerPubkey    string `json:"payer_pubkey"`
}

type coSignResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error"`
}

// CoSign implements pipeline.SolanaCoSigner: it hands the co-signer the
// digest a transaction's signature must cover, the Arweave owner
// bytes, and the quoted reward, and returns the signature the
// co-signer produced. The co-signer's own accounting (funding via the
// sol payment tag, how it derives the signature) is opaque to this
// client.
func (c *Client) CoSign(ctx context.Context, digest [48]byte, owner []byte, reward *uint256.Int) ([]byte, error) {
	req := coSignRequest{
		DeepHashDigest: codec.Encode(digest[:]),
		Owner:          codec.Encode(owner),
		Reward:         reward.String(),
		PayerPubkey:    base58.Encode(c.payerPub),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("solana: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("solana: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("solana: co-sign request: %w", err)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("solana: read response: %w", err)
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("solana: co-signer returned %d: %s", res.StatusCode, string(respBody))
	}

	var parsed coSignResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("solana: parse response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("solana: co-signer error: %s", parsed.Error)
	}
	if parsed.Signature == "" {
		return nil, fmt.Errorf("solana: co-signer returned no signature")
	}

	sig := base58.Decode(parsed.Signature)
	if len(sig) == 0 {
		return nil, fmt.Errorf("solana: co-signer returned unparseable signature")
	}
	return sig, nil
}

// PayerAddress returns the base58-encoded payer public key this client
// was constructed with.
func (c *Client) PayerAddress() string { return base58.Encode(c.payerPub) }
