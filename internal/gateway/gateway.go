// Package gateway talks to an Arweave HTTP gateway: pricing and anchor
// lookups, transaction and chunk submission, status polling, and
// wallet/network queries, all wrapped in a retry/backoff policy for
// transient failures.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/tidwall/gjson"
	"gopkg.in/h2non/gentleman.v2"

	"github.com/liteseed/arloader/internal/merkle"
)

// Retry/backoff tuning: base delay doubles each attempt up to a cap,
// jittered by +/-25%, abandoned after MaxAttempts.
const (
	baseDelay    = 2 * time.Second
	capDelay     = 32 * time.Second
	jitterFrac   = 0.25
	MaxAttempts  = 10
	requestTimeo = 60 * time.Second
)

// fatalChunkErrors are gateway error codes that will never succeed on
// retry.
var fatalChunkErrors = map[string]bool{
	"invalid_json":                     true,
	"chunk_too_big":                    true,
	"data_path_too_big":                true,
	"offset_too_big":                   true,
	"data_size_too_big":                true,
	"chunk_proof_ratio_not_attractive": true,
	"invalid_proof":                    true,
}

// Status describes a transaction's confirmation state, as returned by
// GET /tx/{id}/status.
type Status struct {
	Pending       bool
	Confirmed     bool
	NumberOfConfs int64
	BlockHeight   int64
	BlockHash     string
}

// NetworkInfo mirrors the GET /info response.
type NetworkInfo struct {
	Height  int64
	Current string
	Peers   int64
}

// Client is an Arweave gateway HTTP client.
type Client struct {
	base *gentleman.Client
	url  string
	log  log15.Logger
	rand *rand.Rand

	baseDelay time.Duration
	capDelay  time.Duration
}

// New constructs a gateway client rooted at baseURL (e.g.
// "https://arweave.net").
func New(baseURL string) *Client {
	c := gentleman.New()
	c.URL(baseURL)
	c.Request().Timeout(requestTimeo)

	return &Client{
		base:      c,
		url:       baseURL,
		log:       log15.New("component", "gateway", "url", baseURL),
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
		baseDelay: baseDelay,
		capDelay:  capDelay,
	}
}

// FatalChunkError reports whether a gateway chunk-upload error code is
// permanent and should not be retried.
func FatalChunkError(code string) bool { return fatalChunkErrors[code] }

// Price quotes the winston cost to store size bytes of data, optionally
// to a specific target address.
func (c *Client) Price(ctx context.Context, size int64, target string) (string, error) {
	path := fmt.Sprintf("/price/%d", size)
	if target != "" {
		path = fmt.Sprintf("%s/%s", path, target)
	}
	body, err := c.doWithRetry(ctx, "GET", path, nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Anchor retrieves a fresh transaction anchor.
func (c *Client) Anchor(ctx context.Context) (string, error) {
	body, err := c.doWithRetry(ctx, "GET", "/tx_anchor", nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// SubmitTransactionJSON posts a transaction's JSON encoding, returning
// the HTTP status code.
func (c *Client) SubmitTransactionJSON(ctx context.Context, body []byte) (int, error) {
	return c.postWithRetry(ctx, "/tx", body)
}

// SubmitChunkJSON posts one {data_root, data_size, data_path, offset,
// chunk} JSON payload.
func (c *Client) SubmitChunkJSON(ctx context.Context, body []byte) (int, error) {
	return c.postWithRetry(ctx, "/chunk", body)
}

// Status fetches the confirmation status for a transaction id. It
// treats any non-2xx response as an error; callers that must
// distinguish 404 (dropped) from 202 (pending) from 2xx (confirmed),
// like the reconciler, use StatusCode instead.
func (c *Client) Status(ctx context.Context, id string) (*Status, error) {
	body, err := c.doWithRetry(ctx, "GET", fmt.Sprintf("/tx/%s/status", id), nil)
	if err != nil {
		return nil, err
	}
	result := gjson.ParseBytes(body)
	return &Status{
		Confirmed:     result.Get("number_of_confirmations").Exists(),
		NumberOfConfs: result.Get("number_of_confirmations").Int(),
		BlockHeight:   result.Get("block_height").Int(),
		BlockHash:     result.Get("block_indep_hash").String(),
	}, nil
}

// StatusCode fetches GET /tx/{id}/status and returns the raw HTTP
// status code alongside any parsed confirmation fields, without
// collapsing 404/202/2xx into a single error/success split the way
// Status does. 5xx and 429 responses are still retried with backoff;
// 404 and 202 are returned as successful calls carrying that code.
func (c *Client) StatusCode(ctx context.Context, id string) (int, *Status, error) {
	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt); err != nil {
				return 0, nil, err
			}
		}

		req := c.base.Request().Method("GET").Path(fmt.Sprintf("/tx/%s/status", id)).Context(ctx)
		res, err := req.Send()
		if err != nil {
			lastErr = err
			c.log.Warn("gateway status request failed", "id", id, "attempt", attempt, "err", err)
			continue
		}
		if res.StatusCode >= 500 || res.StatusCode == 429 {
			lastErr = fmt.Errorf("gateway: %d", res.StatusCode)
			c.log.Warn("gateway status transient error", "id", id, "status", res.StatusCode, "attempt", attempt)
			continue
		}

		body := res.Bytes()
		result := gjson.ParseBytes(body)
		return res.StatusCode, &Status{
			Confirmed:     res.StatusCode >= 200 && res.StatusCode < 300 && result.Get("number_of_confirmations").Exists(),
			NumberOfConfs: result.Get("number_of_confirmations").Int(),
			BlockHeight:   result.Get("block_height").Int(),
			BlockHash:     result.Get("block_indep_hash").String(),
		}, nil
	}
	return 0, nil, fmt.Errorf("gateway: giving up after %d attempts: %w", MaxAttempts, lastErr)
}

// NetworkInfo fetches current network height/peer statistics.
func (c *Client) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	body, err := c.doWithRetry(ctx, "GET", "/info", nil)
	if err != nil {
		return nil, err
	}
	result := gjson.ParseBytes(body)
	return &NetworkInfo{
		Height:  result.Get("height").Int(),
		Current: result.Get("current").String(),
		Peers:   result.Get("peers").Int(),
	}, nil
}

// WalletBalance fetches a wallet's confirmed balance in winston.
func (c *Client) WalletBalance(ctx context.Context, address string) (string, error) {
	body, err := c.doWithRetry(ctx, "GET", fmt.Sprintf("/wallet/%s/balance", address), nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// LastTransactionID fetches the most recent transaction id sent from a
// wallet address.
func (c *Client) LastTransactionID(ctx context.Context, address string) (string, error) {
	body, err := c.doWithRetry(ctx, "GET", fmt.Sprintf("/wallet/%s/last_tx", address), nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// PendingTransactionIDs lists transaction ids currently in the mempool.
func (c *Client) PendingTransactionIDs(ctx context.Context) ([]string, error) {
	body, err := c.doWithRetry(ctx, "GET", "/tx/pending", nil)
	if err != nil {
		return nil, err
	}
	var ids []string
	gjson.ParseBytes(body).ForEach(func(_, v gjson.Result) bool {
		ids = append(ids, v.String())
		return true
	})
	return ids, nil
}

// ChunkUploadPlan describes one chunk ready to POST to /chunk, in the
// shape a gateway expects: base64url data root/size/path/offset/chunk
// are assembled by the caller (internal/pipeline) from merkle.Tree and
// merkle.Proof, this type only documents the field names used.
type ChunkUploadPlan struct {
	DataRoot string `json:"data_root"`
	DataSize int64  `json:"data_size,string"`
	DataPath string `json:"data_path"`
	Offset   string `json:"offset"`
	Chunk    string `json:"chunk"`
}

// CountChunks is re-exported for callers that only import gateway.
func CountChunks(size int64) int64 { return merkle.CountChunks(size) }

func (c *Client) doWithRetry(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req := c.base.Request().Method(method).Path(path)
		if body != nil {
			req = req.Body(bytes.NewReader(body)).SetHeader("Content-Type", "application/json")
		}
		req = req.Context(ctx)

		res, err := req.Send()
		if err != nil {
			lastErr = err
			c.log.Warn("gateway request failed", "method", method, "path", path, "attempt", attempt, "err", err)
			continue
		}
		respBody := res.Bytes()
		if res.StatusCode >= 500 || res.StatusCode == 429 {
			lastErr = fmt.Errorf("gateway: %d: %s", res.StatusCode, string(respBody))
			c.log.Warn("gateway transient error", "method", method, "path", path, "status", res.StatusCode, "attempt", attempt)
			continue
		}
		if res.StatusCode >= 400 {
			return nil, fmt.Errorf("gateway: %d: %s", res.StatusCode, string(respBody))
		}
		return respBody, nil
	}
	return nil, fmt.Errorf("gateway: giving up after %d attempts: %w", MaxAttempts, lastErr)
}

func (c *Client) postWithRetry(ctx context.Context, path string, body []byte) (int, error) {
	var lastErr error
	var lastStatus int
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt); err != nil {
				return lastStatus, err
			}
		}

		req := c.base.Request().Method("POST").Path(path).
			Body(bytes.NewReader(body)).
			SetHeader("Content-Type", "application/json").
			Context(ctx)

		res, err := req.Send()
		if err != nil {
			lastErr = err
			c.log.Warn("gateway post failed", "path", path, "attempt", attempt, "err", err)
			continue
		}
		lastStatus = res.StatusCode
		if res.StatusCode >= 500 || res.StatusCode == 429 {
			lastErr = fmt.Errorf("gateway: %d: %s", res.StatusCode, string(res.Bytes()))
			c.log.Warn("gateway post transient error", "path", path, "status", res.StatusCode, "attempt", attempt)
			continue
		}
		if errCode := gjson.GetBytes(res.Bytes(), "error").String(); fatalChunkErrors[errCode] {
			return res.StatusCode, fmt.Errorf("gateway: fatal chunk error %q", errCode)
		}
		return res.StatusCode, nil
	}
	return lastStatus, fmt.Errorf("gateway: giving up after %d attempts: %w", MaxAttempts, lastErr)
}

// wait sleeps the exponential-backoff delay for the given attempt
// number, jittered by +/-25%, unless ctx is cancelled first.
func (c *Client) wait(ctx context.Context, attempt int) error {
	delay := c.baseDelay * time.Duration(1<<uint(attempt-1))
	if delay > c.capDelay {
		delay = c.capDelay
	}
	jitter := time.Duration(float64(delay) * jitterFrac * (2*c.rand.Float64() - 1))
	delay += jitter
	if delay < 0 {
		delay = 0
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
