// Package pipeline orchestrates the bounded-concurrency upload engine:
// discover files, group them under a bundle size cap, build and bundle
// data items on a worker pool, build and sign the anchoring
// transaction, persist a status record before every network send, then
// POST.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/holiman/uint256"
	"github.com/inconshreveable/log15"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"

	"github.com/liteseed/arloader/internal/bundle"
	"github.com/liteseed/arloader/internal/codec"
	"github.com/liteseed/arloader/internal/dataitem"
	"github.com/liteseed/arloader/internal/gateway"
	"github.com/liteseed/arloader/internal/signer"
	"github.com/liteseed/arloader/internal/status"
	"github.com/liteseed/arloader/internal/tag"
	"github.com/liteseed/arloader/internal/transaction"
)

func encodeBase64(b []byte) string { return codec.Encode(b) }

// DefaultBuffer is the default number of bundles allowed in flight past
// discovery.
const DefaultBuffer = 10

// MiB is the unit --bundle-size is expressed in.
const MiB = 1024 * 1024

// DefaultBundleSize is 10 MiB; DocumentedMaxBundleSize is the 200 MiB
// ceiling a gateway will accept.
const (
	DefaultBundleSize       = 10 * MiB
	DocumentedMaxBundleSize = 200 * MiB
)

// SolanaCoSigner is the interface a Solana co-signer integration
// implements: given the deep hash digest, owner, and reward a
// transaction would be signed over, it returns a signature to attach
// instead of the wallet self-signing.
type SolanaCoSigner interface {
	CoSign(ctx context.Context, digest [48]byte, owner []byte, reward *uint256.Int) ([]byte, error)
}

// Input describes one file queued for upload.
type Input struct {
	Path string
	Tags []tag.Tag
}

// Config tunes one pipeline run.
type Config struct {
	BundleSize       int64          // bytes, see MiB
	RewardMultiplier float64        // in [0, 10]
	Buffer           int            // max bundles in flight past discovery
	WithSolana       SolanaCoSigner // nil disables co-signing
}

// BundleResult is the progress event published per bundle.
type BundleResult struct {
	GroupIndex  int
	ItemIDs     []string
	TxID        string
	Err         error
	Skipped     bool // true if the group was rejected at intake
	SkipReason  string
}

// Summary is returned when a run finishes, cancelled or not: a
// cancelled run returns a structured summary, never an error.
type Summary struct {
	Results   []BundleResult
	Cancelled bool
}

// Pipeline ties a signer, gateway, and status store together to run
// uploads.
type Pipeline struct {
	Signer  *signer.Signer
	Gateway *gateway.Client
	Status  *status.Store
	Log     log15.Logger
}

// New constructs a Pipeline.
func New(s *signer.Signer, g *gateway.Client, st *status.Store) *Pipeline {
	return &Pipeline{
		Signer:  s,
		Gateway: g,
		Status:  st,
		Log:     log15.New("component", "pipeline"),
	}
}

// Run executes the full upload pipeline over inputs and returns a
// structured summary. ctx cancellation is cooperative: in-flight
// bundles finish their current stage before the run ends.
func (p *Pipeline) Run(ctx context.Context, inputs []Input, cfg Config) (*Summary, error) {
	if cfg.BundleSize <= 0 {
		cfg.BundleSize = DefaultBundleSize
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}

	groups, skipped, err := p.discoverAndGroup(inputs, cfg.BundleSize)
	if err != nil {
		return nil, err
	}

	results := make([]BundleResult, len(groups)+len(skipped))
	copy(results, skipped)

	var wg sync.WaitGroup
	var mu sync.Mutex
	cancelled := false

	pool, err := ants.NewPoolWithFunc(cfg.Buffer, func(arg interface{}) {
		defer wg.Done()
		idx := arg.(int)
		res := p.processGroup(ctx, idx, groups[idx], cfg)
		mu.Lock()
		results[len(skipped)+idx] = res
		mu.Unlock()
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: create worker pool: %w", err)
	}
	defer pool.Release()

	for i := range groups {
		select {
		case <-ctx.Done():
			mu.Lock()
			cancelled = true
			mu.Unlock()
		default:
		}
		mu.Lock()
		isCancelled := cancelled
		mu.Unlock()
		if isCancelled {
			break
		}

		wg.Add(1)
		if err := pool.Invoke(i); err != nil {
			wg.Done()
			return nil, fmt.Errorf("pipeline: dispatch group %d: %w", i, err)
		}
	}
	wg.Wait()

	return &Summary{Results: results, Cancelled: cancelled}, nil
}

// discoverAndGroup reads every input's size and groups file paths under
// the bundle size cap, rejecting any single file that alone exceeds it.
func (p *Pipeline) discoverAndGroup(inputs []Input, bundleSize int64) ([][]Input, []BundleResult, error) {
	var accepted []Input
	var skipped []BundleResult

	for _, in := range inputs {
		fi, err := os.Stat(in.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("pipeline: stat %s: %w", in.Path, err)
		}
		if fi.Size() > bundleSize {
			skipped = append(skipped, BundleResult{
				Skipped:    true,
				SkipReason: fmt.Sprintf("%s exceeds bundle size cap", in.Path),
			})
			continue
		}
		accepted = append(accepted, in)
	}

	var groups [][]Input
	var current []Input
	var currentSize int64

	for _, in := range accepted {
		fi, err := os.Stat(in.Path)
		if err != nil {
			return nil, nil, err
		}
		if len(current) > 0 && currentSize+fi.Size() > bundleSize {
			groups = append(groups, current)
			current = nil
			currentSize = 0
		}
		current = append(current, in)
		currentSize += fi.Size()
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	return groups, skipped, nil
}

// EstimateResult is one group's dry-run cost estimate: no item
// building, signing, or posting, just the quoted winston price for the
// group's total size.
type EstimateResult struct {
	GroupIndex int
	NumFiles   int
	TotalBytes int64
	Price      string
	Skipped    bool
	SkipReason string
	Err        error
}

// Estimate runs discovery and grouping, then quotes a price per group,
// without building, signing, or posting anything: a dry run through the
// pipeline's first two stages, backing the estimate command.
func (p *Pipeline) Estimate(ctx context.Context, inputs []Input, cfg Config) ([]EstimateResult, error) {
	if cfg.BundleSize <= 0 {
		cfg.BundleSize = DefaultBundleSize
	}
	groups, skipped, err := p.discoverAndGroup(inputs, cfg.BundleSize)
	if err != nil {
		return nil, err
	}

	results := make([]EstimateResult, 0, len(groups)+len(skipped))
	for _, sk := range skipped {
		results = append(results, EstimateResult{Skipped: true, SkipReason: sk.SkipReason})
	}
	for idx, group := range groups {
		var total int64
		for _, in := range group {
			fi, err := os.Stat(in.Path)
			if err != nil {
				return nil, fmt.Errorf("pipeline: stat %s: %w", in.Path, err)
			}
			total += fi.Size()
		}
		price, err := p.Gateway.Price(ctx, total, "")
		if err != nil {
			results = append(results, EstimateResult{GroupIndex: idx, NumFiles: len(group), TotalBytes: total, Err: err})
			continue
		}
		results = append(results, EstimateResult{GroupIndex: idx, NumFiles: len(group), TotalBytes: total, Price: price})
	}
	return results, nil
}

// processGroup builds items in parallel for one group (joined in input
// order), packs the bundle, fetches price/anchor, builds and signs the
// transaction, then persists the status record before posting it.
func (p *Pipeline) processGroup(ctx context.Context, idx int, group []Input, cfg Config) BundleResult {
	items := make([]*dataitem.DataItem, len(group))
	buildErrs := make([]error, len(group))

	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	for i, in := range group {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, in Input) {
			defer wg.Done()
			defer func() { <-sem }()
			items[i], buildErrs[i] = p.buildItem(in)
		}(i, in)
	}
	wg.Wait()

	for i, err := range buildErrs {
		if err != nil {
			return BundleResult{GroupIndex: idx, Err: fmt.Errorf("build %s: %w", group[i].Path, err)}
		}
	}

	b, err := bundle.New(items)
	if err != nil {
		return BundleResult{GroupIndex: idx, Err: fmt.Errorf("pack bundle: %w", err)}
	}

	anchor, reward, err := p.prepareReward(ctx, int64(len(b.Raw)), cfg.RewardMultiplier)
	if err != nil {
		return BundleResult{GroupIndex: idx, Err: err}
	}

	tx, err := transaction.New(b.Raw, nil, nil, anchor, bundleTags())
	if err != nil {
		return BundleResult{GroupIndex: idx, Err: fmt.Errorf("build transaction: %w", err)}
	}
	tx.SetReward(reward)

	if err := p.signTransaction(ctx, tx, cfg, reward); err != nil {
		return BundleResult{GroupIndex: idx, Err: err}
	}

	itemIDs := make([]string, len(items))
	filePaths := make(map[string]string, len(items))
	for i, item := range items {
		itemIDs[i] = item.IDString()
		filePaths[group[i].Path] = item.IDString()
	}

	rec := status.NewRecord(tx.IDString(), "", int64(len(b.Raw)))
	rec.ManifestEntries = itemIDs
	rec.FilePaths = filePaths
	rec.NumberOfFiles = len(items)
	rec.Reward = tx.Reward.String()

	if err := p.submitTransaction(ctx, tx, rec, b.Raw, cfg.BundleSize); err != nil {
		return BundleResult{GroupIndex: idx, ItemIDs: itemIDs, TxID: tx.IDString(), Err: err}
	}

	return BundleResult{GroupIndex: idx, ItemIDs: itemIDs, TxID: tx.IDString()}
}

// RunRaw uploads each input as its own v2 transaction wrapping the raw
// file bytes directly: the --no-bundle path. It skips DataItem/bundle
// construction entirely and is not subject to discoverAndGroup's
// bundle-size intake cap — a file larger than --bundle-size is still
// accepted and uploaded chunked, per spec.md S4.
func (p *Pipeline) RunRaw(ctx context.Context, inputs []Input, cfg Config) (*Summary, error) {
	if cfg.BundleSize <= 0 {
		cfg.BundleSize = DefaultBundleSize
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}

	results := make([]BundleResult, len(inputs))

	var wg sync.WaitGroup
	var mu sync.Mutex
	cancelled := false

	pool, err := ants.NewPoolWithFunc(cfg.Buffer, func(arg interface{}) {
		defer wg.Done()
		idx := arg.(int)
		res := p.processRaw(ctx, idx, inputs[idx], cfg)
		mu.Lock()
		results[idx] = res
		mu.Unlock()
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: create worker pool: %w", err)
	}
	defer pool.Release()

	for i := range inputs {
		select {
		case <-ctx.Done():
			mu.Lock()
			cancelled = true
			mu.Unlock()
		default:
		}
		mu.Lock()
		isCancelled := cancelled
		mu.Unlock()
		if isCancelled {
			break
		}

		wg.Add(1)
		if err := pool.Invoke(i); err != nil {
			wg.Done()
			return nil, fmt.Errorf("pipeline: dispatch input %d: %w", i, err)
		}
	}
	wg.Wait()

	return &Summary{Results: results, Cancelled: cancelled}, nil
}

// processRaw builds and posts a single file as its own transaction: no
// DataItem, no bundle, Content-Type tagged instead of Bundle-Format.
func (p *Pipeline) processRaw(ctx context.Context, idx int, in Input, cfg Config) BundleResult {
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return BundleResult{GroupIndex: idx, Err: fmt.Errorf("read %s: %w", in.Path, err)}
	}
	if len(data) == 0 {
		return BundleResult{GroupIndex: idx, Skipped: true, SkipReason: fmt.Sprintf("%s is empty", in.Path)}
	}

	anchor, reward, err := p.prepareReward(ctx, int64(len(data)), cfg.RewardMultiplier)
	if err != nil {
		return BundleResult{GroupIndex: idx, Err: err}
	}

	tx, err := transaction.New(data, nil, nil, anchor, rawFileTags(in.Path, in.Tags))
	if err != nil {
		return BundleResult{GroupIndex: idx, Err: fmt.Errorf("build transaction: %w", err)}
	}
	tx.SetReward(reward)

	if err := p.signTransaction(ctx, tx, cfg, reward); err != nil {
		return BundleResult{GroupIndex: idx, Err: err}
	}

	rec := status.NewRecord(tx.IDString(), in.Path, int64(len(data)))
	rec.FilePaths = map[string]string{in.Path: tx.IDString()}
	rec.NumberOfFiles = 1
	rec.Reward = tx.Reward.String()

	if err := p.submitTransaction(ctx, tx, rec, data, cfg.BundleSize); err != nil {
		return BundleResult{GroupIndex: idx, TxID: tx.IDString(), Err: err}
	}

	return BundleResult{GroupIndex: idx, ItemIDs: []string{tx.IDString()}, TxID: tx.IDString()}
}

// rawFileTags builds the tag set for a --no-bundle transaction: a
// Content-Type guessed from the file's extension (falling back to
// application/octet-stream), followed by any caller-supplied tags.
func rawFileTags(path string, extra []tag.Tag) []tag.Tag {
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	tags := []tag.Tag{{Name: "Content-Type", Value: contentType}}
	return append(tags, extra...)
}

// prepareReward fetches the anchor and gateway price for a payload of
// the given size and scales the price by the configured reward
// multiplier.
func (p *Pipeline) prepareReward(ctx context.Context, payloadSize int64, multiplier float64) ([]byte, *uint256.Int, error) {
	anchorStr, err := p.Gateway.Anchor(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch anchor: %w", err)
	}
	anchor, err := codec.Decode(anchorStr)
	if err != nil {
		return nil, nil, fmt.Errorf("decode anchor: %w", err)
	}
	priceStr, err := p.Gateway.Price(ctx, payloadSize, "")
	if err != nil {
		return nil, nil, fmt.Errorf("fetch price: %w", err)
	}
	reward, err := applyRewardMultiplier(priceStr, multiplier)
	if err != nil {
		return nil, nil, fmt.Errorf("reward multiplier: %w", err)
	}
	return anchor, reward, nil
}

// signTransaction signs tx with the wallet signer, or with a Solana
// co-signer's returned signature when cfg.WithSolana is set.
func (p *Pipeline) signTransaction(ctx context.Context, tx *transaction.Transaction, cfg Config, reward *uint256.Int) error {
	if cfg.WithSolana == nil {
		if err := tx.Sign(p.Signer); err != nil {
			return fmt.Errorf("sign transaction: %w", err)
		}
		return nil
	}

	tx.Owner = p.Signer.OwnerBytes()
	digest, err := tx.Digest()
	if err != nil {
		return fmt.Errorf("transaction digest: %w", err)
	}
	sig, err := cfg.WithSolana.CoSign(ctx, digest, tx.Owner, reward)
	if err != nil {
		return fmt.Errorf("solana co-sign: %w", err)
	}
	if err := tx.ApplySignature(sig); err != nil {
		return fmt.Errorf("apply solana signature: %w", err)
	}
	return nil
}

// submitTransaction persists rec with status=Submitted before any
// network send, then POSTs tx, falling back from an inline body to a
// chunked upload on a 413 or when payload exceeds bundleSize. A
// permanent gateway failure flips rec to NotFound and re-persists it.
func (p *Pipeline) submitTransaction(ctx context.Context, tx *transaction.Transaction, rec *status.Record, payload []byte, bundleSize int64) error {
	if err := p.Status.Save(rec); err != nil {
		// The record must be on disk before any network send; a failure
		// here must not proceed to POST.
		return fmt.Errorf("persist status: %w", err)
	}

	omitData := int64(len(payload)) > bundleSize
	body, err := tx.EncodeJSON(omitData)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}

	code, postErr := p.Gateway.SubmitTransactionJSON(ctx, body)
	if code == 413 && !omitData {
		// Gateway rejected the inline body; fall back to a header-only
		// POST plus chunked upload.
		omitData = true
		body, err = tx.EncodeJSON(omitData)
		if err != nil {
			return fmt.Errorf("marshal transaction: %w", err)
		}
		code, postErr = p.Gateway.SubmitTransactionJSON(ctx, body)
	}
	if postErr == nil && code >= 400 {
		postErr = fmt.Errorf("gateway rejected transaction: %d", code)
	}
	if postErr != nil && code != 0 && code < 500 && code != 429 {
		rec.State = status.StateNotFound
		rec.LastError = postErr.Error()
		_ = p.Status.Save(rec)
		return postErr
	}
	if postErr != nil {
		return postErr
	}

	if omitData {
		if err := p.uploadChunks(ctx, tx, payload); err != nil {
			return fmt.Errorf("upload chunks: %w", err)
		}
	}
	return nil
}

// chunkUploadConcurrency bounds in-flight /chunk POSTs per bundle to
// 50 x 256 KiB.
const chunkUploadConcurrency = 50

func (p *Pipeline) uploadChunks(ctx context.Context, tx *transaction.Transaction, data []byte) error {
	tree := tx.Chunks()
	if tree == nil {
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(tree.Chunks))
	sem := make(chan struct{}, chunkUploadConcurrency)

	for i := range tree.Chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			chunk := tree.Chunks[i]
			proof := tree.Proofs[i]
			plan := gateway.ChunkUploadPlan{
				DataRoot: tx.DataRootString(),
				DataSize: tx.DataSize,
				DataPath: encodeBase64(proof.Proof),
				Offset:   fmt.Sprint(proof.Offset),
				Chunk:    encodeBase64(data[chunk.MinByteRange:chunk.MaxByteRange]),
			}
			payload, err := json.Marshal(plan)
			if err != nil {
				errs[i] = err
				return
			}
			if _, err := p.Gateway.SubmitChunkJSON(ctx, payload); err != nil {
				errs[i] = err
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	return nil
}

func (p *Pipeline) buildItem(in Input) (*dataitem.DataItem, error) {
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return nil, err
	}
	item, err := dataitem.New(data, nil, nil, in.Tags)
	if err != nil {
		return nil, err
	}
	if err := item.Sign(p.Signer); err != nil {
		return nil, err
	}
	return item, nil
}

func bundleTags() []tag.Tag {
	return []tag.Tag{
		{Name: "Bundle-Format", Value: "binary"},
		{Name: "Bundle-Version", Value: "2.0.0"},
	}
}

// applyRewardMultiplier scales a quoted winston price by a float
// multiplier in [0, 10], rounding to the nearest integer winston. A zero
// multiplier is treated as 1.
func applyRewardMultiplier(priceStr string, multiplier float64) (*uint256.Int, error) {
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	if multiplier == 0 {
		multiplier = 1
	}
	scaled := price.Mul(decimal.NewFromFloat(multiplier)).Round(0)

	reward, overflow := uint256.FromDecimal(scaled.String())
	if overflow != nil {
		return nil, fmt.Errorf("reward overflow: %w", overflow)
	}
	return reward, nil
}
