// Package wallet ties a signer, a gateway client, the upload pipeline,
// and the reconciler into one façade behind a single type.
package wallet

import (
	"context"

	"github.com/liteseed/arloader/internal/gateway"
	"github.com/liteseed/arloader/internal/pipeline"
	"github.com/liteseed/arloader/internal/reconcile"
	"github.com/liteseed/arloader/internal/signer"
	"github.com/liteseed/arloader/internal/status"
)

// Wallet is the top-level handle a CLI command reaches for: a signer
// backing one Arweave keypair, a gateway client, and the pipeline and
// reconciler built on top of them.
type Wallet struct {
	Signer    *signer.Signer
	Gateway   *gateway.Client
	Status    *status.Store
	Pipeline  *pipeline.Pipeline
	Reconcile *reconcile.Reconciler
}

// New builds a Wallet from a signer already loaded (or generated) by
// the caller, a gateway base URL, and a status directory on disk.
func New(s *signer.Signer, gatewayURL, statusDir string) (*Wallet, error) {
	st, err := status.New(statusDir)
	if err != nil {
		return nil, err
	}
	gw := gateway.New(gatewayURL)
	return &Wallet{
		Signer:    s,
		Gateway:   gw,
		Status:    st,
		Pipeline:  pipeline.New(s, gw, st),
		Reconcile: reconcile.New(gw, st),
	}, nil
}

// FromPath loads a wallet's JWK keypair from disk and builds a Wallet
// around it.
func FromPath(keypairPath, gatewayURL, statusDir string) (*Wallet, error) {
	s, err := signer.FromPath(keypairPath)
	if err != nil {
		return nil, err
	}
	return New(s, gatewayURL, statusDir)
}

// Upload runs the bundled pipeline over inputs with cfg, and is the
// entry point the upload, upload-manifest, and reupload commands
// delegate to.
func (w *Wallet) Upload(ctx context.Context, inputs []pipeline.Input, cfg pipeline.Config) (*pipeline.Summary, error) {
	return w.Pipeline.Run(ctx, inputs, cfg)
}

// UploadRaw runs the pipeline's --no-bundle path over inputs, wrapping
// each file's raw bytes in its own transaction instead of an ANS-104
// data item packed into a bundle.
func (w *Wallet) UploadRaw(ctx context.Context, inputs []pipeline.Input, cfg pipeline.Config) (*pipeline.Summary, error) {
	return w.Pipeline.RunRaw(ctx, inputs, cfg)
}

// Estimate runs a dry-run pass through grouping and price lookup,
// backing the estimate command.
func (w *Wallet) Estimate(ctx context.Context, inputs []pipeline.Input, cfg pipeline.Config) ([]pipeline.EstimateResult, error) {
	return w.Pipeline.Estimate(ctx, inputs, cfg)
}

// ReconcileStatuses runs one reconciliation pass over every record in
// the status directory, backing the update-status command.
func (w *Wallet) ReconcileStatuses(ctx context.Context) ([]reconcile.Result, error) {
	return w.Reconcile.Run(ctx)
}

// SelectReupload applies the reupload selection rule over the current
// status directory, backing the reupload command.
func (w *Wallet) SelectReupload(filePaths []string, statuses []status.State, maxConfirms int64) (*reconcile.ReuploadSelection, error) {
	return w.Reconcile.SelectForReupload(filePaths, statuses, maxConfirms)
}

// Balance fetches this wallet's confirmed winston balance, backing the
// balance command.
func (w *Wallet) Balance(ctx context.Context) (string, error) {
	return w.Gateway.WalletBalance(ctx, w.Signer.AddressString())
}

// Pending lists transaction ids currently in the gateway's mempool,
// backing the pending command.
func (w *Wallet) Pending(ctx context.Context) ([]string, error) {
	return w.Gateway.PendingTransactionIDs(ctx)
}

// ListStatuses returns every status record on disk, backing the
// list-status command.
func (w *Wallet) ListStatuses() ([]*status.Record, error) {
	return w.Status.List()
}

// GetStatus returns one status record by transaction id, backing the
// get-status command.
func (w *Wallet) GetStatus(id string) (*status.Record, error) {
	return w.Status.Load(id)
}
