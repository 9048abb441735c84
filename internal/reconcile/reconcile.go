// Package reconcile rescans a status directory, queries the gateway for
// each record's current confirmation state, and rewrites the records
// that changed. It also selects the file set a reupload run should
// retry.
package reconcile

import (
	"context"
	"fmt"

	"github.com/inconshreveable/log15"

	"github.com/liteseed/arloader/internal/gateway"
	"github.com/liteseed/arloader/internal/status"
)

// Result is one record's outcome from a reconciliation pass.
type Result struct {
	ID      string
	Before  status.State
	After   status.State
	Changed bool
	Err     error
}

// Reconciler ties a gateway and a status store together for
// confirmation polling.
type Reconciler struct {
	Gateway *gateway.Client
	Status  *status.Store
	Log     log15.Logger
}

// New constructs a Reconciler.
func New(g *gateway.Client, st *status.Store) *Reconciler {
	return &Reconciler{
		Gateway: g,
		Status:  st,
		Log:     log15.New("component", "reconcile"),
	}
}

// Run queries every record currently on disk and rewrites the ones
// whose state changed. A reconciler run never decreases a record's
// observed confirmation count for a given id, unless the new state is
// NotFound.
func (r *Reconciler) Run(ctx context.Context) ([]Result, error) {
	records, err := r.Status.List()
	if err != nil {
		return nil, fmt.Errorf("reconcile: list records: %w", err)
	}

	results := make([]Result, 0, len(records))
	for _, rec := range records {
		results = append(results, r.reconcileOne(ctx, rec))
	}
	return results, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, rec *status.Record) Result {
	before := rec.State

	code, st, err := r.Gateway.StatusCode(ctx, rec.ID)
	if err != nil {
		r.Log.Warn("reconcile: status query failed", "id", rec.ID, "err", err)
		return Result{ID: rec.ID, Before: before, After: before, Err: err}
	}

	after := before
	switch {
	case code == 404:
		after = status.StateNotFound
	case code == 202:
		after = status.StatePending
	case code >= 200 && code < 300:
		after = status.StateConfirmed
		// Monotonic: never let a reconciliation pass regress a record's
		// observed confirmation count (spec testable property 8).
		if st.NumberOfConfs < rec.Confirmations {
			st.NumberOfConfs = rec.Confirmations
		}
		rec.Confirmations = st.NumberOfConfs
		rec.BlockHeight = st.BlockHeight
		rec.BlockIndepHash = st.BlockHash
	default:
		r.Log.Warn("reconcile: unexpected status code", "id", rec.ID, "code", code)
		return Result{ID: rec.ID, Before: before, After: before, Err: fmt.Errorf("reconcile: unexpected status code %d", code)}
	}

	if after == before && after != status.StateConfirmed {
		return Result{ID: rec.ID, Before: before, After: after}
	}

	rec.State = after
	if err := r.Status.Save(rec); err != nil {
		return Result{ID: rec.ID, Before: before, After: after, Err: fmt.Errorf("reconcile: persist %s: %w", rec.ID, err)}
	}
	r.Log.Info("reconcile: status transition", "id", rec.ID, "before", before, "after", after)
	return Result{ID: rec.ID, Before: before, After: after, Changed: after != before}
}

// ReuploadSelection names files that should be fed back into the
// pipeline: the union of (a) filePaths not covered by any record on
// disk and (b) records whose state is in statuses, or whose
// confirmation count is below maxConfirms.
type ReuploadSelection struct {
	Paths []string
}

// SelectForReupload implements the reupload selection rule.
func (r *Reconciler) SelectForReupload(filePaths []string, wantStatuses []status.State, maxConfirms int64) (*ReuploadSelection, error) {
	records, err := r.Status.List()
	if err != nil {
		return nil, fmt.Errorf("reconcile: list records: %w", err)
	}

	wanted := make(map[status.State]bool, len(wantStatuses))
	for _, s := range wantStatuses {
		wanted[s] = true
	}

	covered := make(map[string]bool)
	selected := make(map[string]bool)
	for _, rec := range records {
		for path := range rec.FilePaths {
			covered[path] = true
		}
		if wanted[rec.State] || rec.Confirmations < maxConfirms {
			for path := range rec.FilePaths {
				selected[path] = true
			}
		}
	}

	for _, path := range filePaths {
		if !covered[path] {
			selected[path] = true
		}
	}

	// Preserve --file-paths order first, then append any path selected
	// purely from a status record (not named on this run's --file-paths
	// but still eligible for reupload consideration).
	out := &ReuploadSelection{}
	emitted := make(map[string]bool, len(selected))
	for _, path := range filePaths {
		if selected[path] && !emitted[path] {
			out.Paths = append(out.Paths, path)
			emitted[path] = true
		}
	}
	for path := range selected {
		if !emitted[path] {
			out.Paths = append(out.Paths, path)
			emitted[path] = true
		}
	}

	return out, nil
}
