// Package status persists one JSON record per upload in a status
// directory, keyed by transaction id, using a crash-safe write-temp ->
// fsync -> rename -> fsync-dir commit sequence.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// State is the lifecycle stage a tracked upload is in.
type State string

const (
	// StateSubmitted is written before the network POST and left in
	// place if the POST succeeds.
	StateSubmitted State = "submitted"
	// StatePending means the gateway has accepted the transaction but
	// it has not yet appeared in a block.
	StatePending State = "pending"
	// StateConfirmed means the transaction is in a block; Confirmations
	// holds the observed count.
	StateConfirmed State = "confirmed"
	// StateNotFound is terminal-for-retry: the gateway dropped the
	// transaction or returned 404 on status lookup.
	StateNotFound State = "not_found"
)

// Record is the persisted state for one upload transaction: its
// transaction id, the files it carried, and its last known gateway
// status.
type Record struct {
	ID              string            `json:"id"`
	BundledIn       string            `json:"bundled_in,omitempty"`
	State           State             `json:"state"`
	Attempts        int               `json:"attempts"`
	LastError       string            `json:"last_error,omitempty"`
	Confirmations   int64             `json:"number_of_confirmations,omitempty"`
	BlockHeight     int64             `json:"block_height,omitempty"`
	BlockIndepHash  string            `json:"block_indep_hash,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"last_modified"`
	SourcePath      string            `json:"source_path,omitempty"`
	Size            int64             `json:"data_size"`
	Reward          string            `json:"reward,omitempty"`
	FilePaths       map[string]string `json:"file_paths,omitempty"`
	NumberOfFiles   int               `json:"number_of_files"`
	ManifestEntries []string          `json:"manifest_entries,omitempty"`
}

// Store reads and writes Records under a directory, one file per id
// named "<id>.json".
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating it if it does not exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("status: create directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save atomically writes r to disk, overwriting any prior record for
// the same id.
func (s *Store) Save(r *Record) error {
	r.UpdatedAt = timeNow()
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("status: marshal record %s: %w", r.ID, err)
	}
	b = append(b, '\n')

	final := s.path(r.ID)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("status: open tmp for %s: %w", r.ID, err)
	}
	_, werr := f.Write(b)
	serr := f.Sync()
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("status: write tmp for %s: %w", r.ID, werr)
	}
	if serr != nil {
		return fmt.Errorf("status: fsync tmp for %s: %w", r.ID, serr)
	}
	if cerr != nil {
		return fmt.Errorf("status: close tmp for %s: %w", r.ID, cerr)
	}

	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("status: rename for %s: %w", r.ID, err)
	}

	d, err := os.Open(s.dir)
	if err != nil {
		return fmt.Errorf("status: open dir for fsync: %w", err)
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return fmt.Errorf("status: fsync dir: %w", err)
	}
	return d.Close()
}

// Load reads the record for id, or os.ErrNotExist if it has never been
// saved.
func (s *Store) Load(id string) (*Record, error) {
	b, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("status: unmarshal record %s: %w", id, err)
	}
	return &r, nil
}

// List returns every record currently on disk, in directory order.
func (s *Store) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("status: read directory: %w", err)
	}

	var records []*Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		r, err := s.Load(id)
		if err != nil {
			continue // a record mid-write (still only ".tmp") is simply not yet visible
		}
		records = append(records, r)
	}
	return records, nil
}

// ListByState returns every record whose State matches want.
func (s *Store) ListByState(want State) ([]*Record, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var matched []*Record
	for _, r := range all {
		if r.State == want {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// NewRecord starts a Submitted record for an upload whose transaction
// id has just been computed, ahead of the network POST: the id must be
// on disk before it is ever sent.
func NewRecord(id, sourcePath string, size int64) *Record {
	now := timeNow()
	return &Record{
		ID:         id,
		State:      StateSubmitted,
		CreatedAt:  now,
		UpdatedAt:  now,
		SourcePath: sourcePath,
		Size:       size,
	}
}

// timeNow is a seam so tests can freeze time without touching the
// package's exported surface.
var timeNow = time.Now
