// Package manifest builds an Arweave path manifest (the "arweave/paths"
// v0.1.0 format gateways resolve subpaths through) and the local
// manifest_<txid>.json companion the upload-manifest command leaves
// behind, grounded on the bundle packer's per-item id tracking and the
// tag codec's content-type tagging.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/liteseed/arloader/internal/tag"
)

// ContentType is the tag value a manifest transaction/data item must
// carry for a gateway to resolve subpaths through it.
const ContentType = "application/x.arweave-manifest+json"

// PathEntry is one file's resolved transaction/data item id.
type PathEntry struct {
	ID string `json:"id"`
}

// Index names the path served when a manifest's root is requested
// without a subpath.
type Index struct {
	Path string `json:"path"`
}

// Manifest is the on-chain "arweave/paths" document.
type Manifest struct {
	Manifest string               `json:"manifest"`
	Version  string               `json:"version"`
	Index    *Index               `json:"index,omitempty"`
	Paths    map[string]PathEntry `json:"paths"`
}

// Build constructs a manifest from a path -> id map. indexPath, if
// non-empty, must itself be a key of entries.
func Build(entries map[string]string, indexPath string) (*Manifest, error) {
	if indexPath != "" {
		if _, ok := entries[indexPath]; !ok {
			return nil, fmt.Errorf("manifest: index path %q not present in entries", indexPath)
		}
	}

	m := &Manifest{
		Manifest: "arweave/paths",
		Version:  "0.1.0",
		Paths:    make(map[string]PathEntry, len(entries)),
	}
	for path, id := range entries {
		m.Paths[path] = PathEntry{ID: id}
	}
	if indexPath != "" {
		m.Index = &Index{Path: indexPath}
	}
	return m, nil
}

// Encode marshals the manifest as the JSON document a transaction's
// data carries.
func (m *Manifest) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Tag returns the Content-Type tag an upload-manifest transaction or
// data item must carry for gateways to serve it as a path manifest.
func Tag() tag.Tag {
	return tag.Tag{Name: "Content-Type", Value: ContentType}
}

// WriteCompanion writes the local manifest_<txid>.json file the
// upload-manifest command leaves beside a run, a convenience record
// rather than a crash-recovery artifact (the status store already
// covers that), so a plain write suffices.
func WriteCompanion(dir, txID string, m *Manifest) (string, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("manifest: marshal companion: %w", err)
	}
	b = append(b, '\n')

	path := filepath.Join(dir, fmt.Sprintf("manifest_%s.json", txID))
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return "", fmt.Errorf("manifest: write companion: %w", err)
	}
	return path, nil
}
