package catalogstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/genomax/protocol-engine/internal/domain"
)

// FileSource loads a catalog snapshot from a JSON document on disk. Fetching
// a live external catalog feed is explicitly out of scope; this is the
// concrete Source the process entrypoint wires by default, and the shape a
// future HTTP-backed Source would also produce.
type FileSource struct {
	Path string
}

// NewFileSource builds a FileSource reading from path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// catalogDocument is the on-disk shape: a version stamp plus the SKU rows.
type catalogDocument struct {
	Version string              `json:"version"`
	Skus    []domain.CatalogSKU `json:"skus"`
}

// Load reads and parses the catalog document. A missing or malformed file is
// a load failure, counted by the circuit breaker like any other source
// error.
func (f *FileSource) Load(ctx context.Context) (Snapshot, error) {
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	default:
	}

	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("catalogstore: reading %s: %w", f.Path, err)
	}

	var doc catalogDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("catalogstore: parsing %s: %w", f.Path, err)
	}
	if doc.Version == "" {
		return Snapshot{}, fmt.Errorf("catalogstore: %s missing catalog version", f.Path)
	}

	return Snapshot{Version: doc.Version, Skus: doc.Skus}, nil
}

// StaticSource serves a fixed, in-memory snapshot. Used by tests and by
// deployments that bake the catalog into the binary rather than reading it
// from disk.
type StaticSource struct {
	snapshot Snapshot
}

// NewStaticSource builds a StaticSource from an already-built snapshot.
func NewStaticSource(version string, skus []domain.CatalogSKU) *StaticSource {
	return &StaticSource{snapshot: Snapshot{Version: version, Skus: skus}}
}

// Load returns the fixed snapshot.
func (s *StaticSource) Load(ctx context.Context) (Snapshot, error) {
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	default:
	}
	return s.snapshot, nil
}
