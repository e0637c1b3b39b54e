// Package artifactstore persists every fetched payload, valid or not,
// before normalization ever runs (spec §4.3: "this write must complete
// before normalization so that malformed payloads survive crashes").
// It is write-only from the fetch path and read-only from an external
// replay tool. Grounded on the teacher's artifacts/manifest package:
// the same atomic write-via-tempfile-then-rename pattern and an
// in-memory index built from the on-disk manifest, narrowed from a
// generic multi-family build-artifact index down to one family (raw
// scrape payloads) keyed by artifactId.
package artifactstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/brewradar/coffeescan/internal/model"
)

// Index is the append-only manifest of every artifact's metadata
// (payload bytes are stored in separate content-addressed files, not
// inline, since a single JSON index holding 5MiB bodies would defeat
// the point of streaming large ones).
type Index struct {
	Entries []model.RawArtifact `json:"entries"`
}

// Store writes raw artifacts to baseDir/payloads/<hash> and records
// their metadata in baseDir/index.json.
type Store struct {
	mu      sync.Mutex
	baseDir string
	index   Index
	byID    map[string]*model.RawArtifact
}

// Open loads an existing store rooted at baseDir, creating it if absent.
func Open(baseDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "payloads"), 0o755); err != nil {
		return nil, fmt.Errorf("artifactstore: creating %s: %w", baseDir, err)
	}
	s := &Store{baseDir: baseDir, byID: make(map[string]*model.RawArtifact)}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) indexPath() string { return filepath.Join(s.baseDir, "index.json") }

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("artifactstore: reading index: %w", err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("artifactstore: parsing index: %w", err)
	}
	s.index = idx
	for i := range s.index.Entries {
		s.byID[s.index.Entries[i].ArtifactID] = &s.index.Entries[i]
	}
	return nil
}

// saveIndex writes the index atomically: temp file, fsync, rename.
func (s *Store) saveIndex() error {
	tmp := s.indexPath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("artifactstore: creating temp index: %w", err)
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(s.index); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("artifactstore: encoding index: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("artifactstore: syncing index: %w", err)
	}
	f.Close()
	return os.Rename(tmp, s.indexPath())
}

func hashPayload(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (s *Store) payloadPath(hash string) string {
	return filepath.Join(s.baseDir, "payloads", hash)
}

// PersistRaw writes artifact's payload (or honors a pre-set
// RawPayloadRef when the caller supplies one; the fetcher never does,
// since it fails oversized bodies instead of storing them) and records
// its metadata.
// Append-only: an artifact with an already-seen RawPayloadHash is not
// rewritten, only re-indexed under a new ArtifactID, since spec §3
// requires artifacts be immutable and append-only even for byte-equal
// repeats across runs.
func (s *Store) PersistRaw(ctx context.Context, artifact model.RawArtifact) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if artifact.ArtifactID == "" {
		artifact.ArtifactID = uuid.NewString()
	}

	if artifact.RawPayloadRef == "" && len(artifact.RawPayload) > 0 {
		hash := hashPayload(artifact.RawPayload)
		artifact.RawPayloadHash = hash
		path := s.payloadPath(hash)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, artifact.RawPayload, 0o644); err != nil {
				return "", fmt.Errorf("artifactstore: writing payload: %w", err)
			}
		}
		artifact.RawPayloadRef = path
		artifact.RawPayload = nil // index holds metadata only, not the bytes twice
	}

	s.index.Entries = append(s.index.Entries, artifact)
	s.byID[artifact.ArtifactID] = &s.index.Entries[len(s.index.Entries)-1]

	if err := s.saveIndex(); err != nil {
		return "", err
	}
	return artifact.ArtifactID, nil
}

// Get returns the metadata for artifactId, without loading payload bytes.
func (s *Store) Get(artifactID string) (*model.RawArtifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[artifactID]
	return a, ok
}

// LoadPayload reads the payload bytes referenced by artifact, for the
// external replay tool.
func (s *Store) LoadPayload(artifact *model.RawArtifact) ([]byte, error) {
	if artifact.RawPayloadRef == "" {
		return nil, fmt.Errorf("artifactstore: artifact %s has no payload reference", artifact.ArtifactID)
	}
	return os.ReadFile(artifact.RawPayloadRef)
}

// ByRoaster returns every artifact recorded for roasterID, newest first.
func (s *Store) ByRoaster(roasterID string) []model.RawArtifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RawArtifact
	for i := len(s.index.Entries) - 1; i >= 0; i-- {
		if s.index.Entries[i].RoasterID == roasterID {
			out = append(out, s.index.Entries[i])
		}
	}
	return out
}

// Count returns the total number of indexed artifacts.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index.Entries)
}
