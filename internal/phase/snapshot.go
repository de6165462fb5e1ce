package phase

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"prdflow/internal/artifact"
	"prdflow/internal/logging"
)

// ErrSnapshotIntegrity is returned when a snapshot's stored content no
// longer matches its recorded hash. Callers must surface this distinctly;
// it is never treated as a cache miss.
var ErrSnapshotIntegrity = errors.New("phase: snapshot integrity check failed")

// MetaFilename is the metadata file written alongside snapshot artifacts.
const MetaFilename = "snapshot_meta.json"

// Snapshot is an immutable per-phase bundle of final artifact content and
// SHA-256 content hashes, created exactly once at approval time. No field
// is modified after creation.
type Snapshot struct {
	PhaseNumber   int                      `json:"phase_number"`
	Artifacts     map[artifact.Kind]string `json:"-"`
	ContentHashes map[artifact.Kind]string `json:"content_hashes"`
	CreatedAt     string                   `json:"created_at"`
	ApprovedAt    string                   `json:"approved_at,omitempty"`
	ApprovedBy    string                   `json:"approved_by,omitempty"`
	Notes         string                   `json:"notes,omitempty"`
	ArtifactNames []artifact.Kind          `json:"artifact_names"`
}

// ContentHash computes the SHA-256 hex digest of content bytes.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// NewSnapshot freezes the given artifact content with per-artifact hashes.
// The content map is copied defensively; later edits to the caller's map
// cannot reach the snapshot.
func NewSnapshot(phaseNumber int, artifacts map[artifact.Kind]string, approvedBy, notes string) *Snapshot {
	now := time.Now().UTC().Format(time.RFC3339)
	s := &Snapshot{
		PhaseNumber:   phaseNumber,
		Artifacts:     make(map[artifact.Kind]string, len(artifacts)),
		ContentHashes: make(map[artifact.Kind]string, len(artifacts)),
		CreatedAt:     now,
		ApprovedBy:    approvedBy,
		Notes:         notes,
	}
	if approvedBy != "" {
		s.ApprovedAt = now
	}
	for name, content := range artifacts {
		s.Artifacts[name] = content
		s.ContentHashes[name] = ContentHash(content)
		s.ArtifactNames = append(s.ArtifactNames, name)
	}
	// A stable manifest order, fixed at creation; nothing mutates the
	// snapshot afterwards.
	sort.Slice(s.ArtifactNames, func(i, j int) bool { return s.ArtifactNames[i] < s.ArtifactNames[j] })
	return s
}

// Verify recomputes every artifact hash from stored content and compares
// against the recorded hash. Any mismatch or missing hash is reported as
// ErrSnapshotIntegrity naming the artifact.
func (s *Snapshot) Verify() error {
	for name, content := range s.Artifacts {
		want, ok := s.ContentHashes[name]
		if !ok {
			return fmt.Errorf("%w: no recorded hash for %q", ErrSnapshotIntegrity, name)
		}
		if got := ContentHash(content); got != want {
			return fmt.Errorf("%w: %q hash mismatch (want %s..., got %s...)",
				ErrSnapshotIntegrity, name, want[:16], got[:16])
		}
	}
	return nil
}

// Save writes the snapshot bundle: one file per artifact (named by the
// registry's filename for the kind) plus snapshot_meta.json.
func (s *Snapshot) Save(dir string, reg *artifact.Registry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	for name, content := range s.Artifacts {
		path := filepath.Join(dir, snapshotFilename(name, reg))
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write snapshot artifact %s: %w", name, err)
		}
	}

	meta, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetaFilename), meta, 0o644); err != nil {
		return fmt.Errorf("write snapshot meta: %w", err)
	}

	logging.New("phase").Info("snapshot saved",
		"phase", s.PhaseNumber, "artifacts", len(s.Artifacts), "dir", dir)
	return nil
}

// LoadSnapshot reads a snapshot bundle previously written by Save.
func LoadSnapshot(dir string, reg *artifact.Registry) (*Snapshot, error) {
	meta, err := os.ReadFile(filepath.Join(dir, MetaFilename))
	if err != nil {
		return nil, fmt.Errorf("read snapshot meta: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(meta, &s); err != nil {
		return nil, fmt.Errorf("parse snapshot meta: %w", err)
	}

	s.Artifacts = make(map[artifact.Kind]string, len(s.ArtifactNames))
	for _, name := range s.ArtifactNames {
		path := filepath.Join(dir, snapshotFilename(name, reg))
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read snapshot artifact %s: %w", name, err)
		}
		s.Artifacts[name] = string(content)
	}
	return &s, nil
}

// snapshotFilename maps a kind to its on-disk name, falling back to
// <kind>.md for kinds absent from the registry (older snapshots).
func snapshotFilename(k artifact.Kind, reg *artifact.Registry) string {
	if reg != nil {
		if spec, ok := reg.Spec(k); ok && spec.Filename != "" {
			return spec.Filename
		}
	}
	return string(k) + ".md"
}
