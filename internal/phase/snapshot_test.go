package phase

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"prdflow/internal/artifact"
)

func TestNewSnapshot_HashesContent(t *testing.T) {
	content := "# PRD\n\nSome requirements."
	s := NewSnapshot(1, map[artifact.Kind]string{artifact.KindPRD: content}, "reviewer@co.com", "lgtm")

	sum := sha256.Sum256([]byte(content))
	want := hex.EncodeToString(sum[:])
	if got := s.ContentHashes[artifact.KindPRD]; got != want {
		t.Errorf("hash: got %s, want %s", got, want)
	}
	if s.ApprovedAt == "" {
		t.Error("ApprovedAt should be set when approver is given")
	}
}

func TestNewSnapshot_DefensiveCopy(t *testing.T) {
	src := map[artifact.Kind]string{artifact.KindPRD: "original"}
	s := NewSnapshot(1, src, "", "")
	src[artifact.KindPRD] = "mutated after snapshot"
	if s.Artifacts[artifact.KindPRD] != "original" {
		t.Error("snapshot content changed through caller's map")
	}
}

func TestNewSnapshot_StableManifestOrder(t *testing.T) {
	content := map[artifact.Kind]string{
		artifact.KindPRD:           "prd",
		artifact.KindCorpusSummary: "summary",
		artifact.KindCapabilities:  "caps",
	}
	want := []artifact.Kind{artifact.KindCapabilities, artifact.KindCorpusSummary, artifact.KindPRD}

	s := NewSnapshot(1, content, "", "")
	if diff := cmp.Diff(want, s.ArtifactNames); diff != "" {
		t.Errorf("artifact names (-want +got):\n%s", diff)
	}
	// Saving twice leaves the manifest untouched; equal content always
	// serializes to the same meta bytes.
	if err := s.Save(filepath.Join(t.TempDir(), "a"), artifact.Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if diff := cmp.Diff(want, s.ArtifactNames); diff != "" {
		t.Errorf("Save changed artifact names (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, NewSnapshot(1, content, "", "").ArtifactNames); diff != "" {
		t.Errorf("second snapshot ordered differently (-want +got):\n%s", diff)
	}
}

func TestVerify_DetectsTampering(t *testing.T) {
	s := NewSnapshot(2, map[artifact.Kind]string{
		artifact.KindEpics:    "epic list",
		artifact.KindFeatures: "feature list",
	}, "a@b.c", "")

	if err := s.Verify(); err != nil {
		t.Fatalf("pristine snapshot failed verify: %v", err)
	}

	// One byte flipped.
	s.Artifacts[artifact.KindEpics] = "Epic list"
	if err := s.Verify(); !errors.Is(err, ErrSnapshotIntegrity) {
		t.Errorf("want ErrSnapshotIntegrity, got %v", err)
	}
}

func TestVerify_MissingHash(t *testing.T) {
	s := NewSnapshot(1, map[artifact.Kind]string{artifact.KindPRD: "x"}, "", "")
	delete(s.ContentHashes, artifact.KindPRD)
	if err := s.Verify(); !errors.Is(err, ErrSnapshotIntegrity) {
		t.Errorf("want ErrSnapshotIntegrity, got %v", err)
	}
}

func TestSnapshot_SaveLoadRoundTrip(t *testing.T) {
	reg := artifact.Default()
	dir := filepath.Join(t.TempDir(), "phase_1")

	s := NewSnapshot(1, map[artifact.Kind]string{
		artifact.KindCorpusSummary: "summary text",
		artifact.KindPRD:           "prd text",
	}, "approver@co.com", "first pass")
	if err := s.Save(dir, reg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadSnapshot(dir, reg)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if diff := cmp.Diff(s.Artifacts, loaded.Artifacts); diff != "" {
		t.Errorf("artifacts mismatch (-saved +loaded):\n%s", diff)
	}
	if diff := cmp.Diff(s.ContentHashes, loaded.ContentHashes); diff != "" {
		t.Errorf("hashes mismatch (-saved +loaded):\n%s", diff)
	}
	if loaded.ApprovedBy != "approver@co.com" || loaded.Notes != "first pass" {
		t.Errorf("approval metadata lost: %+v", loaded)
	}
	if err := loaded.Verify(); err != nil {
		t.Errorf("loaded snapshot failed verify: %v", err)
	}
}

func TestSnapshot_LoadDetectsDiskTampering(t *testing.T) {
	reg := artifact.Default()
	dir := filepath.Join(t.TempDir(), "phase_1")

	s := NewSnapshot(1, map[artifact.Kind]string{artifact.KindPRD: "authentic"}, "a@b.c", "")
	if err := s.Save(dir, reg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	spec, _ := reg.Spec(artifact.KindPRD)
	if err := os.WriteFile(filepath.Join(dir, spec.Filename), []byte("forged"), 0o644); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	loaded, err := LoadSnapshot(dir, reg)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if err := loaded.Verify(); !errors.Is(err, ErrSnapshotIntegrity) {
		t.Errorf("want ErrSnapshotIntegrity after disk tamper, got %v", err)
	}
}

func TestLoadSnapshot_MissingMeta(t *testing.T) {
	if _, err := LoadSnapshot(t.TempDir(), artifact.Default()); err == nil {
		t.Error("want error for missing snapshot_meta.json, got nil")
	}
}
