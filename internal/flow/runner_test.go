package flow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"prdflow/internal/artifact"
	"prdflow/internal/phase"
	"prdflow/internal/store"
)

// stubGen is a counting Generator. Kinds listed in fail error out; a
// non-nil block channel stalls every call until it is closed.
type stubGen struct {
	mu    sync.Mutex
	calls map[artifact.Kind]int
	fail  map[artifact.Kind]error
	block chan struct{}
}

func newStubGen() *stubGen {
	return &stubGen{calls: make(map[artifact.Kind]int), fail: make(map[artifact.Kind]error)}
}

func (g *stubGen) Generate(_ context.Context, _, _ string, p GenerateParams) (string, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[p.Kind]++
	if err := g.fail[p.Kind]; err != nil {
		return "", err
	}
	return string(p.Kind) + " content", nil
}

func (g *stubGen) count(k artifact.Kind) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[k]
}

func (g *stubGen) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

// stubPrompts records the prerequisite content each build saw.
type stubPrompts struct {
	mu    sync.Mutex
	prior map[artifact.Kind]map[artifact.Kind]string
}

func newStubPrompts() *stubPrompts {
	return &stubPrompts{prior: make(map[artifact.Kind]map[artifact.Kind]string)}
}

func (p *stubPrompts) Build(k artifact.Kind, corpus string, prior map[artifact.Kind]string) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make(map[artifact.Kind]string, len(prior))
	for pk, pv := range prior {
		cp[pk] = pv
	}
	p.prior[k] = cp
	return "system: " + string(k), "user: " + string(k) + "\n" + corpus, nil
}

func newTestRunner(t *testing.T, gen Generator) (*Runner, store.Store) {
	t.Helper()
	st := store.NewMemStore()
	r, err := NewRunner(Config{
		Store:     st,
		Registry:  artifact.Default(),
		Generator: gen,
		Prompts:   newStubPrompts(),
		BaseDir:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r, st
}

func startAndWait(t *testing.T, r *Runner, sessionID string, phaseNumber int) {
	t.Helper()
	res, err := r.StartPhase(context.Background(), sessionID, phaseNumber)
	if err != nil {
		t.Fatalf("StartPhase(%d): %v", phaseNumber, err)
	}
	if res != StartAccepted {
		t.Fatalf("StartPhase(%d) = %q, want accepted", phaseNumber, res)
	}
	r.Wait()
}

func TestPhaseOneHappyPath(t *testing.T) {
	gen := newStubGen()
	r, _ := newTestRunner(t, gen)
	sess, err := r.CreateSession("greenfield")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	startAndWait(t, r, sess.ID, 1)

	st, err := r.Status(sess.ID, 1)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != phase.StateReview {
		t.Fatalf("gate state = %q, want review", st.State)
	}
	if st.OverallPct != 100 {
		t.Errorf("overall pct = %d, want 100", st.OverallPct)
	}
	for _, p := range st.Artifacts {
		if p.Status != store.ProgressCompleted {
			t.Errorf("%s status = %q, want completed", p.Kind, p.Status)
		}
	}

	arts, err := r.Artifacts(sess.ID, 1)
	if err != nil {
		t.Fatalf("Artifacts: %v", err)
	}
	def, _ := phase.ByNumber(1)
	if len(arts) != len(def.Artifacts) {
		t.Fatalf("artifact count = %d, want %d", len(arts), len(def.Artifacts))
	}
	if arts[artifact.KindPRD] != "prd content" {
		t.Errorf("prd content = %q", arts[artifact.KindPRD])
	}

	res, err := r.Approve(sess.ID, 1, "reviewer", "looks right", nil)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if !res.NextPhaseUnlocked {
		t.Error("phase 2 should be unlocked after approving phase 1")
	}
	if res.ContentHashes[artifact.KindPRD] != phase.ContentHash("prd content") {
		t.Error("snapshot hash does not match generated content")
	}
	if _, err := os.Stat(filepath.Join(res.SnapshotDir, phase.MetaFilename)); err != nil {
		t.Errorf("snapshot meta not written: %v", err)
	}
}

func TestStartPhaseLockedUntilPriorApproved(t *testing.T) {
	gen := newStubGen()
	r, _ := newTestRunner(t, gen)
	sess, _ := r.CreateSession("greenfield")

	res, err := r.StartPhase(context.Background(), sess.ID, 2)
	if err != nil {
		t.Fatalf("StartPhase(2): %v", err)
	}
	if res != StartLocked {
		t.Fatalf("StartPhase(2) before phase 1 approval = %q, want locked", res)
	}

	startAndWait(t, r, sess.ID, 1)
	// Review is not enough; the gate must be approved.
	if res, _ := r.StartPhase(context.Background(), sess.ID, 2); res != StartLocked {
		t.Fatalf("StartPhase(2) with phase 1 in review = %q, want locked", res)
	}
	if _, err := r.Approve(sess.ID, 1, "reviewer", "", nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	res, err = r.StartPhase(context.Background(), sess.ID, 2)
	if err != nil {
		t.Fatalf("StartPhase(2) after approval: %v", err)
	}
	if res != StartAccepted {
		t.Fatalf("StartPhase(2) after approval = %q, want accepted", res)
	}
	r.Wait()
}

func TestStartPhaseConflictWhileGenerating(t *testing.T) {
	gen := newStubGen()
	gen.block = make(chan struct{})
	r, _ := newTestRunner(t, gen)
	sess, _ := r.CreateSession("greenfield")

	res, err := r.StartPhase(context.Background(), sess.ID, 1)
	if err != nil || res != StartAccepted {
		t.Fatalf("first StartPhase = %q, %v", res, err)
	}
	res, err = r.StartPhase(context.Background(), sess.ID, 1)
	if err != nil {
		t.Fatalf("second StartPhase: %v", err)
	}
	if res != StartConflict {
		t.Errorf("second StartPhase = %q, want conflict", res)
	}
	close(gen.block)
	r.Wait()
}

func TestApproveWhileGeneratingIsInvalid(t *testing.T) {
	gen := newStubGen()
	gen.block = make(chan struct{})
	r, st := newTestRunner(t, gen)
	sess, _ := r.CreateSession("greenfield")

	if res, _ := r.StartPhase(context.Background(), sess.ID, 1); res != StartAccepted {
		t.Fatal("start not accepted")
	}
	_, err := r.Approve(sess.ID, 1, "reviewer", "", nil)
	if !errors.Is(err, phase.ErrInvalidTransition) {
		t.Errorf("Approve while generating err = %v, want ErrInvalidTransition", err)
	}
	// State unchanged.
	gate, _ := st.GetGate(sess.ID, 1)
	if gate.Status != phase.StateGenerating {
		t.Errorf("gate state after bad approve = %q, want generating", gate.Status)
	}
	close(gen.block)
	r.Wait()
}

func TestFailedPhaseResumesOnlyIncomplete(t *testing.T) {
	gen := newStubGen()
	gen.fail[artifact.KindPRD] = fmt.Errorf("upstream timeout")
	r, st := newTestRunner(t, gen)
	sess, _ := r.CreateSession("greenfield")

	startAndWait(t, r, sess.ID, 1)

	gate, _ := st.GetGate(sess.ID, 1)
	if gate.Status != phase.StateFailed {
		t.Fatalf("gate state = %q, want failed", gate.Status)
	}
	status, _ := r.Status(sess.ID, 1)
	byKind := map[artifact.Kind]store.ProgressStatus{}
	for _, p := range status.Artifacts {
		byKind[p.Kind] = p.Status
	}
	if byKind[artifact.KindContextSummary] != store.ProgressCompleted ||
		byKind[artifact.KindCorpusSummary] != store.ProgressCompleted {
		t.Errorf("artifacts before the failure should be completed: %v", byKind)
	}
	if byKind[artifact.KindPRD] != store.ProgressFailed {
		t.Errorf("prd status = %q, want failed", byKind[artifact.KindPRD])
	}
	if byKind[artifact.KindCapabilities] != store.ProgressPending {
		t.Errorf("capabilities status = %q, want pending (dependents not scheduled)", byKind[artifact.KindCapabilities])
	}

	// Retry regenerates only the artifacts that never completed.
	delete(gen.fail, artifact.KindPRD)
	startAndWait(t, r, sess.ID, 1)

	if got := gen.count(artifact.KindContextSummary); got != 1 {
		t.Errorf("context_summary generated %d times, want 1", got)
	}
	if got := gen.count(artifact.KindCorpusSummary); got != 1 {
		t.Errorf("corpus_summary generated %d times, want 1", got)
	}
	if got := gen.count(artifact.KindPRD); got != 2 {
		t.Errorf("prd generated %d times, want 2 (failed attempt + retry)", got)
	}
	if got := gen.count(artifact.KindCapabilities); got != 1 {
		t.Errorf("capabilities generated %d times, want 1", got)
	}
	gate, _ = st.GetGate(sess.ID, 1)
	if gate.Status != phase.StateReview {
		t.Errorf("gate state after retry = %q, want review", gate.Status)
	}
}

func TestResumeAfterRestartReloadsCompletedContent(t *testing.T) {
	gen := newStubGen()
	gen.fail[artifact.KindCapabilities] = fmt.Errorf("upstream timeout")
	st := store.NewMemStore()
	base := t.TempDir()
	cfg := func(p PromptBuilder) Config {
		return Config{
			Store:     st,
			Registry:  artifact.Default(),
			Generator: gen,
			Prompts:   p,
			BaseDir:   base,
		}
	}

	r1, err := NewRunner(cfg(newStubPrompts()))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	sess, _ := r1.CreateSession("greenfield")
	startAndWait(t, r1, sess.ID, 1)
	if gate, _ := st.GetGate(sess.ID, 1); gate.Status != phase.StateFailed {
		t.Fatalf("gate state = %q, want failed", gate.Status)
	}

	// A fresh runner over the same store: only durable state survives the
	// restart, not the first runner's warm cache.
	delete(gen.fail, artifact.KindCapabilities)
	prompts := newStubPrompts()
	r2, err := NewRunner(cfg(prompts))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	startAndWait(t, r2, sess.ID, 1)

	if gate, _ := st.GetGate(sess.ID, 1); gate.Status != phase.StateReview {
		t.Fatalf("gate state after resume = %q, want review", gate.Status)
	}
	// Completed work is reused, not redone.
	if got := gen.count(artifact.KindPRD); got != 1 {
		t.Errorf("prd generated %d times, want 1", got)
	}
	// And its content still reaches the retried dependent's prompt.
	prompts.mu.Lock()
	prior := prompts.prior[artifact.KindCapabilities]
	prompts.mu.Unlock()
	if prior[artifact.KindPRD] != "prd content" {
		t.Errorf("capabilities saw prd %q, want the stored content", prior[artifact.KindPRD])
	}
	if prior[artifact.KindCorpusSummary] != "corpus_summary content" {
		t.Errorf("capabilities saw corpus_summary %q, want the stored content", prior[artifact.KindCorpusSummary])
	}
}

func TestRejectionIsHardReset(t *testing.T) {
	gen := newStubGen()
	r, st := newTestRunner(t, gen)
	sess, _ := r.CreateSession("greenfield")
	startAndWait(t, r, sess.ID, 1)

	if err := r.Reject(sess.ID, 1, "", "reviewer"); !errors.Is(err, ErrValidation) {
		t.Errorf("Reject with empty feedback err = %v, want ErrValidation", err)
	}
	if err := r.Reject(sess.ID, 1, "wrong direction entirely", "reviewer"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	gate, _ := st.GetGate(sess.ID, 1)
	if gate.Status != phase.StateRejected || gate.RejectionCount != 1 {
		t.Fatalf("gate after reject = %+v", gate)
	}
	if recs, _ := st.ListArtifacts(gate.ID); len(recs) != 0 {
		t.Errorf("artifact records survived rejection: %d", len(recs))
	}

	firstRun := gen.total()
	startAndWait(t, r, sess.ID, 1)
	// Every artifact regenerates; nothing is served from cache.
	if gen.total() != 2*firstRun {
		t.Errorf("generator calls after rerun = %d, want %d", gen.total(), 2*firstRun)
	}
	status, _ := r.Status(sess.ID, 1)
	for _, p := range status.Artifacts {
		if p.Status != store.ProgressCompleted {
			t.Errorf("%s status after rerun = %q, want completed", p.Kind, p.Status)
		}
	}
}

func TestApproveWithEdits(t *testing.T) {
	gen := newStubGen()
	r, st := newTestRunner(t, gen)
	sess, _ := r.CreateSession("greenfield")
	startAndWait(t, r, sess.ID, 1)

	// A kind outside the phase is rejected, not silently dropped.
	_, err := r.Approve(sess.ID, 1, "reviewer", "", map[artifact.Kind]string{
		artifact.KindEpics: "smuggled",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Approve with foreign kind err = %v, want ErrValidation", err)
	}

	edited := "# PRD\n\nrewritten by hand"
	res, err := r.Approve(sess.ID, 1, "reviewer", "tightened scope", map[artifact.Kind]string{
		artifact.KindPRD: edited,
	})
	if err != nil {
		t.Fatalf("Approve with edit: %v", err)
	}
	if res.ContentHashes[artifact.KindPRD] != phase.ContentHash(edited) {
		t.Error("snapshot hash must cover the edited content, not the generated one")
	}

	gate, _ := st.GetGate(sess.ID, 1)
	rec, _ := st.GetArtifact(gate.ID, artifact.KindPRD)
	if rec == nil || !rec.WasEdited {
		t.Errorf("prd record = %+v, want edited provenance", rec)
	}
	edits, _ := st.ListEdits(gate.ID)
	if len(edits) != 1 || edits[0].EditedHash != phase.ContentHash(edited) {
		t.Errorf("edit trail = %+v", edits)
	}
}

func TestApprovedContentFlowsIntoNextPhase(t *testing.T) {
	gen := newStubGen()
	prompts := newStubPrompts()
	st := store.NewMemStore()
	r, err := NewRunner(Config{
		Store:     st,
		Registry:  artifact.Default(),
		Generator: gen,
		Prompts:   prompts,
		BaseDir:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	sess, _ := r.CreateSession("greenfield")
	startAndWait(t, r, sess.ID, 1)
	edited := "prd edited for phase two"
	if _, err := r.Approve(sess.ID, 1, "reviewer", "", map[artifact.Kind]string{artifact.KindPRD: edited}); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	phase1Calls := gen.total()
	startAndWait(t, r, sess.ID, 2)

	// Phase 1 kinds are served from the approved snapshot, never regenerated.
	def2, _ := phase.ByNumber(2)
	if gen.total() != phase1Calls+len(def2.Artifacts) {
		t.Errorf("phase 2 generator calls = %d, want %d", gen.total()-phase1Calls, len(def2.Artifacts))
	}
	// The edited content, not the generated one, reaches dependent prompts.
	prompts.mu.Lock()
	prior := prompts.prior[artifact.KindEpics]
	prompts.mu.Unlock()
	if prior[artifact.KindPRD] != edited {
		t.Errorf("epics saw prd %q, want the edited content", prior[artifact.KindPRD])
	}

	status, _ := r.Status(sess.ID, 2)
	if status.State != phase.StateReview {
		t.Errorf("phase 2 state = %q, want review", status.State)
	}
}

func TestSnapshotDownloadAndTamperDetection(t *testing.T) {
	gen := newStubGen()
	r, _ := newTestRunner(t, gen)
	sess, _ := r.CreateSession("greenfield")

	if _, err := r.Snapshot(sess.ID, 1); !errors.Is(err, phase.ErrInvalidTransition) {
		t.Errorf("Snapshot before approval err = %v, want ErrInvalidTransition", err)
	}

	startAndWait(t, r, sess.ID, 1)
	res, err := r.Approve(sess.ID, 1, "reviewer", "", nil)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}

	snap, err := r.Snapshot(sess.ID, 1)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Artifacts) == 0 || snap.PhaseNumber != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	// Flip one byte of a stored artifact on disk.
	path := filepath.Join(res.SnapshotDir, "prd.md")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot artifact: %v", err)
	}
	raw[0] ^= 0x01
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("tamper snapshot artifact: %v", err)
	}
	if _, err := r.Snapshot(sess.ID, 1); !errors.Is(err, phase.ErrSnapshotIntegrity) {
		t.Errorf("Snapshot of tampered bundle err = %v, want ErrSnapshotIntegrity", err)
	}
}

func TestSessionCompletionAfterPhaseThree(t *testing.T) {
	gen := newStubGen()
	r, st := newTestRunner(t, gen)
	sess, _ := r.CreateSession("modernization")

	for n := 1; n <= phase.Count; n++ {
		startAndWait(t, r, sess.ID, n)
		if _, err := r.Approve(sess.ID, n, "reviewer", "", nil); err != nil {
			t.Fatalf("Approve phase %d: %v", n, err)
		}
	}
	got, _ := st.GetSession(sess.ID)
	if got.Status != "completed" {
		t.Errorf("session status = %q, want completed", got.Status)
	}
	events, _ := st.ListEvents(sess.ID, "phase_approved", 10)
	if len(events) != 3 {
		t.Errorf("phase_approved events = %d, want 3", len(events))
	}
}

func TestCreateSessionValidatesFlowType(t *testing.T) {
	r, _ := newTestRunner(t, newStubGen())
	if _, err := r.CreateSession("waterfall"); !errors.Is(err, ErrValidation) {
		t.Errorf("CreateSession(waterfall) err = %v, want ErrValidation", err)
	}
}
