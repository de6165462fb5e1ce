package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"prdflow/internal/artifact"
	"prdflow/internal/logging"
	"prdflow/internal/phase"
	"prdflow/internal/store"
)

// StartResult is the synchronous outcome of a phase start request.
type StartResult string

const (
	// StartAccepted means a background generation task was dispatched.
	StartAccepted StartResult = "accepted"
	// StartConflict means the gate is already generating; no second run.
	StartConflict StartResult = "conflict"
	// StartLocked means the required prior phase is not approved yet.
	StartLocked StartResult = "locked"
)

// PhaseStatus is the poll view of one gate, read only from the store.
type PhaseStatus struct {
	PhaseNumber       int
	PhaseName         string
	State             phase.GateState
	Artifacts         []*store.Progress
	OverallPct        int
	RejectionFeedback string
	RejectionCount    int
}

// ApprovalResult reports a successful phase approval.
type ApprovalResult struct {
	SnapshotDir       string
	ContentHashes     map[artifact.Kind]string
	NextPhaseUnlocked bool
}

// Config wires a Runner's collaborators. Store, Registry, Generator and
// Prompts are required; Corpus defaults to an empty corpus.
type Config struct {
	Store     store.Store
	Registry  *artifact.Registry
	Generator Generator
	Prompts   PromptBuilder
	Corpus    CorpusLoader
	// BaseDir anchors per-session output and snapshot dirs for sessions
	// created without explicit paths. Defaults to ".prdflow/sessions".
	BaseDir string
}

// Runner orchestrates phase execution for sessions: it dispatches one
// background generation task per gate, guards gate transitions, and owns
// approval, rejection and snapshot handling. All durable state lives in
// the Store; the runner keeps only the per-session cache and the active
// task set in memory.
type Runner struct {
	st      store.Store
	reg     *artifact.Registry
	gen     Generator
	prompts PromptBuilder
	corpus  CorpusLoader
	baseDir string
	log     *slog.Logger

	mu     sync.Mutex
	active map[gateKey]bool
	caches map[string]*Cache

	wg sync.WaitGroup
}

type gateKey struct {
	sessionID   string
	phaseNumber int
}

// NewRunner validates the wiring and returns a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("flow: config missing store")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("flow: config missing registry")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("flow: config missing generator")
	}
	if cfg.Prompts == nil {
		return nil, fmt.Errorf("flow: config missing prompt builder")
	}
	corpus := cfg.Corpus
	if corpus == nil {
		corpus = CorpusFunc(func(context.Context, string) (string, error) { return "", nil })
	}
	baseDir := cfg.BaseDir
	if baseDir == "" {
		baseDir = filepath.Join(".prdflow", "sessions")
	}
	return &Runner{
		st:      cfg.Store,
		reg:     cfg.Registry,
		gen:     cfg.Generator,
		prompts: cfg.Prompts,
		corpus:  corpus,
		baseDir: baseDir,
		log:     logging.New("flow"),
		active:  make(map[gateKey]bool),
		caches:  make(map[string]*Cache),
	}, nil
}

// Wait blocks until all dispatched generation tasks have finished.
func (r *Runner) Wait() { r.wg.Wait() }

// CreateSession creates a new session with a fresh UUID. flowType selects
// the intake questionnaire (greenfield or modernization).
func (r *Runner) CreateSession(flowType string) (*store.Session, error) {
	if flowType != "greenfield" && flowType != "modernization" {
		return nil, fmt.Errorf("%w: unknown flow type %q", ErrValidation, flowType)
	}
	id := uuid.NewString()
	sess := &store.Session{
		ID:              id,
		FlowType:        flowType,
		Status:          "intake",
		OutputDir:       filepath.Join(r.baseDir, id, "artifacts"),
		SnapshotBaseDir: filepath.Join(r.baseDir, id, "snapshots"),
	}
	if err := r.st.CreateSession(sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	r.audit(sess.ID, "session_created", 0, "", fmt.Sprintf(`{"flow_type":%q}`, flowType))
	return sess, nil
}

func (r *Runner) session(id string) (*store.Session, error) {
	sess, err := r.st.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

func (r *Runner) cache(sess *store.Session) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.caches[sess.ID]
	if !ok {
		c = NewCache(r.st, r.reg, sess.OutputDir)
		r.caches[sess.ID] = c
	}
	return c
}

// StartPhase requests generation for (session, phaseNumber). It returns
// synchronously: accepted dispatches a single background task, conflict
// means a task is already running for this gate, locked means the prior
// phase is not approved. Rejected and failed gates restart here; a
// rejected gate is hard-reset first so every artifact regenerates, a
// failed gate resumes only incomplete artifacts.
func (r *Runner) StartPhase(ctx context.Context, sessionID string, phaseNumber int) (StartResult, error) {
	sess, err := r.session(sessionID)
	if err != nil {
		return "", err
	}
	def, err := phase.ByNumber(phaseNumber)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if def.Requires > 0 {
		prior, err := r.st.GetGate(sessionID, def.Requires)
		if err != nil {
			return "", fmt.Errorf("check prior gate: %w", err)
		}
		if prior == nil || prior.Status != phase.StateApproved {
			return StartLocked, nil
		}
	}

	gate, err := r.st.GetGate(sessionID, phaseNumber)
	if err != nil {
		return "", fmt.Errorf("get gate: %w", err)
	}
	if gate == nil {
		gate = newGate(sess.ID, def)
		if _, err := r.st.CreateGate(gate); err != nil {
			return "", fmt.Errorf("create gate: %w", err)
		}
	}

	key := gateKey{sessionID, phaseNumber}

	switch gate.Status {
	case phase.StateGenerating:
		// A live task wins; a gate left generating by an interrupted
		// process resumes below from the durable progress rows.
		r.mu.Lock()
		running := r.active[key]
		r.mu.Unlock()
		if running {
			return StartConflict, nil
		}
	case phase.StateReview, phase.StateApproved:
		return "", fmt.Errorf("%w: cannot start phase %d while gate is %s",
			phase.ErrInvalidTransition, phaseNumber, gate.Status)
	case phase.StateRejected:
		// Hard reset: everything regenerates after a rejection.
		if err := r.resetGate(sess, gate, def); err != nil {
			return "", err
		}
	}

	r.mu.Lock()
	if r.active[key] {
		r.mu.Unlock()
		return StartConflict, nil
	}
	r.active[key] = true
	r.mu.Unlock()

	if gate.Status != phase.StateGenerating && !phase.ValidTransition(gate.Status, phase.StateGenerating) {
		r.clearActive(key)
		return "", fmt.Errorf("%w: %s -> generating", phase.ErrInvalidTransition, gate.Status)
	}
	gate.Status = phase.StateGenerating
	gate.OverallProgress = 0
	gate.StartedAt = nowUTC()
	if err := r.st.UpdateGate(gate); err != nil {
		r.clearActive(key)
		return "", fmt.Errorf("update gate: %w", err)
	}
	if err := r.st.InitProgress(gate.ID, def.Artifacts); err != nil {
		r.clearActive(key)
		return "", fmt.Errorf("init progress: %w", err)
	}
	// Reopen rows a previous run left failed or mid-generation; the
	// monotonic guard only admits forward moves from a reset row.
	incomplete, err := r.st.IncompleteArtifacts(gate.ID)
	if err != nil {
		r.clearActive(key)
		return "", fmt.Errorf("incomplete artifacts: %w", err)
	}
	if err := r.st.ResetProgress(gate.ID, incomplete); err != nil {
		r.clearActive(key)
		return "", fmt.Errorf("reset incomplete progress: %w", err)
	}
	r.audit(sessionID, "phase_started", phaseNumber, "", "")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.clearActive(key)
		r.runPhase(context.Background(), sess, gate, def)
	}()
	return StartAccepted, nil
}

// newGate builds a fresh pending gate for a phase definition.
func newGate(sessionID string, def phase.Definition) *store.PhaseGate {
	return &store.PhaseGate{
		SessionID:   sessionID,
		PhaseNumber: def.Number,
		PhaseName:   def.Name,
		Status:      phase.StatePending,
	}
}

func (r *Runner) clearActive(key gateKey) {
	r.mu.Lock()
	delete(r.active, key)
	r.mu.Unlock()
}

// resetGate clears a rejected phase's artifacts and progress so the next
// run regenerates everything.
func (r *Runner) resetGate(sess *store.Session, gate *store.PhaseGate, def phase.Definition) error {
	if err := r.st.DeleteArtifacts(gate.ID); err != nil {
		return fmt.Errorf("clear artifacts: %w", err)
	}
	if err := r.st.ResetProgress(gate.ID, def.Artifacts); err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	r.cache(sess).Invalidate(def.Artifacts)
	return nil
}

// runPhase is the single background generation task for one gate.
func (r *Runner) runPhase(ctx context.Context, sess *store.Session, gate *store.PhaseGate, def phase.Definition) {
	log := r.log.With("session", sess.ID, "phase", def.Number)

	if err := r.generatePhase(ctx, sess, gate, def, log); err != nil {
		log.Error("phase generation failed", "error", err)
		gate.Status = phase.StateFailed
		if uerr := r.st.UpdateGate(gate); uerr != nil {
			log.Error("record gate failure", "error", uerr)
		}
		r.audit(sess.ID, "phase_failed", def.Number, "", fmt.Sprintf(`{"error":%q}`, err.Error()))
		return
	}

	gate.Status = phase.StateReview
	gate.OverallProgress = 100
	gate.GeneratedAt = nowUTC()
	if err := r.st.UpdateGate(gate); err != nil {
		log.Error("record gate review", "error", err)
		return
	}
	r.audit(sess.ID, "phase_generated", def.Number, "", "")
	log.Info("phase ready for review")
}

func (r *Runner) generatePhase(ctx context.Context, sess *store.Session, gate *store.PhaseGate, def phase.Definition, log *slog.Logger) error {
	cache := r.cache(sess)
	if err := r.seedPriorPhases(sess, def, cache); err != nil {
		return err
	}

	corpus, err := r.corpus.Corpus(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}

	order, err := r.reg.Resolve(def.Artifacts)
	if err != nil {
		return fmt.Errorf("resolve phase artifacts: %w", err)
	}
	incomplete, err := r.st.IncompleteArtifacts(gate.ID)
	if err != nil {
		return fmt.Errorf("incomplete artifacts: %w", err)
	}
	pending := make(map[artifact.Kind]bool, len(incomplete))
	for _, k := range incomplete {
		pending[k] = true
	}

	done := len(def.Artifacts) - len(incomplete)
	for _, k := range order {
		if !def.Declares(k) {
			// Prerequisite owned by an earlier phase: must already be in
			// the cache via its approved snapshot.
			if _, ok := cache.Content(k); !ok {
				return fmt.Errorf("%w: prerequisite %s not available from an approved phase", ErrGeneration, k)
			}
			continue
		}
		if !pending[k] {
			// Completed by an earlier run. Reload its content so
			// dependents generated by this process still see it; after a
			// restart only the store survives, not the in-memory cache.
			if err := cache.Warm(gate.ID, k); err != nil {
				return fmt.Errorf("reload completed %s: %w", k, err)
			}
			continue
		}

		if err := r.generateArtifact(ctx, sess, gate, def, cache, corpus, k, log); err != nil {
			// Dependents of a failed artifact cannot be produced; stop
			// scheduling the rest of this run.
			return err
		}
		done++
		gate.OverallProgress = done * 100 / len(def.Artifacts)
		if err := r.st.UpdateGate(gate); err != nil {
			return fmt.Errorf("update gate progress: %w", err)
		}
	}
	return nil
}

func (r *Runner) generateArtifact(ctx context.Context, sess *store.Session, gate *store.PhaseGate, def phase.Definition, cache *Cache, corpus string, k artifact.Kind, log *slog.Logger) error {
	started := time.Now()
	if err := r.st.UpdateProgress(&store.Progress{
		GateID: gate.ID, Kind: k, Status: store.ProgressGenerating,
		Message: "generating", StartedAt: nowUTC(),
	}); err != nil {
		return fmt.Errorf("mark generating %s: %w", k, err)
	}

	content, hit, err := cache.GetOrGenerate(ctx, gate.ID, k, func(ctx context.Context) (string, error) {
		spec, _ := r.reg.Spec(k)
		prior := make(map[artifact.Kind]string, len(spec.Requires))
		for _, req := range spec.Requires {
			if c, ok := cache.Content(req); ok {
				prior[req] = c
			}
		}
		system, user, err := r.prompts.Build(k, corpus, prior)
		if err != nil {
			return "", fmt.Errorf("build prompt for %s: %w", k, err)
		}
		out, err := r.gen.Generate(ctx, system, user, GenerateParams{
			SessionID:   sess.ID,
			PhaseNumber: def.Number,
			Kind:        k,
			FlowType:    sess.FlowType,
		})
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrGeneration, k, err)
		}
		return out, nil
	})
	if err != nil {
		perr := r.st.UpdateProgress(&store.Progress{
			GateID: gate.ID, Kind: k, Status: store.ProgressFailed,
			CompletedAt: nowUTC(), ErrorMessage: err.Error(),
		})
		if perr != nil {
			log.Error("record artifact failure", "artifact", k, "error", perr)
		}
		return err
	}

	status := store.ProgressCompleted
	if hit {
		status = store.ProgressCached
	}
	if err := r.st.UpdateProgress(&store.Progress{
		GateID: gate.ID, Kind: k, Status: status, ProgressPct: 100,
		CompletedAt:  nowUTC(),
		CharCount:    len(content),
		GenerationMS: time.Since(started).Milliseconds(),
	}); err != nil {
		return fmt.Errorf("mark %s %s: %w", status, k, err)
	}
	log.Info("artifact ready", "artifact", k, "status", status, "chars", len(content))
	return nil
}

// seedPriorPhases loads every approved prior phase's snapshot into the
// cache, verifying integrity first. A hash mismatch aborts generation; it
// is never treated as a cache miss.
func (r *Runner) seedPriorPhases(sess *store.Session, def phase.Definition, cache *Cache) error {
	for n := 1; n < def.Number; n++ {
		gate, err := r.st.GetGate(sess.ID, n)
		if err != nil {
			return fmt.Errorf("get phase %d gate: %w", n, err)
		}
		if gate == nil || gate.Status != phase.StateApproved || gate.SnapshotDir == "" {
			return fmt.Errorf("%w: phase %d is not approved", phase.ErrInvalidTransition, n)
		}
		snap, err := phase.LoadSnapshot(gate.SnapshotDir, r.reg)
		if err != nil {
			return fmt.Errorf("load phase %d snapshot: %w", n, err)
		}
		if err := snap.Verify(); err != nil {
			return fmt.Errorf("phase %d snapshot: %w", n, err)
		}
		cache.Seed(snap)
	}
	return nil
}

// Status returns the poll view for (session, phaseNumber), reading only
// durable state so concurrent and post-restart readers agree. A phase
// never started reports a pending gate with no per-artifact rows.
func (r *Runner) Status(sessionID string, phaseNumber int) (*PhaseStatus, error) {
	if _, err := r.session(sessionID); err != nil {
		return nil, err
	}
	def, err := phase.ByNumber(phaseNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	gate, err := r.st.GetGate(sessionID, phaseNumber)
	if err != nil {
		return nil, fmt.Errorf("get gate: %w", err)
	}
	if gate == nil {
		return &PhaseStatus{PhaseNumber: def.Number, PhaseName: def.Name, State: phase.StatePending}, nil
	}
	rows, err := r.st.ListProgress(gate.ID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return &PhaseStatus{
		PhaseNumber:       def.Number,
		PhaseName:         def.Name,
		State:             gate.Status,
		Artifacts:         rows,
		OverallPct:        overallPct(rows),
		RejectionFeedback: gate.RejectionFeedback,
		RejectionCount:    gate.RejectionCount,
	}, nil
}

// overallPct is the share of declared artifacts in a terminal done state.
func overallPct(rows []*store.Progress) int {
	if len(rows) == 0 {
		return 0
	}
	done := 0
	for _, p := range rows {
		if p.Status.Terminal() {
			done++
		}
	}
	return done * 100 / len(rows)
}

// Artifacts returns the realized content per kind for a phase in review
// or later. Content is read back from the recorded files.
func (r *Runner) Artifacts(sessionID string, phaseNumber int) (map[artifact.Kind]string, error) {
	if _, err := r.session(sessionID); err != nil {
		return nil, err
	}
	gate, err := r.st.GetGate(sessionID, phaseNumber)
	if err != nil {
		return nil, fmt.Errorf("get gate: %w", err)
	}
	if gate == nil || (gate.Status != phase.StateReview && gate.Status != phase.StateApproved) {
		state := phase.StatePending
		if gate != nil {
			state = gate.Status
		}
		return nil, fmt.Errorf("%w: artifacts unavailable while gate is %s", phase.ErrInvalidTransition, state)
	}
	recs, err := r.st.ListArtifacts(gate.ID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	out := make(map[artifact.Kind]string, len(recs))
	for _, rec := range recs {
		raw, err := os.ReadFile(rec.FilePath)
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", rec.Kind, err)
		}
		out[rec.Kind] = string(raw)
	}
	return out, nil
}

// Approve approves a phase in review. Optional edits substitute human
// content for generated artifacts; every edited kind must belong to the
// phase's declared set. The live content (edited over generated) is
// hashed into the snapshot, the cache is seeded for the next phase, and
// the gate becomes approved.
func (r *Runner) Approve(sessionID string, phaseNumber int, approver, notes string, edits map[artifact.Kind]string) (*ApprovalResult, error) {
	sess, err := r.session(sessionID)
	if err != nil {
		return nil, err
	}
	def, err := phase.ByNumber(phaseNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	gate, err := r.st.GetGate(sessionID, phaseNumber)
	if err != nil {
		return nil, fmt.Errorf("get gate: %w", err)
	}
	if gate == nil || gate.Status != phase.StateReview {
		state := phase.StatePending
		if gate != nil {
			state = gate.Status
		}
		return nil, fmt.Errorf("%w: cannot approve phase %d while gate is %s",
			phase.ErrInvalidTransition, phaseNumber, state)
	}
	for k := range edits {
		if !def.Declares(k) {
			return nil, fmt.Errorf("%w: edited artifact %q is not part of phase %d", ErrValidation, k, phaseNumber)
		}
	}

	live, err := r.Artifacts(sessionID, phaseNumber)
	if err != nil {
		return nil, err
	}
	cache := r.cache(sess)
	for k, content := range edits {
		orig := live[k]
		if err := cache.Replace(gate.ID, k, content); err != nil {
			return nil, fmt.Errorf("apply edit %s: %w", k, err)
		}
		if err := r.st.SaveEdit(&store.ArtifactEdit{
			GateID:       gate.ID,
			Kind:         k,
			OriginalHash: phase.ContentHash(orig),
			EditedHash:   phase.ContentHash(content),
			EditedBy:     approver,
		}); err != nil {
			return nil, fmt.Errorf("record edit %s: %w", k, err)
		}
		live[k] = content
	}

	snap := phase.NewSnapshot(phaseNumber, live, approver, notes)
	snapDir := filepath.Join(sess.SnapshotBaseDir, fmt.Sprintf("phase_%d", phaseNumber))
	if err := snap.Save(snapDir, r.reg); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	cache.Seed(snap)

	gate.Status = phase.StateApproved
	gate.CompletedAt = nowUTC()
	gate.ApprovedBy = approver
	gate.ApprovalNotes = notes
	gate.SnapshotDir = snapDir
	if err := r.st.UpdateGate(gate); err != nil {
		return nil, fmt.Errorf("update gate: %w", err)
	}

	next := phaseNumber < phase.Count
	if next {
		sess.Status = fmt.Sprintf("phase_%d", phaseNumber+1)
	} else {
		sess.Status = "completed"
	}
	if err := r.st.UpdateSession(sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	detail, _ := json.Marshal(map[string]any{"edited": len(edits)})
	r.audit(sessionID, "phase_approved", phaseNumber, approver, string(detail))
	r.log.Info("phase approved", "session", sessionID, "phase", phaseNumber, "edits", len(edits))

	return &ApprovalResult{
		SnapshotDir:       snapDir,
		ContentHashes:     snap.ContentHashes,
		NextPhaseUnlocked: next,
	}, nil
}

// Reject rejects a phase in review with mandatory feedback. Rejection is
// a hard reset: the phase's artifacts and progress are cleared so the
// next start regenerates everything.
func (r *Runner) Reject(sessionID string, phaseNumber int, feedback, actor string) error {
	sess, err := r.session(sessionID)
	if err != nil {
		return err
	}
	def, err := phase.ByNumber(phaseNumber)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if feedback == "" {
		return fmt.Errorf("%w: rejection feedback must not be empty", ErrValidation)
	}
	gate, err := r.st.GetGate(sessionID, phaseNumber)
	if err != nil {
		return fmt.Errorf("get gate: %w", err)
	}
	if gate == nil || gate.Status != phase.StateReview {
		state := phase.StatePending
		if gate != nil {
			state = gate.Status
		}
		return fmt.Errorf("%w: cannot reject phase %d while gate is %s",
			phase.ErrInvalidTransition, phaseNumber, state)
	}

	if err := r.resetGate(sess, gate, def); err != nil {
		return err
	}
	gate.Status = phase.StateRejected
	gate.RejectionFeedback = feedback
	gate.RejectionCount++
	gate.OverallProgress = 0
	if err := r.st.UpdateGate(gate); err != nil {
		return fmt.Errorf("update gate: %w", err)
	}

	detail, _ := json.Marshal(map[string]any{"feedback": feedback})
	r.audit(sessionID, "phase_rejected", phaseNumber, actor, string(detail))
	r.log.Info("phase rejected", "session", sessionID, "phase", phaseNumber, "count", gate.RejectionCount)
	return nil
}

// Snapshot loads and verifies the approved snapshot bundle for a phase.
func (r *Runner) Snapshot(sessionID string, phaseNumber int) (*phase.Snapshot, error) {
	if _, err := r.session(sessionID); err != nil {
		return nil, err
	}
	gate, err := r.st.GetGate(sessionID, phaseNumber)
	if err != nil {
		return nil, fmt.Errorf("get gate: %w", err)
	}
	if gate == nil || gate.Status != phase.StateApproved {
		state := phase.StatePending
		if gate != nil {
			state = gate.Status
		}
		return nil, fmt.Errorf("%w: snapshot unavailable while gate is %s", phase.ErrInvalidTransition, state)
	}
	snap, err := phase.LoadSnapshot(gate.SnapshotDir, r.reg)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if err := snap.Verify(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *Runner) audit(sessionID, eventType string, phaseNumber int, actor, detail string) {
	if actor == "" {
		actor = "system"
	}
	err := r.st.LogEvent(&store.AuditEvent{
		SessionID:   sessionID,
		EventType:   eventType,
		PhaseNumber: phaseNumber,
		Actor:       actor,
		Detail:      detail,
	})
	if err != nil {
		r.log.Error("audit log write failed", "event", eventType, "error", err)
	}
}

func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
