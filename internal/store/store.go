package store

import (
	"prdflow/internal/artifact"
	"prdflow/internal/phase"
)

// DefaultDBPath is the default relative path for the SQLite DB.
// Open() creates the parent dir (e.g. .prdflow).
const DefaultDBPath = ".prdflow/prdflow.db"

// Store is the persistence facade for phased generation sessions.
// It is the sole source of truth after a restart: gate state and
// per-artifact progress must never be reconstructed from memory.
// Domain and CLI code use only this interface; implementation is
// SQLite or in-memory.
type Store interface {
	// Session lifecycle
	CreateSession(s *Session) error
	// GetSession returns nil, nil when the session does not exist.
	GetSession(id string) (*Session, error)
	// UpdateSession rewrites the session's mutable fields and bumps UpdatedAt.
	UpdateSession(s *Session) error
	// ListSessions returns sessions newest-first; status "" means all.
	ListSessions(status string, limit int) ([]*Session, error)

	// Intake
	SaveQuestionnaire(sessionID string, responses []*QuestionnaireResponse) error
	GetQuestionnaire(sessionID string) ([]*QuestionnaireResponse, error)
	SaveDocument(d *Document) error
	ListDocuments(sessionID string) ([]*Document, error)

	// Phase gates: one per (session, phase), created when generation is
	// first requested.
	CreateGate(g *PhaseGate) (int64, error)
	// GetGate returns nil, nil when no gate exists for the pair.
	GetGate(sessionID string, phaseNumber int) (*PhaseGate, error)
	ListGates(sessionID string) ([]*PhaseGate, error)
	UpdateGate(g *PhaseGate) error

	// Generation progress: one row per (gate, kind), created in bulk when
	// a phase starts. UpdateProgress enforces monotonic status transitions
	// (pending -> generating -> completed/failed/cached, never backward);
	// ResetProgress is the explicit first-class invalidation used by
	// rejection and retry.
	InitProgress(gateID int64, kinds []artifact.Kind) error
	UpdateProgress(p *Progress) error
	ListProgress(gateID int64) ([]*Progress, error)
	// IncompleteArtifacts returns kinds not in {completed, cached} in
	// row order. This is the sole basis for resuming after a restart.
	IncompleteArtifacts(gateID int64) ([]artifact.Kind, error)
	ResetProgress(gateID int64, kinds []artifact.Kind) error

	// Realized artifacts (content lives on disk; the row carries the
	// hash, path and provenance).
	SaveArtifact(rec *ArtifactRecord) error
	// GetArtifact returns nil, nil when no record exists.
	GetArtifact(gateID int64, kind artifact.Kind) (*ArtifactRecord, error)
	ListArtifacts(gateID int64) ([]*ArtifactRecord, error)
	DeleteArtifacts(gateID int64) error

	// HITL edit trail
	SaveEdit(e *ArtifactEdit) error
	ListEdits(gateID int64) ([]*ArtifactEdit, error)

	// Append-only audit log
	LogEvent(e *AuditEvent) error
	ListEvents(sessionID, eventType string, limit int) ([]*AuditEvent, error)

	Close() error
}

// Session is one unit of phased generation work.
type Session struct {
	ID               string
	FlowType         string // greenfield / modernization
	Status           string // intake, questionnaire_done, docs_uploaded, phase_N, completed
	QuestionnaireVer string
	InputDir         string
	OutputDir        string
	SnapshotBaseDir  string
	CreatedAt        string // ISO 8601
	UpdatedAt        string // ISO 8601
}

// QuestionnaireResponse stores one answered intake question, with the
// question text denormalized for audit.
type QuestionnaireResponse struct {
	ID           int64
	SessionID    string
	QuestionID   string
	QuestionText string
	Answer       string
	CreatedAt    string
}

// Document is one ingested source file attached to a session.
type Document struct {
	ID          int64
	SessionID   string
	Filename    string
	FilePath    string
	FileSize    int64
	FileType    string
	ContentHash string
	UploadedAt  string
}

// PhaseGate is the mutable per-(session, phase) approval record.
type PhaseGate struct {
	ID                int64
	SessionID         string
	PhaseNumber       int
	PhaseName         string
	Status            phase.GateState
	OverallProgress   int // 0..100
	StartedAt         string
	GeneratedAt       string
	CompletedAt       string
	ApprovedBy        string
	ApprovalNotes     string
	RejectionFeedback string
	RejectionCount    int
	SnapshotDir       string
}

// ProgressStatus is the per-artifact generation status.
type ProgressStatus string

const (
	ProgressPending    ProgressStatus = "pending"
	ProgressGenerating ProgressStatus = "generating"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressFailed     ProgressStatus = "failed"
	ProgressCached     ProgressStatus = "cached"
)

// progressRank orders statuses for the monotonicity guard. Terminal
// states share a rank; moving between them or back to an earlier rank
// requires ResetProgress.
func progressRank(s ProgressStatus) int {
	switch s {
	case ProgressPending:
		return 0
	case ProgressGenerating:
		return 1
	case ProgressCompleted, ProgressFailed, ProgressCached:
		return 2
	}
	return -1
}

// Terminal reports whether the artifact needs no further generation work.
func (s ProgressStatus) Terminal() bool {
	return s == ProgressCompleted || s == ProgressCached
}

// Progress is one generation-status row per (gate, artifact kind).
type Progress struct {
	ID           int64
	GateID       int64
	Kind         artifact.Kind
	Status       ProgressStatus
	ProgressPct  int
	Message      string
	StartedAt    string
	CompletedAt  string
	CharCount    int
	GenerationMS int64
	ErrorMessage string
}

// ArtifactRecord is the realized content row for (gate, kind). Content
// bytes live at FilePath; WasEdited marks human-substituted content.
type ArtifactRecord struct {
	ID          int64
	GateID      int64
	Kind        artifact.Kind
	ContentHash string
	FilePath    string
	CharCount   int
	WasEdited   bool
	CreatedAt   string
}

// ArtifactEdit records one HITL substitution accepted at approval time.
type ArtifactEdit struct {
	ID               int64
	GateID           int64
	Kind             artifact.Kind
	OriginalHash     string
	EditedHash       string
	OriginalFilePath string
	EditedBy         string
	EditedAt         string
}

// AuditEvent is one append-only log row. Actor is "system" or a user
// identity; Detail is an opaque JSON blob.
type AuditEvent struct {
	ID          int64
	SessionID   string
	EventType   string
	PhaseNumber int
	Kind        artifact.Kind
	Actor       string
	Detail      string
	CreatedAt   string
}
