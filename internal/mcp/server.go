// Package mcp exposes the phase orchestration operations as MCP tools so
// agent clients can drive sessions over stdio.
package mcp

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"prdflow/internal/artifact"
	"prdflow/internal/flow"
	"prdflow/internal/ingest"
	"prdflow/internal/logging"
	"prdflow/internal/store"
)

// Server wraps the MCP SDK server around a flow runner.
type Server struct {
	MCPServer *sdkmcp.Server

	runner           *flow.Runner
	store            store.Store
	questionnaireDir string
}

// NewServer creates the MCP server and registers the session and phase
// tools.
func NewServer(runner *flow.Runner, st store.Store, questionnaireDir string) *Server {
	s := &Server{
		runner:           runner,
		store:            st,
		questionnaireDir: questionnaireDir,
	}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "prdflow", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves MCP over the given transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context, transport sdkmcp.Transport) error {
	logging.New("mcp").Info("mcp server starting")
	return s.MCPServer.Run(ctx, transport)
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "create_session",
		Description: "Create a generation session. Flow type selects the intake questionnaire (greenfield or modernization).",
	}, s.handleCreateSession)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "submit_questionnaire",
		Description: "Validate and store intake questionnaire answers for a session.",
	}, s.handleSubmitQuestionnaire)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "attach_documents",
		Description: "Ingest text/markdown documents from a folder and attach them to a session.",
	}, s.handleAttachDocuments)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "start_phase",
		Description: "Request generation for a phase. Returns accepted, conflict (already generating) or locked (prior phase not approved).",
	}, s.handleStartPhase)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_phase_status",
		Description: "Poll gate state, per-artifact progress and overall percent for a phase.",
	}, s.handleGetPhaseStatus)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_phase_artifacts",
		Description: "Fetch the generated artifact content for a phase in review or approved.",
	}, s.handleGetPhaseArtifacts)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "approve_phase",
		Description: "Approve a phase in review, optionally substituting edited artifact content. Freezes a verified snapshot and unlocks the next phase.",
	}, s.handleApprovePhase)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "reject_phase",
		Description: "Reject a phase in review with feedback. All of the phase's artifacts regenerate on the next start.",
	}, s.handleRejectPhase)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "download_snapshot",
		Description: "Load and verify the approved snapshot bundle for a phase.",
	}, s.handleDownloadSnapshot)
}

// --- Tool input/output types ---

type createSessionInput struct {
	FlowType string `json:"flow_type" jsonschema:"flow type (greenfield or modernization)"`
	InputDir string `json:"input_dir,omitempty" jsonschema:"folder of source documents to ingest for this session"`
}

type createSessionOutput struct {
	SessionID string `json:"session_id"`
	FlowType  string `json:"flow_type"`
	Status    string `json:"status"`
}

type submitQuestionnaireInput struct {
	SessionID string            `json:"session_id" jsonschema:"session ID from create_session"`
	Answers   map[string]string `json:"answers" jsonschema:"question ID to answer text"`
}

type submitQuestionnaireOutput struct {
	Accepted bool     `json:"accepted"`
	Errors   []string `json:"errors,omitempty"`
}

type attachDocumentsInput struct {
	SessionID string `json:"session_id" jsonschema:"session ID from create_session"`
	InputDir  string `json:"input_dir,omitempty" jsonschema:"folder to ingest; defaults to the session's input dir"`
}

type attachDocumentsOutput struct {
	Files []string `json:"files"`
}

type phaseInput struct {
	SessionID   string `json:"session_id" jsonschema:"session ID from create_session"`
	PhaseNumber int    `json:"phase_number" jsonschema:"phase number (1-3)"`
}

type startPhaseOutput struct {
	Result string `json:"result"`
}

type artifactProgress struct {
	Kind    string `json:"kind"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type phaseStatusOutput struct {
	PhaseNumber       int                `json:"phase_number"`
	PhaseName         string             `json:"phase_name"`
	GateState         string             `json:"gate_state"`
	Artifacts         []artifactProgress `json:"artifacts"`
	OverallPct        int                `json:"overall_pct"`
	RejectionFeedback string             `json:"rejection_feedback,omitempty"`
	RejectionCount    int                `json:"rejection_count,omitempty"`
}

type phaseArtifactsOutput struct {
	Artifacts map[string]string `json:"artifacts"`
}

type approvePhaseInput struct {
	SessionID   string            `json:"session_id" jsonschema:"session ID from create_session"`
	PhaseNumber int               `json:"phase_number" jsonschema:"phase number (1-3)"`
	Approver    string            `json:"approver" jsonschema:"identity of the approving human"`
	Notes       string            `json:"notes,omitempty" jsonschema:"free-text approval notes"`
	Edits       map[string]string `json:"edits,omitempty" jsonschema:"artifact kind to edited content; kinds must belong to the phase"`
}

type approvePhaseOutput struct {
	SnapshotDir       string            `json:"snapshot_dir"`
	ContentHashes     map[string]string `json:"content_hashes"`
	NextPhaseUnlocked bool              `json:"next_phase_unlocked"`
}

type rejectPhaseInput struct {
	SessionID   string `json:"session_id" jsonschema:"session ID from create_session"`
	PhaseNumber int    `json:"phase_number" jsonschema:"phase number (1-3)"`
	Feedback    string `json:"feedback" jsonschema:"non-empty rejection feedback"`
	Actor       string `json:"actor,omitempty" jsonschema:"identity of the rejecting human"`
}

type rejectPhaseOutput struct {
	Result string `json:"result"`
}

type downloadSnapshotOutput struct {
	PhaseNumber   int               `json:"phase_number"`
	Artifacts     map[string]string `json:"artifacts"`
	ContentHashes map[string]string `json:"content_hashes"`
	ApprovedBy    string            `json:"approved_by,omitempty"`
	ApprovedAt    string            `json:"approved_at,omitempty"`
	Notes         string            `json:"notes,omitempty"`
}

// --- Tool handlers ---

func (s *Server) handleCreateSession(_ context.Context, _ *sdkmcp.CallToolRequest, input createSessionInput) (*sdkmcp.CallToolResult, createSessionOutput, error) {
	sess, err := s.runner.CreateSession(input.FlowType)
	if err != nil {
		return nil, createSessionOutput{}, err
	}
	if input.InputDir != "" {
		sess.InputDir = input.InputDir
		if err := s.store.UpdateSession(sess); err != nil {
			return nil, createSessionOutput{}, fmt.Errorf("record input dir: %w", err)
		}
	}
	return nil, createSessionOutput{
		SessionID: sess.ID,
		FlowType:  sess.FlowType,
		Status:    sess.Status,
	}, nil
}

func (s *Server) handleSubmitQuestionnaire(_ context.Context, _ *sdkmcp.CallToolRequest, input submitQuestionnaireInput) (*sdkmcp.CallToolResult, submitQuestionnaireOutput, error) {
	sess, err := s.store.GetSession(input.SessionID)
	if err != nil {
		return nil, submitQuestionnaireOutput{}, err
	}
	if sess == nil {
		return nil, submitQuestionnaireOutput{}, fmt.Errorf("session %s not found", input.SessionID)
	}

	q, err := ingest.LoadQuestionnaire(s.questionnaireDir, sess.FlowType)
	if err != nil {
		return nil, submitQuestionnaireOutput{}, err
	}
	if errs := q.Validate(input.Answers); len(errs) > 0 {
		return nil, submitQuestionnaireOutput{Accepted: false, Errors: errs}, nil
	}

	byID := make(map[string]ingest.Question)
	for _, question := range q.Questions() {
		byID[question.ID] = question
	}
	responses := make([]*store.QuestionnaireResponse, 0, len(input.Answers))
	for id, answer := range input.Answers {
		responses = append(responses, &store.QuestionnaireResponse{
			QuestionID:   id,
			QuestionText: byID[id].Text,
			Answer:       strings.TrimSpace(answer),
		})
	}
	if err := s.store.SaveQuestionnaire(sess.ID, responses); err != nil {
		return nil, submitQuestionnaireOutput{}, fmt.Errorf("save answers: %w", err)
	}
	sess.QuestionnaireVer = q.Version
	sess.Status = "questionnaire_done"
	if err := s.store.UpdateSession(sess); err != nil {
		return nil, submitQuestionnaireOutput{}, fmt.Errorf("update session: %w", err)
	}
	return nil, submitQuestionnaireOutput{Accepted: true}, nil
}

func (s *Server) handleAttachDocuments(_ context.Context, _ *sdkmcp.CallToolRequest, input attachDocumentsInput) (*sdkmcp.CallToolResult, attachDocumentsOutput, error) {
	sess, err := s.store.GetSession(input.SessionID)
	if err != nil {
		return nil, attachDocumentsOutput{}, err
	}
	if sess == nil {
		return nil, attachDocumentsOutput{}, fmt.Errorf("session %s not found", input.SessionID)
	}
	dir := input.InputDir
	if dir == "" {
		dir = sess.InputDir
	}
	if dir == "" {
		return nil, attachDocumentsOutput{}, fmt.Errorf("no input dir for session %s", sess.ID)
	}

	docs, err := ingest.Folder(dir, ingest.Options{})
	if err != nil {
		return nil, attachDocumentsOutput{}, err
	}
	if err := ingest.Record(s.store, sess.ID, docs); err != nil {
		return nil, attachDocumentsOutput{}, err
	}
	sess.InputDir = dir
	sess.Status = "docs_uploaded"
	if err := s.store.UpdateSession(sess); err != nil {
		return nil, attachDocumentsOutput{}, fmt.Errorf("update session: %w", err)
	}

	files := make([]string, len(docs))
	for i, d := range docs {
		files[i] = d.Path
	}
	return nil, attachDocumentsOutput{Files: files}, nil
}

func (s *Server) handleStartPhase(ctx context.Context, _ *sdkmcp.CallToolRequest, input phaseInput) (*sdkmcp.CallToolResult, startPhaseOutput, error) {
	res, err := s.runner.StartPhase(ctx, input.SessionID, input.PhaseNumber)
	if err != nil {
		return nil, startPhaseOutput{}, err
	}
	return nil, startPhaseOutput{Result: string(res)}, nil
}

func (s *Server) handleGetPhaseStatus(_ context.Context, _ *sdkmcp.CallToolRequest, input phaseInput) (*sdkmcp.CallToolResult, phaseStatusOutput, error) {
	st, err := s.runner.Status(input.SessionID, input.PhaseNumber)
	if err != nil {
		return nil, phaseStatusOutput{}, err
	}
	out := phaseStatusOutput{
		PhaseNumber:       st.PhaseNumber,
		PhaseName:         st.PhaseName,
		GateState:         string(st.State),
		OverallPct:        st.OverallPct,
		RejectionFeedback: st.RejectionFeedback,
		RejectionCount:    st.RejectionCount,
	}
	for _, p := range st.Artifacts {
		out.Artifacts = append(out.Artifacts, artifactProgress{
			Kind:    string(p.Kind),
			Status:  string(p.Status),
			Message: p.Message,
			Error:   p.ErrorMessage,
		})
	}
	return nil, out, nil
}

func (s *Server) handleGetPhaseArtifacts(_ context.Context, _ *sdkmcp.CallToolRequest, input phaseInput) (*sdkmcp.CallToolResult, phaseArtifactsOutput, error) {
	arts, err := s.runner.Artifacts(input.SessionID, input.PhaseNumber)
	if err != nil {
		return nil, phaseArtifactsOutput{}, err
	}
	out := phaseArtifactsOutput{Artifacts: make(map[string]string, len(arts))}
	for k, content := range arts {
		out.Artifacts[string(k)] = content
	}
	return nil, out, nil
}

func (s *Server) handleApprovePhase(_ context.Context, _ *sdkmcp.CallToolRequest, input approvePhaseInput) (*sdkmcp.CallToolResult, approvePhaseOutput, error) {
	edits := make(map[artifact.Kind]string, len(input.Edits))
	for k, content := range input.Edits {
		edits[artifact.Kind(k)] = content
	}
	res, err := s.runner.Approve(input.SessionID, input.PhaseNumber, input.Approver, input.Notes, edits)
	if err != nil {
		return nil, approvePhaseOutput{}, err
	}
	out := approvePhaseOutput{
		SnapshotDir:       res.SnapshotDir,
		ContentHashes:     make(map[string]string, len(res.ContentHashes)),
		NextPhaseUnlocked: res.NextPhaseUnlocked,
	}
	for k, h := range res.ContentHashes {
		out.ContentHashes[string(k)] = h
	}
	return nil, out, nil
}

func (s *Server) handleRejectPhase(_ context.Context, _ *sdkmcp.CallToolRequest, input rejectPhaseInput) (*sdkmcp.CallToolResult, rejectPhaseOutput, error) {
	if err := s.runner.Reject(input.SessionID, input.PhaseNumber, input.Feedback, input.Actor); err != nil {
		return nil, rejectPhaseOutput{}, err
	}
	return nil, rejectPhaseOutput{Result: "accepted"}, nil
}

func (s *Server) handleDownloadSnapshot(_ context.Context, _ *sdkmcp.CallToolRequest, input phaseInput) (*sdkmcp.CallToolResult, downloadSnapshotOutput, error) {
	snap, err := s.runner.Snapshot(input.SessionID, input.PhaseNumber)
	if err != nil {
		return nil, downloadSnapshotOutput{}, err
	}
	out := downloadSnapshotOutput{
		PhaseNumber:   snap.PhaseNumber,
		Artifacts:     make(map[string]string, len(snap.Artifacts)),
		ContentHashes: make(map[string]string, len(snap.ContentHashes)),
		ApprovedBy:    snap.ApprovedBy,
		ApprovedAt:    snap.ApprovedAt,
		Notes:         snap.Notes,
	}
	for k, content := range snap.Artifacts {
		out.Artifacts[string(k)] = content
	}
	for k, h := range snap.ContentHashes {
		out.ContentHashes[string(k)] = h
	}
	return nil, out, nil
}
