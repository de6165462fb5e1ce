package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"prdflow/internal/artifact"
	"prdflow/internal/phase"

	_ "modernc.org/sqlite"
)

// nowUTC returns the current UTC time as an ISO 8601 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

// nullStr converts a sql.NullString to a plain string (empty if null).
func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullInt converts a sql.NullInt64 to a plain int64 (0 if null).
func nullInt(ni sql.NullInt64) int64 {
	if ni.Valid {
		return ni.Int64
	}
	return 0
}

// SqlStore implements Store with SQLite via modernc.org/sqlite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path, creating the parent dir.
// WAL mode lets status polls read concurrently with the generation task's
// writes; a single connection avoids SQLITE_BUSY from the pure-Go driver.
func Open(path string) (*SqlStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	return open(path)
}

// OpenMemory opens an in-memory SQLite DB for testing.
func OpenMemory() (*SqlStore, error) {
	return open(":memory:")
}

func open(dsn string) (*SqlStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SqlStore{db: db}, nil
}

func (s *SqlStore) Close() error { return s.db.Close() }

// --- Sessions ---

func (s *SqlStore) CreateSession(sess *Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("session id is empty")
	}
	now := nowUTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	if sess.Status == "" {
		sess.Status = "intake"
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions(id, flow_type, status, questionnaire_ver, input_dir, output_dir, snapshot_base_dir, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.FlowType, sess.Status, sess.QuestionnaireVer,
		sess.InputDir, sess.OutputDir, sess.SnapshotBaseDir, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SqlStore) GetSession(id string) (*Session, error) {
	var sess Session
	var qver, inDir, outDir, snapDir sql.NullString
	err := s.db.QueryRow(
		`SELECT id, flow_type, status, questionnaire_ver, input_dir, output_dir, snapshot_base_dir, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.FlowType, &sess.Status, &qver, &inDir, &outDir, &snapDir, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.QuestionnaireVer = nullStr(qver)
	sess.InputDir = nullStr(inDir)
	sess.OutputDir = nullStr(outDir)
	sess.SnapshotBaseDir = nullStr(snapDir)
	return &sess, nil
}

func (s *SqlStore) UpdateSession(sess *Session) error {
	if sess == nil {
		return errors.New("session is nil")
	}
	sess.UpdatedAt = nowUTC()
	_, err := s.db.Exec(
		`UPDATE sessions SET flow_type=?, status=?, questionnaire_ver=?, input_dir=?, output_dir=?, snapshot_base_dir=?, updated_at=?
		 WHERE id=?`,
		sess.FlowType, sess.Status, sess.QuestionnaireVer,
		sess.InputDir, sess.OutputDir, sess.SnapshotBaseDir, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (s *SqlStore) ListSessions(status string, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = s.db.Query(
			`SELECT id, flow_type, status, questionnaire_ver, input_dir, output_dir, snapshot_base_dir, created_at, updated_at
			 FROM sessions WHERE status = ? ORDER BY updated_at DESC LIMIT ?`, status, limit)
	} else {
		rows, err = s.db.Query(
			`SELECT id, flow_type, status, questionnaire_ver, input_dir, output_dir, snapshot_base_dir, created_at, updated_at
			 FROM sessions ORDER BY updated_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var list []*Session
	for rows.Next() {
		var sess Session
		var qver, inDir, outDir, snapDir sql.NullString
		if err := rows.Scan(&sess.ID, &sess.FlowType, &sess.Status, &qver, &inDir, &outDir, &snapDir, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.QuestionnaireVer = nullStr(qver)
		sess.InputDir = nullStr(inDir)
		sess.OutputDir = nullStr(outDir)
		sess.SnapshotBaseDir = nullStr(snapDir)
		list = append(list, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return list, nil
}

// --- Intake ---

func (s *SqlStore) SaveQuestionnaire(sessionID string, responses []*QuestionnaireResponse) error {
	now := nowUTC()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	for _, r := range responses {
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO questionnaire_responses(session_id, question_id, question_text, answer, created_at)
			 VALUES(?, ?, ?, ?, ?)`,
			sessionID, r.QuestionID, r.QuestionText, r.Answer, now,
		)
		if err != nil {
			return fmt.Errorf("insert response %s: %w", r.QuestionID, err)
		}
	}
	return tx.Commit()
}

func (s *SqlStore) GetQuestionnaire(sessionID string) ([]*QuestionnaireResponse, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, question_id, question_text, answer, created_at
		 FROM questionnaire_responses WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get questionnaire: %w", err)
	}
	defer rows.Close()
	var list []*QuestionnaireResponse
	for rows.Next() {
		var r QuestionnaireResponse
		if err := rows.Scan(&r.ID, &r.SessionID, &r.QuestionID, &r.QuestionText, &r.Answer, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		list = append(list, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get questionnaire: %w", err)
	}
	return list, nil
}

func (s *SqlStore) SaveDocument(d *Document) error {
	if d == nil {
		return errors.New("document is nil")
	}
	d.UploadedAt = nowUTC()
	res, err := s.db.Exec(
		`INSERT INTO session_documents(session_id, filename, file_path, file_size, file_type, content_hash, uploaded_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		d.SessionID, d.Filename, d.FilePath, d.FileSize, d.FileType, d.ContentHash, d.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	d.ID, _ = res.LastInsertId()
	return nil
}

func (s *SqlStore) ListDocuments(sessionID string) ([]*Document, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, filename, file_path, file_size, file_type, content_hash, uploaded_at
		 FROM session_documents WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	var list []*Document
	for rows.Next() {
		var d Document
		var size sql.NullInt64
		var ftype, hash sql.NullString
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Filename, &d.FilePath, &size, &ftype, &hash, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.FileSize = nullInt(size)
		d.FileType = nullStr(ftype)
		d.ContentHash = nullStr(hash)
		list = append(list, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return list, nil
}

// --- Phase gates ---

func (s *SqlStore) CreateGate(g *PhaseGate) (int64, error) {
	if g == nil {
		return 0, errors.New("gate is nil")
	}
	if g.Status == "" {
		g.Status = phase.StatePending
	}
	res, err := s.db.Exec(
		`INSERT INTO phase_gates(session_id, phase_number, phase_name, status, overall_progress, started_at,
		                         generated_at, completed_at, approved_by, approval_notes, rejection_feedback,
		                         rejection_count, snapshot_dir)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.SessionID, g.PhaseNumber, g.PhaseName, string(g.Status), g.OverallProgress, g.StartedAt,
		g.GeneratedAt, g.CompletedAt, g.ApprovedBy, g.ApprovalNotes, g.RejectionFeedback,
		g.RejectionCount, g.SnapshotDir,
	)
	if err != nil {
		return 0, fmt.Errorf("insert gate: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	g.ID = id
	return id, nil
}

const gateColumns = `id, session_id, phase_number, phase_name, status, overall_progress, started_at,
	generated_at, completed_at, approved_by, approval_notes, rejection_feedback, rejection_count, snapshot_dir`

func scanGate(row interface{ Scan(...any) error }) (*PhaseGate, error) {
	var g PhaseGate
	var status string
	var startedAt, generatedAt, completedAt, approvedBy, notes, feedback, snapDir sql.NullString
	var progress, rejections sql.NullInt64
	err := row.Scan(&g.ID, &g.SessionID, &g.PhaseNumber, &g.PhaseName, &status, &progress,
		&startedAt, &generatedAt, &completedAt, &approvedBy, &notes, &feedback, &rejections, &snapDir)
	if err != nil {
		return nil, err
	}
	g.Status = phase.GateState(status)
	g.OverallProgress = int(nullInt(progress))
	g.StartedAt = nullStr(startedAt)
	g.GeneratedAt = nullStr(generatedAt)
	g.CompletedAt = nullStr(completedAt)
	g.ApprovedBy = nullStr(approvedBy)
	g.ApprovalNotes = nullStr(notes)
	g.RejectionFeedback = nullStr(feedback)
	g.RejectionCount = int(nullInt(rejections))
	g.SnapshotDir = nullStr(snapDir)
	return &g, nil
}

func (s *SqlStore) GetGate(sessionID string, phaseNumber int) (*PhaseGate, error) {
	row := s.db.QueryRow(
		`SELECT `+gateColumns+` FROM phase_gates WHERE session_id = ? AND phase_number = ?`,
		sessionID, phaseNumber)
	g, err := scanGate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get gate: %w", err)
	}
	return g, nil
}

func (s *SqlStore) ListGates(sessionID string) ([]*PhaseGate, error) {
	rows, err := s.db.Query(
		`SELECT `+gateColumns+` FROM phase_gates WHERE session_id = ? ORDER BY phase_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list gates: %w", err)
	}
	defer rows.Close()
	var list []*PhaseGate
	for rows.Next() {
		g, err := scanGate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gate: %w", err)
		}
		list = append(list, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list gates: %w", err)
	}
	return list, nil
}

func (s *SqlStore) UpdateGate(g *PhaseGate) error {
	if g == nil || g.ID == 0 {
		return errors.New("gate has no id")
	}
	_, err := s.db.Exec(
		`UPDATE phase_gates SET status=?, overall_progress=?, started_at=?, generated_at=?, completed_at=?,
		        approved_by=?, approval_notes=?, rejection_feedback=?, rejection_count=?, snapshot_dir=?
		 WHERE id=?`,
		string(g.Status), g.OverallProgress, g.StartedAt, g.GeneratedAt, g.CompletedAt,
		g.ApprovedBy, g.ApprovalNotes, g.RejectionFeedback, g.RejectionCount, g.SnapshotDir, g.ID,
	)
	if err != nil {
		return fmt.Errorf("update gate: %w", err)
	}
	return nil
}

// --- Generation progress ---

func (s *SqlStore) InitProgress(gateID int64, kinds []artifact.Kind) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	for _, k := range kinds {
		_, err := tx.Exec(
			`INSERT OR IGNORE INTO generation_progress(phase_gate_id, artifact_type, status)
			 VALUES(?, ?, 'pending')`, gateID, string(k))
		if err != nil {
			return fmt.Errorf("init progress %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// UpdateProgress applies a read-modify-write on a single row inside a
// transaction so a poll never observes a half-written update, and rejects
// backward transitions with ErrProgressOrder.
func (s *SqlStore) UpdateProgress(p *Progress) error {
	if p == nil {
		return errors.New("progress is nil")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow(
		`SELECT status FROM generation_progress WHERE phase_gate_id = ? AND artifact_type = ?`,
		p.GateID, string(p.Kind),
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("no progress row for gate %d artifact %s", p.GateID, p.Kind)
	}
	if err != nil {
		return fmt.Errorf("read progress: %w", err)
	}
	if progressRank(p.Status) < progressRank(ProgressStatus(current)) {
		return fmt.Errorf("%w: %s -> %s for %s", ErrProgressOrder, current, p.Status, p.Kind)
	}

	_, err = tx.Exec(
		`UPDATE generation_progress
		 SET status=?, progress_pct=?, message=?, started_at=?, completed_at=?, char_count=?, generation_ms=?, error_message=?
		 WHERE phase_gate_id=? AND artifact_type=?`,
		string(p.Status), p.ProgressPct, p.Message, p.StartedAt, p.CompletedAt,
		p.CharCount, p.GenerationMS, p.ErrorMessage, p.GateID, string(p.Kind),
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return tx.Commit()
}

func (s *SqlStore) ListProgress(gateID int64) ([]*Progress, error) {
	rows, err := s.db.Query(
		`SELECT id, phase_gate_id, artifact_type, status, progress_pct, message, started_at, completed_at,
		        char_count, generation_ms, error_message
		 FROM generation_progress WHERE phase_gate_id = ? ORDER BY id`, gateID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()
	var list []*Progress
	for rows.Next() {
		var p Progress
		var kind, status string
		var msg, startedAt, completedAt, errMsg sql.NullString
		var pct, chars, genMS sql.NullInt64
		if err := rows.Scan(&p.ID, &p.GateID, &kind, &status, &pct, &msg, &startedAt, &completedAt, &chars, &genMS, &errMsg); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		p.Kind = artifact.Kind(kind)
		p.Status = ProgressStatus(status)
		p.ProgressPct = int(nullInt(pct))
		p.Message = nullStr(msg)
		p.StartedAt = nullStr(startedAt)
		p.CompletedAt = nullStr(completedAt)
		p.CharCount = int(nullInt(chars))
		p.GenerationMS = nullInt(genMS)
		p.ErrorMessage = nullStr(errMsg)
		list = append(list, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return list, nil
}

func (s *SqlStore) IncompleteArtifacts(gateID int64) ([]artifact.Kind, error) {
	rows, err := s.db.Query(
		`SELECT artifact_type FROM generation_progress
		 WHERE phase_gate_id = ? AND status NOT IN ('completed', 'cached')
		 ORDER BY id`, gateID)
	if err != nil {
		return nil, fmt.Errorf("incomplete artifacts: %w", err)
	}
	defer rows.Close()
	var kinds []artifact.Kind
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan kind: %w", err)
		}
		kinds = append(kinds, artifact.Kind(k))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("incomplete artifacts: %w", err)
	}
	return kinds, nil
}

func (s *SqlStore) ResetProgress(gateID int64, kinds []artifact.Kind) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	for _, k := range kinds {
		_, err := tx.Exec(
			`UPDATE generation_progress
			 SET status='pending', progress_pct=0, message=NULL, started_at=NULL, completed_at=NULL,
			     char_count=NULL, generation_ms=NULL, error_message=NULL
			 WHERE phase_gate_id=? AND artifact_type=?`, gateID, string(k))
		if err != nil {
			return fmt.Errorf("reset progress %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// --- Artifacts ---

func (s *SqlStore) SaveArtifact(rec *ArtifactRecord) error {
	if rec == nil {
		return errors.New("artifact record is nil")
	}
	rec.CreatedAt = nowUTC()
	wasEdited := 0
	if rec.WasEdited {
		wasEdited = 1
	}
	res, err := s.db.Exec(
		`INSERT OR REPLACE INTO phase_artifacts(phase_gate_id, artifact_type, content_hash, file_path, char_count, was_edited, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		rec.GateID, string(rec.Kind), rec.ContentHash, rec.FilePath, rec.CharCount, wasEdited, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

func (s *SqlStore) GetArtifact(gateID int64, kind artifact.Kind) (*ArtifactRecord, error) {
	var rec ArtifactRecord
	var kindStr string
	var chars, wasEdited sql.NullInt64
	err := s.db.QueryRow(
		`SELECT id, phase_gate_id, artifact_type, content_hash, file_path, char_count, was_edited, created_at
		 FROM phase_artifacts WHERE phase_gate_id = ? AND artifact_type = ?`,
		gateID, string(kind),
	).Scan(&rec.ID, &rec.GateID, &kindStr, &rec.ContentHash, &rec.FilePath, &chars, &wasEdited, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	rec.Kind = artifact.Kind(kindStr)
	rec.CharCount = int(nullInt(chars))
	rec.WasEdited = nullInt(wasEdited) == 1
	return &rec, nil
}

func (s *SqlStore) ListArtifacts(gateID int64) ([]*ArtifactRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, phase_gate_id, artifact_type, content_hash, file_path, char_count, was_edited, created_at
		 FROM phase_artifacts WHERE phase_gate_id = ? ORDER BY id`, gateID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()
	var list []*ArtifactRecord
	for rows.Next() {
		var rec ArtifactRecord
		var kindStr string
		var chars, wasEdited sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.GateID, &kindStr, &rec.ContentHash, &rec.FilePath, &chars, &wasEdited, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		rec.Kind = artifact.Kind(kindStr)
		rec.CharCount = int(nullInt(chars))
		rec.WasEdited = nullInt(wasEdited) == 1
		list = append(list, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return list, nil
}

func (s *SqlStore) DeleteArtifacts(gateID int64) error {
	_, err := s.db.Exec(`DELETE FROM phase_artifacts WHERE phase_gate_id = ?`, gateID)
	if err != nil {
		return fmt.Errorf("delete artifacts: %w", err)
	}
	return nil
}

// --- Edits ---

func (s *SqlStore) SaveEdit(e *ArtifactEdit) error {
	if e == nil {
		return errors.New("edit is nil")
	}
	e.EditedAt = nowUTC()
	res, err := s.db.Exec(
		`INSERT INTO artifact_edits(phase_gate_id, artifact_type, original_hash, edited_hash, original_file_path, edited_by, edited_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		e.GateID, string(e.Kind), e.OriginalHash, e.EditedHash, e.OriginalFilePath, e.EditedBy, e.EditedAt,
	)
	if err != nil {
		return fmt.Errorf("save edit: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

func (s *SqlStore) ListEdits(gateID int64) ([]*ArtifactEdit, error) {
	rows, err := s.db.Query(
		`SELECT id, phase_gate_id, artifact_type, original_hash, edited_hash, original_file_path, edited_by, edited_at
		 FROM artifact_edits WHERE phase_gate_id = ? ORDER BY id`, gateID)
	if err != nil {
		return nil, fmt.Errorf("list edits: %w", err)
	}
	defer rows.Close()
	var list []*ArtifactEdit
	for rows.Next() {
		var e ArtifactEdit
		var kindStr string
		if err := rows.Scan(&e.ID, &e.GateID, &kindStr, &e.OriginalHash, &e.EditedHash, &e.OriginalFilePath, &e.EditedBy, &e.EditedAt); err != nil {
			return nil, fmt.Errorf("scan edit: %w", err)
		}
		e.Kind = artifact.Kind(kindStr)
		list = append(list, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list edits: %w", err)
	}
	return list, nil
}

// --- Audit log ---

func (s *SqlStore) LogEvent(e *AuditEvent) error {
	if e == nil {
		return errors.New("event is nil")
	}
	e.CreatedAt = nowUTC()
	if e.Actor == "" {
		e.Actor = "system"
	}
	var phaseNum any
	if e.PhaseNumber != 0 {
		phaseNum = e.PhaseNumber
	}
	var kind any
	if e.Kind != "" {
		kind = string(e.Kind)
	}
	_, err := s.db.Exec(
		`INSERT INTO audit_log(session_id, event_type, phase_number, artifact_type, actor, detail, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.EventType, phaseNum, kind, e.Actor, e.Detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

func (s *SqlStore) ListEvents(sessionID, eventType string, limit int) ([]*AuditEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows *sql.Rows
	var err error
	if eventType != "" {
		rows, err = s.db.Query(
			`SELECT id, session_id, event_type, phase_number, artifact_type, actor, detail, created_at
			 FROM audit_log WHERE session_id = ? AND event_type = ?
			 ORDER BY id DESC LIMIT ?`, sessionID, eventType, limit)
	} else {
		rows, err = s.db.Query(
			`SELECT id, session_id, event_type, phase_number, artifact_type, actor, detail, created_at
			 FROM audit_log WHERE session_id = ?
			 ORDER BY id DESC LIMIT ?`, sessionID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	var list []*AuditEvent
	for rows.Next() {
		var e AuditEvent
		var phaseNum sql.NullInt64
		var kind, actor, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &phaseNum, &kind, &actor, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.PhaseNumber = int(nullInt(phaseNum))
		e.Kind = artifact.Kind(nullStr(kind))
		e.Actor = nullStr(actor)
		e.Detail = nullStr(detail)
		list = append(list, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return list, nil
}
