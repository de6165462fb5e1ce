package store

import "errors"

// ErrProgressOrder is returned when a progress update would move an
// artifact's status backward. Transitions are monotonic within a run;
// rejection and retry reset rows through ResetProgress instead.
var ErrProgressOrder = errors.New("store: progress status moved backward")

// schemaDDL creates all tables. Content bytes live on disk; rows carry
// hashes, paths and status. WAL mode is set by Open so status polls can
// read while the generation task writes.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS sessions (
	id                TEXT PRIMARY KEY,
	flow_type         TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'intake',
	questionnaire_ver TEXT,
	input_dir         TEXT,
	output_dir        TEXT,
	snapshot_base_dir TEXT,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS questionnaire_responses (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	question_id   TEXT NOT NULL,
	question_text TEXT NOT NULL,
	answer        TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	UNIQUE(session_id, question_id)
);

CREATE TABLE IF NOT EXISTS session_documents (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	filename     TEXT NOT NULL,
	file_path    TEXT NOT NULL,
	file_size    INTEGER,
	file_type    TEXT,
	content_hash TEXT,
	uploaded_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS phase_gates (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id         TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	phase_number       INTEGER NOT NULL CHECK (phase_number IN (1, 2, 3)),
	phase_name         TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'pending',
	overall_progress   INTEGER DEFAULT 0,
	started_at         TEXT,
	generated_at       TEXT,
	completed_at       TEXT,
	approved_by        TEXT,
	approval_notes     TEXT,
	rejection_feedback TEXT,
	rejection_count    INTEGER DEFAULT 0,
	snapshot_dir       TEXT,
	UNIQUE(session_id, phase_number)
);

CREATE TABLE IF NOT EXISTS generation_progress (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	phase_gate_id INTEGER NOT NULL REFERENCES phase_gates(id) ON DELETE CASCADE,
	artifact_type TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	progress_pct  INTEGER DEFAULT 0,
	message       TEXT,
	started_at    TEXT,
	completed_at  TEXT,
	char_count    INTEGER,
	generation_ms INTEGER,
	error_message TEXT,
	UNIQUE(phase_gate_id, artifact_type)
);

CREATE TABLE IF NOT EXISTS phase_artifacts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	phase_gate_id INTEGER NOT NULL REFERENCES phase_gates(id) ON DELETE CASCADE,
	artifact_type TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	file_path     TEXT NOT NULL,
	char_count    INTEGER,
	was_edited    INTEGER DEFAULT 0,
	created_at    TEXT NOT NULL,
	UNIQUE(phase_gate_id, artifact_type)
);

CREATE TABLE IF NOT EXISTS artifact_edits (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	phase_gate_id      INTEGER NOT NULL REFERENCES phase_gates(id) ON DELETE CASCADE,
	artifact_type      TEXT NOT NULL,
	original_hash      TEXT NOT NULL,
	edited_hash        TEXT NOT NULL,
	original_file_path TEXT NOT NULL,
	edited_by          TEXT NOT NULL,
	edited_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	event_type    TEXT NOT NULL,
	phase_number  INTEGER,
	artifact_type TEXT,
	actor         TEXT,
	detail        TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_log(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_audit_event ON audit_log(event_type, created_at);
`
