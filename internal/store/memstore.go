package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"prdflow/internal/artifact"
	"prdflow/internal/phase"
)

// MemStore is an in-memory Store for tests. Implements Store.
type MemStore struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	responses map[string][]*QuestionnaireResponse
	documents map[string][]*Document
	gates     map[string]map[int]*PhaseGate // sessionID -> phaseNumber -> gate
	progress  map[int64][]*Progress         // gateID -> rows in init order
	artifacts map[int64][]*ArtifactRecord
	edits     map[int64][]*ArtifactEdit
	events    map[string][]*AuditEvent
	nextID    int64
}

// NewMemStore returns a new in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{
		sessions:  make(map[string]*Session),
		responses: make(map[string][]*QuestionnaireResponse),
		documents: make(map[string][]*Document),
		gates:     make(map[string]map[int]*PhaseGate),
		progress:  make(map[int64][]*Progress),
		artifacts: make(map[int64][]*ArtifactRecord),
		edits:     make(map[int64][]*ArtifactEdit),
		events:    make(map[string][]*AuditEvent),
	}
}

func (m *MemStore) Close() error { return nil }

func (m *MemStore) id() int64 {
	m.nextID++
	return m.nextID
}

// --- Sessions ---

func (m *MemStore) CreateSession(s *Session) error {
	if s == nil || s.ID == "" {
		return errors.New("session id is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	now := nowUTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.Status == "" {
		s.Status = "intake"
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemStore) GetSession(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemStore) UpdateSession(s *Session) error {
	if s == nil {
		return errors.New("session is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return fmt.Errorf("session %s not found", s.ID)
	}
	s.UpdatedAt = nowUTC()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemStore) ListSessions(status string, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*Session
	for _, s := range m.sessions {
		if status != "" && s.Status != status {
			continue
		}
		cp := *s
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt > list[j].UpdatedAt })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// --- Intake ---

func (m *MemStore) SaveQuestionnaire(sessionID string, responses []*QuestionnaireResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := nowUTC()
	existing := m.responses[sessionID]
	for _, r := range responses {
		cp := *r
		cp.SessionID = sessionID
		cp.CreatedAt = now
		replaced := false
		for i, prev := range existing {
			if prev.QuestionID == cp.QuestionID {
				cp.ID = prev.ID
				existing[i] = &cp
				replaced = true
				break
			}
		}
		if !replaced {
			cp.ID = m.id()
			existing = append(existing, &cp)
		}
	}
	m.responses[sessionID] = existing
	return nil
}

func (m *MemStore) GetQuestionnaire(sessionID string) ([]*QuestionnaireResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*QuestionnaireResponse, 0, len(m.responses[sessionID]))
	for _, r := range m.responses[sessionID] {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemStore) SaveDocument(d *Document) error {
	if d == nil {
		return errors.New("document is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = m.id()
	d.UploadedAt = nowUTC()
	cp := *d
	m.documents[d.SessionID] = append(m.documents[d.SessionID], &cp)
	return nil
}

func (m *MemStore) ListDocuments(sessionID string) ([]*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Document, 0, len(m.documents[sessionID]))
	for _, d := range m.documents[sessionID] {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

// --- Phase gates ---

func (m *MemStore) CreateGate(g *PhaseGate) (int64, error) {
	if g == nil {
		return 0, errors.New("gate is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byPhase := m.gates[g.SessionID]
	if byPhase == nil {
		byPhase = make(map[int]*PhaseGate)
		m.gates[g.SessionID] = byPhase
	}
	if _, exists := byPhase[g.PhaseNumber]; exists {
		return 0, fmt.Errorf("gate for session %s phase %d already exists", g.SessionID, g.PhaseNumber)
	}
	if g.Status == "" {
		g.Status = phase.StatePending
	}
	g.ID = m.id()
	cp := *g
	byPhase[g.PhaseNumber] = &cp
	return g.ID, nil
}

func (m *MemStore) GetGate(sessionID string, phaseNumber int) (*PhaseGate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gates[sessionID][phaseNumber]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (m *MemStore) ListGates(sessionID string) ([]*PhaseGate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*PhaseGate
	for _, g := range m.gates[sessionID] {
		cp := *g
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].PhaseNumber < list[j].PhaseNumber })
	return list, nil
}

func (m *MemStore) UpdateGate(g *PhaseGate) error {
	if g == nil || g.ID == 0 {
		return errors.New("gate has no id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byPhase, ok := m.gates[g.SessionID]
	if !ok || byPhase[g.PhaseNumber] == nil || byPhase[g.PhaseNumber].ID != g.ID {
		return fmt.Errorf("gate %d not found", g.ID)
	}
	cp := *g
	byPhase[g.PhaseNumber] = &cp
	return nil
}

// --- Progress ---

func (m *MemStore) InitProgress(gateID int64, kinds []artifact.Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.progress[gateID]
	for _, k := range kinds {
		exists := false
		for _, p := range rows {
			if p.Kind == k {
				exists = true
				break
			}
		}
		if !exists {
			rows = append(rows, &Progress{ID: m.id(), GateID: gateID, Kind: k, Status: ProgressPending})
		}
	}
	m.progress[gateID] = rows
	return nil
}

func (m *MemStore) UpdateProgress(p *Progress) error {
	if p == nil {
		return errors.New("progress is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, row := range m.progress[p.GateID] {
		if row.Kind != p.Kind {
			continue
		}
		if progressRank(p.Status) < progressRank(row.Status) {
			return fmt.Errorf("%w: %s -> %s for %s", ErrProgressOrder, row.Status, p.Status, p.Kind)
		}
		cp := *p
		cp.ID = row.ID
		m.progress[p.GateID][i] = &cp
		return nil
	}
	return fmt.Errorf("no progress row for gate %d artifact %s", p.GateID, p.Kind)
}

func (m *MemStore) ListProgress(gateID int64) ([]*Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Progress, 0, len(m.progress[gateID]))
	for _, p := range m.progress[gateID] {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemStore) IncompleteArtifacts(gateID int64) ([]artifact.Kind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kinds []artifact.Kind
	for _, p := range m.progress[gateID] {
		if !p.Status.Terminal() {
			kinds = append(kinds, p.Kind)
		}
	}
	return kinds, nil
}

func (m *MemStore) ResetProgress(gateID int64, kinds []artifact.Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range kinds {
		for i, row := range m.progress[gateID] {
			if row.Kind == k {
				m.progress[gateID][i] = &Progress{ID: row.ID, GateID: gateID, Kind: k, Status: ProgressPending}
			}
		}
	}
	return nil
}

// --- Artifacts ---

func (m *MemStore) SaveArtifact(rec *ArtifactRecord) error {
	if rec == nil {
		return errors.New("artifact record is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.CreatedAt = nowUTC()
	cp := *rec
	for i, existing := range m.artifacts[rec.GateID] {
		if existing.Kind == rec.Kind {
			cp.ID = existing.ID
			m.artifacts[rec.GateID][i] = &cp
			return nil
		}
	}
	cp.ID = m.id()
	rec.ID = cp.ID
	m.artifacts[rec.GateID] = append(m.artifacts[rec.GateID], &cp)
	return nil
}

func (m *MemStore) GetArtifact(gateID int64, kind artifact.Kind) (*ArtifactRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.artifacts[gateID] {
		if rec.Kind == kind {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemStore) ListArtifacts(gateID int64) ([]*ArtifactRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ArtifactRecord, 0, len(m.artifacts[gateID]))
	for _, rec := range m.artifacts[gateID] {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemStore) DeleteArtifacts(gateID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.artifacts, gateID)
	return nil
}

// --- Edits ---

func (m *MemStore) SaveEdit(e *ArtifactEdit) error {
	if e == nil {
		return errors.New("edit is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.id()
	e.EditedAt = nowUTC()
	cp := *e
	m.edits[e.GateID] = append(m.edits[e.GateID], &cp)
	return nil
}

func (m *MemStore) ListEdits(gateID int64) ([]*ArtifactEdit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ArtifactEdit, 0, len(m.edits[gateID]))
	for _, e := range m.edits[gateID] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// --- Audit log ---

func (m *MemStore) LogEvent(e *AuditEvent) error {
	if e == nil {
		return errors.New("event is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.id()
	e.CreatedAt = nowUTC()
	if e.Actor == "" {
		e.Actor = "system"
	}
	cp := *e
	m.events[e.SessionID] = append(m.events[e.SessionID], &cp)
	return nil
}

func (m *MemStore) ListEvents(sessionID, eventType string, limit int) ([]*AuditEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*AuditEvent
	rows := m.events[sessionID]
	for i := len(rows) - 1; i >= 0 && len(out) < limit; i-- {
		if eventType != "" && rows[i].EventType != eventType {
			continue
		}
		cp := *rows[i]
		out = append(out, &cp)
	}
	return out, nil
}
