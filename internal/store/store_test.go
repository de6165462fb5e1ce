package store

import (
	"errors"
	"path/filepath"
	"testing"

	"prdflow/internal/artifact"
	"prdflow/internal/phase"
)

// runStores runs fn against both implementations so SqlStore and
// MemStore cannot drift apart.
func runStores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("sql", func(t *testing.T) {
		s, err := OpenMemory()
		if err != nil {
			t.Fatalf("OpenMemory: %v", err)
		}
		defer s.Close()
		fn(t, s)
	})
	t.Run("mem", func(t *testing.T) {
		fn(t, NewMemStore())
	})
}

func newTestSession(t *testing.T, s Store, id string) *Session {
	t.Helper()
	sess := &Session{ID: id, FlowType: "greenfield", Status: "intake"}
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess
}

func TestSessionLifecycle(t *testing.T) {
	runStores(t, func(t *testing.T, s Store) {
		sess := newTestSession(t, s, "sess-1")
		if sess.CreatedAt == "" || sess.UpdatedAt == "" {
			t.Errorf("timestamps not set: %+v", sess)
		}

		got, err := s.GetSession("sess-1")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if got == nil || got.FlowType != "greenfield" {
			t.Fatalf("GetSession = %+v, want greenfield session", got)
		}

		if missing, err := s.GetSession("nope"); err != nil || missing != nil {
			t.Errorf("GetSession(nope) = %+v, %v; want nil, nil", missing, err)
		}

		got.Status = "phase_1"
		if err := s.UpdateSession(got); err != nil {
			t.Fatalf("UpdateSession: %v", err)
		}
		again, _ := s.GetSession("sess-1")
		if again.Status != "phase_1" {
			t.Errorf("status = %q, want phase_1", again.Status)
		}

		if err := s.CreateSession(&Session{ID: "sess-1"}); err == nil {
			t.Error("duplicate CreateSession should fail")
		}

		newTestSession(t, s, "sess-2")
		list, err := s.ListSessions("", 50)
		if err != nil {
			t.Fatalf("ListSessions: %v", err)
		}
		if len(list) != 2 {
			t.Errorf("ListSessions len = %d, want 2", len(list))
		}
		only, _ := s.ListSessions("phase_1", 50)
		if len(only) != 1 || only[0].ID != "sess-1" {
			t.Errorf("ListSessions(phase_1) = %+v", only)
		}
	})
}

func TestQuestionnaireUpsert(t *testing.T) {
	runStores(t, func(t *testing.T, s Store) {
		newTestSession(t, s, "sess-1")
		first := []*QuestionnaireResponse{
			{QuestionID: "q1", QuestionText: "What problem?", Answer: "scheduling"},
			{QuestionID: "q2", QuestionText: "Who is it for?", Answer: "clinics"},
		}
		if err := s.SaveQuestionnaire("sess-1", first); err != nil {
			t.Fatalf("SaveQuestionnaire: %v", err)
		}
		// Answering q1 again replaces, not duplicates.
		if err := s.SaveQuestionnaire("sess-1", []*QuestionnaireResponse{
			{QuestionID: "q1", QuestionText: "What problem?", Answer: "staff scheduling"},
		}); err != nil {
			t.Fatalf("SaveQuestionnaire again: %v", err)
		}
		got, err := s.GetQuestionnaire("sess-1")
		if err != nil {
			t.Fatalf("GetQuestionnaire: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("responses len = %d, want 2", len(got))
		}
		answers := map[string]string{}
		for _, r := range got {
			answers[r.QuestionID] = r.Answer
		}
		if answers["q1"] != "staff scheduling" {
			t.Errorf("q1 = %q, want updated answer", answers["q1"])
		}
	})
}

func TestDocuments(t *testing.T) {
	runStores(t, func(t *testing.T, s Store) {
		newTestSession(t, s, "sess-1")
		d := &Document{SessionID: "sess-1", Filename: "notes.md", FilePath: "/in/notes.md", FileSize: 42, FileType: ".md", ContentHash: "abc"}
		if err := s.SaveDocument(d); err != nil {
			t.Fatalf("SaveDocument: %v", err)
		}
		if d.ID == 0 || d.UploadedAt == "" {
			t.Errorf("document not populated: %+v", d)
		}
		list, err := s.ListDocuments("sess-1")
		if err != nil {
			t.Fatalf("ListDocuments: %v", err)
		}
		if len(list) != 1 || list[0].Filename != "notes.md" {
			t.Errorf("ListDocuments = %+v", list)
		}
	})
}

func TestGateLifecycle(t *testing.T) {
	runStores(t, func(t *testing.T, s Store) {
		newTestSession(t, s, "sess-1")
		g := &PhaseGate{SessionID: "sess-1", PhaseNumber: 1, PhaseName: "Foundation"}
		id, err := s.CreateGate(g)
		if err != nil {
			t.Fatalf("CreateGate: %v", err)
		}
		if id == 0 {
			t.Fatal("CreateGate returned id 0")
		}
		if g.Status != phase.StatePending {
			t.Errorf("new gate status = %q, want pending", g.Status)
		}

		if _, err := s.CreateGate(&PhaseGate{SessionID: "sess-1", PhaseNumber: 1}); err == nil {
			t.Error("duplicate gate for same (session, phase) should fail")
		}

		got, err := s.GetGate("sess-1", 1)
		if err != nil {
			t.Fatalf("GetGate: %v", err)
		}
		if got == nil || got.ID != id {
			t.Fatalf("GetGate = %+v, want id %d", got, id)
		}
		if missing, err := s.GetGate("sess-1", 2); err != nil || missing != nil {
			t.Errorf("GetGate(phase 2) = %+v, %v; want nil, nil", missing, err)
		}

		got.Status = phase.StateGenerating
		got.OverallProgress = 10
		if err := s.UpdateGate(got); err != nil {
			t.Fatalf("UpdateGate: %v", err)
		}
		again, _ := s.GetGate("sess-1", 1)
		if again.Status != phase.StateGenerating || again.OverallProgress != 10 {
			t.Errorf("gate after update = %+v", again)
		}

		if _, err := s.CreateGate(&PhaseGate{SessionID: "sess-1", PhaseNumber: 2, PhaseName: "Planning"}); err != nil {
			t.Fatalf("CreateGate phase 2: %v", err)
		}
		gates, err := s.ListGates("sess-1")
		if err != nil {
			t.Fatalf("ListGates: %v", err)
		}
		if len(gates) != 2 || gates[0].PhaseNumber != 1 || gates[1].PhaseNumber != 2 {
			t.Errorf("ListGates = %+v, want phases [1 2]", gates)
		}
	})
}

func TestProgressLifecycle(t *testing.T) {
	kinds := []artifact.Kind{artifact.KindPRD, artifact.KindCapabilities}

	runStores(t, func(t *testing.T, s Store) {
		newTestSession(t, s, "sess-1")
		gateID, err := s.CreateGate(&PhaseGate{SessionID: "sess-1", PhaseNumber: 1})
		if err != nil {
			t.Fatalf("CreateGate: %v", err)
		}
		if err := s.InitProgress(gateID, kinds); err != nil {
			t.Fatalf("InitProgress: %v", err)
		}
		// Idempotent: re-init must not duplicate rows.
		if err := s.InitProgress(gateID, kinds); err != nil {
			t.Fatalf("InitProgress again: %v", err)
		}
		rows, err := s.ListProgress(gateID)
		if err != nil {
			t.Fatalf("ListProgress: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("progress rows = %d, want 2", len(rows))
		}
		for _, p := range rows {
			if p.Status != ProgressPending {
				t.Errorf("%s status = %q, want pending", p.Kind, p.Status)
			}
		}

		if err := s.UpdateProgress(&Progress{GateID: gateID, Kind: artifact.KindPRD, Status: ProgressGenerating, ProgressPct: 50}); err != nil {
			t.Fatalf("UpdateProgress generating: %v", err)
		}
		if err := s.UpdateProgress(&Progress{GateID: gateID, Kind: artifact.KindPRD, Status: ProgressCompleted, ProgressPct: 100, CharCount: 1200}); err != nil {
			t.Fatalf("UpdateProgress completed: %v", err)
		}

		// Backward move is rejected without an explicit reset.
		err = s.UpdateProgress(&Progress{GateID: gateID, Kind: artifact.KindPRD, Status: ProgressPending})
		if !errors.Is(err, ErrProgressOrder) {
			t.Errorf("backward update err = %v, want ErrProgressOrder", err)
		}

		if err := s.UpdateProgress(&Progress{GateID: gateID, Kind: "bogus", Status: ProgressGenerating}); err == nil {
			t.Error("update for unknown artifact should fail")
		}
	})
}

func TestIncompleteArtifactsDrivesResume(t *testing.T) {
	kinds := []artifact.Kind{artifact.KindContextSummary, artifact.KindPRD, artifact.KindCapabilities}

	runStores(t, func(t *testing.T, s Store) {
		newTestSession(t, s, "sess-1")
		gateID, _ := s.CreateGate(&PhaseGate{SessionID: "sess-1", PhaseNumber: 1})
		if err := s.InitProgress(gateID, kinds); err != nil {
			t.Fatalf("InitProgress: %v", err)
		}
		mustUpdate := func(k artifact.Kind, st ProgressStatus) {
			t.Helper()
			if err := s.UpdateProgress(&Progress{GateID: gateID, Kind: k, Status: st}); err != nil {
				t.Fatalf("UpdateProgress(%s, %s): %v", k, st, err)
			}
		}
		mustUpdate(artifact.KindContextSummary, ProgressCompleted)
		mustUpdate(artifact.KindPRD, ProgressCached)
		mustUpdate(artifact.KindCapabilities, ProgressFailed)

		// completed and cached count as done; failed must come back.
		got, err := s.IncompleteArtifacts(gateID)
		if err != nil {
			t.Fatalf("IncompleteArtifacts: %v", err)
		}
		if len(got) != 1 || got[0] != artifact.KindCapabilities {
			t.Errorf("IncompleteArtifacts = %v, want [capabilities]", got)
		}

		// Reset reopens the terminal row for a retry.
		if err := s.ResetProgress(gateID, []artifact.Kind{artifact.KindCapabilities}); err != nil {
			t.Fatalf("ResetProgress: %v", err)
		}
		mustUpdate(artifact.KindCapabilities, ProgressGenerating)
		mustUpdate(artifact.KindCapabilities, ProgressCompleted)

		got, _ = s.IncompleteArtifacts(gateID)
		if len(got) != 0 {
			t.Errorf("IncompleteArtifacts after retry = %v, want none", got)
		}
	})
}

func TestArtifactRecords(t *testing.T) {
	runStores(t, func(t *testing.T, s Store) {
		newTestSession(t, s, "sess-1")
		gateID, _ := s.CreateGate(&PhaseGate{SessionID: "sess-1", PhaseNumber: 1})

		rec := &ArtifactRecord{GateID: gateID, Kind: artifact.KindPRD, ContentHash: "h1", FilePath: "/out/PRD.md", CharCount: 10}
		if err := s.SaveArtifact(rec); err != nil {
			t.Fatalf("SaveArtifact: %v", err)
		}
		// Regeneration replaces the row for the same kind.
		if err := s.SaveArtifact(&ArtifactRecord{GateID: gateID, Kind: artifact.KindPRD, ContentHash: "h2", FilePath: "/out/PRD.md", CharCount: 20, WasEdited: true}); err != nil {
			t.Fatalf("SaveArtifact replace: %v", err)
		}
		got, err := s.GetArtifact(gateID, artifact.KindPRD)
		if err != nil {
			t.Fatalf("GetArtifact: %v", err)
		}
		if got == nil || got.ContentHash != "h2" || !got.WasEdited {
			t.Errorf("GetArtifact = %+v, want replaced record h2", got)
		}

		if missing, err := s.GetArtifact(gateID, artifact.KindEpics); err != nil || missing != nil {
			t.Errorf("GetArtifact(epics) = %+v, %v; want nil, nil", missing, err)
		}

		list, _ := s.ListArtifacts(gateID)
		if len(list) != 1 {
			t.Errorf("ListArtifacts len = %d, want 1", len(list))
		}

		if err := s.DeleteArtifacts(gateID); err != nil {
			t.Fatalf("DeleteArtifacts: %v", err)
		}
		list, _ = s.ListArtifacts(gateID)
		if len(list) != 0 {
			t.Errorf("artifacts after delete = %+v", list)
		}
	})
}

func TestEditsAndAudit(t *testing.T) {
	runStores(t, func(t *testing.T, s Store) {
		newTestSession(t, s, "sess-1")
		gateID, _ := s.CreateGate(&PhaseGate{SessionID: "sess-1", PhaseNumber: 1})

		e := &ArtifactEdit{GateID: gateID, Kind: artifact.KindPRD, OriginalHash: "h1", EditedHash: "h2", EditedBy: "reviewer"}
		if err := s.SaveEdit(e); err != nil {
			t.Fatalf("SaveEdit: %v", err)
		}
		edits, err := s.ListEdits(gateID)
		if err != nil {
			t.Fatalf("ListEdits: %v", err)
		}
		if len(edits) != 1 || edits[0].EditedBy != "reviewer" {
			t.Errorf("ListEdits = %+v", edits)
		}

		for _, typ := range []string{"phase_started", "phase_approved"} {
			if err := s.LogEvent(&AuditEvent{SessionID: "sess-1", EventType: typ, PhaseNumber: 1}); err != nil {
				t.Fatalf("LogEvent(%s): %v", typ, err)
			}
		}
		all, err := s.ListEvents("sess-1", "", 10)
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("events = %d, want 2", len(all))
		}
		// Newest first.
		if all[0].EventType != "phase_approved" {
			t.Errorf("first event = %q, want phase_approved", all[0].EventType)
		}
		if all[0].Actor != "system" {
			t.Errorf("default actor = %q, want system", all[0].Actor)
		}
		filtered, _ := s.ListEvents("sess-1", "phase_started", 10)
		if len(filtered) != 1 {
			t.Errorf("filtered events = %+v", filtered)
		}
	})
}

func TestSqlStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	newTestSession(t, s, "sess-1")
	gateID, _ := s.CreateGate(&PhaseGate{SessionID: "sess-1", PhaseNumber: 1, Status: phase.StateGenerating})
	if err := s.InitProgress(gateID, []artifact.Kind{artifact.KindPRD, artifact.KindCapabilities}); err != nil {
		t.Fatalf("InitProgress: %v", err)
	}
	if err := s.UpdateProgress(&Progress{GateID: gateID, Kind: artifact.KindPRD, Status: ProgressCompleted}); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A process restart must see the same gate state and resume set.
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	g, err := reopened.GetGate("sess-1", 1)
	if err != nil || g == nil {
		t.Fatalf("GetGate after reopen = %+v, %v", g, err)
	}
	if g.Status != phase.StateGenerating {
		t.Errorf("gate status after reopen = %q, want generating", g.Status)
	}
	kinds, err := reopened.IncompleteArtifacts(g.ID)
	if err != nil {
		t.Fatalf("IncompleteArtifacts: %v", err)
	}
	if len(kinds) != 1 || kinds[0] != artifact.KindCapabilities {
		t.Errorf("resume set = %v, want [capabilities]", kinds)
	}
}
