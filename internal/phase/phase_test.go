package phase

import (
	"testing"

	"prdflow/internal/artifact"
)

func TestDefinitions_CoverThreePhases(t *testing.T) {
	if len(Definitions) != Count {
		t.Fatalf("want %d phases, got %d", Count, len(Definitions))
	}
	for i, d := range Definitions {
		if d.Number != i+1 {
			t.Errorf("phase at index %d has number %d", i, d.Number)
		}
		if len(d.Artifacts) == 0 {
			t.Errorf("phase %d declares no artifacts", d.Number)
		}
	}
	if Definitions[0].Requires != 0 {
		t.Error("phase 1 must not require a prior phase")
	}
	if Definitions[1].Requires != 1 || Definitions[2].Requires != 2 {
		t.Error("phases 2 and 3 must require their predecessors")
	}
}

func TestDefinitions_KindsRegisteredAndUnique(t *testing.T) {
	reg := artifact.Default()
	seen := make(map[artifact.Kind]int)
	for _, d := range Definitions {
		for _, k := range d.Artifacts {
			if !reg.Has(k) {
				t.Errorf("phase %d declares unregistered kind %q", d.Number, k)
			}
			if prev, ok := seen[k]; ok {
				t.Errorf("kind %q declared by both phase %d and %d", k, prev, d.Number)
			}
			seen[k] = d.Number
		}
	}
}

func TestByNumber(t *testing.T) {
	d, err := ByNumber(2)
	if err != nil {
		t.Fatalf("ByNumber(2): %v", err)
	}
	if d.Name != "Planning" {
		t.Errorf("phase 2 name: got %q", d.Name)
	}
	if _, err := ByNumber(4); err == nil {
		t.Error("ByNumber(4): want error, got nil")
	}
	if _, err := ByNumber(0); err == nil {
		t.Error("ByNumber(0): want error, got nil")
	}
}

func TestForArtifact(t *testing.T) {
	if n := ForArtifact(artifact.KindEpics); n != 2 {
		t.Errorf("epics phase: got %d, want 2", n)
	}
	if n := ForArtifact(artifact.Kind("nonexistent")); n != 0 {
		t.Errorf("unknown kind phase: got %d, want 0", n)
	}
}

func TestValidTransition(t *testing.T) {
	allowed := [][2]GateState{
		{StatePending, StateGenerating},
		{StateGenerating, StateReview},
		{StateGenerating, StateFailed},
		{StateReview, StateApproved},
		{StateReview, StateRejected},
		{StateRejected, StateGenerating},
		{StateFailed, StateGenerating},
	}
	for _, tr := range allowed {
		if !ValidTransition(tr[0], tr[1]) {
			t.Errorf("transition %s -> %s should be allowed", tr[0], tr[1])
		}
	}
	denied := [][2]GateState{
		{StateGenerating, StateApproved},
		{StateApproved, StateGenerating},
		{StateApproved, StateRejected},
		{StatePending, StateReview},
		{StateReview, StateGenerating},
	}
	for _, tr := range denied {
		if ValidTransition(tr[0], tr[1]) {
			t.Errorf("transition %s -> %s should be denied", tr[0], tr[1])
		}
	}
}
