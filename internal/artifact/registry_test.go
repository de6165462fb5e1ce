package artifact

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefault_Valid(t *testing.T) {
	r := Default()
	if got := len(r.Kinds()); got != 11 {
		t.Errorf("default registry size: got %d, want 11", got)
	}
}

func TestResolve_TransitiveClosure(t *testing.T) {
	r := Default()

	got, err := r.Resolve([]Kind{KindFeatures})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []Kind{KindCorpusSummary, KindPRD, KindCapabilities, KindCapabilityCards, KindEpics, KindFeatures}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Resolve(features) mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_DuplicatesIgnored(t *testing.T) {
	r := Default()

	once, err := r.Resolve([]Kind{KindPRD})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	twice, err := r.Resolve([]Kind{KindPRD, KindPRD, KindCorpusSummary})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("duplicate request changed order (-once +twice):\n%s", diff)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	r := Default()

	first, err := r.Resolve([]Kind{KindLeanCanvas, KindUserStories, KindRoadmap})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := r.Resolve([]Kind{KindRoadmap, KindLeanCanvas, KindUserStories})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("order changed on repeat %d (-first +again):\n%s", i, diff)
		}
	}

	// Every kind must come after all of its prerequisites.
	seen := make(map[Kind]bool)
	for _, k := range first {
		spec, _ := r.Spec(k)
		for _, req := range spec.Requires {
			if !seen[req] {
				t.Errorf("kind %q emitted before prerequisite %q", k, req)
			}
		}
		seen[k] = true
	}
}

func TestResolve_DiamondScenario(t *testing.T) {
	// Z depends on X and Y, Y depends on X: resolve({Z}) = [X, Y, Z].
	r, err := NewRegistry([]Spec{
		{Name: "x"},
		{Name: "y", Requires: []Kind{"x"}},
		{Name: "z", Requires: []Kind{"x", "y"}},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	got, err := r.Resolve([]Kind{"z"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []Kind{"x", "y", "z"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Resolve(z) mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_UnknownKind(t *testing.T) {
	r := Default()
	if _, err := r.Resolve([]Kind{"no_such_kind"}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("want ErrUnknownKind, got %v", err)
	}
}

func TestNewRegistry_Cycle(t *testing.T) {
	_, err := NewRegistry([]Spec{
		{Name: "a", Requires: []Kind{"b"}},
		{Name: "b", Requires: []Kind{"c"}},
		{Name: "c", Requires: []Kind{"a"}},
	})
	if !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("want ErrCyclicDependency, got %v", err)
	}
}

func TestNewRegistry_UnknownPrereq(t *testing.T) {
	_, err := NewRegistry([]Spec{
		{Name: "a", Requires: []Kind{"ghost"}},
	})
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("want ErrUnknownKind, got %v", err)
	}
}

func TestNewRegistry_Duplicate(t *testing.T) {
	_, err := NewRegistry([]Spec{
		{Name: "a"},
		{Name: "a"},
	})
	if err == nil {
		t.Error("want error for duplicate kind, got nil")
	}
}
