// Package phase defines the three approval-gated generation stages, the
// gate state machine, and content-addressed snapshots of approved work.
package phase

import (
	"errors"
	"fmt"

	"prdflow/internal/artifact"
)

// GateState is the state of one phase's approval gate within a session.
type GateState string

const (
	StatePending    GateState = "pending"
	StateGenerating GateState = "generating"
	StateReview     GateState = "review"
	StateApproved   GateState = "approved"
	StateRejected   GateState = "rejected"
	StateFailed     GateState = "failed"
)

// ErrInvalidTransition is returned when an operation is requested against
// a gate that is not in the state the operation requires. The gate is
// left unchanged.
var ErrInvalidTransition = errors.New("phase: invalid gate transition")

// transitions is the allowed edge set of the gate state machine.
// Rejection and failure both re-enter generating: rejected phases
// regenerate everything, failed phases resume incomplete artifacts.
var transitions = map[GateState][]GateState{
	StatePending:    {StateGenerating},
	StateGenerating: {StateReview, StateFailed},
	StateReview:     {StateApproved, StateRejected},
	StateRejected:   {StateGenerating},
	StateFailed:     {StateGenerating},
}

// ValidTransition reports whether from -> to is an allowed gate edge.
func ValidTransition(from, to GateState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Definition declares one phase: its artifact kinds and the phase that
// must be approved before it may start. Static configuration, not
// per-session state.
type Definition struct {
	Number    int
	Name      string
	Label     string
	Artifacts []artifact.Kind
	Requires  int // prior phase number that must be approved; 0 = none
}

// Count is the number of phases in a flow.
const Count = 3

// Definitions is the fixed three-phase plan.
var Definitions = []Definition{
	{
		Number: 1,
		Name:   "Foundation",
		Label:  "Context Summary + PRD + Capabilities",
		Artifacts: []artifact.Kind{
			artifact.KindContextSummary,
			artifact.KindCorpusSummary,
			artifact.KindPRD,
			artifact.KindCapabilities,
		},
	},
	{
		Number: 2,
		Name:   "Planning",
		Label:  "Epics + Features + Roadmap",
		Artifacts: []artifact.Kind{
			artifact.KindCapabilityCards,
			artifact.KindEpics,
			artifact.KindFeatures,
			artifact.KindRoadmap,
		},
		Requires: 1,
	},
	{
		Number: 3,
		Name:   "Detail",
		Label:  "User Stories + Architecture",
		Artifacts: []artifact.Kind{
			artifact.KindUserStories,
			artifact.KindTechArchitecture,
			artifact.KindLeanCanvas,
		},
		Requires: 2,
	},
}

// ByNumber returns the definition for phase n (1..Count).
func ByNumber(n int) (Definition, error) {
	for _, d := range Definitions {
		if d.Number == n {
			return d, nil
		}
	}
	return Definition{}, fmt.Errorf("phase: invalid phase number %d (must be 1..%d)", n, Count)
}

// ForArtifact returns the phase number that produces the given kind,
// or 0 if no phase declares it.
func ForArtifact(k artifact.Kind) int {
	for _, d := range Definitions {
		for _, a := range d.Artifacts {
			if a == k {
				return d.Number
			}
		}
	}
	return 0
}

// Declares reports whether phase d produces kind k.
func (d Definition) Declares(k artifact.Kind) bool {
	for _, a := range d.Artifacts {
		if a == k {
			return true
		}
	}
	return false
}
