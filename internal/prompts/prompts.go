// Package prompts renders the per-kind prompt pair handed to the
// generation collaborator. It is a thin seam: prompt quality and output
// structure are the collaborator's concern.
package prompts

import (
	"fmt"
	"sort"
	"strings"

	"prdflow/internal/artifact"
)

// promptSpec carries the role and task instruction for one artifact kind.
type promptSpec struct {
	role string
	task string
}

var specs = map[artifact.Kind]promptSpec{
	artifact.KindContextSummary: {
		role: "You are a Staff Product Manager assessing an intake document set.",
		task: "Assess the supplied context: what is known, what is missing, and how complete the inputs are for writing a PRD. Do not invent facts.",
	},
	artifact.KindCorpusSummary: {
		role: "You are a Staff Product Manager. You are given multiple documents about a product idea.",
		task: "Extract the most important facts and constraints without inventing anything. Produce a short product intent, key facts, constraints, and open questions. Call out conflicts between documents under open questions.",
	},
	artifact.KindPRD: {
		role: "You are a senior Product Manager writing a PRD.",
		task: "Write a detailed PRD in Markdown from the product information below. Put missing information under assumptions and open questions instead of guessing.",
	},
	artifact.KindCapabilities: {
		role: "You are a Product Architect.",
		task: "From the PRD below, produce a hierarchical capability map (domains, capabilities, sub-capabilities). Capabilities are stable business abilities, not UI screens; invent nothing the PRD does not imply.",
	},
	artifact.KindCapabilityCards: {
		role: "You are a Product Architect.",
		task: "Create one capability card per capability in the hierarchy below, covering description, objective, personas and design considerations.",
	},
	artifact.KindEpics: {
		role: "You are a senior Product Owner.",
		task: "Derive a flat list of epics from the PRD and capability material below. Each epic names its capability, outcome and rough scope.",
	},
	artifact.KindFeatures: {
		role: "You are a senior Product Owner.",
		task: "Break the epics below into features. Every feature belongs to exactly one epic and states its user value.",
	},
	artifact.KindRoadmap: {
		role: "You are a Product Manager planning delivery.",
		task: "Arrange the epics and features below into a phased roadmap with rationale for the ordering.",
	},
	artifact.KindUserStories: {
		role: "You are a senior Product Owner.",
		task: "Write user stories with acceptance criteria for the features below.",
	},
	artifact.KindLeanCanvas: {
		role: "You are a Product Strategist.",
		task: "Fill a lean canvas from the PRD and capability material below.",
	},
	artifact.KindTechArchitecture: {
		role: "You are a Principal Engineer.",
		task: "Propose a technical architecture reference for the product below: major components, data flows, and key technology decisions with alternatives.",
	},
}

// Builder renders prompt pairs from the corpus and prerequisite content.
// It satisfies the flow runner's PromptBuilder seam.
type Builder struct {
	reg *artifact.Registry
}

// NewBuilder returns a Builder over the given registry.
func NewBuilder(reg *artifact.Registry) *Builder {
	return &Builder{reg: reg}
}

// Build returns the system and user prompt for one artifact kind. The
// user prompt carries the corpus and the prerequisite artifacts in the
// registry's canonical order under labeled boundaries.
func (b *Builder) Build(k artifact.Kind, corpus string, prior map[artifact.Kind]string) (string, string, error) {
	spec, ok := specs[k]
	if !ok {
		return "", "", fmt.Errorf("prompts: no prompt defined for artifact kind %q", k)
	}

	var u strings.Builder
	u.WriteString(spec.task)
	u.WriteString("\n")

	for _, pk := range b.priorOrder(prior) {
		title := string(pk)
		if s, ok := b.reg.Spec(pk); ok && s.Title != "" {
			title = s.Title
		}
		fmt.Fprintf(&u, "\n=== %s ===\n%s\n", strings.ToUpper(title), prior[pk])
	}
	if corpus != "" {
		fmt.Fprintf(&u, "\n=== SOURCE DOCUMENTS ===\n%s\n", corpus)
	}
	u.WriteString("\nReturn ONLY the artifact content in Markdown.\n")

	return spec.role, u.String(), nil
}

// priorOrder sorts prerequisite kinds by canonical registry position so
// a prompt is byte-identical across runs with the same inputs.
func (b *Builder) priorOrder(prior map[artifact.Kind]string) []artifact.Kind {
	kinds := make([]artifact.Kind, 0, len(prior))
	for k := range prior {
		kinds = append(kinds, k)
	}
	canonical := b.reg.Kinds()
	pos := make(map[artifact.Kind]int, len(canonical))
	for i, k := range canonical {
		pos[k] = i
	}
	sort.Slice(kinds, func(i, j int) bool { return pos[kinds[i]] < pos[kinds[j]] })
	return kinds
}
