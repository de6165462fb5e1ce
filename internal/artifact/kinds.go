package artifact

// Kind identifies a producible document type.
type Kind string

const (
	KindContextSummary   Kind = "context_summary"
	KindCorpusSummary    Kind = "corpus_summary"
	KindPRD              Kind = "prd"
	KindCapabilities     Kind = "capabilities"
	KindCapabilityCards  Kind = "capability_cards"
	KindEpics            Kind = "epics"
	KindFeatures         Kind = "features"
	KindRoadmap          Kind = "roadmap"
	KindUserStories      Kind = "user_stories"
	KindLeanCanvas       Kind = "lean_canvas"
	KindTechArchitecture Kind = "technical_architecture"
)

// Spec declares one artifact kind: its prerequisites and display metadata.
// Registration order doubles as the canonical generation order used to
// break topological ties.
type Spec struct {
	Name     Kind
	Title    string // human-readable, for CLI and review surfaces
	Filename string // on-disk filename inside snapshots and output dirs
	Requires []Kind
}

// defaultSpecs is the built-in kind table. Each kind lists its direct
// prerequisites; transitive expansion happens in Resolve.
var defaultSpecs = []Spec{
	{Name: KindContextSummary, Title: "Document Context Assessment", Filename: "context_summary.md"},
	{Name: KindCorpusSummary, Title: "Corpus Summary", Filename: "corpus_summary.md"},
	{Name: KindPRD, Title: "Product Requirements Document", Filename: "prd.md",
		Requires: []Kind{KindCorpusSummary}},
	{Name: KindCapabilities, Title: "Capability Map", Filename: "capabilities.md",
		Requires: []Kind{KindCorpusSummary, KindPRD}},
	{Name: KindCapabilityCards, Title: "Capability Cards", Filename: "capability_cards.md",
		Requires: []Kind{KindCorpusSummary, KindPRD, KindCapabilities}},
	{Name: KindEpics, Title: "Epics", Filename: "epics.md",
		Requires: []Kind{KindCorpusSummary, KindPRD, KindCapabilities, KindCapabilityCards}},
	{Name: KindFeatures, Title: "Features", Filename: "features.md",
		Requires: []Kind{KindCorpusSummary, KindPRD, KindEpics}},
	{Name: KindRoadmap, Title: "Roadmap", Filename: "roadmap.md",
		Requires: []Kind{KindCorpusSummary, KindPRD, KindEpics, KindFeatures}},
	{Name: KindUserStories, Title: "User Stories", Filename: "user_stories.md",
		Requires: []Kind{KindCorpusSummary, KindPRD, KindEpics, KindFeatures}},
	{Name: KindLeanCanvas, Title: "Lean Canvas", Filename: "lean_canvas.md",
		Requires: []Kind{KindCorpusSummary, KindPRD, KindCapabilities}},
	{Name: KindTechArchitecture, Title: "Technical Architecture Reference", Filename: "architecture_reference.md",
		Requires: []Kind{KindCorpusSummary, KindPRD, KindCapabilities}},
}

// Default returns the built-in registry. The kind table is static; a
// construction failure here is a programming error, so Default panics
// rather than returning an error every caller would have to ignore.
func Default() *Registry {
	r, err := NewRegistry(defaultSpecs)
	if err != nil {
		panic("artifact: default registry invalid: " + err.Error())
	}
	return r
}
