package flow

import (
	"context"

	"prdflow/internal/artifact"
)

// GenerateParams carries per-call context to the generation collaborator.
type GenerateParams struct {
	SessionID   string
	PhaseNumber int
	Kind        artifact.Kind
	FlowType    string
}

// Generator is the external generation collaborator. A returned error is
// an artifact-level failure: the runner records it and fails the gate;
// it never retries on its own.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, p GenerateParams) (string, error)
}

// GenerateFunc adapts a plain function to Generator.
type GenerateFunc func(ctx context.Context, systemPrompt, userPrompt string, p GenerateParams) (string, error)

func (f GenerateFunc) Generate(ctx context.Context, systemPrompt, userPrompt string, p GenerateParams) (string, error) {
	return f(ctx, systemPrompt, userPrompt, p)
}

// PromptBuilder renders the per-kind prompt pair from the ingested corpus
// and the content of the kind's prerequisites.
type PromptBuilder interface {
	Build(k artifact.Kind, corpus string, prior map[artifact.Kind]string) (system, user string, err error)
}

// CorpusLoader supplies the session's document corpus and intake-derived
// context as one opaque text block.
type CorpusLoader interface {
	Corpus(ctx context.Context, sessionID string) (string, error)
}

// CorpusFunc adapts a plain function to CorpusLoader.
type CorpusFunc func(ctx context.Context, sessionID string) (string, error)

func (f CorpusFunc) Corpus(ctx context.Context, sessionID string) (string, error) {
	return f(ctx, sessionID)
}
