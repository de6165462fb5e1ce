package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"prdflow/internal/flow"
)

// generateRequest is the JSON document written to the generator command's
// stdin, one per artifact.
type generateRequest struct {
	SessionID    string `json:"session_id"`
	PhaseNumber  int    `json:"phase_number"`
	ArtifactKind string `json:"artifact_kind"`
	FlowType     string `json:"flow_type"`
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
}

// execGenerator shells out to a configured command per artifact. The
// command reads one JSON request on stdin and writes the artifact content
// to stdout; a non-zero exit is an artifact-level generation failure.
type execGenerator struct {
	command string
}

func (g *execGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string, p flow.GenerateParams) (string, error) {
	if g.command == "" {
		return "", fmt.Errorf("no generator command configured (set --generator-cmd or PRDFLOW_GENERATOR)")
	}
	req, err := json.Marshal(generateRequest{
		SessionID:    p.SessionID,
		PhaseNumber:  p.PhaseNumber,
		ArtifactKind: string(p.Kind),
		FlowType:     p.FlowType,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", g.command)
	cmd.Stdin = bytes.NewReader(req)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("generator command: %w: %s", err, msg)
		}
		return "", fmt.Errorf("generator command: %w", err)
	}

	content := strings.TrimSpace(stdout.String())
	if content == "" {
		return "", fmt.Errorf("generator command produced no content for %s", p.Kind)
	}
	return content, nil
}
