package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"prdflow/internal/store"
)

// CorpusSource assembles the full corpus for a session: the structured
// intake context rendered from stored questionnaire answers, followed by
// the ingested documents from the session's input dir. It implements the
// flow runner's CorpusLoader seam.
type CorpusSource struct {
	Store            store.Store
	QuestionnaireDir string
	Options          Options
}

// Corpus builds the corpus text for a session. A session without an
// input dir yields intake context alone; a missing questionnaire file
// falls back to a flat answer listing.
func (c *CorpusSource) Corpus(ctx context.Context, sessionID string) (string, error) {
	sess, err := c.Store.GetSession(sessionID)
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return "", fmt.Errorf("ingest: session %s not found", sessionID)
	}

	var parts []string
	if intake, err := c.intakeContext(sess); err != nil {
		return "", err
	} else if intake != "" {
		parts = append(parts, intake)
	}

	if sess.InputDir != "" {
		docs, err := Folder(sess.InputDir, c.Options)
		if err != nil && !errors.Is(err, ErrNoDocuments) {
			return "", err
		}
		if len(docs) > 0 {
			parts = append(parts, FormatCorpus(docs))
		}
	}
	return strings.Join(parts, "\n"), nil
}

func (c *CorpusSource) intakeContext(sess *store.Session) (string, error) {
	responses, err := c.Store.GetQuestionnaire(sess.ID)
	if err != nil {
		return "", fmt.Errorf("get questionnaire answers: %w", err)
	}
	if len(responses) == 0 {
		return "", nil
	}
	answers := make(map[string]string, len(responses))
	for _, r := range responses {
		answers[r.QuestionID] = r.Answer
	}

	if c.QuestionnaireDir != "" {
		q, err := LoadQuestionnaire(c.QuestionnaireDir, sess.FlowType)
		if err == nil {
			return q.FormatContext(answers), nil
		}
	}

	// No form on disk: render the stored question text and answers flat.
	var b strings.Builder
	b.WriteString("# Intake Context\n")
	for _, r := range responses {
		if strings.TrimSpace(r.Answer) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n**%s**\n%s\n", r.QuestionText, r.Answer)
	}
	return strings.TrimSpace(b.String()) + "\n", nil
}
