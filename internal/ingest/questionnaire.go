package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Questionnaire is one intake form, loaded from <dir>/<flow_type>.yaml.
type Questionnaire struct {
	Version  string    `yaml:"version"`
	FlowType string    `yaml:"flow_type"`
	Sections []Section `yaml:"sections"`
}

// Section groups related intake questions.
type Section struct {
	ID        string     `yaml:"id"`
	Title     string     `yaml:"title"`
	Questions []Question `yaml:"questions"`
}

// Question is one intake question. Mapping carries dot-notation paths
// that place the answer under context section headers; an answer with
// multiple mappings appears under each.
type Question struct {
	ID        string   `yaml:"id"`
	Text      string   `yaml:"question_text"`
	InputType string   `yaml:"input_type"` // free_text or single_select
	Options   []string `yaml:"options"`
	Required  bool     `yaml:"required"`
	Mapping   []string `yaml:"mapping"`
}

// LoadQuestionnaire reads and parses the questionnaire for a flow type.
func LoadQuestionnaire(dir, flowType string) (*Questionnaire, error) {
	path := filepath.Join(dir, flowType+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questionnaire %s: %w", path, err)
	}
	var q Questionnaire
	if err := yaml.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("parse questionnaire %s: %w", path, err)
	}
	if q.FlowType == "" {
		q.FlowType = flowType
	}
	return &q, nil
}

// Questions flattens all sections into one ordered list.
func (q *Questionnaire) Questions() []Question {
	var out []Question
	for _, s := range q.Sections {
		out = append(out, s.Questions...)
	}
	return out
}

// Validate checks answers against the form: required questions answered,
// single-select answers among their options, no unknown question IDs.
// Returns one message per problem; empty means valid.
func (q *Questionnaire) Validate(answers map[string]string) []string {
	var errs []string
	known := make(map[string]Question)
	for _, question := range q.Questions() {
		known[question.ID] = question
		answer := strings.TrimSpace(answers[question.ID])
		if question.Required && answer == "" {
			errs = append(errs, fmt.Sprintf("required question %q is unanswered", question.ID))
			continue
		}
		if answer != "" && question.InputType == "single_select" && len(question.Options) > 0 {
			valid := false
			for _, opt := range question.Options {
				if answer == opt {
					valid = true
					break
				}
			}
			if !valid {
				errs = append(errs, fmt.Sprintf("question %q: answer %q is not a valid option", question.ID, answer))
			}
		}
	}
	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			errs = append(errs, fmt.Sprintf("unknown question id %q", id))
		}
	}
	return errs
}

// mappingSections maps the first dot-path segment of a mapping to its
// context section header. Aliases merge related paths into one section.
var mappingSections = map[string]string{
	"current_state":             "## Current State",
	"future_state":              "## Future / Target State",
	"target_state":              "## Future / Target State",
	"capabilities_current_seed": "## Current State",
	"capabilities_future_seed":  "## Future / Target State",
	"nfrs":                      "## Non-Functional Requirements",
	"constraints":               "## Constraints",
	"scope":                     "## Scope",
	"migration":                 "## Migration Strategy",
	"delta":                     "## Delta Analysis (Current → Target)",
	"integrations":              "## Integrations & Dependencies",
	"dependencies":              "## Integrations & Dependencies",
	"risks":                     "## Risks",
	"open_questions":            "## Open Questions",
	"objectives":                "## Objectives & Success Metrics",
	"success_metrics":           "## Objectives & Success Metrics",
	"personas":                  "## Personas & User Groups",
	"stakeholders":              "## Stakeholders",
	"problem_statement":         "## Problem / Opportunity",
	"non_goals":                 "## Non-Goals",
	"delivery_model":            "## Delivery Model",
	"assumptions":               "## Assumptions",
	"current_state.team":        "## People & Org",
}

// sectionOrder fixes the render order of known sections; unknown sections
// follow alphabetically.
var sectionOrder = []string{
	"## Problem / Opportunity",
	"## Personas & User Groups",
	"## Current State",
	"## Future / Target State",
	"## Delta Analysis (Current → Target)",
	"## Objectives & Success Metrics",
	"## Scope",
	"## Non-Functional Requirements",
	"## Constraints",
	"## Migration Strategy",
	"## Integrations & Dependencies",
	"## People & Org",
	"## Stakeholders",
	"## Delivery Model",
	"## Non-Goals",
	"## Risks",
	"## Open Questions",
	"## Assumptions",
}

func sectionHeader(mapping string) string {
	if h, ok := mappingSections[mapping]; ok {
		return h
	}
	first, _, _ := strings.Cut(mapping, ".")
	if h, ok := mappingSections[first]; ok {
		return h
	}
	return "## " + titleCase(first)
}

func subsectionHeader(mapping string) string {
	parts := strings.Split(mapping, ".")
	if len(parts) < 2 {
		return ""
	}
	return "### " + titleCase(parts[1])
}

func titleCase(segment string) string {
	words := strings.Split(strings.ReplaceAll(segment, "_", " "), " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

type answerEntry struct {
	question string
	answer   string
}

// FormatContext renders answered questions as the structured intake
// context block injected into prompts, grouped by mapping-derived
// sections and subsections. Unanswered questions are omitted.
func (q *Questionnaire) FormatContext(answers map[string]string) string {
	byID := make(map[string]Question)
	var order []string
	for _, question := range q.Questions() {
		byID[question.ID] = question
		order = append(order, question.ID)
	}

	// section header -> subsection header ("" = none) -> entries
	sections := make(map[string]map[string][]answerEntry)
	add := func(section, subsection, question, answer string) {
		if sections[section] == nil {
			sections[section] = make(map[string][]answerEntry)
		}
		sections[section][subsection] = append(sections[section][subsection], answerEntry{question, answer})
	}

	for _, id := range order {
		answer := strings.TrimSpace(answers[id])
		if answer == "" {
			continue
		}
		question := byID[id]
		if len(question.Mapping) == 0 {
			add("## General", "", question.Text, answer)
			continue
		}
		for _, mp := range question.Mapping {
			add(sectionHeader(mp), subsectionHeader(mp), question.Text, answer)
		}
	}
	if len(sections) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("# Intake Context\n")
	rendered := make(map[string]bool)
	for _, header := range sectionOrder {
		if sub, ok := sections[header]; ok {
			rendered[header] = true
			renderSection(&b, header, sub)
		}
	}
	var rest []string
	for header := range sections {
		if !rendered[header] {
			rest = append(rest, header)
		}
	}
	sort.Strings(rest)
	for _, header := range rest {
		renderSection(&b, header, sections[header])
	}
	return strings.TrimSpace(b.String()) + "\n"
}

func renderSection(b *strings.Builder, header string, subs map[string][]answerEntry) {
	fmt.Fprintf(b, "\n%s\n", header)
	var names []string
	for name := range subs {
		names = append(names, name)
	}
	sort.Strings(names) // "" sorts first, so bare entries precede subsections
	for _, name := range names {
		if name != "" {
			fmt.Fprintf(b, "\n%s\n", name)
		}
		for _, e := range subs[name] {
			fmt.Fprintf(b, "\n**%s**\n%s\n", e.question, e.answer)
		}
	}
}
