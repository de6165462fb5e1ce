package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"prdflow/internal/ingest"
	"prdflow/internal/store"
)

var intakeCmd = &cobra.Command{
	Use:   "intake",
	Short: "Work with intake questionnaires",
}

var intakeQuestionsFlags struct {
	flowType string
}

var intakeQuestionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Show the questionnaire for a flow type",
	RunE:  runIntakeQuestions,
}

var intakeSubmitFlags struct {
	sessionID   string
	answersFile string
}

var intakeSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Validate and store questionnaire answers from a YAML file",
	Long: `Reads a YAML mapping of question IDs to answers, validates it against
the session's flow-type questionnaire and stores the responses.`,
	RunE: runIntakeSubmit,
}

func init() {
	qf := intakeQuestionsCmd.Flags()
	qf.StringVar(&intakeQuestionsFlags.flowType, "flow", "greenfield", "flow type (greenfield, modernization)")

	sf := intakeSubmitCmd.Flags()
	sf.StringVar(&intakeSubmitFlags.sessionID, "session", "", "session ID (required)")
	sf.StringVarP(&intakeSubmitFlags.answersFile, "file", "f", "", "YAML answers file (required)")
	_ = intakeSubmitCmd.MarkFlagRequired("session")
	_ = intakeSubmitCmd.MarkFlagRequired("file")

	intakeCmd.AddCommand(intakeQuestionsCmd)
	intakeCmd.AddCommand(intakeSubmitCmd)
}

func runIntakeQuestions(cmd *cobra.Command, _ []string) error {
	q, err := ingest.LoadQuestionnaire(rootFlags.questionnaireDir, intakeQuestionsFlags.flowType)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Questionnaire: %s (v%s)\n", q.FlowType, q.Version)
	for _, section := range q.Sections {
		fmt.Fprintf(out, "\n%s\n", section.Title)
		for _, question := range section.Questions {
			marker := " "
			if question.Required {
				marker = "*"
			}
			fmt.Fprintf(out, "  %s %-24s %s\n", marker, question.ID, question.Text)
			if len(question.Options) > 0 {
				fmt.Fprintf(out, "    options: %s\n", strings.Join(question.Options, ", "))
			}
		}
	}
	return nil
}

func runIntakeSubmit(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := st.GetSession(intakeSubmitFlags.sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("session %s not found", intakeSubmitFlags.sessionID)
	}

	raw, err := os.ReadFile(intakeSubmitFlags.answersFile)
	if err != nil {
		return fmt.Errorf("read answers file: %w", err)
	}
	var answers map[string]string
	if err := yaml.Unmarshal(raw, &answers); err != nil {
		return fmt.Errorf("parse answers file: %w", err)
	}

	q, err := ingest.LoadQuestionnaire(rootFlags.questionnaireDir, sess.FlowType)
	if err != nil {
		return err
	}
	if errs := q.Validate(answers); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "invalid: %s\n", e)
		}
		return fmt.Errorf("%d validation problem(s)", len(errs))
	}

	byID := make(map[string]ingest.Question)
	for _, question := range q.Questions() {
		byID[question.ID] = question
	}
	responses := make([]*store.QuestionnaireResponse, 0, len(answers))
	for id, answer := range answers {
		responses = append(responses, &store.QuestionnaireResponse{
			QuestionID:   id,
			QuestionText: byID[id].Text,
			Answer:       strings.TrimSpace(answer),
		})
	}
	if err := st.SaveQuestionnaire(sess.ID, responses); err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	sess.QuestionnaireVer = q.Version
	sess.Status = "questionnaire_done"
	if err := st.UpdateSession(sess); err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Stored %d answers for session %s\n", len(responses), sess.ID)
	return nil
}
