package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Create and list generation sessions",
}

var sessionNewFlags struct {
	flowType string
	inputDir string
}

var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a session",
	RunE:  runSessionNew,
}

var sessionListFlags struct {
	status string
	limit  int
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE:  runSessionList,
}

func init() {
	f := sessionNewCmd.Flags()
	f.StringVar(&sessionNewFlags.flowType, "flow", "greenfield", "flow type (greenfield, modernization)")
	f.StringVar(&sessionNewFlags.inputDir, "input-dir", "", "folder of source documents for this session")

	lf := sessionListCmd.Flags()
	lf.StringVar(&sessionListFlags.status, "status", "", "filter by session status")
	lf.IntVar(&sessionListFlags.limit, "limit", 20, "max sessions to show")

	sessionCmd.AddCommand(sessionNewCmd)
	sessionCmd.AddCommand(sessionListCmd)
}

func runSessionNew(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	runner, err := buildRunner(st)
	if err != nil {
		return err
	}

	sess, err := runner.CreateSession(sessionNewFlags.flowType)
	if err != nil {
		return err
	}
	if sessionNewFlags.inputDir != "" {
		sess.InputDir = sessionNewFlags.inputDir
		if err := st.UpdateSession(sess); err != nil {
			return fmt.Errorf("record input dir: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session: %s\n", sess.ID)
	fmt.Fprintf(out, "Flow:    %s\n", sess.FlowType)
	fmt.Fprintf(out, "Status:  %s\n", sess.Status)
	return nil
}

func runSessionList(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.ListSessions(sessionListFlags.status, sessionListFlags.limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions.")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(out, "%s  %-14s %-18s %s\n", s.ID, s.FlowType, s.Status, s.UpdatedAt)
	}
	return nil
}
