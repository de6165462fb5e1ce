package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rejectFlags struct {
	sessionID string
	phase     int
	feedback  string
	actor     string
}

var rejectCmd = &cobra.Command{
	Use:   "reject",
	Short: "Reject a phase in review with feedback",
	Long: `Rejects a phase whose gate is in review. Feedback is mandatory and
recorded on the gate. Rejection is a hard reset: the next start of this
phase regenerates every artifact.`,
	RunE: runReject,
}

func init() {
	f := rejectCmd.Flags()
	f.StringVar(&rejectFlags.sessionID, "session", "", "session ID (required)")
	f.IntVar(&rejectFlags.phase, "phase", 0, "phase number 1-3 (required)")
	f.StringVar(&rejectFlags.feedback, "feedback", "", "rejection feedback (required)")
	f.StringVar(&rejectFlags.actor, "actor", "", "identity of the rejecting human")
	_ = rejectCmd.MarkFlagRequired("session")
	_ = rejectCmd.MarkFlagRequired("phase")
	_ = rejectCmd.MarkFlagRequired("feedback")
}

func runReject(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	runner, err := buildRunner(st)
	if err != nil {
		return err
	}
	if err := runner.Reject(rejectFlags.sessionID, rejectFlags.phase,
		rejectFlags.feedback, rejectFlags.actor); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Phase %d rejected. Re-run 'prdflow phase start' to regenerate.\n", rejectFlags.phase)
	return nil
}
