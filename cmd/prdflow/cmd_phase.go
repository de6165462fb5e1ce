package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"prdflow/internal/artifact"
	"prdflow/internal/flow"
)

var phaseCmd = &cobra.Command{
	Use:   "phase",
	Short: "Start and inspect phase generation",
}

var phaseStartFlags struct {
	sessionID string
	phase     int
	wait      bool
}

var phaseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Request generation for a phase",
	RunE:  runPhaseStart,
}

var phaseStatusFlags struct {
	sessionID string
	phase     int
}

var phaseStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gate state and per-artifact progress",
	RunE:  runPhaseStatus,
}

var phaseArtifactsFlags struct {
	sessionID string
	phase     int
	kind      string
}

var phaseArtifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Print generated artifact content for a phase in review or approved",
	RunE:  runPhaseArtifacts,
}

func init() {
	sf := phaseStartCmd.Flags()
	sf.StringVar(&phaseStartFlags.sessionID, "session", "", "session ID (required)")
	sf.IntVar(&phaseStartFlags.phase, "phase", 0, "phase number 1-3 (required)")
	sf.BoolVar(&phaseStartFlags.wait, "wait", false, "block until generation finishes")
	_ = phaseStartCmd.MarkFlagRequired("session")
	_ = phaseStartCmd.MarkFlagRequired("phase")

	stf := phaseStatusCmd.Flags()
	stf.StringVar(&phaseStatusFlags.sessionID, "session", "", "session ID (required)")
	stf.IntVar(&phaseStatusFlags.phase, "phase", 0, "phase number 1-3 (required)")
	_ = phaseStatusCmd.MarkFlagRequired("session")
	_ = phaseStatusCmd.MarkFlagRequired("phase")

	af := phaseArtifactsCmd.Flags()
	af.StringVar(&phaseArtifactsFlags.sessionID, "session", "", "session ID (required)")
	af.IntVar(&phaseArtifactsFlags.phase, "phase", 0, "phase number 1-3 (required)")
	af.StringVar(&phaseArtifactsFlags.kind, "kind", "", "print only this artifact kind")
	_ = phaseArtifactsCmd.MarkFlagRequired("session")
	_ = phaseArtifactsCmd.MarkFlagRequired("phase")

	phaseCmd.AddCommand(phaseStartCmd)
	phaseCmd.AddCommand(phaseStatusCmd)
	phaseCmd.AddCommand(phaseArtifactsCmd)
}

func runPhaseStart(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	runner, err := buildRunner(st)
	if err != nil {
		return err
	}

	res, err := runner.StartPhase(cmd.Context(), phaseStartFlags.sessionID, phaseStartFlags.phase)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch res {
	case flow.StartAccepted:
		fmt.Fprintf(out, "Phase %d generation started.\n", phaseStartFlags.phase)
	case flow.StartConflict:
		fmt.Fprintf(out, "Phase %d is already generating.\n", phaseStartFlags.phase)
		return nil
	case flow.StartLocked:
		fmt.Fprintf(out, "Phase %d is locked: approve phase %d first.\n",
			phaseStartFlags.phase, phaseStartFlags.phase-1)
		return nil
	}

	if phaseStartFlags.wait {
		runner.Wait()
		status, err := runner.Status(phaseStartFlags.sessionID, phaseStartFlags.phase)
		if err != nil {
			return err
		}
		printPhaseStatus(cmd, status)
	}
	return nil
}

func runPhaseStatus(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	runner, err := buildRunner(st)
	if err != nil {
		return err
	}
	status, err := runner.Status(phaseStatusFlags.sessionID, phaseStatusFlags.phase)
	if err != nil {
		return err
	}
	printPhaseStatus(cmd, status)
	return nil
}

func printPhaseStatus(cmd *cobra.Command, status *flow.PhaseStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Phase:    %d (%s)\n", status.PhaseNumber, status.PhaseName)
	fmt.Fprintf(out, "Gate:     %s\n", status.State)
	fmt.Fprintf(out, "Progress: %d%%\n", status.OverallPct)
	if status.RejectionCount > 0 {
		fmt.Fprintf(out, "Rejected: %d time(s), last feedback: %s\n",
			status.RejectionCount, status.RejectionFeedback)
	}
	for _, p := range status.Artifacts {
		line := fmt.Sprintf("  %-24s %s", p.Kind, p.Status)
		if p.ErrorMessage != "" {
			line += "  " + p.ErrorMessage
		}
		fmt.Fprintln(out, line)
	}
}

func runPhaseArtifacts(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	runner, err := buildRunner(st)
	if err != nil {
		return err
	}
	arts, err := runner.Artifacts(phaseArtifactsFlags.sessionID, phaseArtifactsFlags.phase)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if phaseArtifactsFlags.kind != "" {
		content, ok := arts[artifact.Kind(phaseArtifactsFlags.kind)]
		if !ok {
			return fmt.Errorf("no artifact %q in phase %d", phaseArtifactsFlags.kind, phaseArtifactsFlags.phase)
		}
		fmt.Fprintln(out, content)
		return nil
	}

	kinds := make([]string, 0, len(arts))
	for k := range arts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(out, "=== %s ===\n%s\n\n", k, arts[artifact.Kind(k)])
	}
	return nil
}
