package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"prdflow/internal/artifact"
)

var approveFlags struct {
	sessionID string
	phase     int
	approver  string
	notes     string
	edits     []string
}

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve a phase in review, freezing its snapshot",
	Long: `Approves a phase whose gate is in review. Edited artifacts can be
substituted with --edit kind=file; the file content replaces the generated
artifact and its hash goes into the snapshot. Edited kinds must belong to
the phase.`,
	RunE: runApprove,
}

func init() {
	f := approveCmd.Flags()
	f.StringVar(&approveFlags.sessionID, "session", "", "session ID (required)")
	f.IntVar(&approveFlags.phase, "phase", 0, "phase number 1-3 (required)")
	f.StringVar(&approveFlags.approver, "approver", "", "identity of the approving human (required)")
	f.StringVar(&approveFlags.notes, "notes", "", "free-text approval notes")
	f.StringArrayVar(&approveFlags.edits, "edit", nil, "edited artifact as kind=file (repeatable)")
	_ = approveCmd.MarkFlagRequired("session")
	_ = approveCmd.MarkFlagRequired("phase")
	_ = approveCmd.MarkFlagRequired("approver")
}

func runApprove(cmd *cobra.Command, _ []string) error {
	edits := make(map[artifact.Kind]string, len(approveFlags.edits))
	for _, spec := range approveFlags.edits {
		kind, file, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("bad --edit %q, want kind=file", spec)
		}
		raw, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read edited %s: %w", kind, err)
		}
		edits[artifact.Kind(kind)] = string(raw)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	runner, err := buildRunner(st)
	if err != nil {
		return err
	}

	res, err := runner.Approve(approveFlags.sessionID, approveFlags.phase,
		approveFlags.approver, approveFlags.notes, edits)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Phase %d approved. Snapshot: %s\n", approveFlags.phase, res.SnapshotDir)
	if res.NextPhaseUnlocked {
		fmt.Fprintf(out, "Phase %d is now unlocked.\n", approveFlags.phase+1)
	} else {
		fmt.Fprintln(out, "Session completed.")
	}
	return nil
}
