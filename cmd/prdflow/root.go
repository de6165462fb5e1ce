package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"prdflow/internal/artifact"
	"prdflow/internal/flow"
	"prdflow/internal/ingest"
	"prdflow/internal/logging"
	"prdflow/internal/prompts"
	"prdflow/internal/store"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	dbPath           string
	baseDir          string
	questionnaireDir string
	generatorCmd     string
	logLevel         string
	logFormat        string
}

var rootCmd = &cobra.Command{
	Use:   "prdflow",
	Short: "Phased, human-gated product document generation",
	Long: "prdflow generates interdependent product documents (PRD, capabilities,\n" +
		"epics, stories, ...) in three sequential phases, each requiring human\n" +
		"approval before the next phase unlocks.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(*cobra.Command, []string) {
		logging.Init(rootFlags.logLevel, rootFlags.logFormat)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.dbPath, "db", store.DefaultDBPath, "SQLite database path")
	pf.StringVar(&rootFlags.baseDir, "base-dir", filepath.Join(".prdflow", "sessions"), "base dir for session artifacts and snapshots")
	pf.StringVar(&rootFlags.questionnaireDir, "questionnaire-dir", "questionnaire", "dir holding <flow_type>.yaml intake forms")
	pf.StringVar(&rootFlags.generatorCmd, "generator-cmd", os.Getenv("PRDFLOW_GENERATOR"), "command invoked per artifact; receives a JSON request on stdin and writes content to stdout")
	pf.StringVar(&rootFlags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "text", "log format (text, json)")

	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(intakeCmd)
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(phaseCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore opens the SQLite store at the configured path.
func openStore() (*store.SqlStore, error) {
	st, err := store.Open(rootFlags.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", rootFlags.dbPath, err)
	}
	return st, nil
}

// buildRunner wires the flow runner over an open store.
func buildRunner(st store.Store) (*flow.Runner, error) {
	reg := artifact.Default()
	return flow.NewRunner(flow.Config{
		Store:     st,
		Registry:  reg,
		Generator: &execGenerator{command: rootFlags.generatorCmd},
		Prompts:   prompts.NewBuilder(reg),
		Corpus: &ingest.CorpusSource{
			Store:            st,
			QuestionnaireDir: rootFlags.questionnaireDir,
		},
		BaseDir: rootFlags.baseDir,
	})
}
