package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"prdflow/internal/ingest"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Attach source documents to a session",
}

var docsAttachFlags struct {
	sessionID string
	dir       string
	maxFiles  int
	maxChars  int
}

var docsAttachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Ingest a folder of text/markdown documents for a session",
	RunE:  runDocsAttach,
}

func init() {
	f := docsAttachCmd.Flags()
	f.StringVar(&docsAttachFlags.sessionID, "session", "", "session ID (required)")
	f.StringVar(&docsAttachFlags.dir, "dir", "", "folder to ingest (defaults to the session's input dir)")
	f.IntVar(&docsAttachFlags.maxFiles, "max-files", 0, "cap on ingested files (default 25)")
	f.IntVar(&docsAttachFlags.maxChars, "max-chars", 0, "per-file char cap (default 12000)")
	_ = docsAttachCmd.MarkFlagRequired("session")

	docsCmd.AddCommand(docsAttachCmd)
}

func runDocsAttach(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := st.GetSession(docsAttachFlags.sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("session %s not found", docsAttachFlags.sessionID)
	}
	dir := docsAttachFlags.dir
	if dir == "" {
		dir = sess.InputDir
	}
	if dir == "" {
		return fmt.Errorf("no input dir: pass --dir or create the session with --input-dir")
	}

	docs, err := ingest.Folder(dir, ingest.Options{
		MaxFiles:        docsAttachFlags.maxFiles,
		MaxCharsPerFile: docsAttachFlags.maxChars,
	})
	if err != nil {
		return err
	}
	if err := ingest.Record(st, sess.ID, docs); err != nil {
		return err
	}
	sess.InputDir = dir
	sess.Status = "docs_uploaded"
	if err := st.UpdateSession(sess); err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, d := range docs {
		fmt.Fprintf(out, "attached %s (%d chars)\n", d.Path, len(d.Content))
	}
	fmt.Fprintf(out, "%d document(s) attached to session %s\n", len(docs), sess.ID)
	return nil
}
