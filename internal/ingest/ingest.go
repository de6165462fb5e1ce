// Package ingest reads a session's source documents and intake answers
// and assembles the corpus text handed to the generation collaborator.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"prdflow/internal/logging"
	"prdflow/internal/store"
)

// ErrNoDocuments is returned when an input folder yields no readable,
// non-empty documents.
var ErrNoDocuments = errors.New("ingest: no readable documents found")

// textExts are the extensions ingested by default. Anything else is
// skipped; document parsing beyond plain text and markdown is out of
// scope.
var textExts = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".rst": true, ".log": true,
}

// truncationMark is appended when a file exceeds the per-file char cap.
const truncationMark = "\n\n[TRUNCATED]\n"

// Doc is one ingested document, normalized to text.
type Doc struct {
	Path    string
	Content string
}

// Hash returns the SHA-256 hex digest of the document content.
func (d Doc) Hash() string {
	sum := sha256.Sum256([]byte(d.Content))
	return hex.EncodeToString(sum[:])
}

// Options bound an ingestion run. Zero values select the defaults.
type Options struct {
	IncludeExts     []string // override the default extension set
	MaxFiles        int      // default 25
	MaxCharsPerFile int      // default 12000
	Parallelism     int      // concurrent file reads, default 8
}

func (o Options) withDefaults() Options {
	if o.MaxFiles <= 0 {
		o.MaxFiles = 25
	}
	if o.MaxCharsPerFile <= 0 {
		o.MaxCharsPerFile = 12000
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 8
	}
	return o
}

// Folder ingests every supported file under dir (recursively), sorted by
// path and capped at MaxFiles. Files are read in parallel but the result
// order is stable. Unreadable files are skipped with a warning; oversized
// content is truncated at the per-file cap.
func Folder(dir string, opts Options) ([]Doc, error) {
	opts = opts.withDefaults()
	log := logging.New("ingest")

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("ingest: input dir %q is not a directory", dir)
	}

	exts := textExts
	if len(opts.IncludeExts) > 0 {
		exts = make(map[string]bool, len(opts.IncludeExts))
		for _, e := range opts.IncludeExts {
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			exts[strings.ToLower(e)] = true
		}
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk input dir: %w", err)
	}
	sort.Strings(files)
	if len(files) > opts.MaxFiles {
		files = files[:opts.MaxFiles]
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, dir)
	}

	// Each goroutine owns one slot, so the stable path order survives
	// the parallel reads without extra locking.
	slots := make([]*Doc, len(files))
	var g errgroup.Group
	g.SetLimit(opts.Parallelism)
	for i, path := range files {
		g.Go(func() error {
			raw, err := os.ReadFile(path)
			if err != nil {
				log.Warn("skipping unreadable file", "path", path, "error", err)
				return nil
			}
			content := strings.TrimSpace(string(raw))
			if content == "" {
				return nil
			}
			if len(content) > opts.MaxCharsPerFile {
				content = truncate(content, opts.MaxCharsPerFile) + truncationMark
			}
			slots[i] = &Doc{Path: path, Content: content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("read input files: %w", err)
	}

	docs := make([]Doc, 0, len(slots))
	for _, d := range slots {
		if d != nil {
			docs = append(docs, *d)
		}
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, dir)
	}
	log.Info("folder ingested", "dir", dir, "files", len(docs))
	return docs, nil
}

// truncate cuts s to at most max bytes without splitting a multi-byte
// rune, backing up to the nearest rune start.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// FormatCorpus joins documents into one corpus string with per-file
// boundaries the collaborator can rely on.
func FormatCorpus(docs []Doc) string {
	var b strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&b, "=== FILE: %s ===\n%s\n\n", d.Path, d.Content)
	}
	return strings.TrimSpace(b.String()) + "\n"
}

// Record persists one store.Document row per ingested doc for the
// session's audit surface.
func Record(st store.Store, sessionID string, docs []Doc) error {
	for _, d := range docs {
		err := st.SaveDocument(&store.Document{
			SessionID:   sessionID,
			Filename:    filepath.Base(d.Path),
			FilePath:    d.Path,
			FileSize:    int64(len(d.Content)),
			FileType:    strings.ToLower(filepath.Ext(d.Path)),
			ContentHash: d.Hash(),
		})
		if err != nil {
			return fmt.Errorf("record document %s: %w", d.Path, err)
		}
	}
	return nil
}
