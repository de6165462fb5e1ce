package flow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"prdflow/internal/artifact"
	"prdflow/internal/phase"
	"prdflow/internal/store"
)

// Cache memoizes realized artifact content for one session. On a miss it
// invokes the supplied generate closure, writes the content under the
// session's output dir and records an ArtifactRecord for the gate. Seeding
// from an approved phase's snapshot is how content flows forward into
// later phases without re-invoking generation.
type Cache struct {
	st  store.Store
	reg *artifact.Registry
	dir string

	mu  sync.Mutex
	mem map[artifact.Kind]string
}

// NewCache returns an empty per-session cache writing content files to dir.
func NewCache(st store.Store, reg *artifact.Registry, dir string) *Cache {
	return &Cache{
		st:  st,
		reg: reg,
		dir: dir,
		mem: make(map[artifact.Kind]string),
	}
}

// Seed loads every artifact of an approved snapshot into the cache.
// Snapshot content is final (it includes any human edits), so a seeded
// kind is never regenerated.
func (c *Cache) Seed(snap *phase.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, content := range snap.Artifacts {
		c.mem[k] = content
	}
}

// Content returns the cached content for a kind, if present.
func (c *Cache) Content(k artifact.Kind) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	content, ok := c.mem[k]
	return content, ok
}

// Invalidate drops the given kinds from the in-memory cache. The caller
// clears the matching ArtifactRecords through the store; this is the
// first-class reset used by rejection.
func (c *Cache) Invalidate(kinds []artifact.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range kinds {
		delete(c.mem, k)
	}
}

// GetOrGenerate returns the content for (session, kind), generating it at
// most once. The bool result reports a cache hit: true means generate was
// not invoked. On a miss the content is persisted as the gate's
// ArtifactRecord before returning.
func (c *Cache) GetOrGenerate(ctx context.Context, gateID int64, k artifact.Kind, generate func(context.Context) (string, error)) (string, bool, error) {
	if content, ok := c.Content(k); ok {
		return content, true, nil
	}

	// A record left by an earlier run (resume after restart) counts as a
	// hit; content is re-read from disk, not regenerated.
	if content, ok, err := c.load(gateID, k); err != nil {
		return "", false, err
	} else if ok {
		return content, true, nil
	}

	content, err := generate(ctx)
	if err != nil {
		return "", false, err
	}
	if err := c.persist(gateID, k, content, false); err != nil {
		return "", false, err
	}
	c.put(k, content)
	return content, false, nil
}

// Warm ensures a kind completed by an earlier run is present in memory,
// reading its recorded content back from disk. A fresh process resuming a
// phase warms every already-completed kind so dependents see its content.
func (c *Cache) Warm(gateID int64, k artifact.Kind) error {
	if _, ok := c.Content(k); ok {
		return nil
	}
	_, ok, err := c.load(gateID, k)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no stored content for %s", k)
	}
	return nil
}

// load reads the gate's recorded content for a kind back from disk into
// the in-memory cache. ok is false when no record exists.
func (c *Cache) load(gateID int64, k artifact.Kind) (string, bool, error) {
	rec, err := c.st.GetArtifact(gateID, k)
	if err != nil {
		return "", false, fmt.Errorf("lookup artifact %s: %w", k, err)
	}
	if rec == nil {
		return "", false, nil
	}
	raw, err := os.ReadFile(rec.FilePath)
	if err != nil {
		return "", false, fmt.Errorf("read cached artifact %s: %w", k, err)
	}
	content := string(raw)
	c.put(k, content)
	return content, true, nil
}

// Replace overwrites the content for a kind with a human edit and records
// the new ArtifactRecord with edited provenance.
func (c *Cache) Replace(gateID int64, k artifact.Kind, content string) error {
	if err := c.persist(gateID, k, content, true); err != nil {
		return err
	}
	c.put(k, content)
	return nil
}

func (c *Cache) put(k artifact.Kind, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem[k] = content
}

// persist writes the content file and upserts the gate's ArtifactRecord.
func (c *Cache) persist(gateID int64, k artifact.Kind, content string, edited bool) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	filename := string(k) + ".md"
	if spec, ok := c.reg.Spec(k); ok && spec.Filename != "" {
		filename = spec.Filename
	}
	path := filepath.Join(c.dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", k, err)
	}
	rec := &store.ArtifactRecord{
		GateID:      gateID,
		Kind:        k,
		ContentHash: phase.ContentHash(content),
		FilePath:    path,
		CharCount:   len(content),
		WasEdited:   edited,
	}
	if err := c.st.SaveArtifact(rec); err != nil {
		return fmt.Errorf("save artifact record %s: %w", k, err)
	}
	return nil
}
