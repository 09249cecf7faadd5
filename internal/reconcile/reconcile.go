// Package reconcile watches the entity-partition tree (vault) for
// externally-edited record files and backfills any deterministic
// fields a hand-edit left out, keeping every file a fully valid
// record without requiring the edit to go through the pipeline.
package reconcile

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/waynevaughan/cortex/internal/contenthash"
	"github.com/waynevaughan/cortex/internal/frontmatter"
	"github.com/waynevaughan/cortex/internal/hashindex"
	"github.com/waynevaughan/cortex/internal/history"
	"github.com/waynevaughan/cortex/internal/id"
	"github.com/waynevaughan/cortex/internal/record"
	"github.com/waynevaughan/cortex/internal/recordstore"
	"github.com/waynevaughan/cortex/internal/taxonomy"
)

// defaultKind is the filled-in type for a record whose header omits
// the type field entirely (spec: "default type = document").
const defaultKind record.Kind = "document"

// Outcome reports what Run did.
type Outcome struct {
	Reconciled int
	Skipped    int
}

// Run scans vaultRoot for .md files whose mtime exceeds the cached
// value in mtimes, backfills any missing deterministic fields, and
// returns the updated mtime cache for the caller to persist.
func Run(vaultRoot string, tbl *taxonomy.Table, mtimes map[string]time.Time, idx *hashindex.Index, hist *history.Writer, now func() time.Time) (map[string]time.Time, Outcome, error) {
	next := make(map[string]time.Time, len(mtimes))
	for k, v := range mtimes {
		next[k] = v
	}

	entries, err := recordstore.Walk(vaultRoot)
	if err != nil {
		return next, Outcome{}, err
	}

	var out Outcome
	for _, e := range entries {
		info, err := os.Stat(e.Path)
		if err != nil {
			continue
		}
		if cached, ok := next[e.Path]; ok && !info.ModTime().After(cached) {
			continue
		}

		reconciled, finalPath, err := reconcileFile(vaultRoot, tbl, e.Path, idx, hist, now)
		if err != nil {
			out.Skipped++
			next[e.Path] = info.ModTime()
			continue
		}
		if reconciled {
			out.Reconciled++
		} else {
			out.Skipped++
		}
		if finalPath != e.Path {
			delete(next, e.Path)
		}
		if finalInfo, err := os.Stat(finalPath); err == nil {
			next[finalPath] = finalInfo.ModTime()
		}
	}
	return next, out, nil
}

func reconcileFile(vaultRoot string, tbl *taxonomy.Table, path string, idx *hashindex.Index, hist *history.Writer, now func() time.Time) (bool, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, path, err
	}

	firstLine, _, _ := strings.Cut(string(raw), "\n")
	if strings.TrimSpace(firstLine) != "---" {
		// Not a record file at all; leave it alone.
		return false, path, nil
	}

	doc, err := frontmatter.Parse(string(raw))
	if err != nil {
		return false, path, err
	}

	hash := contenthash.Sum(doc.Body)
	if doc.Record.SourceHash != "" && doc.Record.SourceHash == hash {
		return false, path, nil
	}

	destPath := path
	if doc.Record.ID == "" {
		newID, err := id.New()
		if err != nil {
			return false, path, err
		}
		doc.Record.ID = newID
		destPath = filepath.Join(filepath.Dir(path), newID+".md")
	}
	if doc.Record.Kind == "" {
		doc.Record.Kind = defaultKind
	}
	category, err := tbl.Category(doc.Record.Kind)
	if err != nil {
		return false, path, err
	}
	doc.Record.Category = category
	if doc.Record.Created.IsZero() {
		doc.Record.Created = now()
	}
	if doc.Record.RelatesTo == nil {
		doc.Record.RelatesTo = []string{}
	}
	doc.Record.SourceHash = hash

	if err := recordstore.Write(destPath, doc); err != nil {
		return false, path, err
	}
	if destPath != path {
		if err := os.Remove(path); err != nil {
			return false, destPath, err
		}
	}

	if idx != nil {
		idx.Insert(hash, hashindex.Entry{ID: doc.Record.ID, Path: destPath, Partition: taxonomy.PartitionFor(category)})
	}
	if hist != nil {
		_ = hist.Commit(history.ActionReconcile, string(doc.Record.Kind), record.Title(doc.Record.Body), doc.Record.ID, relPath(vaultRoot, destPath))
	}
	return true, destPath, nil
}

func relPath(root, path string) string {
	if len(path) > len(root) && path[:len(root)] == root {
		return path[len(root)+1:]
	}
	return path
}
