// Package reinforce drains pending reinforcements from the state file,
// bumping last_reinforced on the corresponding concept records.
package reinforce

import (
	"fmt"
	"time"

	"github.com/waynevaughan/cortex/internal/history"
	"github.com/waynevaughan/cortex/internal/record"
	"github.com/waynevaughan/cortex/internal/recordstore"
)

// Outcome reports what Run did.
type Outcome struct {
	Reinforced int
	Dropped    int
}

// Locator resolves a record ID to its file path and partition root.
type Locator func(id string) (path string, partitionRoot string, ok bool)

// Run drains pending (id -> ISO timestamp), applying each to the record
// locate resolves. Entries whose record cannot be located are dropped
// from the map and logged by the caller (the returned pending map no
// longer contains them). Successfully applied entries are also removed,
// so a fully-drained run returns an empty map.
func Run(pending map[string]string, locate Locator, hist *history.Writer) (map[string]string, Outcome, error) {
	remaining := make(map[string]string)
	var out Outcome

	for id, ts := range pending {
		path, partitionRoot, ok := locate(id)
		if !ok {
			out.Dropped++
			continue
		}

		doc, err := recordstore.Read(path)
		if err != nil || !doc.Record.IsConcept() {
			out.Dropped++
			continue
		}

		when, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, out, fmt.Errorf("reinforce: bad timestamp for %s: %w", id, err)
		}
		doc.Record.LastReinforced = when
		doc.Record.HasImportance = true

		if err := recordstore.Write(path, doc); err != nil {
			return nil, out, fmt.Errorf("reinforce: write %s: %w", path, err)
		}
		out.Reinforced++
		if hist != nil {
			_ = hist.Commit(history.ActionReinforce, string(doc.Record.Kind), record.Title(doc.Record.Body), doc.Record.ID, relPath(partitionRoot, path))
		}
	}
	return remaining, out, nil
}

func relPath(root, path string) string {
	if len(path) > len(root) && path[:len(root)] == root {
		return path[len(root)+1:]
	}
	return path
}
