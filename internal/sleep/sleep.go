// Package sleep drives the externally-triggered (cron) maintenance
// cycle: decay, semantic dedup, reinforcement application, and index
// rebuild, in that fixed order (spec §2, §4.13-§4.16).
package sleep

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/waynevaughan/cortex/internal/decay"
	"github.com/waynevaughan/cortex/internal/dedup"
	"github.com/waynevaughan/cortex/internal/history"
	"github.com/waynevaughan/cortex/internal/index"
	"github.com/waynevaughan/cortex/internal/metrics"
	"github.com/waynevaughan/cortex/internal/record"
	"github.com/waynevaughan/cortex/internal/recordstore"
	"github.com/waynevaughan/cortex/internal/reinforce"
	"github.com/waynevaughan/cortex/internal/state"
)

// Outcome reports what one sleep cycle did.
type Outcome struct {
	Decayed        int
	Deduped        int
	Reinforced     int
	Dropped        int
	IndexedEntries int
	IndexedEdges   int
}

// Run executes decay -> dedup -> reinforce -> index against the given
// roots, mutating st.Reinforcements in place to reflect the drain, and
// returns a summary Outcome. Each stage's own errors are returned
// immediately rather than allowing later stages to run against a
// partially-updated tree.
func Run(mindRoot, vaultRoot, indexDir string, rates map[record.Kind]float64, st *state.State, hist *history.Writer, m *metrics.Registry, log logr.Logger, now time.Time) (Outcome, error) {
	var out Outcome

	decayOut, err := decay.Run(mindRoot, rates, now, hist)
	if err != nil {
		return out, err
	}
	out.Decayed = decayOut.Archived

	for _, root := range []string{mindRoot, vaultRoot} {
		dedupOut, err := dedup.Run(root, hist)
		if err != nil {
			return out, err
		}
		out.Deduped += dedupOut.Archived
	}

	locator, err := buildLocator(mindRoot, vaultRoot)
	if err != nil {
		return out, err
	}
	remaining, reinforceOut, err := reinforce.Run(st.Reinforcements, locator, hist)
	if err != nil {
		return out, err
	}
	st.Reinforcements = remaining
	out.Reinforced = reinforceOut.Reinforced
	out.Dropped = reinforceOut.Dropped

	indexOut, err := index.Run(mindRoot, vaultRoot, indexDir, hist)
	if err != nil {
		return out, err
	}
	out.IndexedEntries = indexOut.Entries
	out.IndexedEdges = indexOut.Edges

	if m != nil {
		m.Archived.Add(float64(out.Decayed + out.Deduped))
		m.Deduped.Add(float64(out.Deduped))
		m.Reinforced.Add(float64(out.Reinforced))
		m.Dropped.Add(float64(out.Dropped))
	}

	log.Info("sleep cycle complete", "decayed", out.Decayed, "deduped", out.Deduped, "reinforced", out.Reinforced, "dropped", out.Dropped, "indexedEntries", out.IndexedEntries, "indexedEdges", out.IndexedEdges)
	return out, nil
}

// buildLocator walks both partitions once and returns a reinforce.Locator
// closed over the resulting id -> (path, partitionRoot) map. Reinforcement
// is only ever applied to concept records, but the locator itself doesn't
// know that — reinforce.Run drops non-concept matches on its own.
func buildLocator(mindRoot, vaultRoot string) (reinforce.Locator, error) {
	type location struct {
		path          string
		partitionRoot string
	}
	byID := make(map[string]location)

	for _, root := range []string{mindRoot, vaultRoot} {
		entries, err := recordstore.Walk(root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			doc, err := recordstore.Read(e.Path)
			if err != nil {
				continue
			}
			byID[doc.Record.ID] = location{path: e.Path, partitionRoot: root}
		}
	}

	return func(id string) (string, string, bool) {
		loc, ok := byID[id]
		if !ok {
			return "", "", false
		}
		return loc.path, loc.partitionRoot, true
	}, nil
}
