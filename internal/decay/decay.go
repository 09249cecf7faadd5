// Package decay implements exponential importance decay and archival
// for concept records. Entity and relation records are never touched by
// this engine.
package decay

import (
	"fmt"
	"math"
	"time"

	"github.com/waynevaughan/cortex/internal/history"
	"github.com/waynevaughan/cortex/internal/record"
	"github.com/waynevaughan/cortex/internal/recordstore"
)

// Threshold is the effective-importance floor below which a concept is
// archived.
const Threshold = 0.3

// DefaultRates are the per-kind decay rates; preference and aspiration
// never decay.
var DefaultRates = map[record.Kind]float64{
	"idea":       0.01,
	"opinion":    0.01,
	"belief":     0.005,
	"preference": 0,
	"lesson":     0.003,
	"decision":   0.01,
	"commitment": 0.008,
	"goal_short": 0.02,
	"goal_long":  0.004,
	"aspiration": 0,
	"constraint": 0.002,
}

// Outcome reports what Run did, for logging/metrics.
type Outcome struct {
	Archived int
}

// Run walks every concept record under mindRoot, computes effective
// importance relative to now, and archives anything below Threshold.
func Run(mindRoot string, rates map[record.Kind]float64, now time.Time, hist *history.Writer) (Outcome, error) {
	if rates == nil {
		rates = DefaultRates
	}

	entries, err := recordstore.Walk(mindRoot)
	if err != nil {
		return Outcome{}, fmt.Errorf("decay: walk %s: %w", mindRoot, err)
	}

	var out Outcome
	for _, entry := range entries {
		doc, err := recordstore.Read(entry.Path)
		if err != nil {
			continue
		}
		r := doc.Record
		if !r.IsConcept() {
			continue
		}

		rate := rates[r.Kind]
		eff := Effective(r.Importance, rate, r.LastReinforced, r.Created, now)
		if eff >= Threshold {
			continue
		}

		dest, err := recordstore.Archive(mindRoot, r.Kind, entry.Path)
		if err != nil {
			return out, fmt.Errorf("decay: archive %s: %w", entry.Path, err)
		}
		out.Archived++
		if hist != nil {
			// Commit failures are non-fatal (spec: index/commit failures
			// never abort the batch); the next wake re-stages the file.
			_ = hist.Commit(history.ActionArchive, string(r.Kind), record.Title(r.Body), r.ID, relPath(mindRoot, dest))
		}
	}
	return out, nil
}

// Effective computes eff = importance * exp(-rate * days_since(anchor)),
// where anchor is lastReinforced if set, else created.
func Effective(importance, rate float64, lastReinforced, created, now time.Time) float64 {
	anchor := created
	if !lastReinforced.IsZero() {
		anchor = lastReinforced
	}
	days := now.Sub(anchor).Hours() / 24
	if days < 0 {
		days = 0
	}
	return importance * math.Exp(-rate*days)
}

func relPath(root, path string) string {
	if len(path) > len(root) && path[:len(root)] == root {
		return path[len(root)+1:]
	}
	return path
}
