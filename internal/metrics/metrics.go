// Package metrics tracks per-outcome pipeline and sleep-cycle counters
// using prometheus client_golang, rendered to a committed text artifact
// rather than served over HTTP — cortex has no network protocol, so the
// registry is never wrapped in an http.Handler.
package metrics

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry bundles every counter cortex increments.
type Registry struct {
	reg *prometheus.Registry

	Memorized  prometheus.Counter
	Reinforced prometheus.Counter
	Dropped    prometheus.Counter
	Quarantined *prometheus.CounterVec
	Archived   prometheus.Counter
	Deduped    prometheus.Counter
}

// New constructs a Registry with every counter registered at zero.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		Memorized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cortex_records_memorized_total",
			Help: "Number of new records written by the pipeline engine.",
		}),
		Reinforced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cortex_records_reinforced_total",
			Help: "Number of existing concept records whose last_reinforced was bumped.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cortex_observations_dropped_total",
			Help: "Number of observations dropped (below threshold, milestone, duplicate entity/relation) plus pending reinforcements dropped by the sleep cycle.",
		}),
		Quarantined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_observations_quarantined_total",
			Help: "Number of observations quarantined, by reason.",
		}, []string{"reason"}),
		Archived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cortex_records_archived_total",
			Help: "Number of records archived by the decay or dedup engines.",
		}),
		Deduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cortex_records_deduped_total",
			Help: "Number of records archived specifically by semantic dedup.",
		}),
	}

	reg.MustRegister(r.Memorized, r.Reinforced, r.Dropped, r.Quarantined, r.Archived, r.Deduped)
	return r
}

// WriteText renders the registry in the Prometheus text exposition
// format to <indexDir>/metrics.prom, atomically.
func (r *Registry) WriteText(indexDir string) error {
	mfs, err := r.reg.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}

	tmp, err := os.CreateTemp(indexDir, ".metrics-*.tmp")
	if err != nil {
		return fmt.Errorf("metrics: create temp: %w", err)
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("metrics: encode: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("metrics: flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("metrics: close temp: %w", err)
	}

	target := filepath.Join(indexDir, "metrics.prom")
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("metrics: rename: %w", err)
	}
	return nil
}
