// Package pipeline drives a single queued observation through the
// eight-stage engine: validate, milestone gate, score, hash/dedup,
// route, assemble, persist, history.
package pipeline

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"

	"github.com/waynevaughan/cortex/internal/contenthash"
	"github.com/waynevaughan/cortex/internal/frontmatter"
	"github.com/waynevaughan/cortex/internal/hashindex"
	"github.com/waynevaughan/cortex/internal/history"
	"github.com/waynevaughan/cortex/internal/id"
	"github.com/waynevaughan/cortex/internal/metrics"
	"github.com/waynevaughan/cortex/internal/observation"
	"github.com/waynevaughan/cortex/internal/quarantine"
	"github.com/waynevaughan/cortex/internal/record"
	"github.com/waynevaughan/cortex/internal/recordstore"
	"github.com/waynevaughan/cortex/internal/scorer"
	"github.com/waynevaughan/cortex/internal/taxonomy"
	"github.com/waynevaughan/cortex/internal/validate"
)

// Outcome is what became of one observation after Process returned.
type Outcome string

const (
	OutcomeMemorized   Outcome = "memorized"
	OutcomeReinforced  Outcome = "reinforced"
	OutcomeDropped     Outcome = "dropped"
	OutcomeQuarantined Outcome = "quarantined"
)

// retries is how many times stages 6-8 (assemble through history) are
// retried in-process before the record is quarantined as a transient
// processing_error (spec §4.8: "a single in-process retry").
const retries = 1

// Engine holds every collaborator a call to Process needs.
type Engine struct {
	MindRoot  string
	VaultRoot string

	Taxonomy    *taxonomy.Table
	Calibration scorer.Calibration
	HashIndex   *hashindex.Index
	Quarantine  *quarantine.Writer
	History     *history.Writer
	Metrics     *metrics.Registry
	Log         logr.Logger

	// Now is overridable for tests; defaults to time.Now when the zero
	// value (unset) is left in place by New.
	Now func() time.Time
}

// New returns an Engine wired with the given collaborators.
func New(mindRoot, vaultRoot string, tbl *taxonomy.Table, cal scorer.Calibration, idx *hashindex.Index, qtn *quarantine.Writer, hist *history.Writer, m *metrics.Registry, log logr.Logger) *Engine {
	return &Engine{
		MindRoot:    mindRoot,
		VaultRoot:   vaultRoot,
		Taxonomy:    tbl,
		Calibration: cal,
		HashIndex:   idx,
		Quarantine:  qtn,
		History:     hist,
		Metrics:     m,
		Log:         log,
		Now:         time.Now,
	}
}

// Process runs one queue line through the full engine.
func (e *Engine) Process(line []byte) (Outcome, error) {
	obs, err := observation.Parse(line)
	if err != nil {
		e.quarantine(line, nil, quarantine.ReasonMalformedJSON, err.Error())
		return OutcomeQuarantined, nil
	}

	// Stage 1: validate.
	result := validate.Check(obs, e.Taxonomy)
	if !result.Valid {
		e.quarantine(line, observationFields(obs), result.Reason, result.Detail)
		return OutcomeQuarantined, nil
	}

	// Stage 2: milestone gate. Requires manual promotion; never
	// quarantined, just logged and dropped.
	if obs.Type == "milestone" {
		e.Log.V(1).Info("dropping milestone observation, requires manual promotion", "type", obs.Type)
		e.countDropped()
		return OutcomeDropped, nil
	}

	// Stage 3: score.
	score := scorer.Apply(obs, e.Calibration)
	if score.BelowThreshold() {
		e.Log.V(1).Info("dropping observation below memorization threshold", "importance", score.Importance)
		e.countDropped()
		return OutcomeDropped, nil
	}

	// Stage 5 (route) happens before stage 4 needs it: category and
	// partition are derived from taxonomy once, up front.
	kind := record.Kind(obs.Type)
	category, err := e.Taxonomy.Category(kind)
	if err != nil {
		e.quarantine(line, observationFields(obs), quarantine.ReasonRoutingFailed, err.Error())
		return OutcomeQuarantined, nil
	}
	partitionRoot := e.partitionRoot(category)

	// Stage 4: hash & dedup.
	hash := contenthash.Sum(obs.Body)
	if existing, ok := e.HashIndex.Lookup(hash); ok {
		if category == record.CategoryConcept {
			if err := e.reinforceExisting(existing, kind, obs.Timestamp); err != nil {
				e.quarantine(line, observationFields(obs), quarantine.ReasonProcessingError, err.Error())
				return OutcomeQuarantined, nil
			}
			e.countReinforced()
			return OutcomeReinforced, nil
		}
		e.Log.V(1).Info("dropping duplicate entity/relation observation", "hash", hash)
		e.countDropped()
		return OutcomeDropped, nil
	}

	// Stages 6-8: assemble, persist, history — retried once as a unit
	// before quarantining as a transient processing_error.
	var recID string
	err = withRetry(retries, func() error {
		var attemptErr error
		recID, attemptErr = e.assembleAndPersist(obs, score, kind, category, partitionRoot, hash)
		return attemptErr
	})
	if err != nil {
		e.quarantine(line, observationFields(obs), quarantine.ReasonProcessingError, err.Error())
		return OutcomeQuarantined, nil
	}

	e.HashIndex.Insert(hash, hashindex.Entry{ID: recID, Path: recordstore.Path(partitionRoot, kind, recID), Partition: taxonomy.PartitionFor(category)})
	e.countMemorized()
	return OutcomeMemorized, nil
}

func (e *Engine) partitionRoot(cat record.Category) string {
	if cat == record.CategoryConcept {
		return e.MindRoot
	}
	return e.VaultRoot
}

func (e *Engine) assembleAndPersist(obs *observation.Observation, sc scorer.Score, kind record.Kind, category record.Category, partitionRoot, hash string) (string, error) {
	recID, err := id.New()
	if err != nil {
		return "", errors.Wrap(err, "assemble: generate id")
	}

	extras, err := buildExtras(obs)
	if err != nil {
		return "", errors.Wrap(err, "assemble: build extras")
	}

	r := &record.Record{
		ID:         recID,
		Kind:       kind,
		Category:   category,
		Created:    e.now(),
		SourceHash: hash,
		Body:       obs.Body,
		RelatesTo:  []string{},
	}
	if category == record.CategoryConcept {
		r.Importance = sc.Importance
		r.HasImportance = true
	}

	doc := &frontmatter.Document{Record: r, Extras: extras, Body: obs.Body}
	path := recordstore.Path(partitionRoot, kind, recID)

	if err := recordstore.Write(path, doc); err != nil {
		return "", errors.Wrap(err, "persist: write record")
	}

	if e.History != nil {
		if err := e.History.Commit(history.ActionMemorize, string(kind), record.Title(obs.Body), recID, relPath(partitionRoot, path)); err != nil {
			return "", errors.Wrap(err, "history: commit")
		}
	}
	return recID, nil
}

func (e *Engine) reinforceExisting(existing hashindex.Entry, kind record.Kind, timestamp string) error {
	doc, err := recordstore.Read(existing.Path)
	if err != nil {
		return errors.Wrap(err, "reinforce: read existing record")
	}
	// S2: the reinforced record's last_reinforced takes the duplicate
	// observation's own timestamp, not processing time, so a delayed
	// ingestion run doesn't skew it forward.
	when, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		when = e.now()
	}
	doc.Record.LastReinforced = when
	doc.Record.HasImportance = true
	if err := recordstore.Write(existing.Path, doc); err != nil {
		return errors.Wrap(err, "reinforce: write existing record")
	}
	if e.History != nil {
		partitionRoot := e.partitionRoot(doc.Record.Category)
		if err := e.History.Commit(history.ActionReinforce, string(kind), record.Title(doc.Record.Body), doc.Record.ID, relPath(partitionRoot, existing.Path)); err != nil {
			return errors.Wrap(err, "history: commit")
		}
	}
	return nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) countDropped() {
	if e.Metrics != nil {
		e.Metrics.Dropped.Inc()
	}
}

func (e *Engine) countReinforced() {
	if e.Metrics != nil {
		e.Metrics.Reinforced.Inc()
	}
}

func (e *Engine) countMemorized() {
	if e.Metrics != nil {
		e.Metrics.Memorized.Inc()
	}
}

func (e *Engine) quarantine(line []byte, original map[string]any, reason quarantine.Reason, detail string) {
	if e.Quarantine != nil {
		if err := e.Quarantine.Write(line, original, reason, detail); err != nil {
			e.Log.Error(err, "failed to write quarantine record")
		}
	}
	if e.Metrics != nil {
		e.Metrics.Quarantined.WithLabelValues(string(reason)).Inc()
	}
}

func withRetry(attempts int, fn func() error) error {
	var err error
	for i := 0; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

func relPath(root, path string) string {
	if len(path) > len(root) && path[:len(root)] == root {
		return path[len(root)+1:]
	}
	return path
}

// buildExtras folds the observation's typed entities (if any) and raw
// passthrough Extras into a single application-field yaml.Node, the
// shape frontmatter.Render expects. Returns nil when there is nothing
// to carry.
func buildExtras(obs *observation.Observation) (*yaml.Node, error) {
	if len(obs.Entities) == 0 && len(obs.Extras) == 0 {
		return nil, nil
	}

	merged := make(map[string]any, len(obs.Extras)+1)
	for k, raw := range obs.Extras {
		var v any
		if err := yaml.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		merged[k] = v
	}
	if len(obs.Entities) > 0 {
		merged["entities"] = obs.Entities
	}

	data, err := yaml.Marshal(merged)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	return node.Content[0], nil
}

func observationFields(obs *observation.Observation) map[string]any {
	m := map[string]any{
		"timestamp":   obs.Timestamp,
		"bucket":      string(obs.Bucket),
		"type":        obs.Type,
		"body":        obs.Body,
		"attribution": obs.Attribution,
		"session_id":  obs.SessionID,
	}
	if obs.Context != "" {
		m["context"] = obs.Context
	}
	if obs.SourceQuote != "" {
		m["source_quote"] = obs.SourceQuote
	}
	return m
}

