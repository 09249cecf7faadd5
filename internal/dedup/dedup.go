// Package dedup finds and archives near-duplicate records within each
// kind directory using a sliding Jaccard-similarity window over
// tokenized bodies.
package dedup

import (
	"sort"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/waynevaughan/cortex/internal/history"
	"github.com/waynevaughan/cortex/internal/record"
	"github.com/waynevaughan/cortex/internal/recordstore"
)

// WindowSize is the fixed number of preceding records compared against
// each candidate.
const WindowSize = 200

// SimilarityThreshold is the Jaccard similarity at or above which two
// records are considered duplicates.
const SimilarityThreshold = 0.70

// Tokenize lowercases s, collapses whitespace, and splits into a set of
// non-empty tokens.
func Tokenize(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b|, defined as 0 when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Outcome reports what Run did.
type Outcome struct {
	Archived int
}

// Run dedups every kind directory under partitionRoot: records are
// loaded in ID-ascending order (creation-time order, since IDs are
// UUIDv7), and each record is compared against up to WindowSize
// immediately preceding records. A match at or above
// SimilarityThreshold archives the older record, which keeps the
// operation idempotent under repeated runs.
func Run(partitionRoot string, hist *history.Writer) (Outcome, error) {
	entries, err := recordstore.Walk(partitionRoot)
	if err != nil {
		return Outcome{}, err
	}

	byKind := make(map[record.Kind][]recordstore.Entry)
	for _, e := range entries {
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}

	var out Outcome
	for kind, kindEntries := range byKind {
		archived, err := dedupKind(partitionRoot, kind, kindEntries, hist)
		if err != nil {
			return out, err
		}
		out.Archived += archived
	}
	return out, nil
}

type loaded struct {
	entry  recordstore.Entry
	id     string
	tokens map[string]struct{}
	body   string
}

func dedupKind(partitionRoot string, kind record.Kind, entries []recordstore.Entry, hist *history.Writer) (int, error) {
	docs := make([]loaded, 0, len(entries))
	for _, e := range entries {
		doc, err := recordstore.Read(e.Path)
		if err != nil {
			continue
		}
		docs = append(docs, loaded{entry: e, id: doc.Record.ID, tokens: Tokenize(doc.Record.Body), body: doc.Record.Body})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].id < docs[j].id })

	archivedIdx := make(map[int]bool)
	archived := 0
	for i := range docs {
		if archivedIdx[i] {
			continue
		}
		start := 0
		if i-WindowSize > 0 {
			start = i - WindowSize
		}
		for j := start; j < i; j++ {
			if archivedIdx[j] {
				continue
			}
			if Jaccard(docs[i].tokens, docs[j].tokens) >= SimilarityThreshold {
				// Older record (j, lower ID) is archived; i is newer
				// and is kept, matching the "keep the newer" rule.
				doc, err := recordstore.Read(docs[j].entry.Path)
				if err != nil {
					continue
				}
				dest, err := recordstore.Archive(partitionRoot, kind, docs[j].entry.Path)
				if err != nil {
					return archived, err
				}
				archivedIdx[j] = true
				archived++
				if hist != nil {
					_ = hist.Commit(history.ActionArchive, string(kind), record.Title(doc.Record.Body), doc.Record.ID, relPath(partitionRoot, dest))
				}
				break
			}
		}
	}
	return archived, nil
}

func relPath(root, path string) string {
	if len(path) > len(root) && path[:len(root)] == root {
		return path[len(root)+1:]
	}
	return path
}

// sortedIDs is exercised only by tests that want to confirm window
// ordering independent of dedupKind's internals.
func sortedIDs(ids []string) []string {
	out := slices.Clone(ids)
	sort.Strings(out)
	return out
}
