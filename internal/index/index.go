// Package index rebuilds the flat entries list and relates_to adjacency
// graph that let other tools browse the mind/vault trees without
// re-scanning every record file.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/exp/maps"

	"github.com/waynevaughan/cortex/internal/history"
	"github.com/waynevaughan/cortex/internal/record"
	"github.com/waynevaughan/cortex/internal/recordstore"
)

// Entry is one row of entries.json.
type Entry struct {
	Created    time.Time `json:"created"`
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Category   string    `json:"category"`
	Path       string    `json:"path"`
	Title      string    `json:"title"`
	Importance *float64  `json:"importance,omitempty"`
}

// Node is one graph.json node.
type Node struct {
	Created  time.Time `json:"created"`
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Category string    `json:"category"`
	Title    string    `json:"title"`
	Path     string    `json:"path"`
}

// Edge is one graph.json edge. Every relates_to reference emits a
// forward and a reverse Edge, so the adjacency list is symmetric even
// though relates_to itself is a directed, possibly-cyclic list.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// Graph is the full contents of graph.json.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Outcome reports what Run did.
type Outcome struct {
	Entries int
	Edges   int
}

// Run walks mindRoot and vaultRoot, writes entries.json and graph.json
// atomically into indexDir, and commits both with an index action.
func Run(mindRoot, vaultRoot, indexDir string, hist *history.Writer) (Outcome, error) {
	var entries []Entry
	var nodes []Node
	byID := make(map[string]record.Record)

	for _, root := range []string{mindRoot, vaultRoot} {
		walked, err := recordstore.Walk(root)
		if err != nil {
			return Outcome{}, err
		}
		for _, w := range walked {
			doc, err := recordstore.Read(w.Path)
			if err != nil {
				continue
			}
			r := *doc.Record
			byID[r.ID] = r

			e := Entry{
				ID:       r.ID,
				Type:     string(r.Kind),
				Category: string(r.Category),
				Created:  r.Created,
				Path:     w.Path,
				Title:    record.Title(r.Body),
			}
			if r.HasImportance {
				v := r.Importance
				e.Importance = &v
			}
			entries = append(entries, e)

			nodes = append(nodes, Node{
				ID:       r.ID,
				Type:     string(r.Kind),
				Category: string(r.Category),
				Title:    record.Title(r.Body),
				Path:     w.Path,
				Created:  r.Created,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	var edges []Edge
	for _, id := range sortedKeys(byID) {
		r := byID[id]
		for _, to := range r.RelatesTo {
			if _, ok := byID[to]; !ok {
				continue
			}
			edges = append(edges, Edge{From: r.ID, To: to, Type: "relates_to"})
			edges = append(edges, Edge{From: to, To: r.ID, Type: "relates_to"})
		}
	}

	if err := writeJSON(filepath.Join(indexDir, "entries.json"), entries); err != nil {
		return Outcome{}, err
	}
	if err := writeJSON(filepath.Join(indexDir, "graph.json"), Graph{Nodes: nodes, Edges: edges}); err != nil {
		return Outcome{}, err
	}

	if hist != nil {
		_ = hist.Commit(history.ActionIndex, "index", "rebuild entries/graph index", "", "index")
	}

	return Outcome{Entries: len(entries), Edges: len(edges)}, nil
}

func sortedKeys(m map[string]record.Record) []string {
	keys := maps.Keys(m)
	sort.Strings(keys)
	return keys
}

func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index: mkdir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("index: marshal %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("index: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("index: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("index: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("index: rename: %w", err)
	}
	return nil
}
