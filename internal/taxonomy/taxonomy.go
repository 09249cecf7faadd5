// Package taxonomy is the closed enumeration of the 20 record kinds and
// their kind→category→partition routing.
//
// The table is fixed at process start (built-ins plus an optional static
// overlay) and never mutated afterward, so lookups are lock-free — the
// same "pure function over a fixed table" shape as a consistent-hash
// shard lookup, minus the mutex a mutable registry would need.
package taxonomy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/waynevaughan/cortex/internal/record"
)

// Partition is the top-level on-disk directory a category lives under.
type Partition string

const (
	PartitionMind  Partition = "mind"
	PartitionVault Partition = "vault"
)

var builtins = map[record.Kind]record.Category{
	"idea":        record.CategoryConcept,
	"opinion":     record.CategoryConcept,
	"belief":      record.CategoryConcept,
	"preference":  record.CategoryConcept,
	"lesson":      record.CategoryConcept,
	"decision":    record.CategoryConcept,
	"commitment":  record.CategoryConcept,
	"goal_short":  record.CategoryConcept,
	"goal_long":   record.CategoryConcept,
	"aspiration":  record.CategoryConcept,
	"constraint":  record.CategoryConcept,
	"fact":        record.CategoryEntity,
	"document":    record.CategoryEntity,
	"person":      record.CategoryEntity,
	"milestone":   record.CategoryEntity,
	"task":        record.CategoryEntity,
	"event":       record.CategoryEntity,
	"resource":    record.CategoryEntity,
	"project":     record.CategoryRelation,
	"dependency":  record.CategoryRelation,
}

// ErrUnknownKind is returned by Category/Partition for any kind not in the
// built-in table or a loaded overlay. Unknown kinds are a hard error, never
// a warning.
var ErrUnknownKind = fmt.Errorf("taxonomy: unknown kind")

// ErrOverlayShadowsBuiltin is returned by LoadOverlay when a custom-type
// entry names a kind the built-in table already defines.
var ErrOverlayShadowsBuiltin = fmt.Errorf("taxonomy: overlay cannot override a built-in kind")

// Table is a closed kind→category mapping: the built-ins, plus whatever a
// startup overlay added. It is immutable after New/LoadOverlay return.
type Table struct {
	kinds map[record.Kind]record.Category
}

// New returns a Table containing exactly the built-in kinds.
func New() *Table {
	t := &Table{kinds: make(map[record.Kind]record.Category, len(builtins))}
	for k, c := range builtins {
		t.kinds[k] = c
	}
	return t
}

// overlayFile is the schema of an optional taxonomy.yml.
type overlayFile struct {
	CustomTypes []struct {
		Name     string `yaml:"name"`
		Category string `yaml:"category"`
	} `yaml:"custom_types"`
}

// LoadOverlay reads an optional taxonomy overlay file and merges it into t.
// A missing file is not an error. An overlay entry naming an already-known
// kind is rejected outright — the overlay may only extend, never override.
func (t *Table) LoadOverlay(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("taxonomy: read overlay: %w", err)
	}

	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("taxonomy: parse overlay: %w", err)
	}

	for _, entry := range overlay.CustomTypes {
		kind := record.Kind(entry.Name)
		if _, exists := t.kinds[kind]; exists {
			return fmt.Errorf("%w: %q", ErrOverlayShadowsBuiltin, entry.Name)
		}
		cat := record.Category(entry.Category)
		switch cat {
		case record.CategoryConcept, record.CategoryEntity, record.CategoryRelation:
		default:
			return fmt.Errorf("taxonomy: overlay entry %q has invalid category %q", entry.Name, entry.Category)
		}
		t.kinds[kind] = cat
	}
	return nil
}

// Category returns the category for kind, or ErrUnknownKind.
func (t *Table) Category(kind record.Kind) (record.Category, error) {
	cat, ok := t.kinds[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return cat, nil
}

// Partition returns the on-disk partition for kind, or ErrUnknownKind.
func (t *Table) Partition(kind record.Kind) (Partition, error) {
	cat, err := t.Category(kind)
	if err != nil {
		return "", err
	}
	return PartitionFor(cat), nil
}

// PartitionFor routes a category to its on-disk partition.
func PartitionFor(cat record.Category) Partition {
	if cat == record.CategoryConcept {
		return PartitionMind
	}
	return PartitionVault
}

// Known reports whether kind appears anywhere in the table (built-in or
// overlay).
func (t *Table) Known(kind record.Kind) bool {
	_, ok := t.kinds[kind]
	return ok
}
