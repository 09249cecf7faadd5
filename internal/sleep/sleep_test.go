package sleep

import (
	"testing"
	"time"

	"github.com/waynevaughan/cortex/internal/decay"
	"github.com/waynevaughan/cortex/internal/frontmatter"
	"github.com/waynevaughan/cortex/internal/logging"
	"github.com/waynevaughan/cortex/internal/record"
	"github.com/waynevaughan/cortex/internal/recordstore"
	"github.com/waynevaughan/cortex/internal/state"
)

func seedConcept(t *testing.T, root, id, body string, importance float64, created time.Time) {
	t.Helper()
	doc := &frontmatter.Document{
		Record: &record.Record{
			ID:            id,
			Kind:          "idea",
			Category:      record.CategoryConcept,
			Created:       created,
			SourceHash:    id,
			Body:          body,
			Importance:    importance,
			HasImportance: true,
		},
		Body: body,
	}
	if err := recordstore.Write(recordstore.Path(root, "idea", id), doc); err != nil {
		t.Fatal(err)
	}
}

func TestRunExecutesAllStagesInOrder(t *testing.T) {
	mindRoot := t.TempDir()
	vaultRoot := t.TempDir()
	indexDir := t.TempDir()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	decayedID := "018f0000-0000-7000-8000-000000000001"
	seedConcept(t, mindRoot, decayedID, "an idea that should decay away", 0.5, now.Add(-2*365*24*time.Hour))

	keptID := "018f0000-0000-7000-8000-000000000002"
	seedConcept(t, mindRoot, keptID, "a healthy, recently reinforced idea", 0.9, now.Add(-24*time.Hour))

	st := &state.State{Reinforcements: map[string]string{
		keptID: "2026-01-01T00:00:00Z",
	}}

	out, err := Run(mindRoot, vaultRoot, indexDir, decay.DefaultRates, st, nil, nil, logging.Discard(), now)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Decayed != 1 {
		t.Errorf("Decayed = %d, want 1", out.Decayed)
	}
	if out.Reinforced != 1 {
		t.Errorf("Reinforced = %d, want 1", out.Reinforced)
	}
	if len(st.Reinforcements) != 0 {
		t.Errorf("expected pending reinforcements drained, got %v", st.Reinforcements)
	}
	if out.IndexedEntries != 1 {
		t.Errorf("IndexedEntries = %d, want 1 (the surviving concept)", out.IndexedEntries)
	}
}

func TestRunIsIdempotentAcrossRepeatedCalls(t *testing.T) {
	mindRoot := t.TempDir()
	vaultRoot := t.TempDir()
	indexDir := t.TempDir()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	id := "018f0000-0000-7000-8000-000000000003"
	seedConcept(t, mindRoot, id, "a stable idea with nothing to decay or dedup", 0.9, now)

	st := &state.State{Reinforcements: map[string]string{}}

	first, err := Run(mindRoot, vaultRoot, indexDir, decay.DefaultRates, st, nil, nil, logging.Discard(), now)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := Run(mindRoot, vaultRoot, indexDir, decay.DefaultRates, st, nil, nil, logging.Discard(), now)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if first.Decayed != 0 || first.Deduped != 0 {
		t.Fatalf("first run unexpectedly touched records: %+v", first)
	}
	if second.Decayed != first.Decayed || second.Deduped != first.Deduped {
		t.Errorf("expected idempotent decay/dedup outcomes, got %+v vs %+v", first, second)
	}
	if second.IndexedEntries != 1 {
		t.Errorf("IndexedEntries = %d, want 1", second.IndexedEntries)
	}
}
