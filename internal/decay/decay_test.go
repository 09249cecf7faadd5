package decay

import (
	"math"
	"testing"
	"time"

	"github.com/waynevaughan/cortex/internal/frontmatter"
	"github.com/waynevaughan/cortex/internal/record"
	"github.com/waynevaughan/cortex/internal/recordstore"
)

func TestEffectiveMonotonicWithAge(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	created := now.Add(-10 * 24 * time.Hour)

	var prev float64 = math.Inf(1)
	for days := 0; days <= 10; days++ {
		eff := Effective(0.8, 0.05, time.Time{}, created, created.Add(time.Duration(days)*24*time.Hour))
		if eff > prev {
			t.Fatalf("expected non-increasing eff, day %d: %v > %v", days, eff, prev)
		}
		prev = eff
	}
}

func TestEffectiveZeroRateNeverDecays(t *testing.T) {
	created := time.Now().Add(-365 * 24 * time.Hour)
	eff := Effective(0.5, 0, time.Time{}, created, time.Now())
	if eff != 0.5 {
		t.Errorf("zero-rate eff = %v, want 0.5 unchanged", eff)
	}
}

func TestEffectivePrefersLastReinforced(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	created := now.Add(-365 * 24 * time.Hour)
	lastReinforced := now.Add(-1 * 24 * time.Hour)

	effOld := Effective(0.8, 0.01, time.Time{}, created, now)
	effRecent := Effective(0.8, 0.01, lastReinforced, created, now)
	if effRecent <= effOld {
		t.Errorf("expected reinforced record to retain more importance: recent=%v old=%v", effRecent, effOld)
	}
}

func TestRunArchivesBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	doc := &frontmatter.Document{
		Record: &record.Record{
			ID:            "018f9b1c-0000-7000-8000-000000000001",
			Kind:          "idea",
			Category:      record.CategoryConcept,
			Created:       now.Add(-2 * 365 * 24 * time.Hour),
			SourceHash:    "abc",
			Importance:    0.5,
			HasImportance: true,
		},
		Body: "an idea that should decay",
	}
	path := recordstore.Path(dir, "idea", doc.Record.ID)
	if err := recordstore.Write(path, doc); err != nil {
		t.Fatal(err)
	}

	out, err := Run(dir, nil, now, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Archived != 1 {
		t.Fatalf("Archived = %d, want 1", out.Archived)
	}

	again, err := Run(dir, nil, now, nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again.Archived != 0 {
		t.Errorf("second run archived %d, want 0 (idempotent)", again.Archived)
	}
}

func TestRunSkipsEntitiesAndRelations(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	doc := &frontmatter.Document{
		Record: &record.Record{
			ID:         "018f9b1c-0000-7000-8000-000000000002",
			Kind:       "fact",
			Category:   record.CategoryEntity,
			Created:    now.Add(-10 * 365 * 24 * time.Hour),
			SourceHash: "abc",
		},
		Body: "an entity record",
	}
	path := recordstore.Path(dir, "fact", doc.Record.ID)
	if err := recordstore.Write(path, doc); err != nil {
		t.Fatal(err)
	}

	out, err := Run(dir, nil, now, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Archived != 0 {
		t.Errorf("expected entity records to never decay, archived %d", out.Archived)
	}
}
