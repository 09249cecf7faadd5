package dedup

import (
	"testing"
	"time"

	"github.com/waynevaughan/cortex/internal/frontmatter"
	"github.com/waynevaughan/cortex/internal/record"
	"github.com/waynevaughan/cortex/internal/recordstore"
)

func TestJaccardBoundsAndSymmetry(t *testing.T) {
	a := Tokenize("the quick brown fox")
	b := Tokenize("the quick brown dog")

	ab := Jaccard(a, b)
	ba := Jaccard(b, a)
	if ab != ba {
		t.Errorf("expected symmetry, got %v vs %v", ab, ba)
	}
	if ab < 0 || ab > 1 {
		t.Errorf("out of bounds: %v", ab)
	}
	if Jaccard(a, a) != 1 {
		t.Errorf("sim(x,x) = %v, want 1", Jaccard(a, a))
	}
	if Jaccard(a, Tokenize("")) != 0 {
		t.Errorf("sim(x,empty) = %v, want 0", Jaccard(a, Tokenize("")))
	}
}

func TestTokenizeCollapsesWhitespaceAndCase(t *testing.T) {
	a := Tokenize("Hello   World")
	b := Tokenize("hello world")
	if Jaccard(a, b) != 1 {
		t.Errorf("expected identical token sets, got similarity %v", Jaccard(a, b))
	}
}

func seed(t *testing.T, dir string, id, body string, created time.Time) {
	t.Helper()
	doc := &frontmatter.Document{
		Record: &record.Record{
			ID:         id,
			Kind:       "idea",
			Category:   record.CategoryConcept,
			Created:    created,
			SourceHash: id,
		},
		Body: body,
	}
	if err := recordstore.Write(recordstore.Path(dir, "idea", id), doc); err != nil {
		t.Fatal(err)
	}
}

func TestRunArchivesOlderDuplicate(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	seed(t, dir, "018f0000-0000-7000-8000-000000000001", "Wayne prefers honest feedback from the team", now)
	seed(t, dir, "018f0000-0000-7000-8000-000000000002", "Wayne prefers honest feedback from the team indeed", now.Add(time.Minute))

	out, err := Run(dir, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Archived != 1 {
		t.Fatalf("Archived = %d, want 1", out.Archived)
	}

	// The older (lexicographically smaller ID) record should be the one
	// archived; the newer one should remain live.
	if _, err := recordstore.Read(recordstore.Path(dir, "idea", "018f0000-0000-7000-8000-000000000002")); err != nil {
		t.Errorf("expected newer record to remain live: %v", err)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	seed(t, dir, "018f0000-0000-7000-8000-000000000001", "identical body text here", now)
	seed(t, dir, "018f0000-0000-7000-8000-000000000002", "identical body text here", now.Add(time.Minute))

	first, err := Run(dir, nil)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Archived != 1 {
		t.Fatalf("first Archived = %d, want 1", first.Archived)
	}

	second, err := Run(dir, nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Archived != 0 {
		t.Errorf("second Archived = %d, want 0 (idempotent)", second.Archived)
	}
}

func TestSortedIDsHelper(t *testing.T) {
	got := sortedIDs([]string{"b", "a", "c"})
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
