package reconcile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/waynevaughan/cortex/internal/contenthash"
	"github.com/waynevaughan/cortex/internal/hashindex"
	"github.com/waynevaughan/cortex/internal/taxonomy"
)

func writeRaw(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func TestRunBackfillsMissingFields(t *testing.T) {
	vaultRoot := t.TempDir()
	path := filepath.Join(vaultRoot, "document", "notes.md")
	writeRaw(t, path, "---\n---\n\nhand-written notes with no header fields at all\n")

	idx := hashindex.New(nil)
	mtimes, out, err := Run(vaultRoot, taxonomy.New(), nil, idx, nil, fixedNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Reconciled != 1 {
		t.Fatalf("Reconciled = %d, want 1", out.Reconciled)
	}

	// The file should have been renamed to <id>.md.
	entries, err := os.ReadDir(filepath.Join(vaultRoot, "document"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file after rename, got %d", len(entries))
	}
	if entries[0].Name() == "notes.md" {
		t.Errorf("expected file to be renamed to its generated id, still notes.md")
	}
	if idx.Len() != 1 {
		t.Errorf("expected hash index updated, got %d entries", idx.Len())
	}
	if len(mtimes) != 1 {
		t.Errorf("expected one cached mtime, got %d", len(mtimes))
	}
}

func TestRunSkipsUnchangedSourceHash(t *testing.T) {
	vaultRoot := t.TempDir()
	id := "018f0000-0000-7000-8000-000000000001"
	path := filepath.Join(vaultRoot, "fact", id+".md")
	body := "a stable fact that has not changed"
	writeRaw(t, path, "---\nid: "+id+"\ntype: fact\ncategory: entity\ncreated: 2026-01-01T00:00:00Z\nsource_hash: "+contenthash.Sum(body)+"\n---\n\n"+body+"\n")

	idx := hashindex.New(nil)
	_, out, err := Run(vaultRoot, taxonomy.New(), nil, idx, nil, fixedNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Reconciled != 0 {
		t.Errorf("Reconciled = %d, want 0 for an already-canonical record", out.Reconciled)
	}
}

func TestRunSkipsNonRecordFiles(t *testing.T) {
	vaultRoot := t.TempDir()
	path := filepath.Join(vaultRoot, "document", "README.md")
	writeRaw(t, path, "# Just a plain markdown file\n\nNo frontmatter here.\n")

	out, _, err := Run(vaultRoot, taxonomy.New(), nil, hashindex.New(nil), nil, fixedNow)
	_ = out
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "# Just a plain markdown file\n\nNo frontmatter here.\n" {
		t.Errorf("non-record file must be left untouched")
	}
}

func TestRunIsIdempotentViaMtimeCache(t *testing.T) {
	vaultRoot := t.TempDir()
	path := filepath.Join(vaultRoot, "document", "notes.md")
	writeRaw(t, path, "---\n---\n\nsome notes\n")

	idx := hashindex.New(nil)
	mtimes, first, err := Run(vaultRoot, taxonomy.New(), nil, idx, nil, fixedNow)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Reconciled != 1 {
		t.Fatalf("first Reconciled = %d, want 1", first.Reconciled)
	}

	_, second, err := Run(vaultRoot, taxonomy.New(), mtimes, idx, nil, fixedNow)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Reconciled != 0 || second.Skipped != 0 {
		t.Errorf("second Run over cached mtimes should touch nothing, got %+v", second)
	}
}
