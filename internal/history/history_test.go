package history

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Skipf("git unavailable in test environment: %v: %s", err, out)
		}
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	return dir
}

func TestCommitUnconfiguredIsNoop(t *testing.T) {
	w := &Writer{}
	if err := w.Commit(ActionMemorize, "idea", "title", "018f9b1c-0000-7000-8000-000000000001", "mind/idea/x.md"); err != nil {
		t.Fatalf("expected nil error for unconfigured writer, got %v", err)
	}
}

func TestCommitWritesAMessage(t *testing.T) {
	dir := initRepo(t)
	if err := os.MkdirAll(filepath.Join(dir, "mind", "idea"), 0o755); err != nil {
		t.Fatal(err)
	}
	path := "mind/idea/x.md"
	if err := os.WriteFile(filepath.Join(dir, path), []byte("body"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := &Writer{Root: dir}
	id := "018f9b1c-0000-7000-8000-000000000001"
	if err := w.Commit(ActionMemorize, "idea", "A title", id, path); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	out, err := exec.Command("git", "-C", dir, "log", "-1", "--pretty=%s").CombinedOutput()
	if err != nil {
		t.Fatalf("git log: %v: %s", err, out)
	}
	msg := strings.TrimSpace(string(out))
	want := `memorize: idea "A title" (018f9b1c-0000)`
	if msg != want {
		t.Errorf("commit message = %q, want %q", msg, want)
	}
}

func TestCommitNothingStagedIsNoop(t *testing.T) {
	dir := initRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "seed.txt"), []byte("seed"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := &Writer{Root: dir}
	if err := w.Commit(ActionIndex, "idea", "seed", "018f9b1c-0000-7000-8000-000000000001", "seed.txt"); err != nil {
		t.Fatalf("initial commit: %v", err)
	}

	logBefore, _ := exec.Command("git", "-C", dir, "rev-list", "--count", "HEAD").CombinedOutput()

	// Nothing changed about seed.txt; committing it again should be a
	// no-op (no new commit created).
	if err := w.Commit(ActionIndex, "idea", "seed", "018f9b1c-0000-7000-8000-000000000001", "seed.txt"); err != nil {
		t.Fatalf("no-op commit: %v", err)
	}
	logAfter, _ := exec.Command("git", "-C", dir, "rev-list", "--count", "HEAD").CombinedOutput()

	if string(logBefore) != string(logAfter) {
		t.Errorf("expected no new commit, counts %q -> %q", logBefore, logAfter)
	}
}
