package queue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDrainBasic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "observations.jsonl")
	if err := os.WriteFile(path, []byte("line one\nline two\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	lines, offset, err := Drain(path, 0)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if string(lines[0].Bytes) != "line one" || string(lines[1].Bytes) != "line two" {
		t.Errorf("unexpected line contents: %+v", lines)
	}
	if offset != int64(len("line one\nline two\n")) {
		t.Errorf("offset = %d, want end of file", offset)
	}
}

func TestDrainLeavesTrailingPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "observations.jsonl")
	content := "complete\nincomplete-no-newline"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	lines, offset, err := Drain(path, 0)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if offset != int64(len("complete\n")) {
		t.Errorf("offset = %d, want %d", offset, len("complete\n"))
	}
}

func TestDrainFromNonZeroOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "observations.jsonl")
	first := "already consumed\n"
	second := "new entry\n"
	if err := os.WriteFile(path, []byte(first+second), 0o644); err != nil {
		t.Fatal(err)
	}

	lines, offset, err := Drain(path, int64(len(first)))
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(lines) != 1 || string(lines[0].Bytes) != "new entry" {
		t.Fatalf("got %+v", lines)
	}
	if offset != int64(len(first)+len(second)) {
		t.Errorf("offset = %d", offset)
	}
}

func TestDrainMissingFileIsNotAnError(t *testing.T) {
	lines, offset, err := Drain(filepath.Join(t.TempDir(), "nope.jsonl"), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lines != nil || offset != 5 {
		t.Errorf("got %+v, %d", lines, offset)
	}
}

func TestAppendAndDrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "observations.jsonl")
	if err := Append(path, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := Append(path, []byte(`{"a":2}`)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	lines, _, err := Drain(path, 0)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
}

func TestRotateIfNeeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "observations.jsonl")
	big := strings.Repeat("x", rotateAt)
	if err := os.WriteFile(path, []byte(big), 0o644); err != nil {
		t.Fatal(err)
	}

	rotated, err := RotateIfNeeded(path)
	if err != nil {
		t.Fatalf("RotateIfNeeded: %v", err)
	}
	if !rotated {
		t.Fatal("expected rotation for an oversize queue file")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat fresh file: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("expected fresh empty file, got size %d", info.Size())
	}

	gens := ExistingGenerations(path)
	if len(gens) != 1 || gens[0] != 1 {
		t.Errorf("expected generation 1 to exist, got %v", gens)
	}
}

func TestRotateIfNeededKeepsThreeGenerations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "observations.jsonl")
	big := strings.Repeat("x", rotateAt)

	for i := 0; i < 4; i++ {
		if err := os.WriteFile(path, []byte(big), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := RotateIfNeeded(path); err != nil {
			t.Fatalf("RotateIfNeeded iteration %d: %v", i, err)
		}
	}

	gens := ExistingGenerations(path)
	if len(gens) != maxGenerations {
		t.Errorf("expected %d generations retained, got %v", maxGenerations, gens)
	}
}

func TestRotateIfNeededSkipsSmallFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "observations.jsonl")
	if err := os.WriteFile(path, []byte("small"), 0o644); err != nil {
		t.Fatal(err)
	}
	rotated, err := RotateIfNeeded(path)
	if err != nil {
		t.Fatalf("RotateIfNeeded: %v", err)
	}
	if rotated {
		t.Error("did not expect rotation for a small file")
	}
}
