package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/waynevaughan/cortex/internal/frontmatter"
	"github.com/waynevaughan/cortex/internal/record"
	"github.com/waynevaughan/cortex/internal/recordstore"
)

func TestGetenv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      string
		expected string
	}{
		{name: "set", key: "CORTEX_SLEEP_TEST_SET", value: "debug", def: "info", expected: "debug"},
		{name: "unset", key: "CORTEX_SLEEP_TEST_UNSET", value: "", def: "info", expected: "info"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				os.Setenv(tt.key, tt.value)
				defer os.Unsetenv(tt.key)
			}
			if got := getenv(tt.key, tt.def); got != tt.expected {
				t.Errorf("getenv() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRunExecutesOneCycleAgainstConfiguredRoot(t *testing.T) {
	root := t.TempDir()
	os.Setenv("CORTEX_ROOT", root)
	defer os.Unsetenv("CORTEX_ROOT")

	id := "018f0000-0000-7000-8000-000000000099"
	body := "an idea for the sleep cycle to index"
	doc := &frontmatter.Document{
		Record: &record.Record{
			ID: id, Kind: "idea", Category: record.CategoryConcept,
			Created: time.Now(), SourceHash: id, Body: body,
			Importance: 0.9, HasImportance: true,
		},
		Body: body,
	}
	mindDir := filepath.Join(root, "mind")
	if err := recordstore.Write(recordstore.Path(mindDir, "idea", id), doc); err != nil {
		t.Fatal(err)
	}

	if err := run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "index", "entries.json")); err != nil {
		t.Errorf("expected index/entries.json to be written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "queue", "state.json")); err != nil {
		t.Errorf("expected queue/state.json to be written: %v", err)
	}
}
