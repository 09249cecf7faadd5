// Package recordstore reads and writes individual record files and
// walks partition trees on behalf of the pipeline, reconciler, decay,
// dedup, and reinforcement engines — the one place that knows the
// on-disk layout (<partition>/<kind>/<id>.md, archived under
// <partition>/.archived/<kind>/).
package recordstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/waynevaughan/cortex/internal/frontmatter"
	"github.com/waynevaughan/cortex/internal/record"
)

// KindDir returns the directory holding live records of kind under
// partitionRoot.
func KindDir(partitionRoot string, kind record.Kind) string {
	return filepath.Join(partitionRoot, string(kind))
}

// ArchivedKindDir returns the directory holding archived records of kind
// under partitionRoot.
func ArchivedKindDir(partitionRoot string, kind record.Kind) string {
	return filepath.Join(partitionRoot, ".archived", string(kind))
}

// Path returns the file path for a live record.
func Path(partitionRoot string, kind record.Kind, id string) string {
	return filepath.Join(KindDir(partitionRoot, kind), id+".md")
}

// Entry is one record file discovered by Walk.
type Entry struct {
	Path string
	Kind record.Kind
}

// Walk lists every live .md file directly under each kind subdirectory
// of partitionRoot, skipping the .archived subtree.
func Walk(partitionRoot string) ([]Entry, error) {
	kindDirs, err := os.ReadDir(partitionRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recordstore: read %s: %w", partitionRoot, err)
	}

	var entries []Entry
	for _, kd := range kindDirs {
		if !kd.IsDir() || kd.Name() == ".archived" {
			continue
		}
		kind := record.Kind(kd.Name())
		dir := filepath.Join(partitionRoot, kd.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("recordstore: read %s: %w", dir, err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
				continue
			}
			entries = append(entries, Entry{Path: filepath.Join(dir, f.Name()), Kind: kind})
		}
	}
	return entries, nil
}

// Read parses the record file at path.
func Read(path string) (*frontmatter.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("recordstore: read %s: %w", path, err)
	}
	doc, err := frontmatter.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("recordstore: parse %s: %w", path, err)
	}
	return doc, nil
}

// Write renders doc and writes it to path atomically (temp file in the
// same directory, then rename), creating parent directories as needed.
func Write(path string, doc *frontmatter.Document) error {
	rendered, err := frontmatter.Render(doc)
	if err != nil {
		return fmt.Errorf("recordstore: render: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("recordstore: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".record-*.tmp")
	if err != nil {
		return fmt.Errorf("recordstore: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(rendered); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("recordstore: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("recordstore: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("recordstore: rename: %w", err)
	}
	return nil
}

// Archive atomically moves path from its live kind directory to the
// archived subtree, creating the archived directory if needed.
func Archive(partitionRoot string, kind record.Kind, path string) (string, error) {
	dest := ArchivedKindDir(partitionRoot, kind)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("recordstore: mkdir %s: %w", dest, err)
	}
	destPath := filepath.Join(dest, filepath.Base(path))
	if err := os.Rename(path, destPath); err != nil {
		return "", fmt.Errorf("recordstore: archive %s: %w", path, err)
	}
	return destPath, nil
}
