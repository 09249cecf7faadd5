// Package frontmatter parses and serializes the two-section record header:
// a fixed-order core field block, an optional "# ---" separator, an
// application field block, and a closing fence around the document body.
//
// The two-section envelope itself — the literal "# ---" sentinel line
// joining a structured core block to a free-form application block — has
// no library analogue anywhere in the example corpus, so it is hand
// parsed. The application-field section is real YAML and is handled by
// gopkg.in/yaml.v3, parsed as a Node tree rather than into a plain map so
// that unknown key order and value shape survive a read/modify/write
// cycle unchanged.
package frontmatter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/waynevaughan/cortex/internal/record"
)

const (
	fence        = "---"
	appSeparator = "# ---"
)

// msLayout renders created/last_reinforced at the millisecond precision
// spec.md §3 requires ("ISO-8601 millisecond timestamp"); time.RFC3339
// alone truncates to whole seconds on Format. Parsing stays on plain
// time.RFC3339 below, since time.Parse accepts a fractional-seconds
// field regardless of whether the layout declares one.
const msLayout = "2006-01-02T15:04:05.000Z07:00"

// Document is a parsed record file: core fields plus an opaque,
// order-preserving application field node and the raw body text.
type Document struct {
	Record *record.Record
	// Extras is the application-field mapping node, or nil if the record
	// carries no application fields. Kept as a yaml.Node rather than a
	// map so serialization round-trips whatever shape (scalar, list,
	// nested map) each field originally had.
	Extras *yaml.Node
	Body   string
}

// Parse splits raw record-file text into its Document form.
func Parse(raw string) (*Document, error) {
	lines := strings.Split(raw, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != fence {
		return nil, fmt.Errorf("frontmatter: missing opening %q fence", fence)
	}

	// Find the end of the header: either the app separator (if present)
	// or the closing fence.
	sepIdx, closeIdx := -1, -1
	for i := 1; i < len(lines); i++ {
		t := strings.TrimSpace(lines[i])
		if sepIdx == -1 && t == appSeparator {
			sepIdx = i
		}
		if t == fence {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return nil, fmt.Errorf("frontmatter: missing closing %q fence", fence)
	}

	var coreLines, appLines []string
	if sepIdx == -1 {
		coreLines = lines[1:closeIdx]
	} else {
		coreLines = lines[1:sepIdx]
		appLines = lines[sepIdx+1 : closeIdx]
	}

	rec, err := parseCore(coreLines)
	if err != nil {
		return nil, err
	}

	var extras *yaml.Node
	appText := strings.TrimSpace(strings.Join(appLines, "\n"))
	if appText != "" {
		var node yaml.Node
		if err := yaml.Unmarshal([]byte(appText), &node); err != nil {
			return nil, fmt.Errorf("frontmatter: parse application fields: %w", err)
		}
		if len(node.Content) > 0 {
			extras = node.Content[0]
		}
	}

	body := ""
	if closeIdx+1 < len(lines) {
		body = strings.TrimPrefix(strings.Join(lines[closeIdx+1:], "\n"), "\n")
	}

	rec.Body = body
	return &Document{Record: rec, Extras: extras, Body: body}, nil
}

func parseCore(lines []string) (*record.Record, error) {
	rec := &record.Record{}
	var relatesTo []string
	inRelatesTo := false

	for _, raw := range lines {
		line := strings.TrimRight(raw, " \t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "  - ") || strings.HasPrefix(line, "- ") {
			if !inRelatesTo {
				return nil, fmt.Errorf("frontmatter: list item outside relates_to: %q", line)
			}
			relatesTo = append(relatesTo, unquote(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))))
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("frontmatter: malformed core line %q", line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		inRelatesTo = key == "relates_to" && value == ""

		switch key {
		case "id":
			rec.ID = unquote(value)
		case "type":
			rec.Kind = record.Kind(unquote(value))
		case "category":
			rec.Category = record.Category(unquote(value))
		case "created":
			t, err := time.Parse(time.RFC3339, unquote(value))
			if err != nil {
				return nil, fmt.Errorf("frontmatter: created: %w", err)
			}
			rec.Created = t
		case "source_hash":
			rec.SourceHash = unquote(value)
		case "importance":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("frontmatter: importance: %w", err)
			}
			rec.Importance = f
			rec.HasImportance = true
		case "last_reinforced":
			t, err := time.Parse(time.RFC3339, unquote(value))
			if err != nil {
				return nil, fmt.Errorf("frontmatter: last_reinforced: %w", err)
			}
			rec.LastReinforced = t
		case "relates_to":
			// handled via the block-list branch above; empty inline form
			// ("relates_to: []") leaves relatesTo nil.
		default:
			return nil, fmt.Errorf("frontmatter: unknown core field %q", key)
		}
	}
	rec.RelatesTo = relatesTo
	return rec, nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// Render serializes doc back into record-file text: core fields in fixed
// order, the separator and application block if Extras is set, the
// closing fence, and the body.
func Render(doc *Document) (string, error) {
	var b strings.Builder
	b.WriteString(fence + "\n")
	writeCore(&b, doc.Record)

	if doc.Extras != nil && len(doc.Extras.Content) > 0 {
		b.WriteString("\n" + appSeparator + "\n\n")
		out, err := yaml.Marshal(doc.Extras)
		if err != nil {
			return "", fmt.Errorf("frontmatter: render application fields: %w", err)
		}
		b.WriteString(strings.TrimRight(string(out), "\n") + "\n")
	}

	b.WriteString(fence + "\n\n")
	b.WriteString(doc.Body)
	return b.String(), nil
}

func writeCore(b *strings.Builder, r *record.Record) {
	fmt.Fprintf(b, "id: %s\n", r.ID)
	fmt.Fprintf(b, "type: %s\n", r.Kind)
	fmt.Fprintf(b, "category: %s\n", r.Category)
	fmt.Fprintf(b, "created: %s\n", r.Created.UTC().Format(msLayout))
	fmt.Fprintf(b, "source_hash: %s\n", r.SourceHash)
	if r.HasImportance {
		fmt.Fprintf(b, "importance: %s\n", strconv.FormatFloat(r.Importance, 'f', -1, 64))
		fmt.Fprintf(b, "last_reinforced: %s\n", r.LastReinforced.UTC().Format(msLayout))
	}
	if len(r.RelatesTo) == 0 {
		b.WriteString("relates_to: []\n")
		return
	}
	b.WriteString("relates_to:\n")
	for _, id := range r.RelatesTo {
		fmt.Fprintf(b, "  - %s\n", id)
	}
}
