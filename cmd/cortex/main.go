// Command cortex is the producer-side CLI: it appends observations to
// the queue cortexd tails, and lets an operator inspect and replay
// quarantined entries after a manual correction.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/waynevaughan/cortex/internal/config"
	"github.com/waynevaughan/cortex/internal/observation"
	"github.com/waynevaughan/cortex/internal/queue"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	if len(os.Args) < 2 {
		logFatal("usage: cortex <write|list-quarantine|requeue> [flags]")
	}

	cfg, err := config.Load()
	if err != nil {
		logFatal("cortex: load config: %v", err)
	}

	var runErr error
	switch os.Args[1] {
	case "write":
		runErr = runWrite(cfg, os.Args[2:])
	case "list-quarantine":
		runErr = runListQuarantine(cfg, os.Args[2:])
	case "requeue":
		runErr = runRequeue(cfg, os.Args[2:])
	default:
		logFatal("cortex: unknown verb %q", os.Args[1])
	}
	if runErr != nil {
		logFatal("cortex: %v", runErr)
	}
}

// runWrite appends one observation.jsonl line built from the given
// flags; entities are passed as repeated -entity name[:type] pairs.
func runWrite(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	bucket := fs.String("bucket", string(observation.BucketAmbient), "ambient|explicit")
	typ := fs.String("type", "", "record kind (required)")
	body := fs.String("body", "", "observation body text (required)")
	attribution := fs.String("attribution", "", "source attribution (required)")
	sessionID := fs.String("session-id", "", "producing session id (required)")
	confidence := fs.Float64("confidence", -1, "optional 0..1 confidence prior")
	importance := fs.Float64("importance", -1, "optional 0..1 importance override")
	context := fs.String("context", "", "optional free-text context")
	sourceQuote := fs.String("source-quote", "", "optional verbatim source excerpt")
	var entityFlags stringList
	fs.Var(&entityFlags, "entity", "repeatable name[:type] entity reference")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *typ == "" || *body == "" || *attribution == "" || *sessionID == "" {
		return fmt.Errorf("write: -type, -body, -attribution, and -session-id are required")
	}

	fields := map[string]any{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"bucket":      *bucket,
		"type":        *typ,
		"body":        *body,
		"attribution": *attribution,
		"session_id":  *sessionID,
	}
	if *confidence >= 0 {
		fields["confidence"] = *confidence
	}
	if *importance >= 0 {
		fields["importance"] = *importance
	}
	if *context != "" {
		fields["context"] = *context
	}
	if *sourceQuote != "" {
		fields["source_quote"] = *sourceQuote
	}
	if len(entityFlags) > 0 {
		entities := make([]observation.EntityRef, 0, len(entityFlags))
		for _, raw := range entityFlags {
			name, typ, _ := strings.Cut(raw, ":")
			entities = append(entities, observation.EntityRef{Name: name, Type: typ})
		}
		fields["entities"] = entities
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("write: encode: %w", err)
	}
	return queue.Append(cfg.QueueFile(), encoded)
}

// runListQuarantine prints every quarantined line with a 1-based index
// an operator can pass to requeue.
func runListQuarantine(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("list-quarantine", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := os.Open(cfg.QuarantineFile())
	if os.IsNotExist(err) {
		fmt.Println("(no quarantined entries)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("list-quarantine: open: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	idx := 0
	for scanner.Scan() {
		idx++
		var fields map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &fields); err != nil {
			fmt.Printf("%d\t(unparseable line: %v)\n", idx, err)
			continue
		}
		fmt.Printf("%d\treason=%v\tdetail=%v\ttype=%v\tbody=%v\n", idx, fields["reason"], fields["detail"], fields["type"], fields["body"])
	}
	return scanner.Err()
}

// runRequeue strips quarantine metadata from the selected 1-based lines
// and re-appends the remaining fields to observations.jsonl, letting an
// operator replay an entry after fixing it by hand.
func runRequeue(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("requeue", flag.ExitOnError)
	var lineFlags stringList
	fs.Var(&lineFlags, "line", "repeatable 1-based quarantine line number to requeue")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(lineFlags) == 0 {
		return fmt.Errorf("requeue: at least one -line is required (see list-quarantine)")
	}
	selected := make(map[int]bool, len(lineFlags))
	for _, raw := range lineFlags {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return fmt.Errorf("requeue: invalid -line %q", raw)
		}
		selected[n] = true
	}

	data, err := os.ReadFile(cfg.QuarantineFile())
	if err != nil {
		return fmt.Errorf("requeue: read quarantine: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	requeued := 0
	for i, line := range lines {
		n := i + 1
		if !selected[n] || line == "" {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(line), &fields); err != nil {
			return fmt.Errorf("requeue: line %d: %w", n, err)
		}
		delete(fields, "rejected_at")
		delete(fields, "reason")
		delete(fields, "detail")
		encoded, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("requeue: line %d: encode: %w", n, err)
		}
		if err := queue.Append(cfg.QueueFile(), encoded); err != nil {
			return fmt.Errorf("requeue: line %d: append: %w", n, err)
		}
		requeued++
	}
	fmt.Printf("requeued %d of %d selected line(s)\n", requeued, len(selected))
	return nil
}

// stringList accumulates repeated -flag occurrences into a slice.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
