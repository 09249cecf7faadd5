// Package history commits durable changes to the version-controlled log
// rooted at the repository's top. It shells out to the system git
// binary via os/exec rather than a pure-Go git implementation — no repo
// in the example corpus vendors one, and shelling to git is the
// idiomatic choice the Go tooling ecosystem reaches for (goreleaser,
// git-chglog) whenever a working tree, index, and commit are all that's
// needed.
package history

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/waynevaughan/cortex/internal/id"
)

// Action is the verb named in a commit message.
type Action string

const (
	ActionMemorize  Action = "memorize"
	ActionReinforce Action = "reinforce"
	ActionArchive   Action = "archive"
	ActionReconcile Action = "reconcile"
	ActionIndex     Action = "index"
)

const commitTimeout = 30 * time.Second

// Writer commits staged changes under Root using the system git binary.
// A zero-value Writer (empty Root) is a valid, permanently-degraded
// writer: every Commit call is a no-op that returns nil, matching the
// spec's "must not throw when the store is not configured" requirement.
type Writer struct {
	Root string
	// Warnf receives a message when the writer degrades to a no-op
	// because it is unconfigured, or when a commit times out.
	Warnf func(format string, args ...any)
}

// Commit stages path (relative to Root) and commits it with a message of
// the form `<action>: <kind> "<title>" (<id13>)`. Nothing-to-commit
// (git diff reports no changes) is a benign no-op.
func (w *Writer) Commit(action Action, kind, title, recordID, path string) error {
	if w.Root == "" {
		w.warnf("history: no repository root configured, skipping commit")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()

	if err := w.run(ctx, "add", path); err != nil {
		return fmt.Errorf("history: git add: %w", err)
	}

	clean, err := w.nothingStaged(ctx)
	if err != nil {
		return fmt.Errorf("history: git diff: %w", err)
	}
	if clean {
		return nil
	}

	message := fmt.Sprintf("%s: %s %q (%s)", action, kind, title, id.Short(recordID))
	if err := w.run(ctx, "commit", "-m", message); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			w.warnf("history: commit timed out after %s, skipping", commitTimeout)
			return nil
		}
		return fmt.Errorf("history: git commit: %w", err)
	}
	return nil
}

func (w *Writer) nothingStaged(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--cached", "--quiet")
	cmd.Dir = w.Root
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, err
}

func (w *Writer) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = w.Root
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%v: %s", err, stderr.String())
	}
	return nil
}

func (w *Writer) warnf(format string, args ...any) {
	if w.Warnf != nil {
		w.Warnf(format, args...)
	}
}
