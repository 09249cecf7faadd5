// Command cortex-sleep drives one maintenance cycle (decay, semantic
// dedup, reinforcement application, index rebuild) against a cortex
// repository root. It is meant to be invoked externally on a schedule
// (cron), separate from cortexd's own lifecycle (spec §2).
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/waynevaughan/cortex/internal/config"
	"github.com/waynevaughan/cortex/internal/decay"
	"github.com/waynevaughan/cortex/internal/history"
	"github.com/waynevaughan/cortex/internal/lock"
	"github.com/waynevaughan/cortex/internal/logging"
	"github.com/waynevaughan/cortex/internal/metrics"
	"github.com/waynevaughan/cortex/internal/sleep"
	"github.com/waynevaughan/cortex/internal/state"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	if err := run(); err != nil {
		logFatal("%v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("cortex-sleep: load config: %w", err)
	}

	logger, err := logging.New(getenv("CORTEX_LOG_LEVEL", "info"))
	if err != nil {
		return fmt.Errorf("cortex-sleep: init logging: %w", err)
	}

	for _, dir := range []string{cfg.QueueDir(), cfg.IndexDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cortex-sleep: create %s: %w", dir, err)
		}
	}

	lk, err := lock.Acquire(cfg.LockFile())
	if err != nil {
		return fmt.Errorf("cortex-sleep: acquire lock: %w", err)
	}
	defer lk.Release()

	st, err := state.Load(cfg.StateFile())
	if err != nil {
		return fmt.Errorf("cortex-sleep: load state: %w", err)
	}

	hist := &history.Writer{
		Root: cfg.Root,
		Warnf: func(format string, args ...any) {
			logger.Info(fmt.Sprintf(format, args...))
		},
	}
	m := metrics.New()

	out, err := sleep.Run(cfg.Mind(), cfg.Vault(), cfg.IndexDir(), decay.DefaultRates, st, hist, m, logger, time.Now())
	if err != nil {
		return fmt.Errorf("cortex-sleep: run: %w", err)
	}

	st.MarkRun()
	if err := state.Save(cfg.StateFile(), st); err != nil {
		return fmt.Errorf("cortex-sleep: save state: %w", err)
	}
	if err := m.WriteText(cfg.IndexDir()); err != nil {
		logger.Error(err, "cortex-sleep: metrics write failed")
	}

	logger.Info("cortex-sleep: cycle complete",
		"decayed", out.Decayed, "deduped", out.Deduped,
		"reinforced", out.Reinforced, "dropped", out.Dropped,
		"indexedEntries", out.IndexedEntries, "indexedEdges", out.IndexedEdges)
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
