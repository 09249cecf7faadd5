// Command cortexd is the cortex daemon: it tails the observation queue,
// runs each line through the pipeline engine, reconciles hand-edited
// vault files, and persists run state, either once (--once) or
// continuously until a shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"

	"github.com/waynevaughan/cortex/internal/config"
	"github.com/waynevaughan/cortex/internal/contenthash"
	"github.com/waynevaughan/cortex/internal/hashindex"
	"github.com/waynevaughan/cortex/internal/history"
	"github.com/waynevaughan/cortex/internal/lock"
	"github.com/waynevaughan/cortex/internal/logging"
	"github.com/waynevaughan/cortex/internal/metrics"
	"github.com/waynevaughan/cortex/internal/pipeline"
	"github.com/waynevaughan/cortex/internal/quarantine"
	"github.com/waynevaughan/cortex/internal/queue"
	"github.com/waynevaughan/cortex/internal/reconcile"
	"github.com/waynevaughan/cortex/internal/recordstore"
	"github.com/waynevaughan/cortex/internal/scorer"
	"github.com/waynevaughan/cortex/internal/state"
	"github.com/waynevaughan/cortex/internal/taxonomy"
	"github.com/waynevaughan/cortex/internal/watch"
)

// shutdownDeadline bounds how long the daemon waits for an in-flight
// batch to finish before shutting down anyway (spec §5).
const shutdownDeadline = 30 * time.Second

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	once := flag.Bool("once", false, "drain the queue once, reconcile, persist state, and exit")
	flag.Parse()

	if err := run(*once); err != nil {
		logFatal("%v", err)
	}
}

func run(once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("cortexd: load config: %w", err)
	}

	logger, err := logging.New(getenv("CORTEX_LOG_LEVEL", "info"))
	if err != nil {
		return fmt.Errorf("cortexd: init logging: %w", err)
	}

	for _, dir := range []string{cfg.QueueDir(), cfg.Mind(), cfg.Vault(), cfg.IndexDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cortexd: create %s: %w", dir, err)
		}
	}

	lk, err := lock.Acquire(cfg.LockFile())
	if err != nil {
		return fmt.Errorf("cortexd: acquire lock: %w", err)
	}
	defer lk.Release()

	st, err := state.Load(cfg.StateFile())
	if err != nil {
		return fmt.Errorf("cortexd: load state: %w", err)
	}

	tbl := taxonomy.New()
	if err := tbl.LoadOverlay(cfg.TaxonomyOverlayFile()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cortexd: load taxonomy overlay: %w", err)
	}

	cal, warning, err := scorer.LoadCalibration(cfg.CalibrationFile())
	if err != nil {
		return fmt.Errorf("cortexd: load calibration: %w", err)
	}
	if warning != "" {
		logger.Info("calibration", "warning", warning)
	}

	idx, err := buildHashIndex(cfg, logger)
	if err != nil {
		return fmt.Errorf("cortexd: build hash index: %w", err)
	}

	qtn := quarantine.New(cfg.QuarantineFile())
	hist := &history.Writer{
		Root: cfg.Root,
		Warnf: func(format string, args ...any) {
			logger.Info(fmt.Sprintf(format, args...))
		},
	}
	m := metrics.New()
	eng := pipeline.New(cfg.Mind(), cfg.Vault(), tbl, cal, idx, qtn, hist, m, logger)

	mtimes := map[string]time.Time{}
	drain := func() error { return drainOnce(cfg, eng, st, idx, tbl, hist, m, &mtimes, logger) }

	if once {
		return drain()
	}
	return runDaemon(cfg, drain, logger)
}

// runDaemon arms the watcher, drains on every wake, and blocks until a
// shutdown signal arrives. On signal it runs one final drain and waits up
// to shutdownDeadline for it, then stops the watcher and returns.
func runDaemon(cfg config.Config, drain func() error, logger logr.Logger) error {
	if err := drain(); err != nil {
		logger.Error(err, "cortexd: startup drain failed")
	}

	wake := make(chan struct{}, 1)
	w := watch.New(logger, []string{cfg.QueueDir(), cfg.Vault()})
	w.SetOnWake(func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.Start(ctx); err != nil {
			logger.Error(err, "cortexd: watcher stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-wake:
			if err := drain(); err != nil {
				logger.Error(err, "cortexd: drain failed")
			}

		case <-stop:
			logger.Info("cortexd: shutdown signal received, draining final batch")
			done := make(chan error, 1)
			go func() { done <- drain() }()
			select {
			case err := <-done:
				if err != nil {
					logger.Error(err, "cortexd: final drain failed")
				}
			case <-time.After(shutdownDeadline):
				logger.Info("cortexd: shutdown deadline exceeded, exiting with batch still in flight")
			}
			cancel()
			w.Stop()
			wg.Wait()
			logger.Info("cortexd: stopped")
			return nil
		}
	}
}

// drainOnce runs one full cycle: drain the queue through the pipeline,
// rotate the queue if it has grown past its cap, reconcile hand-edited
// vault files, and persist state and metrics.
func drainOnce(cfg config.Config, eng *pipeline.Engine, st *state.State, idx *hashindex.Index, tbl *taxonomy.Table, hist *history.Writer, m *metrics.Registry, mtimes *map[string]time.Time, logger logr.Logger) error {
	lines, offset, err := queue.Drain(cfg.QueueFile(), st.ObservationFileOffset)
	if err != nil {
		return fmt.Errorf("drain queue: %w", err)
	}
	for _, ln := range lines {
		outcome, err := eng.Process(ln.Bytes)
		if err != nil {
			logger.Error(err, "cortexd: pipeline failed on line, continuing with remainder of batch", "offset", ln.Offset)
			continue
		}
		logger.V(1).Info("cortexd: processed observation", "outcome", outcome)
	}
	st.ObservationFileOffset = offset

	if rotated, err := queue.RotateIfNeeded(cfg.QueueFile()); err != nil {
		logger.Error(err, "cortexd: queue rotate failed")
	} else if rotated {
		logger.Info("cortexd: rotated observation queue")
		st.ObservationFileOffset = 0
	}

	next, recOut, err := reconcile.Run(cfg.Vault(), tbl, *mtimes, idx, hist, time.Now)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	*mtimes = next
	if recOut.Reconciled > 0 {
		logger.Info("cortexd: reconciled vault files", "reconciled", recOut.Reconciled, "skipped", recOut.Skipped)
	}

	st.MarkRun()
	if err := state.Save(cfg.StateFile(), st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := m.WriteText(cfg.IndexDir()); err != nil {
		logger.Error(err, "cortexd: metrics write failed")
	}
	return nil
}

// buildHashIndex rebuilds the in-memory source_hash -> location map by
// walking both partitions at startup (internal/hashindex never persists
// its own state).
func buildHashIndex(cfg config.Config, logger logr.Logger) (*hashindex.Index, error) {
	idx := hashindex.New(func(hash string, existing, attempted hashindex.Entry) {
		logger.Info("cortexd: hash index conflict, keeping first entry", "hash", hash, "existing", existing.ID, "attempted", attempted.ID)
	})

	for _, root := range []string{cfg.Mind(), cfg.Vault()} {
		entries, err := recordstore.Walk(root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			doc, err := recordstore.Read(e.Path)
			if err != nil {
				logger.Error(err, "cortexd: skipping unreadable record during startup scan", "path", e.Path)
				continue
			}
			hash := contenthash.Sum(doc.Body)
			idx.Insert(hash, hashindex.Entry{
				ID:        doc.Record.ID,
				Path:      e.Path,
				Partition: taxonomy.PartitionFor(doc.Record.Category),
			})
		}
	}
	return idx, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
