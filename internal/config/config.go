// Package config resolves cortex's on-disk layout from its environment
// and exposes the path helpers every other package builds file paths
// from.
//
// torua's cmd/coordinator and cmd/node each carried their own
// getenv/mustGetenv pair; this consolidates the one layout environment
// variable, CORTEX_ROOT, into a single place.
package config

import (
	"os"
	"path/filepath"
)

// Config is the resolved repository layout.
type Config struct {
	Root string
}

// Load resolves Config from the environment. CORTEX_ROOT selects the
// repository root; if unset, the current working directory is used.
func Load() (Config, error) {
	root := os.Getenv("CORTEX_ROOT")
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Config{}, err
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Config{}, err
	}
	return Config{Root: abs}, nil
}

// Mind is the concept partition root.
func (c Config) Mind() string { return filepath.Join(c.Root, "mind") }

// Vault is the entity/relation partition root.
func (c Config) Vault() string { return filepath.Join(c.Root, "vault") }

// QueueDir holds the observation queue, quarantine log, state, and lock
// files.
func (c Config) QueueDir() string { return filepath.Join(c.Root, "queue") }

// QueueFile is the producer-appended observation log.
func (c Config) QueueFile() string { return filepath.Join(c.QueueDir(), "observations.jsonl") }

// QuarantineFile is the append-only rejected-entry log.
func (c Config) QuarantineFile() string { return filepath.Join(c.QueueDir(), "quarantine.jsonl") }

// StateFile persists queue offset, last run time, and pending
// reinforcements.
func (c Config) StateFile() string { return filepath.Join(c.QueueDir(), "state.json") }

// LockFile is the PID-file used for mutual exclusion between daemon
// instances.
func (c Config) LockFile() string { return filepath.Join(c.QueueDir(), "daemon.pid") }

// CalibrationFile is the optional scorer calibration-rule file.
func (c Config) CalibrationFile() string { return filepath.Join(c.Root, "calibration.yml") }

// TaxonomyOverlayFile is the optional custom-type overlay file.
func (c Config) TaxonomyOverlayFile() string { return filepath.Join(c.Root, "taxonomy.yml") }

// IndexDir holds the committed entries.json, graph.json, metrics.prom
// artifacts.
func (c Config) IndexDir() string { return filepath.Join(c.Root, "index") }

// ArchivedDir returns the archive subtree for a partition root.
func ArchivedDir(partitionRoot string) string { return filepath.Join(partitionRoot, ".archived") }
