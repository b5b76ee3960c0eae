package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"log/slog"

	"github.com/Aman-CERP/amanmcp/internal/filter"
	"github.com/Aman-CERP/amanmcp/internal/watcher"
)

// CoordinatorConfig configures a Coordinator's watch-driven reconciliation
// against one collection.
type CoordinatorConfig struct {
	RootPath        string
	Collection      string
	Runner          *Runner
	RunnerConfig    RunnerConfig
	IncludePatterns []string
	ExcludePatterns []string
	MaxFileSize     int64
}

// Coordinator turns watcher.FileEvents into Runner calls: a create/modify
// event indexes one file through Runner.IndexFile, a delete event removes
// it through Runner.RemoveFile, and a gitignore/config change triggers a
// full reconciliation run so discovery picks up newly included/excluded
// paths.
type Coordinator struct {
	config CoordinatorConfig
	mu     sync.Mutex
}

// NewCoordinator builds a Coordinator. Runner must already be constructed
// (it owns the dedup gate, orphan sweeper, and store connections shared
// with the one-shot `index` command).
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	return &Coordinator{config: cfg}
}

// DefaultMaxFileSize is the size gate applied when CoordinatorConfig doesn't
// set one explicitly (1 MiB, matching the one-shot indexer's ceiling).
const DefaultMaxFileSize = 1 << 20

// HandleEvents processes a batch of debounced watcher events in order.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, event := range events {
		if err := c.handleEvent(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", event.Operation, event.Path, err))
			slog.Error("event handling failed", slog.String("path", event.Path), slog.String("op", event.Operation.String()), slog.String("error", err.Error()))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("handled %d/%d events with errors: %v", len(events)-len(errs), len(events), errs)
	}
	return nil
}

func (c *Coordinator) handleEvent(ctx context.Context, event watcher.FileEvent) error {
	if event.IsDir {
		return nil
	}
	switch event.Operation {
	case watcher.OpCreate, watcher.OpModify:
		return c.indexFile(ctx, event.Path)
	case watcher.OpDelete:
		return c.removeFile(ctx, event.Path)
	case watcher.OpRename:
		// The watcher delivers a paired delete+create for renames it can't
		// resolve atomically; a bare OpRename carries no actionable path
		// delta here.
		return nil
	case watcher.OpGitignoreChange, watcher.OpConfigChange:
		return c.reconcile(ctx)
	default:
		return nil
	}
}

func (c *Coordinator) indexFile(ctx context.Context, relPath string) error {
	ok, err := filter.ShouldProcess(filepath.Join(c.config.RootPath, relPath), c.config.RootPath, c.config.IncludePatterns, c.config.ExcludePatterns, c.config.MaxFileSize)
	if err != nil || !ok {
		return err
	}
	_, err = c.config.Runner.IndexFile(ctx, c.config.Collection, c.config.RootPath, filepath.ToSlash(relPath), nil)
	return err
}

func (c *Coordinator) removeFile(ctx context.Context, relPath string) error {
	return c.config.Runner.RemoveFile(ctx, c.config.Collection, filepath.ToSlash(relPath))
}

// reconcile re-runs the full discover+diff+process pipeline. A gitignore or
// config change can shift which paths are in or out of scope in ways a
// single-file event can't express, so rather than re-deriving the delta
// here it delegates to Runner.Run, which already owns discovery and
// state-diffing for exactly this purpose.
func (c *Coordinator) reconcile(ctx context.Context) error {
	_, err := c.config.Runner.Run(ctx, c.config.RunnerConfig)
	return err
}

// GitignoreHashKey is the state key used to persist the last-reconciled
// gitignore hash.
const GitignoreHashKey = "gitignore_hash"

// ComputeGitignoreHash computes a SHA256 hash of every .gitignore file in
// the project tree. Deterministic: files are sorted by path and each
// contributes "path:content" to the digest.
func ComputeGitignoreHash(rootPath string) (string, error) {
	var gitignorePaths []string

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip entries we can't access
		}
		if d.IsDir() {
			name := d.Name()
			if name != "." && (name[0] == '.' || name == "node_modules" || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == ".gitignore" {
			gitignorePaths = append(gitignorePaths, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.Strings(gitignorePaths)

	h := sha256.New()
	for _, path := range gitignorePaths {
		content, err := os.ReadFile(path)
		if err != nil {
			continue // skip unreadable files
		}
		relPath, _ := filepath.Rel(rootPath, path)
		h.Write([]byte(relPath))
		h.Write([]byte(":"))
		h.Write(content)
		h.Write([]byte("\n"))
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReconcileOnStartup compares the gitignore hash persisted in the last run's
// state against the current tree and triggers a full reconciliation only
// when it has changed — this keeps the cheap common case (nothing changed
// while the daemon was stopped) from paying for a full Run.
func (c *Coordinator) ReconcileOnStartup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	statePath := StatePath(c.config.RunnerConfig.DataDir, c.config.Collection)
	state, err := LoadState(statePath)
	if err != nil {
		return fmt.Errorf("reconcile on startup: load state: %w", err)
	}

	currentHash, err := ComputeGitignoreHash(c.config.RootPath)
	if err != nil {
		slog.Warn("failed to compute gitignore hash on startup", slog.String("error", err.Error()))
		return nil
	}

	if state.GitignoreHash == currentHash {
		slog.Debug("gitignore unchanged since last run, skipping reconciliation")
		return nil
	}

	slog.Info("gitignore changed since last run, reconciling", slog.String("old_hash", state.GitignoreHash), slog.String("new_hash", currentHash))
	return c.reconcile(ctx)
}
