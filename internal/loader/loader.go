// Package loader discovers operator-supplied Starlark rule modules, registers them in
// the rule catalog and mirrors the catalog into the rule registry store.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/leapstack-labs/themis/internal/starlark"
	"github.com/leapstack-labs/themis/internal/state"
	"github.com/leapstack-labs/themis/pkg/health"
)

// Config configures a Loader.
type Config struct {
	// Dirs lists rule directories per category. Entries may be doublestar globs
	// such as "rules/**/extended".
	Dirs map[health.Category][]string

	// Catalog receives loaded rules. Required.
	Catalog *health.Catalog

	// Store mirrors the catalog when set.
	Store state.Store

	// MaxSteps bounds each evaluate call; 0 uses the Starlark package default.
	MaxSteps uint64

	// Debounce delays a reload after file changes in Watch. Defaults to 200ms.
	Debounce time.Duration

	Logger *slog.Logger
}

// Summary reports the outcome of one discovery scan.
type Summary struct {
	Scanned    int                     `json:"scanned"`    // candidate modules executed
	Registered int                     `json:"registered"` // new catalog entries
	Duplicates int                     `json:"duplicates"` // already registered (category, id)
	NoRule     int                     `json:"no_rule"`    // modules without a rule
	Persisted  int                     `json:"persisted"`  // new registry store rows
	Errors     []*health.RuleLoadError `json:"-"`
}

// Failed returns the number of modules that could not be loaded.
func (s *Summary) Failed() int { return len(s.Errors) }

// Loader loads rule modules. Scans are serialized.
type Loader struct {
	cfg    Config
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a loader. If cfg.Logger is nil, a discard logger is used.
func New(cfg Config) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 200 * time.Millisecond
	}
	return &Loader{cfg: cfg, logger: logger}
}

// Load scans every configured directory once. Module failures are recorded in the
// summary and logged; only catalog or store failures are returned as errors.
// Loading twice registers nothing new and inserts no duplicate store rows.
func (l *Loader) Load(ctx context.Context) (*Summary, error) {
	if l.cfg.Catalog == nil {
		return nil, fmt.Errorf("loader: no catalog configured")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	summary := &Summary{}
	for _, category := range health.Categories() {
		files, err := l.moduleFiles(category)
		if err != nil {
			return nil, err
		}
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			l.loadModule(path, category, summary)
		}
	}

	if l.cfg.Store != nil {
		infos := make([]health.RuleInfo, 0, l.cfg.Catalog.Len())
		for _, def := range l.cfg.Catalog.Entries("") {
			infos = append(infos, def.Info())
		}
		n, err := l.cfg.Store.UpsertRules(ctx, infos)
		if err != nil {
			return nil, fmt.Errorf("failed to persist rule registry: %w", err)
		}
		summary.Persisted = n
	}

	l.logger.Info("rule discovery finished",
		slog.Int("scanned", summary.Scanned),
		slog.Int("registered", summary.Registered),
		slog.Int("duplicates", summary.Duplicates),
		slog.Int("failed", summary.Failed()),
		slog.Int("persisted", summary.Persisted))
	return summary, nil
}

func (l *Loader) loadModule(path string, category health.Category, summary *Summary) {
	summary.Scanned++

	src, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the configured rule directories
	if err != nil {
		l.recordError(summary, path, category, fmt.Errorf("failed to read file: %w", err))
		return
	}

	def, err := starlark.LoadRule(path, src, category, starlark.LoadOptions{
		Logger:   l.logger,
		MaxSteps: l.cfg.MaxSteps,
	})
	if errors.Is(err, starlark.ErrNoRule) {
		summary.NoRule++
		l.logger.Debug("module declares no rule", slog.String("path", path))
		return
	}
	if err != nil {
		l.recordError(summary, path, category, err)
		return
	}

	if !l.cfg.Catalog.Register(def) {
		summary.Duplicates++
		l.logger.Debug("rule already registered",
			slog.String("category", string(category)),
			slog.String("id", def.ID),
			slog.String("path", path))
		return
	}
	summary.Registered++
	l.logger.Debug("registered rule",
		slog.String("category", string(category)),
		slog.String("id", def.ID),
		slog.String("path", path))
}

func (l *Loader) recordError(summary *Summary, path string, category health.Category, err error) {
	loadErr := &health.RuleLoadError{Path: path, Category: category, Err: err}
	summary.Errors = append(summary.Errors, loadErr)
	l.logger.Warn("failed to load rule module",
		slog.String("path", path),
		slog.String("category", string(category)),
		slog.String("error", err.Error()))
}

// =============================================================================
// Discovery
// =============================================================================

// moduleFiles returns the candidate modules of a category, sorted and deduplicated.
func (l *Loader) moduleFiles(category health.Category) ([]string, error) {
	dirs, err := l.resolveDirs(category)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var files []string
	for _, dir := range dirs {
		matches, err := doublestar.FilepathGlob(filepath.Join(dir, "**", "*.star"))
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s rule directory %s: %w", category, dir, err)
		}
		for _, m := range matches {
			if !IsCandidate(m) || seen[m] {
				continue
			}
			seen[m] = true
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// resolveDirs expands the configured entries of a category to existing directories.
// Missing plain directories are skipped.
func (l *Loader) resolveDirs(category health.Category) ([]string, error) {
	var dirs []string
	for _, entry := range l.cfg.Dirs[category] {
		if !containsGlob(entry) {
			info, err := os.Stat(entry)
			if err != nil {
				if os.IsNotExist(err) {
					l.logger.Debug("rule directory does not exist", slog.String("dir", entry))
					continue
				}
				return nil, fmt.Errorf("failed to access %s rule directory: %w", category, err)
			}
			if !info.IsDir() {
				return nil, fmt.Errorf("%s rule path is not a directory: %s", category, entry)
			}
			dirs = append(dirs, filepath.Clean(entry))
			continue
		}

		matches, err := doublestar.FilepathGlob(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid %s rule directory pattern %q: %w", category, entry, err)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.IsDir() {
				dirs = append(dirs, m)
			}
		}
	}
	return dirs, nil
}

// IsCandidate reports whether a file is a rule module: a .star file whose name does
// not start with "_" and does not end in "_test.star".
func IsCandidate(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".star") &&
		!strings.HasPrefix(base, "_") &&
		!strings.HasSuffix(base, "_test.star")
}

func containsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
