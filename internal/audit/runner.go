// Package audit runs rule selections against many configured targets in parallel.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/themis/internal/config"
	"github.com/leapstack-labs/themis/internal/credcache"
	"github.com/leapstack-labs/themis/pkg/adapter"
	"github.com/leapstack-labs/themis/pkg/health"
	"golang.org/x/sync/errgroup"
)

// ConnectFunc opens an adapter for one target.
type ConnectFunc func(ctx context.Context, cfg adapter.Config, logger *slog.Logger) (adapter.Adapter, error)

// Config configures a Runner.
type Config struct {
	// Executor runs the rules. Required.
	Executor *health.Executor

	// Credentials resolves target passwords. Defaults to a cache with credcache.DefaultTTL.
	Credentials *credcache.Cache

	// Concurrency bounds the number of targets audited at once. Defaults to 1.
	Concurrency int

	// RunTimeout bounds each target's run, connection included (0 disables the limit).
	RunTimeout time.Duration

	// Connect opens adapters. Defaults to adapter.Connect.
	Connect ConnectFunc

	Logger *slog.Logger
}

// Request selects what to run.
type Request struct {
	Category health.Category
	RuleIDs  []string // empty runs every rule of the category
	SQL      string   // statement handed to text rules
}

// TargetReport is the outcome for one target. Exactly one of Report and Err is set.
type TargetReport struct {
	Target string
	Report *health.ScoreReport
	Err    error
}

// Runner audits targets. It shares only the executor's read-only catalog between
// targets; every target gets its own adapter and connection.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

// NewRunner creates a runner.
func NewRunner(cfg Config) *Runner {
	if cfg.Credentials == nil {
		cfg.Credentials = credcache.New(credcache.DefaultTTL)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Connect == nil {
		cfg.Connect = adapter.Connect
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Run audits every target and returns one report per target in input order.
//
// The selection is validated before any connection is opened; an invalid selection
// or missing threshold aborts the whole run. Connection and per-target failures are
// reported in TargetReport.Err and do not stop other targets.
func (r *Runner) Run(ctx context.Context, targets []config.TargetConfig, req Request) ([]TargetReport, error) {
	if r.cfg.Executor == nil {
		return nil, fmt.Errorf("audit: no executor configured")
	}
	if _, err := r.cfg.Executor.Plan(req.Category, req.RuleIDs); err != nil {
		return nil, err
	}

	reports := make([]TargetReport, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i := range targets {
		target := targets[i]
		g.Go(func() error {
			report, err := r.runTarget(gctx, target, req)
			reports[i] = TargetReport{Target: target.Name, Report: report, Err: err}
			if err != nil {
				r.logger.Warn("target audit failed",
					slog.String("target", target.Name),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return reports, err
	}
	return reports, nil
}

func (r *Runner) runTarget(ctx context.Context, target config.TargetConfig, req Request) (*health.ScoreReport, error) {
	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	password, err := r.cfg.Credentials.Resolve(target.Name, target.CredentialSource())
	if err != nil {
		return nil, err
	}

	logger := r.logger.With(slog.String("target", target.Name))
	adp, err := r.cfg.Connect(ctx, target.AdapterConfig(password), logger)
	if err != nil {
		// the password may have been rotated
		r.cfg.Credentials.Invalidate(target.Name)
		return nil, fmt.Errorf("failed to connect to target %s: %w", target.Name, err)
	}
	defer func() { _ = adp.Close() }()

	cur, err := adp.Cursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open cursor on target %s: %w", target.Name, err)
	}
	defer func() { _ = cur.Close() }()

	schema := target.Schema
	if schema == "" {
		schema = adp.DefaultSchema()
	}

	return r.cfg.Executor.Execute(ctx, health.Target{
		Name:   target.Name,
		Cursor: cur,
		Schema: schema,
		SQL:    req.SQL,
	}, req.Category, req.RuleIDs)
}

// Failed returns the reports whose target could not be audited.
func Failed(reports []TargetReport) []TargetReport {
	var out []TargetReport
	for _, r := range reports {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
