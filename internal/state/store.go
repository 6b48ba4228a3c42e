// Package state persists rule registry metadata in SQLite.
//
// The registry mirrors the in-memory catalog: every rule the loader registers is
// upserted here so other processes (and operators) can inspect what a deployment
// knows about without loading rule modules themselves.
package state

import (
	"context"
	"time"

	"github.com/leapstack-labs/themis/pkg/health"
)

// Store is the rule registry.
type Store interface {
	// UpsertRules inserts rules that are not yet present and reports how many
	// rows were inserted. Existing (category, rule_id) rows are left untouched.
	UpsertRules(ctx context.Context, rules []health.RuleInfo) (int, error)

	// ListRules returns registered rules ordered by category and id.
	// An empty category returns every rule.
	ListRules(ctx context.Context, category health.Category) ([]RuleRecord, error)

	Close() error
}

// RuleRecord is one persisted registry row.
type RuleRecord struct {
	health.RuleInfo `yaml:",inline"`
	RegisteredAt    time.Time `json:"registered_at" yaml:"registered_at"`
}

var _ Store = (*SQLiteStore)(nil)
