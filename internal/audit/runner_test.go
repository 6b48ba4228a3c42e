package audit

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/themis/internal/config"
	"github.com/leapstack-labs/themis/internal/credcache"
	"github.com/leapstack-labs/themis/internal/testutil"
	"github.com/leapstack-labs/themis/pkg/adapter"
	"github.com/leapstack-labs/themis/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter serves cursors over a sqlmock database.
type fakeAdapter struct {
	db     *sql.DB
	schema string
	closed bool
}

func (f *fakeAdapter) Connect(context.Context, adapter.Config) error { return nil }
func (f *fakeAdapter) Close() error                                  { f.closed = true; return nil }
func (f *fakeAdapter) Exec(context.Context, string) error            { return nil }
func (f *fakeAdapter) DialectName() string                           { return "mysql" }
func (f *fakeAdapter) DefaultSchema() string                         { return f.schema }
func (f *fakeAdapter) Cursor(context.Context) (*adapter.SQLCursor, error) {
	return adapter.NewSQLCursor(f.db, adapter.PlaceholderQuestion), nil
}

// connector hands out adapters per target and records the configs it saw.
type connector struct {
	mu       sync.Mutex
	adapters map[string]*fakeAdapter // keyed by host
	fail     map[string]error
	seen     []adapter.Config
}

func (c *connector) connect(_ context.Context, cfg adapter.Config, _ *slog.Logger) (adapter.Adapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, cfg)
	if err := c.fail[cfg.Host]; err != nil {
		return nil, err
	}
	return c.adapters[cfg.Host], nil
}

func testCatalog() *health.Catalog {
	catalog := health.NewEmptyCatalog()
	catalog.Register(health.RuleDef{
		ID:         "BIG_TABLE",
		Category:   health.CategoryObject,
		Weight:     1,
		MaxScore:   10,
		Evaluator:  health.CountRule{Query: "SELECT table_name FROM tables WHERE table_schema = ? AND size_gb > ?"},
		Thresholds: map[string]any{"table_size": 10},
		Bind:       map[string]string{"threshold": "table_size"},
	})
	return catalog
}

func newMockAdapter(t *testing.T, schema string, tables ...string) (*fakeAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows := sqlmock.NewRows([]string{"table_name"})
	for _, name := range tables {
		rows.AddRow(name)
	}
	mock.ExpectQuery("SELECT table_name FROM tables").WithArgs(schema, 10.0).WillReturnRows(rows)
	return &fakeAdapter{db: db, schema: schema}, mock
}

func TestRunner_Run(t *testing.T) {
	prod, prodMock := newMockAdapter(t, "shop", "orders", "events")
	conn := &connector{
		adapters: map[string]*fakeAdapter{"prod-db": prod},
		fail:     map[string]error{"down-db": errors.New("dial tcp: connection refused")},
	}
	creds := credcache.New(0, credcache.WithGetenv(func(string) string { return "s3cret" }))

	runner := NewRunner(Config{
		Executor:    health.NewExecutor(health.ExecutorConfig{Catalog: testCatalog(), Logger: testutil.NewTestLogger(t)}),
		Credentials: creds,
		Concurrency: 2,
		Connect:     conn.connect,
		Logger:      testutil.NewTestLogger(t),
	})

	targets := []config.TargetConfig{
		{Name: "down", Type: "mysql", Host: "down-db", PasswordEnv: "DOWN_PW"},
		{Name: "prod", Type: "mysql", Host: "prod-db", User: "auditor", PasswordEnv: "PROD_PW"},
	}
	reports, err := runner.Run(context.Background(), targets, Request{Category: health.CategoryObject})
	require.NoError(t, err)
	require.Len(t, reports, 2)

	// input order is kept
	assert.Equal(t, "down", reports[0].Target)
	require.Error(t, reports[0].Err)
	assert.Contains(t, reports[0].Err.Error(), "connection refused")
	assert.Nil(t, reports[0].Report)

	assert.Equal(t, "prod", reports[1].Target)
	require.NoError(t, reports[1].Err)
	report := reports[1].Report
	require.NotNil(t, report)
	assert.Equal(t, "prod", report.Target)
	assert.Equal(t, "shop", report.Schema, "adapter default schema used")
	assert.InDelta(t, 98.0, report.TotalScore, 1e-9)
	assert.True(t, prod.closed)
	require.NoError(t, prodMock.ExpectationsWereMet())

	// the failed target's password was invalidated, the healthy one stays cached
	assert.Equal(t, 1, creds.Len())

	for _, cfg := range conn.seen {
		assert.Equal(t, "s3cret", cfg.Password)
	}
	assert.Len(t, Failed(reports), 1)
}

func TestRunner_InvalidSelectionAbortsBeforeConnecting(t *testing.T) {
	conn := &connector{}
	runner := NewRunner(Config{
		Executor: health.NewExecutor(health.ExecutorConfig{Catalog: testCatalog()}),
		Connect:  conn.connect,
	})

	_, err := runner.Run(context.Background(),
		[]config.TargetConfig{{Name: "prod", Type: "mysql"}},
		Request{Category: health.CategoryObject, RuleIDs: []string{"BIG_TABLE", "NOPE"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, health.ErrRuleNotFound)
	assert.Empty(t, conn.seen)
}

func TestRunner_CredentialFailure(t *testing.T) {
	conn := &connector{}
	runner := NewRunner(Config{
		Executor:    health.NewExecutor(health.ExecutorConfig{Catalog: testCatalog()}),
		Credentials: credcache.New(0, credcache.WithGetenv(func(string) string { return "" })),
		Connect:     conn.connect,
	})

	reports, err := runner.Run(context.Background(),
		[]config.TargetConfig{{Name: "prod", Type: "mysql", PasswordEnv: "UNSET"}},
		Request{Category: health.CategoryObject})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Error(t, reports[0].Err)
	assert.Contains(t, reports[0].Err.Error(), "UNSET")
	assert.Empty(t, conn.seen, "no connection without credentials")
}

func TestRunner_ExplicitSchema(t *testing.T) {
	a, mock := newMockAdapter(t, "billing")
	conn := &connector{adapters: map[string]*fakeAdapter{"h": a}}
	runner := NewRunner(Config{
		Executor: health.NewExecutor(health.ExecutorConfig{Catalog: testCatalog()}),
		Connect:  conn.connect,
	})

	a.schema = "ignored"
	reports, err := runner.Run(context.Background(),
		[]config.TargetConfig{{Name: "t", Type: "mysql", Host: "h", Schema: "billing"}},
		Request{Category: health.CategoryObject, RuleIDs: []string{"BIG_TABLE"}})
	require.NoError(t, err)
	require.NoError(t, reports[0].Err)
	assert.InDelta(t, 100.0, reports[0].Report.TotalScore, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunner_Cancelled(t *testing.T) {
	runner := NewRunner(Config{
		Executor: health.NewExecutor(health.ExecutorConfig{Catalog: testCatalog()}),
		Connect: func(ctx context.Context, _ adapter.Config, _ *slog.Logger) (adapter.Adapter, error) {
			return nil, ctx.Err()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reports, err := runner.Run(ctx, []config.TargetConfig{{Name: "t", Type: "mysql"}}, Request{Category: health.CategoryObject})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, reports, 1)
}

func TestRunner_NoExecutor(t *testing.T) {
	_, err := NewRunner(Config{}).Run(context.Background(), nil, Request{Category: health.CategoryObject})
	require.Error(t, err)
}
