// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/themis/internal/cli/output"
)

// OrphanTablesRule is an extended rule module that reports every row of a fixed
// DuckDB query as a finding.
const OrphanTablesRule = `
rule = {
    "id": "ORPHAN_TABLES",
    "description": "tables nobody reads",
    "weight": 2,
    "max_score": 10,
}

def evaluate(ctx):
    rows = ctx.query("select 'staging_orders' union all select 'tmp_export' order by 1")
    return [{"object": r[0], "message": "table is never read"} for r in rows]
`

// SetupTestProject creates a temporary project with a themis.yaml, one DuckDB
// target named "local" and one extended rule module. It returns the project
// directory; the config file is themis.yaml inside it.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	extDir := filepath.Join(tmpDir, "rules", "extended")
	if err := os.MkdirAll(extDir, 0755); err != nil {
		t.Fatalf("failed to create directory %s: %v", extDir, err)
	}

	if err := os.WriteFile(filepath.Join(extDir, "orphan_tables.star"), []byte(OrphanTablesRule), 0644); err != nil {
		t.Fatalf("failed to create orphan_tables.star: %v", err)
	}

	cfg := `state_path: .themis/registry.db
output: markdown
log_level: error
rules:
  thresholds:
    in_list_num: 3
targets:
  - name: local
    type: duckdb
    path: local.duckdb
`
	if err := os.WriteFile(filepath.Join(tmpDir, "themis.yaml"), []byte(cfg), 0644); err != nil {
		t.Fatalf("failed to create themis.yaml: %v", err)
	}

	return tmpDir
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
