package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/leapstack-labs/themis/pkg/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	tests := []struct {
		name     string
		config   adapter.Config
		expected string
	}{
		{
			name: "basic connection",
			config: adapter.Config{
				Host:     "localhost",
				Port:     5432,
				Database: "testdb",
				Username: "user",
				Password: "pass",
			},
			expected: "host=localhost port=5432 dbname=testdb sslmode=disable user=user password=pass",
		},
		{
			name: "with custom sslmode",
			config: adapter.Config{
				Host:     "prod.example.com",
				Port:     5432,
				Database: "proddb",
				Username: "admin",
				Options:  map[string]string{"sslmode": "require"},
			},
			expected: "host=prod.example.com port=5432 dbname=proddb sslmode=require user=admin",
		},
		{
			name: "defaults",
			config: adapter.Config{
				Database: "mydb",
			},
			expected: "host=localhost port=5432 dbname=mydb sslmode=disable",
		},
		{
			name: "password with spaces and extra options",
			config: adapter.Config{
				Host:     "db.example.com",
				Port:     5433,
				Database: "analytics",
				Username: "analyst",
				Password: "it's secret",
				Options:  map[string]string{"connect_timeout": "5", "application_name": "themis"},
			},
			expected: `host=db.example.com port=5433 dbname=analytics sslmode=disable user=analyst password='it\'s secret' application_name=themis connect_timeout=5`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := buildPostgresDSN(tt.config)
			assert.Equal(t, tt.expected, dsn)
		})
	}
}

func TestAdapter_Metadata(t *testing.T) {
	a := New(nil)
	assert.Equal(t, "postgres", a.DialectName())
	assert.Equal(t, "public", a.DefaultSchema())
	assert.Equal(t, adapter.PlaceholderDollar, a.Placeholder)
}

func TestAdapter_ConnectUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := New(nil).Connect(ctx, adapter.Config{
		Host:     "127.0.0.1",
		Port:     1,
		Database: "none",
		Options:  map[string]string{"connect_timeout": "1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping pgx")
}
