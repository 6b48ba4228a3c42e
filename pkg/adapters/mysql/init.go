// Package mysql provides a MySQL target adapter for Themis.
//
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/themis/pkg/adapters/mysql"
package mysql

import (
	"log/slog"

	"github.com/leapstack-labs/themis/pkg/adapter"
)

func init() {
	adapter.Register("mysql", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
