package mysql

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/leapstack-labs/themis/pkg/adapter"
)

// Adapter implements the adapter.Adapter interface for MySQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new MySQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger, Placeholder: adapter.PlaceholderQuestion},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "mysql"
}

// DefaultSchema returns the configured database, which MySQL treats as the schema.
func (a *Adapter) DefaultSchema() string {
	return a.Cfg.Database
}

// Connect establishes a connection to MySQL.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	a.Logger.Debug("connecting to mysql", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := adapter.Open(ctx, "mysql", buildMySQLDSN(cfg))
	if err != nil {
		return err
	}
	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildMySQLDSN constructs a go-sql-driver DSN.
// Recognized options: tls, charset, timeout, read_timeout; others become session variables.
func buildMySQLDSN(cfg adapter.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.Timeout = 10 * time.Second

	for k, v := range cfg.Options {
		switch k {
		case "tls":
			mc.TLSConfig = v
		case "charset":
			if mc.Params == nil {
				mc.Params = make(map[string]string)
			}
			mc.Params["charset"] = v
		case "timeout":
			if d, err := time.ParseDuration(v); err == nil {
				mc.Timeout = d
			}
		case "read_timeout":
			if d, err := time.ParseDuration(v); err == nil {
				mc.ReadTimeout = d
			}
		default:
			if mc.Params == nil {
				mc.Params = make(map[string]string)
			}
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN()
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
