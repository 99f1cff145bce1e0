// Package executor runs rewritten SQL against the database the
// materialization service bound the tables into.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"rawsql/internal/domain"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"
)

// Opener opens a database handle for a database/sql driver name and DSN.
type Opener func(driverName, dsn string) (*sql.DB, error)

// Result is a fully collected query result.
type Result struct {
	Columns   []string
	Rows      [][]interface{}
	Truncated bool
}

// Executor connects to a DatabaseDescriptor and runs one statement.
type Executor struct {
	open   Opener
	limit  int
	logger *slog.Logger
}

// New creates an Executor using database/sql. limit caps collected rows; zero
// means no limit.
func New(limit int, logger *slog.Logger) *Executor {
	return NewWithOpener(sql.Open, limit, logger)
}

// NewWithOpener creates an Executor with a custom Opener.
func NewWithOpener(open Opener, limit int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{open: open, limit: limit, logger: logger}
}

// Run executes query against db and collects the result.
func (e *Executor) Run(ctx context.Context, db domain.DatabaseDescriptor, query string) (*Result, error) {
	driverName, dsn, err := DSN(db)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("connecting", "driver", driverName, "host", db.Host, "database", db.Database)
	conn, err := e.open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", driverName, err)
	}
	defer conn.Close() //nolint:errcheck

	// The driver error is returned as-is; callers attach the statement.
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	return Collect(rows, e.limit)
}

// DSN returns the database/sql driver name and DSN for db.
func DSN(db domain.DatabaseDescriptor) (driverName, dsn string, err error) {
	switch strings.ToLower(db.Driver) {
	case "", DriverPostgres, "postgresql":
		return "pgx", postgresDSN(db), nil
	case DriverDuckDB:
		return "duckdb", db.Database, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", db.Driver)
	}
}

// postgresDSN builds a postgres:// URL so credentials and database names
// containing spaces or quotes survive intact.
func postgresDSN(db domain.DatabaseDescriptor) string {
	host := db.Host
	if host == "" {
		host = "localhost"
	}
	port := db.Port
	if port == 0 {
		port = 5432
	}

	u := &url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + db.Database,
		RawQuery: url.Values{"sslmode": {"disable"}}.Encode(),
	}
	switch {
	case db.User != "" && db.Password != "":
		u.User = url.UserPassword(db.User, db.Password)
	case db.User != "":
		u.User = url.User(db.User)
	}
	return u.String()
}

// Collect reads every row (up to limit when positive). []byte values are
// returned as strings.
func Collect(rows *sql.Rows, limit int) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	res := &Result{Columns: cols, Rows: make([][]interface{}, 0)}
	for rows.Next() {
		if limit > 0 && len(res.Rows) >= limit {
			res.Truncated = true
			break
		}
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return res, nil
}
