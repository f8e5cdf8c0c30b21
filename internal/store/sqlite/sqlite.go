package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/iot-monitoring/ingestor/internal/infrastructure/config"
	"github.com/iot-monitoring/ingestor/internal/store"
)

// Database configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connMaxIdleTime is how long idle connections are kept open.
	connMaxIdleTime = 30 * time.Minute

	// timestampLayout is how ingestion timestamps are stored (TEXT, UTC).
	timestampLayout = time.RFC3339Nano
)

// Dialer opens SQLite connections for the store manager.
type Dialer struct {
	cfg     config.SQLiteConfig
	table   store.Table
	timeout time.Duration
}

var _ store.Dialer = (*Dialer)(nil)

// New creates a Dialer for the database file in cfg.
//
// Parameters:
//   - cfg: SQLite settings (path, WAL mode, busy timeout)
//   - table: Telemetry table to create and write
//   - timeout: Bound on the connectivity check performed by Dial
func New(cfg config.SQLiteConfig, table store.Table, timeout time.Duration) *Dialer {
	return &Dialer{cfg: cfg, table: table, timeout: timeout}
}

// Name implements store.Dialer.
func (d *Dialer) Name() string { return config.BackendSQLite }

// Dial opens the database file and verifies it is usable.
//
// It performs the following setup:
//  1. Creates the database directory if it doesn't exist
//  2. Opens the database file (creates if not present)
//  3. Configures WAL mode and busy timeout
//  4. Verifies the connection with a ping
//  5. Sets file permissions (0600)
//
// Errors wrap store.ErrConnectivity.
func (d *Dialer) Dial(ctx context.Context) (store.Conn, error) {
	dir := filepath.Dir(d.cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, store.Connectivity(fmt.Errorf("creating database directory: %w", err))
	}

	// See: https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d",
		d.cfg.Path,
		d.cfg.BusyTimeout*msPerSecond,
	)
	if d.cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, store.Connectivity(fmt.Errorf("opening database: %w", err))
	}

	// SQLite supports a single writer.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, store.Connectivity(fmt.Errorf("verifying database connection: %w", err))
	}

	_ = os.Chmod(d.cfg.Path, filePermissions) //nolint:errcheck // File may not exist until first write

	return &Conn{db: sqlDB, table: d.table}, nil
}

// Conn is an open SQLite database holding the telemetry table.
type Conn struct {
	db    *sql.DB
	table store.Table
}

// EnsureSchema creates the telemetry table and its (device_id, ts) index.
func (c *Conn) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, createTableSQL(c.table)); err != nil {
		return classify(fmt.Errorf("creating table %s: %w", c.table.Name, err))
	}
	if _, err := c.db.ExecContext(ctx, createIndexSQL(c.table)); err != nil {
		return classify(fmt.Errorf("creating index on %s: %w", c.table.Name, err))
	}
	return nil
}

// Insert writes one reading as one row.
func (c *Conn) Insert(ctx context.Context, r store.Reading) error {
	query, args := insertSQL(c.table.Name, r)
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return classify(fmt.Errorf("inserting into %s: %w", c.table.Name, err))
	}
	return nil
}

// Ping verifies the database is accessible.
func (c *Conn) Ping(ctx context.Context) error {
	var result int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return classify(fmt.Errorf("database health check failed: %w", err))
	}
	return nil
}

// Close closes the database.
func (c *Conn) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// classify maps SQLite errors onto the store error classes.
//
// SQLITE_ERROR covers SQL-level problems such as an unknown column and is a
// schema error. File, locking and I/O problems are connectivity errors, as
// is use of a closed handle.
func classify(err error) error {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNotADB,
			sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCorrupt,
			sqlite3.ErrReadonly, sqlite3.ErrFull:
			return store.Connectivity(err)
		default:
			return store.Schema(err)
		}
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "database is closed") {
		return store.Connectivity(err)
	}
	return store.Schema(err)
}

func createTableSQL(t store.Table) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		def := quoteIdent(c.Name) + " " + columnType(c.Type)
		if c.Name == store.TimestampColumn || c.Name == store.DeviceColumn {
			def += " NOT NULL"
		}
		cols[i] = def
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(t.Name), strings.Join(cols, ", "))
}

func createIndexSQL(t store.Table) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s)",
		quoteIdent("idx_"+t.Name+"_device_ts"),
		quoteIdent(t.Name),
		quoteIdent(store.DeviceColumn),
		quoteIdent(store.TimestampColumn),
	)
}

// insertSQL builds a single-row INSERT with ? placeholders.
func insertSQL(table string, r store.Reading) (string, []any) {
	cols := make([]string, 0, len(r.Fields)+2)
	args := make([]any, 0, len(r.Fields)+2)

	cols = append(cols, quoteIdent(store.TimestampColumn), quoteIdent(store.DeviceColumn))
	args = append(args, r.Timestamp.UTC().Format(timestampLayout), r.DeviceID)
	for _, f := range r.Fields {
		cols = append(cols, quoteIdent(f.Name))
		args = append(args, f.Value)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(cols, ", "), placeholders)
	return query, args
}

func columnType(t store.ColumnType) string {
	switch t {
	case store.TypeTimestamp, store.TypeSymbol:
		return "TEXT"
	case store.TypeInt, store.TypeLong:
		return "INTEGER"
	default:
		return "REAL"
	}
}

// quoteIdent quotes an SQL identifier, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
