package questdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iot-monitoring/ingestor/internal/infrastructure/config"
	"github.com/iot-monitoring/ingestor/internal/store"
)

// PostgreSQL SQLSTATE values that mean the server went away.
const (
	sqlStateConnectionClass  = "08"
	sqlStateAdminShutdown    = "57P01"
	sqlStateCrashShutdown    = "57P02"
	sqlStateCannotConnectNow = "57P03"
)

// Dialer opens QuestDB connections over the PostgreSQL wire protocol.
type Dialer struct {
	cfg     config.QuestDBConfig
	table   store.Table
	timeout time.Duration
}

var _ store.Dialer = (*Dialer)(nil)

// New creates a Dialer.
//
// Parameters:
//   - cfg: QuestDB host, PG wire port and credentials
//   - table: Telemetry table to create and write
//   - timeout: Connect timeout for each dial (0 means the driver default)
func New(cfg config.QuestDBConfig, table store.Table, timeout time.Duration) *Dialer {
	return &Dialer{cfg: cfg, table: table, timeout: timeout}
}

// Name implements store.Dialer.
func (d *Dialer) Name() string { return config.BackendQuestDB }

// connString builds a postgres:// URL. Credentials are escaped.
func (d *Dialer) connString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.cfg.User, d.cfg.Password),
		Host:     net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port)),
		Path:     "/" + d.cfg.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Dial opens one connection. Errors wrap store.ErrConnectivity.
func (d *Dialer) Dial(ctx context.Context) (store.Conn, error) {
	pgCfg, err := pgx.ParseConfig(d.connString())
	if err != nil {
		return nil, store.Connectivity(fmt.Errorf("parsing questdb connection config: %w", err))
	}
	if d.timeout > 0 {
		pgCfg.ConnectTimeout = d.timeout
	}
	// QuestDB implements a subset of the extended protocol; the simple
	// protocol with client-side parameter encoding works across versions.
	pgCfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, pgCfg)
	if err != nil {
		return nil, store.Connectivity(fmt.Errorf("connecting to questdb at %s:%d: %w", d.cfg.Host, d.cfg.Port, err))
	}

	return &Conn{conn: conn, table: d.table}, nil
}

// Conn is one QuestDB connection.
type Conn struct {
	conn  *pgx.Conn
	table store.Table
}

// EnsureSchema creates the telemetry table with a designated timestamp and
// daily partitions.
func (c *Conn) EnsureSchema(ctx context.Context) error {
	if _, err := c.conn.Exec(ctx, createTableSQL(c.table)); err != nil {
		return c.classify(fmt.Errorf("creating table %s: %w", c.table.Name, err))
	}
	return nil
}

// Insert writes one reading as one row.
func (c *Conn) Insert(ctx context.Context, r store.Reading) error {
	query, args := insertSQL(c.table.Name, r)
	if _, err := c.conn.Exec(ctx, query, args...); err != nil {
		return c.classify(fmt.Errorf("inserting into %s: %w", c.table.Name, err))
	}
	return nil
}

// Ping verifies the server responds.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.conn.Ping(ctx); err != nil {
		return c.classify(fmt.Errorf("questdb health check failed: %w", err))
	}
	return nil
}

// Close terminates the connection.
func (c *Conn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.conn.Close(ctx); err != nil {
		return fmt.Errorf("closing questdb connection: %w", err)
	}
	return nil
}

// classify adds a closed-handle check to classifyError.
func (c *Conn) classify(err error) error {
	if c.conn.IsClosed() {
		return store.Connectivity(err)
	}
	return classifyError(err)
}

// classifyError maps pgx errors onto the store error classes.
//
// Server-reported errors are schema errors unless their SQLSTATE says the
// connection itself failed. Transport errors (network, EOF, timeouts,
// failed dials) are connectivity errors.
func classifyError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, sqlStateConnectionClass),
			pgErr.Code == sqlStateAdminShutdown,
			pgErr.Code == sqlStateCrashShutdown,
			pgErr.Code == sqlStateCannotConnectNow:
			return store.Connectivity(err)
		default:
			return store.Schema(err)
		}
	}

	var netErr net.Error
	var connectErr *pgconn.ConnectError
	switch {
	case errors.As(err, &connectErr),
		errors.As(err, &netErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, context.DeadlineExceeded),
		pgconn.SafeToRetry(err):
		return store.Connectivity(err)
	}

	return store.Schema(err)
}

func createTableSQL(t store.Table) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = pgx.Identifier{c.Name}.Sanitize() + " " + columnType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) TIMESTAMP(%s) PARTITION BY DAY",
		pgx.Identifier{t.Name}.Sanitize(),
		strings.Join(cols, ", "),
		pgx.Identifier{store.TimestampColumn}.Sanitize(),
	)
}

// insertSQL builds a single-row INSERT with $n placeholders. Field names
// come from the payload and are always quoted.
func insertSQL(table string, r store.Reading) (string, []any) {
	cols := make([]string, 0, len(r.Fields)+2)
	args := make([]any, 0, len(r.Fields)+2)
	params := make([]string, 0, len(r.Fields)+2)

	add := func(name string, v any) {
		cols = append(cols, pgx.Identifier{name}.Sanitize())
		args = append(args, v)
		params = append(params, "$"+strconv.Itoa(len(args)))
	}

	add(store.TimestampColumn, r.Timestamp.UTC())
	add(store.DeviceColumn, r.DeviceID)
	for _, f := range r.Fields {
		add(f.Name, f.Value)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(cols, ", "),
		strings.Join(params, ", "),
	)
	return query, args
}

func columnType(t store.ColumnType) string {
	switch t {
	case store.TypeTimestamp:
		return "TIMESTAMP"
	case store.TypeSymbol:
		return "SYMBOL"
	case store.TypeInt:
		return "INT"
	case store.TypeLong:
		return "LONG"
	default:
		return "DOUBLE"
	}
}
