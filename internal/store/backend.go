package store

import "context"

// Conn is one open connection to a store backend.
//
// Implementations translate driver errors so that every error returned by
// Insert wraps either ErrConnectivity or ErrSchema. A Conn is used by one
// goroutine at a time; the Manager serialises access.
type Conn interface {
	// EnsureSchema creates the telemetry table if it does not exist.
	EnsureSchema(ctx context.Context) error

	// Insert writes one reading as one row.
	Insert(ctx context.Context, r Reading) error

	// Ping verifies the connection is usable.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// Dialer opens backend connections. Each call returns a fresh Conn.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)

	// Name identifies the backend in logs and metrics ("questdb", ...).
	Name() string
}
