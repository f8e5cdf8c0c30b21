// Package storetest provides a scripted in-memory store backend for tests.
package storetest

import (
	"context"
	"errors"
	"sync"

	"github.com/iot-monitoring/ingestor/internal/store"
)

// Dialer is a scriptable store.Dialer. Errors queued in DialErrs and
// InsertErrs are consumed one per call; a nil entry, or an empty queue,
// means success.
//
// All connections share the Dialer's counters and row log.
type Dialer struct {
	mu sync.Mutex

	DialErrs   []error
	InsertErrs []error
	SchemaErr  error
	PingErr    error
	CloseErr   error

	dials   int
	closes  int
	inserts int
	rows    []store.Reading
	schemas int
}

var _ store.Dialer = (*Dialer)(nil)

// Name implements store.Dialer.
func (d *Dialer) Name() string { return "fake" }

// Dial implements store.Dialer.
func (d *Dialer) Dial(ctx context.Context) (store.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pop(&d.DialErrs); err != nil {
		return nil, err
	}
	return &conn{d: d}, nil
}

// Dials returns the number of Dial calls so far.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Closes returns the number of Close calls across all connections.
func (d *Dialer) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// Inserts returns the number of Insert calls, successful or not.
func (d *Dialer) Inserts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inserts
}

// SchemaCalls returns the number of EnsureSchema calls.
func (d *Dialer) SchemaCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.schemas
}

// Rows returns a copy of the successfully inserted readings.
func (d *Dialer) Rows() []store.Reading {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]store.Reading, len(d.rows))
	copy(out, d.rows)
	return out
}

func pop(q *[]error) error {
	if len(*q) == 0 {
		return nil
	}
	err := (*q)[0]
	*q = (*q)[1:]
	return err
}

type conn struct {
	d      *Dialer
	closed bool
}

func (c *conn) EnsureSchema(context.Context) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.schemas++
	return c.d.SchemaErr
}

func (c *conn) Insert(_ context.Context, r store.Reading) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()

	c.d.inserts++
	if c.closed {
		return store.Connectivity(errClosed)
	}
	if err := pop(&c.d.InsertErrs); err != nil {
		return err
	}
	c.d.rows = append(c.d.rows, r)
	return nil
}

func (c *conn) Ping(context.Context) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	return c.d.PingErr
}

func (c *conn) Close() error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.closes++
	c.closed = true
	return c.d.CloseErr
}

var errClosed = errors.New("storetest: connection closed")
