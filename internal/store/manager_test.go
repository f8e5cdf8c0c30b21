package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iot-monitoring/ingestor/internal/store"
	"github.com/iot-monitoring/ingestor/internal/store/storetest"
)

var errRefused = errors.New("connection refused")

func testReading() store.Reading {
	return store.Reading{
		DeviceID:  "device_1",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Fields: []store.Field{
			{Name: "outdoor_temp", Value: 4.5},
			{Name: "run_mode", Value: int64(2)},
		},
	}
}

// stateRecorder collects OnStateChange transitions.
type stateRecorder struct {
	mu     sync.Mutex
	states []store.State
}

func (r *stateRecorder) record(s store.State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) get() []store.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.State(nil), r.states...)
}

func newReadyManager(t *testing.T, d *storetest.Dialer) *store.Manager {
	t.Helper()
	m := store.NewManager(d, store.Config{})
	if err := m.Connect(context.Background(), 1); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return m
}

// =============================================================================
// Connect
// =============================================================================

func TestManager_InitialState(t *testing.T) {
	m := store.NewManager(&storetest.Dialer{}, store.Config{})
	if got := m.State(); got != store.StateDisconnected {
		t.Errorf("State() = %q, want %q", got, store.StateDisconnected)
	}
	if got := m.Backend(); got != "fake" {
		t.Errorf("Backend() = %q, want fake", got)
	}
}

func TestManager_DefaultBackoff(t *testing.T) {
	tests := []struct {
		name    string
		backoff time.Duration
		want    time.Duration
	}{
		{"zero uses default", 0, 5 * time.Second},
		{"negative uses default", -time.Second, 5 * time.Second},
		{"explicit kept", time.Millisecond, time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := store.NewManager(&storetest.Dialer{}, store.Config{Backoff: tt.backoff})
			if got := m.ConnectBackoff(); got != tt.want {
				t.Errorf("ConnectBackoff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestManager_ConnectSucceedsAfterRetries(t *testing.T) {
	d := &storetest.Dialer{DialErrs: []error{errRefused, errRefused}}
	rec := &stateRecorder{}
	m := store.NewManager(d, store.Config{Backoff: time.Millisecond, OnStateChange: rec.record})

	if err := m.Connect(context.Background(), 10); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if d.Dials() != 3 {
		t.Errorf("Dials() = %d, want 3", d.Dials())
	}
	if m.State() != store.StateReady {
		t.Errorf("State() = %q, want ready", m.State())
	}

	want := []store.State{store.StateConnecting, store.StateReady}
	got := rec.get()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestManager_ConnectExhausted(t *testing.T) {
	d := &storetest.Dialer{DialErrs: []error{errRefused, errRefused, errRefused}}
	m := store.NewManager(d, store.Config{Backoff: time.Millisecond})

	err := m.Connect(context.Background(), 3)
	if !errors.Is(err, store.ErrStartupFatal) {
		t.Fatalf("Connect() error = %v, want ErrStartupFatal", err)
	}
	if !errors.Is(err, errRefused) {
		t.Errorf("Connect() error = %v, want it to wrap the last dial error", err)
	}
	if d.Dials() != 3 {
		t.Errorf("Dials() = %d, want exactly 3", d.Dials())
	}
	if m.State() != store.StateFailed {
		t.Errorf("State() = %q, want failed", m.State())
	}
}

func TestManager_ConnectBackoffBetweenAttempts(t *testing.T) {
	d := &storetest.Dialer{DialErrs: []error{errRefused, errRefused, errRefused}}
	m := store.NewManager(d, store.Config{Backoff: 20 * time.Millisecond})

	start := time.Now()
	_ = m.Connect(context.Background(), 3)
	elapsed := time.Since(start)

	// Two pauses between three attempts, none after the last.
	if elapsed < 40*time.Millisecond {
		t.Errorf("Connect() took %v, want at least 40ms of backoff", elapsed)
	}
}

func TestManager_ConnectCancelled(t *testing.T) {
	d := &storetest.Dialer{DialErrs: []error{errRefused, errRefused}}
	m := store.NewManager(d, store.Config{Backoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := m.Connect(ctx, 5)
	if !errors.Is(err, store.ErrStartupFatal) || !errors.Is(err, context.Canceled) {
		t.Errorf("Connect() error = %v, want ErrStartupFatal wrapping context.Canceled", err)
	}
	if d.Dials() != 1 {
		t.Errorf("Dials() = %d, want 1", d.Dials())
	}
}

// =============================================================================
// EnsureSchema
// =============================================================================

func TestManager_EnsureSchema(t *testing.T) {
	d := &storetest.Dialer{}
	m := newReadyManager(t, d)

	for i := 0; i < 2; i++ {
		if err := m.EnsureSchema(context.Background()); err != nil {
			t.Fatalf("EnsureSchema() call %d error = %v", i+1, err)
		}
	}
	if d.SchemaCalls() != 2 {
		t.Errorf("SchemaCalls() = %d, want 2", d.SchemaCalls())
	}
}

func TestManager_EnsureSchemaFailureIsFatal(t *testing.T) {
	d := &storetest.Dialer{SchemaErr: errors.New("permission denied")}
	m := newReadyManager(t, d)

	if err := m.EnsureSchema(context.Background()); !errors.Is(err, store.ErrStartupFatal) {
		t.Errorf("EnsureSchema() error = %v, want ErrStartupFatal", err)
	}
}

func TestManager_EnsureSchemaNotConnected(t *testing.T) {
	m := store.NewManager(&storetest.Dialer{}, store.Config{})
	if err := m.EnsureSchema(context.Background()); !errors.Is(err, store.ErrStartupFatal) {
		t.Errorf("EnsureSchema() error = %v, want ErrStartupFatal", err)
	}
}

// =============================================================================
// Write
// =============================================================================

func TestManager_WriteSuccess(t *testing.T) {
	d := &storetest.Dialer{}
	m := newReadyManager(t, d)

	if err := m.Write(context.Background(), testReading()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	rows := d.Rows()
	if len(rows) != 1 || rows[0].DeviceID != "device_1" {
		t.Errorf("Rows() = %+v, want one row for device_1", rows)
	}
}

func TestManager_WriteErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		insertErr error
		wantClass error
		wantState store.State
	}{
		{
			name:      "connectivity error disconnects",
			insertErr: store.Connectivity(errors.New("broken pipe")),
			wantClass: store.ErrConnectivity,
			wantState: store.StateDisconnected,
		},
		{
			name:      "schema error keeps connection",
			insertErr: store.Schema(errors.New("column foo does not exist")),
			wantClass: store.ErrSchema,
			wantState: store.StateReady,
		},
		{
			name:      "unclassified error is schema",
			insertErr: errors.New("something odd"),
			wantClass: store.ErrSchema,
			wantState: store.StateReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &storetest.Dialer{InsertErrs: []error{tt.insertErr}}
			m := newReadyManager(t, d)

			err := m.Write(context.Background(), testReading())
			if !errors.Is(err, tt.wantClass) {
				t.Errorf("Write() error = %v, want %v", err, tt.wantClass)
			}
			if m.State() != tt.wantState {
				t.Errorf("State() = %q, want %q", m.State(), tt.wantState)
			}
		})
	}
}

func TestManager_WriteNotReady(t *testing.T) {
	d := &storetest.Dialer{}
	m := store.NewManager(d, store.Config{})

	err := m.Write(context.Background(), testReading())
	if !errors.Is(err, store.ErrNotReady) || !errors.Is(err, store.ErrConnectivity) {
		t.Errorf("Write() error = %v, want ErrNotReady (connectivity-class)", err)
	}
	if d.Inserts() != 0 {
		t.Errorf("Inserts() = %d, want 0", d.Inserts())
	}
}

func TestManager_WriteAfterConnectivityFailureNotReady(t *testing.T) {
	d := &storetest.Dialer{InsertErrs: []error{store.Connectivity(errRefused)}}
	m := newReadyManager(t, d)

	_ = m.Write(context.Background(), testReading())
	if err := m.Write(context.Background(), testReading()); !errors.Is(err, store.ErrNotReady) {
		t.Errorf("second Write() error = %v, want ErrNotReady", err)
	}
	if d.Inserts() != 1 {
		t.Errorf("Inserts() = %d, want 1", d.Inserts())
	}
}

// =============================================================================
// Reconnect
// =============================================================================

func TestManager_ReconnectClosesPreviousHandle(t *testing.T) {
	d := &storetest.Dialer{}
	m := newReadyManager(t, d)

	if err := m.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	if d.Closes() != 1 {
		t.Errorf("Closes() = %d, want 1", d.Closes())
	}
	if d.Dials() != 2 {
		t.Errorf("Dials() = %d, want 2", d.Dials())
	}
	if m.State() != store.StateReady {
		t.Errorf("State() = %q, want ready", m.State())
	}
}

func TestManager_ReconnectIgnoresCloseError(t *testing.T) {
	d := &storetest.Dialer{CloseErr: errors.New("already closed")}
	m := newReadyManager(t, d)

	if err := m.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect() error = %v, want close error ignored", err)
	}
}

func TestManager_ReconnectSingleAttempt(t *testing.T) {
	d := &storetest.Dialer{}
	m := newReadyManager(t, d)
	d.DialErrs = []error{errRefused, errRefused}

	err := m.Reconnect(context.Background())
	if !errors.Is(err, errRefused) {
		t.Fatalf("Reconnect() error = %v, want dial error", err)
	}
	if d.Dials() != 2 {
		t.Errorf("Dials() = %d, want 2 (initial + one reconnect)", d.Dials())
	}
	if m.State() != store.StateFailed {
		t.Errorf("State() = %q, want failed", m.State())
	}
	if err := m.Write(context.Background(), testReading()); !errors.Is(err, store.ErrNotReady) {
		t.Errorf("Write() after failed reconnect error = %v, want ErrNotReady", err)
	}
}

// =============================================================================
// HealthCheck / Close
// =============================================================================

func TestManager_HealthCheck(t *testing.T) {
	d := &storetest.Dialer{}
	m := store.NewManager(d, store.Config{})

	if err := m.HealthCheck(context.Background()); !errors.Is(err, store.ErrNotReady) {
		t.Errorf("HealthCheck() before connect error = %v, want ErrNotReady", err)
	}

	if err := m.Connect(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := m.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}

	d.PingErr = errors.New("timeout")
	if err := m.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() error = nil, want ping failure")
	}
}

func TestManager_Close(t *testing.T) {
	d := &storetest.Dialer{}
	m := newReadyManager(t, d)

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if m.State() != store.StateDisconnected {
		t.Errorf("State() = %q, want disconnected", m.State())
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
	if d.Closes() != 1 {
		t.Errorf("Closes() = %d, want 1", d.Closes())
	}
}

// =============================================================================
// Schema helpers
// =============================================================================

func TestOlimexTable(t *testing.T) {
	table := store.OlimexTable("")
	if table.Name != store.DefaultTableName {
		t.Errorf("Name = %q, want %q", table.Name, store.DefaultTableName)
	}
	if len(table.Columns) != 17 {
		t.Errorf("len(Columns) = %d, want 17", len(table.Columns))
	}
	if !table.HasColumn("supply_air_fan_runtime") || table.HasColumn("humidity") {
		t.Error("HasColumn() mismatch")
	}
	for _, c := range table.ValueColumns() {
		if c.Name == store.TimestampColumn || c.Name == store.DeviceColumn {
			t.Errorf("ValueColumns() contains %q", c.Name)
		}
	}
}

func TestErrorHelpers(t *testing.T) {
	if store.Connectivity(nil) != nil || store.Schema(nil) != nil {
		t.Error("wrapping nil must return nil")
	}
	wrapped := store.Connectivity(errRefused)
	if store.Connectivity(wrapped) != wrapped {
		t.Error("Connectivity() re-wrapped an already classified error")
	}
	if !errors.Is(store.ErrNotReady, store.ErrConnectivity) {
		t.Error("ErrNotReady is not connectivity-class")
	}
}
