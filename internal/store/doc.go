// Package store owns the single connection to the time-series store and
// the bookkeeping around it.
//
// A Manager wraps one backend connection (QuestDB, SQLite or InfluxDB,
// see the subpackages) and tracks its lifecycle:
//
//	Disconnected → Connecting → Ready
//	Connecting   → Failed        (startup attempts exhausted, reconnect failed)
//	Ready        → Disconnected  (connectivity-class write error)
//
// Every write error is classified as ErrConnectivity (reconnecting may help)
// or ErrSchema (the row itself is unacceptable). Callers branch on the class
// with errors.Is and never inspect driver errors directly.
//
// # Usage
//
//	mgr := store.NewManager(dialer, store.Config{Backoff: 5 * time.Second})
//	if err := mgr.Connect(ctx, 10); err != nil {
//	    return err // wraps ErrStartupFatal
//	}
//	if err := mgr.EnsureSchema(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Close()
//
//	err := mgr.Write(ctx, reading)
//	switch {
//	case errors.Is(err, store.ErrConnectivity):
//	    _ = mgr.Reconnect(ctx)
//	case errors.Is(err, store.ErrSchema):
//	    // drop the reading
//	}
package store
