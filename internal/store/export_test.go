package store

import "time"

// ConnectBackoff exposes the effective startup backoff to external tests.
func (m *Manager) ConnectBackoff() time.Duration { return m.config.Backoff }
