package syncer

import (
	"context"
	"time"

	"github.com/fairyhunter13/pantry-pilot/internal/config"
)

// Notify tells the eager flusher that the mirror changed. Notifications
// coalesce: any number of calls while a flush runs produce one more flush.
// Under the manual policy it does nothing.
func (m *Manager) Notify() {
	if m.policy != config.PolicyEager {
		return
	}
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Start runs the eager flusher in the background. It is a no-op for the
// manual policy.
func (m *Manager) Start(parent context.Context) {
	if m.policy != config.PolicyEager {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.wg.Add(1)
	go m.broker(ctx)
	m.logg.Info(ctx, "eager_flusher_started")
}

// Stop cancels the flusher. A flush already writing is allowed to finish its
// store call under its own timeout.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Wait blocks until the flusher goroutine exits.
func (m *Manager) Wait() { m.wg.Wait() }

// broker flushes once per burst of notifications. Failures are logged and
// left for the next mutation or an explicit sync.
func (m *Manager) broker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.notify:
		}
		if !m.mirror.Dirty() {
			continue
		}
		fctx := context.WithoutCancel(ctx)
		cancel := func() {}
		if m.timeout > 0 {
			fctx, cancel = context.WithTimeout(fctx, m.timeout)
		}
		if _, err := m.Flush(fctx); err != nil {
			m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "eager_flush_failed")
		}
		cancel()
	}
}

// DrainUntil waits until no flush is running and the mirror is clean, or ctx
// is done. It reports whether the mirror was drained.
func (m *Manager) DrainUntil(ctx context.Context) bool {
	for {
		if !m.inFlight.Load() && !m.mirror.Dirty() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
