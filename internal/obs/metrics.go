package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Flush outcome labels.
const (
	FlushWritten      = "written"
	FlushSkipped      = "skipped"
	FlushGuardTripped = "guard_tripped"
	FlushFailed       = "failed"
)

// SyncMetrics records flush, reload and mutation activity.
type SyncMetrics struct {
	flushes   *prometheus.CounterVec
	duration  prometheus.Histogram
	reloads   *prometheus.CounterVec
	mutations *prometheus.CounterVec
	dirty     prometheus.Gauge
	pending   prometheus.Gauge
}

// NewSyncMetrics registers the sync metrics on reg. A nil registerer yields a
// no-op recorder.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	m := &SyncMetrics{
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantry_flush_total",
			Help: "Flush attempts by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pantry_flush_duration_seconds",
			Help:    "Duration of remote table writes.",
			Buckets: prometheus.DefBuckets,
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantry_reload_total",
			Help: "Mirror reloads from the remote table by result.",
		}, []string{"result"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantry_mutations_total",
			Help: "Effective mirror mutations by operation.",
		}, []string{"op"}),
		dirty: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pantry_mirror_dirty",
			Help: "1 when the mirror holds unflushed changes.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pantry_mirror_pending_mutations",
			Help: "Mutations applied since the last successful flush.",
		}),
	}
	reg.MustRegister(m.flushes, m.duration, m.reloads, m.mutations, m.dirty, m.pending)
	return m
}

func (m *SyncMetrics) IncFlush(outcome string) {
	if m == nil || m.flushes == nil {
		return
	}
	m.flushes.WithLabelValues(outcome).Inc()
}

func (m *SyncMetrics) ObserveWrite(d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}

func (m *SyncMetrics) IncReload(ok bool) {
	if m == nil || m.reloads == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.reloads.WithLabelValues(result).Inc()
}

func (m *SyncMetrics) IncMutation(op string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(op).Inc()
}

// SetPending updates the dirty and pending gauges.
func (m *SyncMetrics) SetPending(pending uint64) {
	if m == nil || m.dirty == nil {
		return
	}
	m.pending.Set(float64(pending))
	if pending > 0 {
		m.dirty.Set(1)
	} else {
		m.dirty.Set(0)
	}
}
