package obs

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func counterFor(f *dto.MetricFamily, label, value string) float64 {
	for _, m := range f.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestSyncMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)

	m.IncFlush(FlushWritten)
	m.IncFlush(FlushWritten)
	m.IncFlush(FlushGuardTripped)
	m.ObserveWrite(20 * time.Millisecond)
	m.IncReload(true)
	m.IncReload(false)
	m.IncMutation("increment")
	m.SetPending(3)

	fams := gather(t, reg)
	assert.Equal(t, 2.0, counterFor(fams["pantry_flush_total"], "outcome", FlushWritten))
	assert.Equal(t, 1.0, counterFor(fams["pantry_flush_total"], "outcome", FlushGuardTripped))
	assert.Equal(t, 1.0, counterFor(fams["pantry_reload_total"], "result", "error"))
	assert.Equal(t, 1.0, counterFor(fams["pantry_mutations_total"], "op", "increment"))
	assert.Equal(t, uint64(1), fams["pantry_flush_duration_seconds"].GetMetric()[0].GetHistogram().GetSampleCount())
	assert.Equal(t, 1.0, fams["pantry_mirror_dirty"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 3.0, fams["pantry_mirror_pending_mutations"].GetMetric()[0].GetGauge().GetValue())

	m.SetPending(0)
	fams = gather(t, reg)
	assert.Equal(t, 0.0, fams["pantry_mirror_dirty"].GetMetric()[0].GetGauge().GetValue())
}

func TestSyncMetricsNilSafe(t *testing.T) {
	var m *SyncMetrics
	m.IncFlush(FlushFailed)
	m.SetPending(1)
	NewSyncMetrics(nil).IncMutation("add")
}
