package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronMetricsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronMetrics(reg)
	m.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	m.ObserveRun("outbox-retention", CronOutcomeSuccess, 250*time.Millisecond)
	m.ObserveRun("outbox-retention", CronOutcomeFailure, time.Second)
	m.ObserveRun("outbox-retention", CronOutcomeSkipped, 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	for _, outcome := range []string{CronOutcomeSuccess, CronOutcomeFailure, CronOutcomeSkipped} {
		got, err := fetchCounterValue(mfs, "cron_job_runs_total", "outcome", outcome)
		require.NoError(t, err)
		assert.Equal(t, float64(1), got, outcome)
	}

	hist := findMetricFamily(mfs, "cron_job_duration_seconds")
	require.NotNil(t, hist)
	assert.Equal(t, uint64(2), hist.GetMetric()[0].GetHistogram().GetSampleCount())
	assert.InDelta(t, 1.25, hist.GetMetric()[0].GetHistogram().GetSampleSum(), 1e-9)

	last := findMetricFamily(mfs, "cron_job_last_success_timestamp_seconds")
	require.NotNil(t, last)
	assert.Equal(t, float64(1_700_000_000), last.GetMetric()[0].GetGauge().GetValue())
}

func TestCronMetricsUnnamedJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCronMetrics(reg).ObserveRun("", CronOutcomeSuccess, time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "cron_job_runs_total"))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	_, err = fetchCounterValue(mfs, "cron_job_runs_total", "job", "unknown")
	assert.NoError(t, err)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		for _, pair := range metric.GetLabel() {
			if pair.GetName() == label && pair.GetValue() == value {
				return metric.GetCounter().GetValue(), nil
			}
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}
