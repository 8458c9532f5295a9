package monitor

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordRelayRequestCounts(t *testing.T) {
	before := testutil.ToFloat64(relayRequestsTotal.WithLabelValues("chat_completions", "grok-4-fast", "200"))
	RecordRelayRequest(time.Now(), "chat_completions", "grok-4-fast", 200)
	after := testutil.ToFloat64(relayRequestsTotal.WithLabelValues("chat_completions", "grok-4-fast", "200"))
	require.Equal(t, before+1, after)
}

func TestRecordUpstreamRequestLabelsStatus(t *testing.T) {
	RecordUpstreamRequest("/rest/rate-limits", 429)
	RecordUpstreamRequest("/rest/rate-limits", 0)
	require.GreaterOrEqual(t,
		testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("/rest/rate-limits", "429")), 1.0)
	require.GreaterOrEqual(t,
		testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("/rest/rate-limits", "0")), 1.0)
}

func TestBatchTaskGaugeBalances(t *testing.T) {
	base := testutil.ToFloat64(batchTasksRunning)
	BatchTaskStarted()
	require.Equal(t, base+1, testutil.ToFloat64(batchTasksRunning))
	BatchTaskDone()
	require.Equal(t, base, testutil.ToFloat64(batchTasksRunning))
}

func TestPoolCollectorEmitsPerPoolSeries(t *testing.T) {
	source := func() map[string]PoolCounts {
		return map[string]PoolCounts{
			"basic": {Active: 3, Cooling: 1, Expired: 2, Disabled: 0, TotalQuota: 240},
			"super": {Active: 1, TotalQuota: 80},
		}
	}
	col := newPoolCollector(source)

	// 4 status series + 1 quota series per pool.
	require.Equal(t, 10, testutil.CollectAndCount(col))
}
