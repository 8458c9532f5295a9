package monitor

import "github.com/prometheus/client_golang/prometheus"

// PoolCounts is one credential pool's health snapshot for the gauges.
type PoolCounts struct {
	Active     int
	Cooling    int
	Expired    int
	Disabled   int
	TotalQuota int
}

// PoolStatsSource reports the live pool state, keyed by pool name. It is
// called at scrape time, so values are never stale.
type PoolStatsSource func() map[string]PoolCounts

var (
	poolTokensDesc = prometheus.NewDesc(
		"grokapi_pool_tokens",
		"Pool credentials by pool and lifecycle state",
		[]string{"pool", "status"}, nil,
	)
	poolQuotaDesc = prometheus.NewDesc(
		"grokapi_pool_quota_total",
		"Sum of remaining quota points per pool",
		[]string{"pool"}, nil,
	)
)

type poolCollector struct {
	source PoolStatsSource
}

func newPoolCollector(source PoolStatsSource) *poolCollector {
	return &poolCollector{source: source}
}

func (p *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolTokensDesc
	ch <- poolQuotaDesc
}

func (p *poolCollector) Collect(ch chan<- prometheus.Metric) {
	for pool, counts := range p.source() {
		ch <- prometheus.MustNewConstMetric(poolTokensDesc, prometheus.GaugeValue,
			float64(counts.Active), pool, "active")
		ch <- prometheus.MustNewConstMetric(poolTokensDesc, prometheus.GaugeValue,
			float64(counts.Cooling), pool, "cooling")
		ch <- prometheus.MustNewConstMetric(poolTokensDesc, prometheus.GaugeValue,
			float64(counts.Expired), pool, "expired")
		ch <- prometheus.MustNewConstMetric(poolTokensDesc, prometheus.GaugeValue,
			float64(counts.Disabled), pool, "disabled")
		ch <- prometheus.MustNewConstMetric(poolQuotaDesc, prometheus.GaugeValue,
			float64(counts.TotalQuota), pool)
	}
}

// RegisterPoolStats attaches the pool gauges to the default registry. The
// source is typically a closure over pool.Default(); registration happens
// once in main.
func RegisterPoolStats(source PoolStatsSource) {
	prometheus.MustRegister(newPoolCollector(source))
}
