package metrics

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector adapts a Registry to prometheus.Collector so hosts that already
// expose a scrape endpoint can surface the telemetry core's metrics.
// Counters and gauges map directly; histograms are exported as summaries
// (count, sum, and the registry's nearest-rank quantiles).
type Collector struct {
	reg       *Registry
	namespace string
}

// NewCollector wraps a registry. namespace prefixes every exported metric
// name ("kanshi" is the conventional value).
func NewCollector(reg *Registry, namespace string) *Collector {
	return &Collector{reg: reg, namespace: namespace}
}

// Describe intentionally sends nothing: the metric set is dynamic, so this
// is an unchecked collector per the prometheus client contract.
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect emits one metric per registry series from a fresh snapshot.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.reg.Snapshot() {
		keys := make([]string, 0, len(s.Tags))
		for k := range s.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		labelKeys := make([]string, len(keys))
		labelVals := make([]string, len(keys))
		for i, k := range keys {
			labelKeys[i] = sanitizeName(k)
			labelVals[i] = s.Tags[k]
		}

		fqName := prometheus.BuildFQName(c.namespace, "", sanitizeName(s.Name))
		desc := prometheus.NewDesc(fqName, "", labelKeys, nil)

		switch s.Stat.Kind {
		case KindCounter:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, s.Stat.Value, labelVals...)
		case KindGauge:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, s.Stat.Value, labelVals...)
		case KindHistogram:
			ch <- prometheus.MustNewConstSummary(desc,
				uint64(s.Stat.Count),
				s.Stat.Mean*float64(s.Stat.Count),
				map[float64]float64{0.5: s.Stat.P50, 0.95: s.Stat.P95, 0.99: s.Stat.P99},
				labelVals...,
			)
		}
	}
}

// sanitizeName maps arbitrary metric/tag names onto the prometheus charset.
func sanitizeName(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9' && i > 0:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
