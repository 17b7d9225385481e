// Package metrics implements an in-process registry of named, tagged metric
// series: counters, gauges, and bounded histograms.
//
// The registry is the single shared mutable structure of the telemetry core.
// The series map is guarded by a read-write mutex; each series carries its
// own mutex so concurrent writers on different series never contend and
// concurrent increments on one series never lose updates.
package metrics

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// Kind identifies how a series accumulates observations.
type Kind string

const (
	KindCounter   Kind = "counter"
	KindGauge     Kind = "gauge"
	KindHistogram Kind = "histogram"
)

// ErrNoSeries is returned by Query when the requested series does not exist.
// Callers (alert evaluation) treat it as "no data yet", not a failure.
var ErrNoSeries = errors.New("metrics: no such series")

// DefaultHistogramCapacity bounds histogram sample buffers when no explicit
// capacity is configured.
const DefaultHistogramCapacity = 1000

type sample struct {
	value float64
	at    time.Time
}

// series is one (name, sorted tags) accumulator. Created lazily on first
// write, never implicitly deleted.
type series struct {
	mu   sync.Mutex
	kind Kind
	name string
	tags map[string]string

	value     float64  // counter sum or last gauge value
	samples   []sample // histogram ring buffer
	next      int
	full      bool
	updatedAt time.Time
}

// Stat is a point-in-time view of one series.
// Value holds the counter sum, the last gauge value, or the histogram mean
// (so alert conditions apply uniformly across kinds). The percentile fields
// are populated for histograms only.
type Stat struct {
	Kind      Kind
	Value     float64
	Count     int
	Mean      float64
	P50       float64
	P95       float64
	P99       float64
	Min       float64
	Max       float64
	UpdatedAt time.Time
}

// SeriesSnapshot pairs a series identity with its stats for export.
type SeriesSnapshot struct {
	Name string
	Tags map[string]string
	Stat Stat
}

// Registry stores and serves metric series.
type Registry struct {
	mu      sync.RWMutex
	series  map[string]*series
	histCap int

	now func() time.Time // test seam
}

// NewRegistry creates a registry. histogramCapacity bounds the per-series
// sample buffer; values <= 0 fall back to DefaultHistogramCapacity.
func NewRegistry(histogramCapacity int) *Registry {
	if histogramCapacity <= 0 {
		histogramCapacity = DefaultHistogramCapacity
	}
	return &Registry{
		series:  make(map[string]*series),
		histCap: histogramCapacity,
		now:     time.Now,
	}
}

// seriesKey builds the canonical identity of a series: name plus sorted tags.
func seriesKey(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(tags[k])
	}
	b.WriteByte('}')
	return b.String()
}

func (r *Registry) getOrCreate(name string, tags map[string]string, kind Kind) *series {
	key := seriesKey(name, tags)

	r.mu.RLock()
	s, ok := r.series[key]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.series[key]; ok {
		return s
	}
	tagsCopy := make(map[string]string, len(tags))
	for k, v := range tags {
		tagsCopy[k] = v
	}
	s = &series{kind: kind, name: name, tags: tagsCopy}
	if kind == KindHistogram {
		s.samples = make([]sample, r.histCap)
	}
	r.series[key] = s
	return s
}

// Increment adds amount to a counter series, creating it at amount on first
// write. A write against an existing series of a different kind is dropped —
// the first writer fixes the kind for the series' lifetime.
func (r *Registry) Increment(name string, amount float64, tags map[string]string) {
	s := r.getOrCreate(name, tags, KindCounter)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind != KindCounter {
		return
	}
	s.value += amount
	s.updatedAt = r.now()
}

// SetGauge overwrites the last-set value of a gauge series.
func (r *Registry) SetGauge(name string, value float64, tags map[string]string) {
	s := r.getOrCreate(name, tags, KindGauge)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind != KindGauge {
		return
	}
	s.value = value
	s.updatedAt = r.now()
}

// RecordHistogram appends a sample to a histogram series' ring buffer,
// evicting the oldest sample once capacity is reached (FIFO).
func (r *Registry) RecordHistogram(name string, value float64, tags map[string]string) {
	s := r.getOrCreate(name, tags, KindHistogram)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind != KindHistogram {
		return
	}
	s.samples[s.next] = sample{value: value, at: r.now()}
	s.next++
	if s.next == len(s.samples) {
		s.next = 0
		s.full = true
	}
	s.updatedAt = r.now()
}

// Query returns the current stats of one series. window narrows histogram
// aggregation to samples recorded within the window; it is ignored for
// counters and gauges, which have no per-observation timestamps. A missing
// series yields ErrNoSeries.
func (r *Registry) Query(name string, tags map[string]string, window time.Duration) (Stat, error) {
	key := seriesKey(name, tags)

	r.mu.RLock()
	s, ok := r.series[key]
	r.mu.RUnlock()
	if !ok {
		return Stat{}, ErrNoSeries
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stat(r.now(), window), nil
}

// stat computes the point-in-time view. Caller holds s.mu.
func (s *series) stat(now time.Time, window time.Duration) Stat {
	st := Stat{Kind: s.kind, UpdatedAt: s.updatedAt}
	if s.kind != KindHistogram {
		st.Value = s.value
		return st
	}

	n := s.next
	if s.full {
		n = len(s.samples)
	}
	// Collect retained samples oldest-first, honoring the window if set.
	values := make([]float64, 0, n)
	start := 0
	if s.full {
		start = s.next
	}
	var cutoff time.Time
	if window > 0 {
		cutoff = now.Add(-window)
	}
	for i := 0; i < n; i++ {
		smp := s.samples[(start+i)%len(s.samples)]
		if window > 0 && smp.at.Before(cutoff) {
			continue
		}
		values = append(values, smp.value)
	}
	if len(values) == 0 {
		return st
	}

	var sum float64
	st.Min = values[0]
	st.Max = values[0]
	for _, v := range values {
		sum += v
		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
	}
	st.Count = len(values)
	st.Mean = sum / float64(len(values))
	st.Value = st.Mean

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	st.P50 = percentile(sorted, 50)
	st.P95 = percentile(sorted, 95)
	st.P99 = percentile(sorted, 99)
	return st
}

// percentile returns the nearest-rank percentile of an ascending-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p/100*float64(len(sorted))+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// Snapshot returns an immutable copy of all series. Each series is read
// under its own lock; series-to-series consistency is not guaranteed.
func (r *Registry) Snapshot() []SeriesSnapshot {
	r.mu.RLock()
	all := make([]*series, 0, len(r.series))
	for _, s := range r.series {
		all = append(all, s)
	}
	r.mu.RUnlock()

	now := r.now()
	out := make([]SeriesSnapshot, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		tags := make(map[string]string, len(s.tags))
		for k, v := range s.tags {
			tags[k] = v
		}
		out = append(out, SeriesSnapshot{Name: s.name, Tags: tags, Stat: s.stat(now, 0)})
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return seriesKey(out[i].Name, out[i].Tags) < seriesKey(out[j].Name, out[j].Tags)
	})
	return out
}

// Reset drops every series. Intended for test isolation.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.series = make(map[string]*series)
}
