package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector aggregates per-span invocation metrics with no external dependencies
type Collector struct {
	spans     map[string]*spanCounters
	mu        sync.RWMutex
	startTime time.Time
}

type spanCounters struct {
	calls       int64
	failures    int64
	active      int64
	maxActive   int64
	totalNanos  int64
	maxNanos    int64
	lastFailure atomic.Value // string
}

// SpanMetrics is a snapshot of one span's counters
type SpanMetrics struct {
	Name          string        `json:"name"`
	Calls         int64         `json:"calls"`
	Failures      int64         `json:"failures"`
	Active        int64         `json:"active"`
	MaxConcurrent int64         `json:"max_concurrent"`
	TotalDuration time.Duration `json:"total_duration"`
	MaxDuration   time.Duration `json:"max_duration"`
	LastFailure   string        `json:"last_failure,omitempty"`
}

// AverageDuration returns the mean duration of finished invocations
func (s SpanMetrics) AverageDuration() time.Duration {
	finished := s.Calls - s.Active
	if finished <= 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(finished)
}

// FailureRate returns the percentage of finished invocations that failed
func (s SpanMetrics) FailureRate() float64 {
	finished := s.Calls - s.Active
	if finished <= 0 {
		return 0.0
	}
	return float64(s.Failures) / float64(finished) * 100.0
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		spans:     make(map[string]*spanCounters),
		startTime: time.Now(),
	}
}

func (c *Collector) counters(name string) *spanCounters {
	c.mu.RLock()
	sc, ok := c.spans[name]
	c.mu.RUnlock()
	if ok {
		return sc
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if sc, ok := c.spans[name]; ok {
		return sc
	}
	sc = &spanCounters{}
	c.spans[name] = sc
	return sc
}

// SpanStarted records the start of an invocation of the named span
func (c *Collector) SpanStarted(name string) {
	sc := c.counters(name)
	atomic.AddInt64(&sc.calls, 1)
	currentActive := atomic.AddInt64(&sc.active, 1)

	// Update max concurrent if needed
	for {
		max := atomic.LoadInt64(&sc.maxActive)
		if currentActive <= max {
			break
		}
		if atomic.CompareAndSwapInt64(&sc.maxActive, max, currentActive) {
			break
		}
	}
}

// SpanFinished records the end of an invocation; err is the invocation's outcome
// An invocation started before the last Reset is dropped.
func (c *Collector) SpanFinished(name string, d time.Duration, err error) {
	c.mu.RLock()
	sc, ok := c.spans[name]
	c.mu.RUnlock()
	if !ok {
		return
	}

	// Active never goes below zero, even when a pre-Reset invocation finishes
	// after a new one has started
	for {
		active := atomic.LoadInt64(&sc.active)
		if active <= 0 {
			break
		}
		if atomic.CompareAndSwapInt64(&sc.active, active, active-1) {
			break
		}
	}
	atomic.AddInt64(&sc.totalNanos, int64(d))

	for {
		max := atomic.LoadInt64(&sc.maxNanos)
		if int64(d) <= max {
			break
		}
		if atomic.CompareAndSwapInt64(&sc.maxNanos, max, int64(d)) {
			break
		}
	}

	if err != nil {
		atomic.AddInt64(&sc.failures, 1)
		sc.lastFailure.Store(err.Error())
	}
}

// Span returns a snapshot of the named span's metrics
func (c *Collector) Span(name string) SpanMetrics {
	c.mu.RLock()
	sc, ok := c.spans[name]
	c.mu.RUnlock()
	if !ok {
		return SpanMetrics{Name: name}
	}
	return sc.snapshot(name)
}

// Spans returns snapshots of every span seen, sorted by name
func (c *Collector) Spans() []SpanMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]SpanMetrics, 0, len(c.spans))
	for name, sc := range c.spans {
		result = append(result, sc.snapshot(name))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func (sc *spanCounters) snapshot(name string) SpanMetrics {
	s := SpanMetrics{
		Name:          name,
		Calls:         atomic.LoadInt64(&sc.calls),
		Failures:      atomic.LoadInt64(&sc.failures),
		Active:        atomic.LoadInt64(&sc.active),
		MaxConcurrent: atomic.LoadInt64(&sc.maxActive),
		TotalDuration: time.Duration(atomic.LoadInt64(&sc.totalNanos)),
		MaxDuration:   time.Duration(atomic.LoadInt64(&sc.maxNanos)),
	}
	if v, ok := sc.lastFailure.Load().(string); ok {
		s.LastFailure = v
	}
	return s
}

// Uptime returns the time since the collector was created or last reset
func (c *Collector) Uptime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.startTime)
}

// Reset drops all span metrics
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.spans = make(map[string]*spanCounters)
	c.startTime = time.Now()
}
