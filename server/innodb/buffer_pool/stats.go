package buffer_pool

import (
	"github.com/prometheus/client_golang/prometheus"
)

// poolMetrics are the buffer pool counters exported to prometheus.
type poolMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	reads     prometheus.Counter
	writes    prometheus.Counter
	evictions prometheus.Counter
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xmysql",
		Subsystem: "buffer_pool",
		Name:      name,
		Help:      help,
	})
}

func newPoolMetrics(reg prometheus.Registerer) *poolMetrics {
	m := &poolMetrics{
		hits:      newCounter("page_hits_total", "Page requests served from the pool."),
		misses:    newCounter("page_misses_total", "Page requests that went to storage."),
		reads:     newCounter("page_reads_total", "Pages read from storage."),
		writes:    newCounter("page_writes_total", "Pages written back to storage."),
		evictions: newCounter("page_evictions_total", "Pages evicted to make room."),
	}
	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.reads, m.writes, m.evictions)
	}
	return m
}

// BufferPoolStats 缓冲池统计信息
type BufferPoolStats struct {
	Capacity   int
	Cached     int
	Fixed      int
	DirtyPages int
	HitRate    float64
}
