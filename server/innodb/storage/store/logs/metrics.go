package logs

import (
	"github.com/prometheus/client_golang/prometheus"
)

type redoMetrics struct {
	frames prometheus.Counter
	bytes  prometheus.Counter
	syncs  prometheus.Counter
}

func newRedoMetrics(reg prometheus.Registerer) *redoMetrics {
	m := &redoMetrics{
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xmysql",
			Subsystem: "redo",
			Name:      "frames_total",
			Help:      "Mini-transaction frames appended to the redo log.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xmysql",
			Subsystem: "redo",
			Name:      "bytes_total",
			Help:      "Bytes appended to the redo log, frame headers included.",
		}),
		syncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xmysql",
			Subsystem: "redo",
			Name:      "syncs_total",
			Help:      "fsync calls made on the redo log.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.frames, m.bytes, m.syncs)
	}
	return m
}
