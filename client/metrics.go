package client

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch outcomes recorded in flags_fetch_total.
const (
	resultUpdated        = "updated"
	resultNotModified    = "not_modified"
	resultTransportError = "transport_error"
	resultPayloadError   = "payload_error"
	resultStale          = "stale"
)

type metrics struct {
	fetches      *prometheus.CounterVec
	snapshotSize prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flags_fetch_total",
			Help: "Flag fetches by outcome.",
		}, []string{"result"}),
		snapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flags_snapshot_size",
			Help: "Number of flags in the current snapshot.",
		}),
	}
	if reg == nil {
		return m
	}
	m.fetches = register(reg, m.fetches).(*prometheus.CounterVec)
	m.snapshotSize = register(reg, m.snapshotSize).(prometheus.Gauge)
	return m
}

// register adds c to reg, reusing the collector of another client that
// registered first.
func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
	}
	return c
}

func (m *metrics) fetch(result string) {
	m.fetches.WithLabelValues(result).Inc()
}
