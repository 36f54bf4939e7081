package tlesync

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	remoteQueries prometheus.Counter
	remoteErrors  prometheus.Counter
	recordsAdded  prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "The total number of download results served from the cache",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "The total number of downloads not found in the cache",
		}),
		remoteQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remote_queries_total",
			Help: "The total number of remote catalog sessions",
		}),
		remoteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remote_errors_total",
			Help: "The total number of failed remote catalog sessions",
		}),
		recordsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "records_added_total",
			Help: "The total number of element sets added to storage",
		}),
	}
}

func (m *metrics) register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.cacheHits, m.cacheMisses, m.remoteQueries, m.remoteErrors, m.recordsAdded} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
