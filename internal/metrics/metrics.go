// Package metrics exposes the proxy counters to prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cacheproxy"

const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

const (
	OutcomeSuccess     = "success"
	OutcomeStatus      = "bad_status"
	OutcomeUnavailable = "unavailable"
	OutcomeTimeout     = "timeout"
	OutcomeInvalid     = "invalid_response"
)

type Metrics struct {
	requests         *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamDuration prometheus.Histogram
	bytesServed      prometheus.Counter
	bytesDownloaded  prometheus.Counter
	evictions        prometheus.Counter
}

// New registers the proxy metrics on registry. entries is called at every
// scrape to report the number of cached responses.
func New(registry prometheus.Registerer, entries func() int) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Number of client requests handled, by result",
		}, []string{"result"}),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Number of exchanges with the origin, by outcome",
		}, []string{"outcome"}),
		upstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Time spent forwarding a request to the origin",
			Buckets:   prometheus.DefBuckets,
		}),
		bytesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_served_total",
			Help:      "Bytes of responses written to clients",
		}),
		bytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_downloaded_total",
			Help:      "Bytes read from the origin",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Number of entries removed from the cache by the sweeper",
		}),
	}

	entriesGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_entries",
		Help:      "Number of responses currently cached",
	}, func() float64 { return float64(entries()) })

	var errs []error
	for _, collector := range []prometheus.Collector{
		m.requests,
		m.upstreamRequests,
		m.upstreamDuration,
		m.bytesServed,
		m.bytesDownloaded,
		m.evictions,
		entriesGauge,
	} {
		errs = append(errs, registry.Register(collector))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordRequest(result string) {
	m.requests.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordUpstream(outcome string, duration time.Duration) {
	m.upstreamRequests.WithLabelValues(outcome).Inc()
	m.upstreamDuration.Observe(duration.Seconds())
}

func (m *Metrics) AddBytesServed(n int64) {
	m.bytesServed.Add(float64(n))
}

func (m *Metrics) AddBytesDownloaded(n int64) {
	m.bytesDownloaded.Add(float64(n))
}

func (m *Metrics) RecordEvictions(count int) {
	m.evictions.Add(float64(count))
}
