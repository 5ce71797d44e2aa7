package flags

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheMetricsMu          sync.Mutex
	cacheMetricsInitialized bool
	cacheMetricsError       error

	cacheHitCounter  prometheus.Counter
	cacheMissCounter prometheus.Counter
	evalHistogram    *prometheus.HistogramVec
)

// SetupCacheMetrics registers the evaluation cache metrics on the given
// registerer. Registration happens once; later calls return the first result.
func SetupCacheMetrics(reg prometheus.Registerer) error {
	cacheMetricsMu.Lock()
	defer cacheMetricsMu.Unlock()
	if cacheMetricsInitialized {
		return cacheMetricsError
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	hits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "beacon_flag_cache_hits_total",
		Help: "Number of evaluation cache hits.",
	})
	misses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "beacon_flag_cache_miss_total",
		Help: "Number of evaluation cache misses.",
	})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "beacon_flag_eval_duration_seconds",
		Help:    "Duration of flag evaluations by cache outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	for _, collector := range []prometheus.Collector{hits, misses, duration} {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				switch c := already.ExistingCollector.(type) {
				case prometheus.Counter:
					if collector == hits {
						hits = c
					} else {
						misses = c
					}
				case *prometheus.HistogramVec:
					duration = c
				default:
					cacheMetricsError = fmt.Errorf("flag cache metrics: unexpected collector type %T", c)
				}
				continue
			}
			cacheMetricsError = err
			cacheMetricsInitialized = true
			return cacheMetricsError
		}
	}

	cacheHitCounter = hits
	cacheMissCounter = misses
	evalHistogram = duration
	cacheMetricsInitialized = true
	return cacheMetricsError
}

func recordCacheHit() {
	if cacheHitCounter != nil {
		cacheHitCounter.Inc()
	}
}

func recordCacheMiss() {
	if cacheMissCounter != nil {
		cacheMissCounter.Inc()
	}
}

func observeEvalDuration(outcome string, d time.Duration) {
	if evalHistogram != nil {
		evalHistogram.WithLabelValues(outcome).Observe(d.Seconds())
	}
}
