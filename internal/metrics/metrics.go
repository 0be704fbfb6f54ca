// Package metrics exposes Prometheus collectors for the event bus, the cache
// layer and the token lifecycle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the subset of Collector used by services, so tests can pass Nop.
type Recorder interface {
	EventPublished(topic string)
	EventPublishFailed(topic string)
	EventHandled(topic, result string)
	CacheHit(prefix string)
	CacheMiss(prefix string)
	CacheInvalidated(prefix string, keys int64)
	TokenRotation(outcome string)
}

type Collector struct {
	published      *prometheus.CounterVec
	publishFailed  *prometheus.CounterVec
	handled        *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	invalidations  *prometheus.CounterVec
	invalidatedKey *prometheus.CounterVec
	rotations      *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "social_events_published_total",
			Help: "Events published to the exchange.",
		}, []string{"topic"}),
		publishFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "social_events_publish_failed_total",
			Help: "Publishes that failed after the reconnect attempt.",
		}, []string{"topic"}),
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "social_events_handled_total",
			Help: "Delivered events by handler result.",
		}, []string{"topic", "result"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "social_cache_hits_total",
			Help: "Read-through cache hits.",
		}, []string{"prefix"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "social_cache_misses_total",
			Help: "Read-through cache misses.",
		}, []string{"prefix"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "social_cache_invalidations_total",
			Help: "Prefix invalidations performed.",
		}, []string{"prefix"}),
		invalidatedKey: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "social_cache_invalidated_keys_total",
			Help: "Keys removed by prefix invalidation.",
		}, []string{"prefix"}),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "social_token_rotations_total",
			Help: "Refresh token rotations by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.published,
		c.publishFailed,
		c.handled,
		c.cacheHits,
		c.cacheMisses,
		c.invalidations,
		c.invalidatedKey,
		c.rotations,
	)

	return c
}

func (c *Collector) EventPublished(topic string) {
	c.published.WithLabelValues(topic).Inc()
}

func (c *Collector) EventPublishFailed(topic string) {
	c.publishFailed.WithLabelValues(topic).Inc()
}

func (c *Collector) EventHandled(topic, result string) {
	c.handled.WithLabelValues(topic, result).Inc()
}

func (c *Collector) CacheHit(prefix string) {
	c.cacheHits.WithLabelValues(prefix).Inc()
}

func (c *Collector) CacheMiss(prefix string) {
	c.cacheMisses.WithLabelValues(prefix).Inc()
}

func (c *Collector) CacheInvalidated(prefix string, keys int64) {
	c.invalidations.WithLabelValues(prefix).Inc()
	c.invalidatedKey.WithLabelValues(prefix).Add(float64(keys))
}

func (c *Collector) TokenRotation(outcome string) {
	c.rotations.WithLabelValues(outcome).Inc()
}

// Handler serves the registry for Prometheus scraping.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) EventPublished(string)          {}
func (Nop) EventPublishFailed(string)      {}
func (Nop) EventHandled(string, string)    {}
func (Nop) CacheHit(string)                {}
func (Nop) CacheMiss(string)               {}
func (Nop) CacheInvalidated(string, int64) {}
func (Nop) TokenRotation(string)           {}
