// Package metrics собирает метрики Prometheus для обработки координат.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector набор метрик сервиса. Нулевой указатель допустим: все методы ничего не делают.
type Collector struct {
	gatherer prometheus.Gatherer

	Updates           *prometheus.CounterVec
	Transitions       *prometheus.CounterVec
	Promotions        prometheus.Counter
	UpdateDuration    prometheus.Histogram
	QueueDepth        *prometheus.GaugeVec
	ZoneCacheRequests *prometheus.CounterVec
	TrackedDevices    *prometheus.GaugeVec
	Notifications     *prometheus.CounterVec
}

// New регистрирует метрики в переданном реестре (по умолчанию глобальный реестр Prometheus).
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		gatherer: gatherer,
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geopromo_location_updates_total",
			Help: "Location updates handled, labeled by outcome.",
		}, []string{"outcome"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geopromo_transitions_total",
			Help: "Recorded membership transitions, labeled by kind.",
		}, []string{"kind"}),
		Promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geopromo_promotions_eligible_total",
			Help: "Promotions resolved for ENTER transitions.",
		}),
		UpdateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geopromo_update_duration_seconds",
			Help:    "Time spent processing one location update.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "geopromo_shard_queue_depth",
			Help: "Pending updates per dispatcher shard.",
		}, []string{"shard"}),
		ZoneCacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geopromo_zone_cache_requests_total",
			Help: "Zone lookups by cache tier and result.",
		}, []string{"tier", "result"}),
		TrackedDevices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "geopromo_tracked_devices",
			Help: "Devices with in-memory state per dispatcher shard.",
		}, []string{"shard"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geopromo_notifications_total",
			Help: "Promotion notifications by stage and result.",
		}, []string{"stage", "result"}),
	}

	collectors := []prometheus.Collector{
		c.Updates, c.Transitions, c.Promotions, c.UpdateDuration,
		c.QueueDepth, c.ZoneCacheRequests, c.TrackedDevices, c.Notifications,
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return c, nil
}

// Handler возвращает HTTP-обработчик /metrics для реестра коллектора.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveUpdate(outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.Updates.WithLabelValues(outcome).Inc()
	c.UpdateDuration.Observe(seconds)
}

func (c *Collector) IncTransition(kind string) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(kind).Inc()
}

func (c *Collector) AddPromotions(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.Promotions.Add(float64(n))
}

func (c *Collector) SetQueueDepth(shard string, depth int) {
	if c == nil {
		return
	}
	c.QueueDepth.WithLabelValues(shard).Set(float64(depth))
}

func (c *Collector) SetTrackedDevices(shard string, n int) {
	if c == nil {
		return
	}
	c.TrackedDevices.WithLabelValues(shard).Set(float64(n))
}

func (c *Collector) ZoneCache(tier, result string) {
	if c == nil {
		return
	}
	c.ZoneCacheRequests.WithLabelValues(tier, result).Inc()
}

func (c *Collector) Notification(stage, result string) {
	if c == nil {
		return
	}
	c.Notifications.WithLabelValues(stage, result).Inc()
}
