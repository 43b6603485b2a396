// Package metrics exposes Prometheus metrics for an editing session. It
// counts bus events and samples the loaded document's entity counts.
package metrics

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crystal-mush/palsave/pkg/events"
	"github.com/crystal-mush/palsave/pkg/savedb"
)

// Metrics holds Prometheus metric descriptors for an editing session.
type Metrics struct {
	mu        sync.Mutex
	doc       *savedb.Document
	startTime time.Time
	gatherer  prometheus.Gatherer

	eventsTotal     *prometheus.CounterVec
	entities        *prometheus.GaugeVec
	warnings        prometheus.Gauge
	lastSave        prometheus.Gauge
	stale           prometheus.Gauge
	uptimeSeconds   prometheus.Gauge
	memoryHeapBytes prometheus.Gauge
	goroutines      prometheus.Gauge
}

// New creates metrics and registers them with reg. A nil reg uses a fresh
// registry.
func New(reg *prometheus.Registry, startTime time.Time) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		startTime: startTime,
		gatherer:  reg,
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "palsave_events_total",
			Help: "Document events by type.",
		}, []string{"type"}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "palsave_entities",
			Help: "Indexed entities of the loaded save by kind.",
		}, []string{"kind"}),
		warnings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "palsave_consistency_warnings",
			Help: "Consistency warnings collected since load.",
		}),
		lastSave: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "palsave_last_save_timestamp_seconds",
			Help: "Unix time of the last successful save.",
		}),
		stale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "palsave_stale",
			Help: "1 when the save directory changed on disk since load.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "palsave_uptime_seconds",
			Help: "Session uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "palsave_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "palsave_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	reg.MustRegister(
		m.eventsTotal,
		m.entities,
		m.warnings,
		m.lastSave,
		m.stale,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)
	return m
}

// Attach sets the document sampled by Update.
func (m *Metrics) Attach(doc *savedb.Document) {
	m.mu.Lock()
	m.doc = doc
	m.mu.Unlock()
	m.stale.Set(0)
}

// Receive counts ev.
func (m *Metrics) Receive(ev events.Event) {
	m.eventsTotal.WithLabelValues(ev.Type.String()).Inc()
	switch ev.Type {
	case events.EvSaved:
		m.lastSave.SetToCurrentTime()
	case events.EvStale:
		m.stale.Set(1)
	}
}

// Closed always reports false; metrics live as long as the process.
func (m *Metrics) Closed() bool { return false }

// Update refreshes all gauge metrics from the attached document.
func (m *Metrics) Update() {
	m.mu.Lock()
	doc := m.doc
	m.mu.Unlock()

	if doc != nil {
		c := doc.Counts()
		m.entities.WithLabelValues("player").Set(float64(c.Players))
		m.entities.WithLabelValues("pal").Set(float64(c.Pals))
		m.entities.WithLabelValues("guild").Set(float64(c.Guilds))
		m.entities.WithLabelValues("base").Set(float64(c.Bases))
		m.entities.WithLabelValues("character_container").Set(float64(c.CharacterContainers))
		m.entities.WithLabelValues("item_container").Set(float64(c.ItemContainers))
		m.entities.WithLabelValues("dynamic_item").Set(float64(c.DynamicItems))
		m.warnings.Set(float64(c.Warnings))
	}

	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	h := promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		h.ServeHTTP(w, r)
	})
}
