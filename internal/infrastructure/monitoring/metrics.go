package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the browser host.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Tab metrics
	TabsOpen   prometheus.Gauge
	TabsTotal  prometheus.Counter
	NavEvents  *prometheus.CounterVec
	NavErrors  prometheus.Counter
	TabsClosed prometheus.Counter

	// Streaming metrics
	StreamsActive   prometheus.Gauge
	StreamsTotal    *prometheus.CounterVec
	FramesForwarded prometheus.Counter

	// IPC metrics
	SurfacesConnected prometheus.Gauge
	IPCMessages       *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumen_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lumen_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		TabsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lumen_tabs_open",
			Help: "Number of currently open tabs",
		}),
		TabsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lumen_tabs_created_total",
			Help: "Total number of tabs created",
		}),
		TabsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lumen_tabs_closed_total",
			Help: "Total number of tabs closed",
		}),
		NavEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumen_nav_events_total",
				Help: "Navigation lifecycle events by kind",
			},
			[]string{"kind"},
		),
		NavErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lumen_nav_errors_total",
			Help: "Main-frame navigation failures",
		}),

		StreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lumen_streams_active",
			Help: "Number of in-flight chat streams",
		}),
		StreamsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumen_streams_total",
				Help: "Completed chat streams by outcome",
			},
			[]string{"outcome"},
		),
		FramesForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lumen_stream_frames_total",
			Help: "SSE frames forwarded to renderer surfaces",
		}),

		SurfacesConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lumen_surfaces_connected",
			Help: "Connected renderer surfaces",
		}),
		IPCMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumen_ipc_messages_total",
				Help: "IPC messages by channel and direction",
			},
			[]string{"channel", "direction"},
		),

		Uptime: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lumen_uptime_seconds",
			Help: "Host uptime in seconds",
		}),
	}

	return m
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// RecordStream records one completed stream with its outcome
// ("ok", "error", "aborted", "timeout", "rejected").
func (m *Metrics) RecordStream(outcome string) {
	m.StreamsTotal.WithLabelValues(outcome).Inc()
}
