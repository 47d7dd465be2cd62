package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the hub exports.
type Metrics struct {
	// Sessions
	ActiveSessions prometheus.Gauge
	SessionsJoined prometheus.Counter
	SessionsKicked prometheus.Counter

	// Control channel
	MessagesReceived *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec
	FramesDropped    *prometheus.CounterVec

	// Media relays
	DatagramsReceived  *prometheus.CounterVec
	DatagramsForwarded *prometheus.CounterVec
	DatagramsDropped   *prometheus.CounterVec

	// Files
	FilesStored prometheus.Gauge
	FileBytes   prometheus.Gauge

	PresenterChanges prometheus.Counter

	// HTTP API
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg uses the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "lanhub_sessions_active",
			Help: "Number of joined sessions",
		}),
		SessionsJoined: f.NewCounter(prometheus.CounterOpts{
			Name: "lanhub_sessions_joined_total",
			Help: "Total number of successful joins",
		}),
		SessionsKicked: f.NewCounter(prometheus.CounterOpts{
			Name: "lanhub_sessions_kicked_total",
			Help: "Sessions disconnected because their outbox overflowed",
		}),

		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lanhub_messages_received_total",
			Help: "Control messages received by type",
		}, []string{"type"}),
		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lanhub_messages_sent_total",
			Help: "Control messages queued for delivery by type",
		}, []string{"type"}),
		FramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lanhub_frames_dropped_total",
			Help: "Control messages dropped for a slow recipient by type",
		}, []string{"type"}),

		DatagramsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lanhub_datagrams_received_total",
			Help: "Media datagrams received by stream",
		}, []string{"stream"}),
		DatagramsForwarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lanhub_datagrams_forwarded_total",
			Help: "Media datagrams sent to peers by stream",
		}, []string{"stream"}),
		DatagramsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lanhub_datagrams_dropped_total",
			Help: "Media datagrams discarded by stream and reason",
		}, []string{"stream", "reason"}),

		FilesStored: f.NewGauge(prometheus.GaugeOpts{
			Name: "lanhub_files_stored",
			Help: "Number of files held in memory",
		}),
		FileBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "lanhub_file_bytes",
			Help: "Bytes of file content held in memory",
		}),

		PresenterChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "lanhub_presenter_changes_total",
			Help: "Number of presenter grants and releases",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lanhub_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lanhub_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// The recorders below are no-ops on a nil *Metrics.

func (m *Metrics) SessionJoined(active int) {
	if m == nil {
		return
	}
	m.SessionsJoined.Inc()
	m.ActiveSessions.Set(float64(active))
}

func (m *Metrics) SessionLeft(active int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(active))
}

func (m *Metrics) RecordKick() {
	if m == nil {
		return
	}
	m.SessionsKicked.Inc()
}

func (m *Metrics) RecordReceived(msgType string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RecordSent(msgType string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RecordDropped(msgType string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RecordDatagram(stream string) {
	if m == nil {
		return
	}
	m.DatagramsReceived.WithLabelValues(stream).Inc()
}

// RecordForwarded adds n successful relay writes.
func (m *Metrics) RecordForwarded(stream string, n int) {
	if m == nil {
		return
	}
	m.DatagramsForwarded.WithLabelValues(stream).Add(float64(n))
}

func (m *Metrics) RecordDatagramDropped(stream, reason string) {
	if m == nil {
		return
	}
	m.DatagramsDropped.WithLabelValues(stream, reason).Inc()
}

func (m *Metrics) SetFileStore(count int, bytes int64) {
	if m == nil {
		return
	}
	m.FilesStored.Set(float64(count))
	m.FileBytes.Set(float64(bytes))
}

func (m *Metrics) RecordPresenterChange() {
	if m == nil {
		return
	}
	m.PresenterChanges.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
