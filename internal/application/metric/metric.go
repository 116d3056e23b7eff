package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики - количество запросов
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - время обработки запросов
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Время обработки HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// WS метрики - количество активных соединений
	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Количество активных WebSocket соединений",
		},
	)

	activeRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rooms_active",
			Help: "Количество активных комнат",
		},
	)

	audioBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recording_audio_bytes_total",
			Help: "Количество принятых байт аудио",
		},
	)

	rejectedChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recording_rejected_chunks_total",
			Help: "Количество отклоненных аудио чанков",
		},
		[]string{"reason"},
	)

	captionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asr_captions_total",
			Help: "Количество разосланных субтитров",
		},
		[]string{"final"},
	)

	finalizeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recording_finalize_total",
			Help: "Результаты финализации записи",
		},
		[]string{"outcome"},
	)

	uploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recording_upload_duration_seconds",
			Help:    "Время загрузки записи в хранилище",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
)

// RecordHTTPMetrics записывает метрики HTTP запроса
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())
}

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}

func SetActiveRooms(count int) {
	activeRooms.Set(float64(count))
}

func AddAudioBytes(n int) {
	audioBytesTotal.Add(float64(n))
}

func IncrementRejectedChunks(reason string) {
	rejectedChunksTotal.WithLabelValues(reason).Inc()
}

func IncrementCaptions(isFinal bool) {
	captionsTotal.WithLabelValues(strconv.FormatBool(isFinal)).Inc()
}

func IncrementFinalize(outcome string) {
	finalizeTotal.WithLabelValues(outcome).Inc()
}

func ObserveUpload(duration time.Duration) {
	uploadDuration.Observe(duration.Seconds())
}
