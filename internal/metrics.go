package internal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 丟棄訊息的原因（dropped_messages_total 的 reason 標籤）
const (
	DropMalformed  = "malformed"
	DropStale      = "stale"
	DropDuplicate  = "duplicate"
	DropBufferFull = "buffer_full"
)

// Metrics Prometheus 指標
//
// 所有方法都容許 nil 接收者，測試或不需要監控時可以直接傳 nil。
type Metrics struct {
	Connections     prometheus.Gauge
	QueueLength     prometheus.Gauge
	ActiveRooms     prometheus.Gauge
	MatchesCreated  prometheus.Counter
	RelayedUpdates  prometheus.Counter
	GamesFinished   prometheus.Counter
	ScoresRecorded  prometheus.Counter
	PersistFailures prometheus.Counter
	DroppedMessages *prometheus.CounterVec
}

// NewMetricsHandler 返回 /metrics 處理器，未指定 gatherer 時使用預設值
func NewMetricsHandler(gatherer ...prometheus.Gatherer) http.Handler {
	gath := prometheus.DefaultGatherer
	if len(gatherer) > 0 {
		gath = gatherer[0]
	}
	return promhttp.HandlerFor(gath, promhttp.HandlerOpts{})
}

// NewMetrics 創建並註冊指標，未指定 registerer 時使用預設值
func NewMetrics(registerer ...prometheus.Registerer) *Metrics {
	reg := prometheus.DefaultRegisterer
	if len(registerer) > 0 {
		reg = registerer[0]
	}

	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "versus_connections",
			Help: "Number of open websocket connections.",
		}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "versus_waiting_queue_length",
			Help: "Number of clients waiting for an opponent.",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "versus_active_rooms",
			Help: "Number of rooms in the room table.",
		}),
		MatchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "versus_matches_created_total",
			Help: "The total number of rooms created by the match broker.",
		}),
		RelayedUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "versus_relayed_updates_total",
			Help: "The total number of game updates forwarded to an opponent.",
		}),
		GamesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "versus_games_finished_total",
			Help: "The total number of rooms ended by a game over report.",
		}),
		ScoresRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "versus_scores_recorded_total",
			Help: "The total number of score entries recorded.",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "versus_score_persist_failures_total",
			Help: "The total number of score entries that failed to persist.",
		}),
		DroppedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "versus_dropped_messages_total",
			Help: "The total number of inbound or outbound messages dropped.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.Connections,
		m.QueueLength,
		m.ActiveRooms,
		m.MatchesCreated,
		m.RelayedUpdates,
		m.GamesFinished,
		m.ScoresRecorded,
		m.PersistFailures,
		m.DroppedMessages,
	)

	return m
}

func (m *Metrics) setTables(queueLen, rooms int) {
	if m == nil {
		return
	}
	m.QueueLength.Set(float64(queueLen))
	m.ActiveRooms.Set(float64(rooms))
}

func (m *Metrics) incMatches() {
	if m == nil {
		return
	}
	m.MatchesCreated.Inc()
}

func (m *Metrics) incRelayed() {
	if m == nil {
		return
	}
	m.RelayedUpdates.Inc()
}

func (m *Metrics) incGamesFinished() {
	if m == nil {
		return
	}
	m.GamesFinished.Inc()
}

func (m *Metrics) incScores() {
	if m == nil {
		return
	}
	m.ScoresRecorded.Inc()
}

func (m *Metrics) incPersistFailures() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) incDropped(reason string) {
	if m == nil {
		return
	}
	m.DroppedMessages.WithLabelValues(reason).Inc()
}

func (m *Metrics) connectionOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) connectionClosed() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}
