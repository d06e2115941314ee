package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// コマンドの結果ラベル
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics はアプリケーションの Prometheus メトリクスをまとめます。
type Metrics struct {
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	StoreFlushFails prometheus.Counter
	StoreRecoveries prometheus.Counter
}

// New はメトリクスを生成し reg に登録します。
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "staffbot_commands_total",
			Help: "Number of HR commands handled, by command and result",
		}, []string{"command", "result"}),
		CommandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "staffbot_command_duration_seconds",
			Help:    "Time taken to handle an HR command",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		StoreFlushFails: factory.NewCounter(prometheus.CounterOpts{
			Name: "staffbot_store_flush_failures_total",
			Help: "Number of record store writes that failed and were kept in memory only",
		}),
		StoreRecoveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "staffbot_store_recoveries_total",
			Help: "Number of times the record store was reinitialized from an unreadable file",
		}),
	}
}

// ObserveCommand はコマンドの処理結果と所要時間を記録します。
func (m *Metrics) ObserveCommand(command, result string, elapsed time.Duration) {
	m.CommandsTotal.WithLabelValues(command, result).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// FlushFailed はストアの書き込み失敗を記録します。
func (m *Metrics) FlushFailed() {
	m.StoreFlushFails.Inc()
}

// Recovered はストアの再初期化を記録します。
func (m *Metrics) Recovered() {
	m.StoreRecoveries.Inc()
}
