// Package metrics содержит метрики Prometheus реестра эскроу.
package metrics

import (
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

// LedgerMetrics реализует ledger.Observer и считает события, проходы keeper и сверки.
type LedgerMetrics struct {
	TxDuration      *prometheus.HistogramVec
	TxTotal         *prometheus.CounterVec
	TxRejected      *prometheus.CounterVec
	EventsTotal     *prometheus.CounterVec
	KafkaFailures   prometheus.Counter
	KeeperProcessed *prometheus.CounterVec
	KeeperLastSweep prometheus.Gauge
	AuditBalanced   prometheus.Gauge
	CustodiedEther  prometheus.Gauge
	FeeBalanceEther prometheus.Gauge
}

// NewLedgerMetrics регистрирует метрики в reg. nil означает глобальный регистратор.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &LedgerMetrics{
		TxDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "escrow_ledger_tx_duration_seconds",
				Help:    "Длительность транзакций реестра",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"op"},
		),
		TxTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrow_ledger_tx_total",
				Help: "Количество транзакций реестра по результату",
			},
			[]string{"op", "result"},
		),
		TxRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrow_ledger_tx_rejected_total",
				Help: "Отклонённые транзакции по виду ошибки",
			},
			[]string{"kind"},
		),
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrow_events_total",
				Help: "Опубликованные события по типу",
			},
			[]string{"type"},
		),
		KafkaFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrow_kafka_publish_failures_total",
			Help: "Неудачные отправки событий в Kafka",
		}),
		KeeperProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrow_keeper_processed_total",
				Help: "Элементы, обработанные keeper, по виду работы",
			},
			[]string{"job"},
		),
		KeeperLastSweep: factory.NewGauge(prometheus.GaugeOpts{
			Name: "escrow_keeper_last_sweep_timestamp_seconds",
			Help: "Время последнего прохода keeper",
		}),
		AuditBalanced: factory.NewGauge(prometheus.GaugeOpts{
			Name: "escrow_audit_balanced",
			Help: "1, если последняя сверка сошлась",
		}),
		CustodiedEther: factory.NewGauge(prometheus.GaugeOpts{
			Name: "escrow_custodied_ether",
			Help: "Сумма средств под хранением, в единицах эфира",
		}),
		FeeBalanceEther: factory.NewGauge(prometheus.GaugeOpts{
			Name: "escrow_fee_balance_ether",
			Help: "Накопленные комиссии платформы, в единицах эфира",
		}),
	}
}

// ObserveTx вызывается реестром после каждой транзакции.
func (m *LedgerMetrics) ObserveTx(op string, duration time.Duration, err error) {
	m.TxDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err == nil {
		m.TxTotal.WithLabelValues(op, "committed").Inc()
		return
	}
	m.TxTotal.WithLabelValues(op, "rejected").Inc()

	kind := string(apperror.KindOf(err))
	if kind == "" {
		kind = "internal"
	}
	m.TxRejected.WithLabelValues(kind).Inc()
}

// ObserveEvents считает опубликованные события.
func (m *LedgerMetrics) ObserveEvents(events []entity.Event) {
	for _, ev := range events {
		m.EventsTotal.WithLabelValues(ev.Type).Inc()
	}
}

// ObserveKafkaFailure считает неудачную отправку пакета событий.
func (m *LedgerMetrics) ObserveKafkaFailure() {
	m.KafkaFailures.Inc()
}

// ObserveSweep фиксирует проход keeper: счётчики по видам работы.
func (m *LedgerMetrics) ObserveSweep(at time.Time, processed map[string]int) {
	for job, n := range processed {
		if n > 0 {
			m.KeeperProcessed.WithLabelValues(job).Add(float64(n))
		}
	}
	m.KeeperLastSweep.Set(float64(at.Unix()))
}

// ObserveAudit выставляет результат сверки.
func (m *LedgerMetrics) ObserveAudit(balanced bool, custodied, fees *big.Int) {
	if balanced {
		m.AuditBalanced.Set(1)
	} else {
		m.AuditBalanced.Set(0)
	}
	m.CustodiedEther.Set(weiToEther(custodied))
	m.FeeBalanceEther.Set(weiToEther(fees))
}

var weiPerEther = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

func weiToEther(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEther).Float64()
	return f
}
