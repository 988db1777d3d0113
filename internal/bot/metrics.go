package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового движка
// ============================================================

// ============ Счётчики событий ============

// EventsProcessed - количество обработанных событий по типам
var EventsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "paradexbot",
		Subsystem: "engine",
		Name:      "events_processed_total",
		Help:      "Total number of processed engine events",
	},
	[]string{"type"}, // book_snapshot, book_delta, order_status, account_update, tick
)

// OpportunitiesDetected - обнаруженные инверсии по источнику и исходу
var OpportunitiesDetected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "paradexbot",
		Subsystem: "engine",
		Name:      "opportunities_detected_total",
		Help:      "Number of profitable inversions detected",
	},
	[]string{"source", "outcome"}, // outcome: submitted, rejected
)

// OpportunityRejections - отказы риск-гейтов по причинам
var OpportunityRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "paradexbot",
		Subsystem: "risk",
		Name:      "rejections_total",
		Help:      "Number of candidates rejected by risk gates",
	},
	[]string{"reason"}, // position_open, insufficient_margin, too_many_open_orders
)

// BatchSubmissions - отправленные батчи по результату
var BatchSubmissions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "paradexbot",
		Subsystem: "engine",
		Name:      "batch_submissions_total",
		Help:      "Order batch submissions by result",
	},
	[]string{"result"}, // ok, error
)

// BatchesCompleted - батчи, снятые с учёта терминальным статусом ноги
var BatchesCompleted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "paradexbot",
		Subsystem: "engine",
		Name:      "batches_completed_total",
		Help:      "Batches removed from tracking by a terminal leg status",
	},
	[]string{"status"}, // FILLED, CANCELLED
)

// ============ Метрики состояния ============

// OpenBatches - текущее число батчей в полёте
var OpenBatches = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "paradexbot",
		Subsystem: "engine",
		Name:      "open_batches",
		Help:      "Current number of in-flight order batches",
	},
)

// AccountBalance - последний известный свободный залог в USD
var AccountBalance = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "paradexbot",
		Subsystem: "account",
		Name:      "free_collateral_usd",
		Help:      "Last known free collateral in USD",
	},
)

// PositionOpen - флаг открытой позиции (1=открыта, 0=нет)
var PositionOpen = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "paradexbot",
		Subsystem: "account",
		Name:      "position_open",
		Help:      "Whether a position is open on the market (1=open, 0=flat)",
	},
)

// LastClosedPnL - реализованный PnL последней закрытой позиции.
// Только наблюдение, в торговых решениях не участвует.
var LastClosedPnL = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "paradexbot",
		Subsystem: "account",
		Name:      "last_closed_pnl_usd",
		Help:      "Realized PnL of the most recently closed position in USD",
	},
)

// WSConnectionStatus - статус WebSocket соединения с биржей
var WSConnectionStatus = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "paradexbot",
		Subsystem: "exchange",
		Name:      "ws_connection_status",
		Help:      "WebSocket connection status (1=connected, 0=disconnected)",
	},
)

// ============ Метрики рынка ============

// NetProfitObserved - расчётный чистый профит принятых кандидатов
var NetProfitObserved = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "paradexbot",
		Subsystem: "engine",
		Name:      "net_profit_usd",
		Help:      "Net profit of accepted candidates in USD",
		Buckets:   []float64{0, 0.5, 1, 2, 5, 10, 25, 50, 100},
	},
)

// ============ Вспомогательные функции ============

// RecordEvent записывает обработанное событие движка
func RecordEvent(eventType string) {
	EventsProcessed.WithLabelValues(eventType).Inc()
}

// RecordOpportunity записывает обнаруженную возможность
func RecordOpportunity(source string, submitted bool) {
	outcome := "rejected"
	if submitted {
		outcome = "submitted"
	}
	OpportunitiesDetected.WithLabelValues(source, outcome).Inc()
}

// RecordRejection записывает отказ риск-гейта
func RecordRejection(reason RejectReason) {
	OpportunityRejections.WithLabelValues(string(reason)).Inc()
}

// RecordSubmission записывает результат отправки батча
func RecordSubmission(err error) {
	if err != nil {
		BatchSubmissions.WithLabelValues("error").Inc()
		return
	}
	BatchSubmissions.WithLabelValues("ok").Inc()
}

// UpdateAccountState обновляет gauge-метрики состояния счёта
func UpdateAccountState(balance float64, positionOpen bool, openBatches int) {
	AccountBalance.Set(balance)
	if positionOpen {
		PositionOpen.Set(1)
	} else {
		PositionOpen.Set(0)
	}
	OpenBatches.Set(float64(openBatches))
}
