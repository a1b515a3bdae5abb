package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RollsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rolls_created_total",
		Help: "Количество созданных бросков дня",
	})
	ToneLocksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tone_locks_total",
		Help: "Количество фиксаций тона по тонам",
	}, []string{"tone"})
	VerdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verdicts_total",
		Help: "Количество записанных вердиктов по значениям",
	}, []string{"verdict"})
	RemindersFiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reminders_fired_total",
		Help: "Срабатывания таймеров напоминаний по слотам",
	}, []string{"slot"})
	RemindersDeliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reminders_delivered_total",
		Help: "Доставленные напоминания по слотам и видам",
	}, []string{"slot", "kind"})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		RollsCreatedTotal,
		ToneLocksTotal,
		VerdictsTotal,
		RemindersFiredTotal,
		RemindersDeliveredTotal,
		BotSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncRollCreated увеличивает счётчик созданных бросков.
func IncRollCreated() {
	RollsCreatedTotal.Inc()
}

// IncToneLock увеличивает счётчик фиксаций тона.
func IncToneLock(tone string) {
	ToneLocksTotal.WithLabelValues(tone).Inc()
}

// IncVerdict увеличивает счётчик вердиктов.
func IncVerdict(verdict string) {
	VerdictsTotal.WithLabelValues(verdict).Inc()
}

// IncReminderFired увеличивает счётчик срабатываний таймеров.
func IncReminderFired(slot string) {
	RemindersFiredTotal.WithLabelValues(slot).Inc()
}

// IncReminderDelivered увеличивает счётчик доставленных напоминаний.
func IncReminderDelivered(slot, kind string) {
	RemindersDeliveredTotal.WithLabelValues(slot, kind).Inc()
}

// IncBotSendError увеличивает счётчик ошибок отправки.
func IncBotSendError() {
	BotSendErrors.Inc()
}
