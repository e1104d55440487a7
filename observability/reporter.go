package observability

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"log/slog"
	"sync/atomic"
)

// DeliveryReporter logs and counts the events a handler refused or panicked on.
type DeliveryReporter struct {
	log      *slog.Logger
	failures atomic.Uint64
}

func NewDeliveryReporter(log *slog.Logger) *DeliveryReporter {
	return &DeliveryReporter{log: log}
}

func (r *DeliveryReporter) Report(channel domain.Channel, evt event.Event, err error) {
	r.failures.Add(1)
	DeliveryFailures.WithLabelValues(string(evt.Type)).Inc()
	r.log.Warn("Event delivery failed",
		"channel", channel,
		"event_type", evt.Type,
		"error", err)
}

func (r *DeliveryReporter) Failures() uint64 {
	return r.failures.Load()
}
