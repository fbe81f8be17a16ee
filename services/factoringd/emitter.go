package factoringd

import (
	"log/slog"

	"factorvault/core/events"
	coretypes "factorvault/core/types"
	"factorvault/native/factoring"
	"factorvault/observability"
	"factorvault/observability/metrics"
)

// attributed is implemented by engine events that carry structured
// attributes in addition to their type tag.
type attributed interface {
	Event() *coretypes.Event
}

// Emitter fans engine events out to the structured log and the Prometheus
// registries.
type Emitter struct {
	logger *slog.Logger
}

// NewEmitter builds an emitter writing through the supplied logger.
func NewEmitter(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{logger: logger}
}

// Emit implements events.Emitter.
func (e *Emitter) Emit(evt events.Event) {
	if e == nil || evt == nil {
		return
	}
	eventType := evt.EventType()
	var attributes map[string]string
	if carrier, ok := evt.(attributed); ok {
		if structured := carrier.Event(); structured != nil {
			attributes = structured.Attributes
		}
	}

	observability.Events().RecordEvent(eventType)
	recordEventMetric(eventType, attributes)

	attrs := make([]any, 0, len(attributes)+1)
	attrs = append(attrs, slog.String("event", eventType))
	for key, value := range attributes {
		attrs = append(attrs, slog.String(key, value))
	}
	e.logger.Info("engine event", attrs...)
}

func recordEventMetric(eventType string, attributes map[string]string) {
	reg := metrics.Factoring()
	switch eventType {
	case factoring.TypeDepositMade:
		reg.IncDeposit()
	case factoring.TypeRedemptionSettled:
		reg.IncRedemptionSettled()
	case factoring.TypeRedemptionQueued:
		reg.IncRedemptionQueued()
	case factoring.TypeRedemptionSkipped:
		reg.IncRedemptionSkipped(attributes["reason"])
	case factoring.TypeInvoiceFunded:
		reg.IncInvoiceTransition("funded")
	case factoring.TypeInvoicePaid:
		reg.IncInvoiceTransition("paid")
	case factoring.TypeInvoiceImpaired:
		reg.IncInvoiceTransition("impaired")
	case factoring.TypeInvoiceUnfactored:
		reg.IncInvoiceTransition("unfactored")
	}
}
