package execution

import (
	"context"

	"perpRiskBot/internal/domain"
	"perpRiskBot/internal/ports"
)

// Journal appends audit events and mirrors them to the process log.
// A failed append is logged and otherwise ignored so that the audit log can
// never abort the step that produced the event.
type Journal struct {
	events  ports.EventRepository
	logger  ports.Logger
	metrics ports.Metrics
}

// NewJournal creates a journal writing to events.
func NewJournal(events ports.EventRepository, logger ports.Logger, metrics ports.Metrics) *Journal {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Journal{events: events, logger: logger, metrics: metrics}
}

// Record appends one event.
func (j *Journal) Record(ctx context.Context, level domain.EventLevel, typ domain.EventType, msg string, fields ...ports.Fields) {
	f := ports.Fields{"event": string(typ)}
	if len(fields) > 0 {
		for k, v := range fields[0] {
			f[k] = v
		}
	}

	switch level {
	case domain.LevelError:
		j.logger.Error(ctx, nil, msg, f)
	case domain.LevelWarn:
		j.logger.Warn(ctx, msg, f)
	default:
		j.logger.Info(ctx, msg, f)
	}

	if _, err := j.events.AddEvent(ctx, level, typ, msg); err != nil {
		j.logger.Error(ctx, err, "Failed to append event", f)
		return
	}
	j.metrics.EventRecorded(string(level), string(typ))
}
