package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nudge/internal/channel"
)

type EventType string

const (
	EventDelivered    EventType = "delivered"
	EventDeadLettered EventType = "dead_lettered"
)

type Event struct {
	Type       EventType
	MessageID  uint64
	UserID     uint64
	Channel    channel.Name
	Attempt    int
	ProviderID string
	Error      string
	At         time.Time
}

// Telemetry receives delivery events. Implementations must not block.
type Telemetry interface {
	Emit(ctx context.Context, ev Event)
}

type NopTelemetry struct{}

func (NopTelemetry) Emit(context.Context, Event) {}

// LogTelemetry writes events as structured log lines.
type LogTelemetry struct {
	Log *zap.Logger
}

func (t LogTelemetry) Emit(_ context.Context, ev Event) {
	t.Log.Info("outbox event",
		zap.String("event", string(ev.Type)),
		zap.Uint64("message_id", ev.MessageID),
		zap.Uint64("user_id", ev.UserID),
		zap.String("channel", string(ev.Channel)),
		zap.Int("attempt", ev.Attempt),
		zap.String("provider_id", ev.ProviderID),
		zap.String("error", ev.Error),
		zap.Time("at", ev.At))
}
