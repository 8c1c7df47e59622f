package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"execution-core/internal/events"
)

// Monitor watches lifecycle events and forwards the ones an operator must see to a sink.
type Monitor struct {
	Bus    *events.Bus
	Sink   AlertSink
	Logger *zap.Logger
}

// Topics the monitor alerts on.
var alertTopics = []events.Event{
	events.EventOrderRejected,
	events.EventTrailStopped,
	events.EventSessionChange,
}

// Start subscribes to the bus and returns once the forwarding goroutine is running.
func (m *Monitor) Start(ctx context.Context) {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if m.Bus == nil || m.Sink == nil {
		logger.Info("monitor not fully configured; skipping")
		return
	}
	stream, unsub := m.Bus.SubscribeMany(alertTopics, 50)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-stream:
				if !ok {
					return
				}
				if err := m.Sink.Send(formatAlert(env)); err != nil {
					logger.Warn("alert delivery failed", zap.Error(err))
				}
			}
		}
	}()
}

func formatAlert(env events.Envelope) string {
	return fmt.Sprintf("[%s] %s: %s", env.Time.Format(time.RFC3339), env.Type, toString(env.Payload))
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%+v", t)
	}
}
