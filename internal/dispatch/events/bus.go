package events

import (
	"context"
	"fmt"

	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/common/metrics"
	"mission-dispatch/internal/models"

	"github.com/asaskevich/EventBus"
)

// Bus fans dispatch events out to attached sinks asynchronously, one topic per event type.
type Bus struct {
	bus    EventBus.Bus
	logger logger.Logger
}

func NewBus(bus EventBus.Bus, log logger.Logger) *Bus {
	return &Bus{bus: bus, logger: log}
}

func (b *Bus) Publish(ctx context.Context, evt models.DispatchEvent) error {
	if _, err := models.ParseEventType(string(evt.Type)); err != nil {
		return err
	}
	b.bus.Publish(string(evt.Type), context.WithoutCancel(ctx), evt)
	return nil
}

// Attach subscribes sink to every event type. Sink failures are logged and counted.
func (b *Bus) Attach(name string, sink Publisher) error {
	handler := func(ctx context.Context, evt models.DispatchEvent) {
		if err := sink.Publish(ctx, evt); err != nil {
			metrics.DispatchEventsDropped.WithLabelValues(name).Inc()
			b.logger.Warn("Dispatch event sink failed", map[string]interface{}{
				"sink":      name,
				"eventId":   evt.ID,
				"eventType": string(evt.Type),
				"missionId": evt.MissionID,
				"error":     err.Error(),
			})
		}
	}

	for _, t := range models.AllEventTypes {
		if err := b.bus.SubscribeAsync(string(t), handler, false); err != nil {
			return fmt.Errorf("attach %s to %s: %w", name, t, err)
		}
	}
	return nil
}

// Drain waits for in-flight async deliveries.
func (b *Bus) Drain() {
	b.bus.WaitAsync()
}
