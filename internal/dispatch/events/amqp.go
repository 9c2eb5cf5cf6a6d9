package events

import (
	"context"
	"encoding/json"
	"fmt"

	"mission-dispatch/internal/models"
)

// BrokerPublisher is the slice of the RabbitMQ client the sink needs.
type BrokerPublisher interface {
	PublishWithRetry(ctx context.Context, routingKey, messageID string, body []byte) error
}

// AMQPSink forwards events to the broker, routed by event type.
type AMQPSink struct {
	broker BrokerPublisher
}

func NewAMQPSink(broker BrokerPublisher) *AMQPSink {
	return &AMQPSink{broker: broker}
}

func (s *AMQPSink) Publish(ctx context.Context, evt models.DispatchEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.broker.PublishWithRetry(ctx, string(evt.Type), evt.ID, body)
}

// Decode parses and validates a broker message body.
func Decode(body []byte) (models.DispatchEvent, error) {
	var evt models.DispatchEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return evt, fmt.Errorf("decode event: %w", err)
	}
	if _, err := models.ParseEventType(string(evt.Type)); err != nil {
		return evt, err
	}
	if evt.MissionID == "" {
		return evt, fmt.Errorf("decode event %s: missing mission id", evt.ID)
	}
	return evt, nil
}
