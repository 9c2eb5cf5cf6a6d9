package notifications

import (
	"context"
	"fmt"

	commonerrors "mission-dispatch/internal/common/errors"
	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/dispatch/events"
	"mission-dispatch/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeliverySource is the consuming half of the RabbitMQ client.
type DeliverySource interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Enqueuing is implemented by Enqueuer.
type Enqueuing interface {
	Enqueue(ctx context.Context, req Request) (*models.Notification, bool, error)
}

// EventHandler turns dispatch events into notifications. It consumes them from
// the broker, and also implements events.Publisher for in-process wiring.
type EventHandler struct {
	templates *Templates
	enqueuer  Enqueuing
	logger    logger.Logger
}

func NewEventHandler(templates *Templates, enqueuer Enqueuing, log logger.Logger) *EventHandler {
	return &EventHandler{templates: templates, enqueuer: enqueuer, logger: log}
}

// Publish enqueues every notification evt renders to. Enqueue is idempotent,
// so a redelivered event produces no duplicates.
func (h *EventHandler) Publish(ctx context.Context, evt models.DispatchEvent) error {
	for _, req := range h.templates.Render(evt) {
		if _, _, err := h.enqueuer.Enqueue(ctx, req); err != nil {
			return fmt.Errorf("enqueue %s for %s: %w", evt.Type, req.RecipientID, err)
		}
	}
	return nil
}

// Consume processes broker deliveries until ctx is done or the channel closes.
// Undecodable and invalid messages are dropped; transient failures are requeued.
func (h *EventHandler) Consume(ctx context.Context, source DeliverySource, consumerTag string) error {
	deliveries, err := source.Consume(consumerTag)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	h.logger.Info("Consuming dispatch events", map[string]interface{}{"consumer": consumerTag})

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			h.handle(ctx, d)
		}
	}
}

func (h *EventHandler) handle(ctx context.Context, d amqp.Delivery) {
	evt, err := events.Decode(d.Body)
	if err != nil {
		h.logger.Error("Dropping undecodable dispatch event", map[string]interface{}{
			"messageId":  d.MessageId,
			"routingKey": d.RoutingKey,
			"error":      err.Error(),
		})
		h.settle(d, d.Nack(false, false))
		return
	}

	if err := h.Publish(ctx, evt); err != nil {
		requeue := commonerrors.AsStandard(err).Retryable
		h.logger.Error("Failed to handle dispatch event", map[string]interface{}{
			"eventId":   evt.ID,
			"eventType": string(evt.Type),
			"requeue":   requeue,
			"error":     err.Error(),
		})
		h.settle(d, d.Nack(false, requeue))
		return
	}
	h.settle(d, d.Ack(false))
}

func (h *EventHandler) settle(d amqp.Delivery, err error) {
	if err != nil {
		h.logger.Warn("Failed to settle delivery", map[string]interface{}{
			"deliveryTag": d.DeliveryTag,
			"error":       err.Error(),
		})
	}
}
