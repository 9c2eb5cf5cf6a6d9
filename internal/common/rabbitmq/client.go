package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mission-dispatch/internal/common/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds the broker topology used for dispatch events.
type Config struct {
	URL               string
	ExchangeName      string
	QueueName         string
	BindingKeys       []string
	Prefetch          int
	RetryAttempts     int
	RetryInterval     time.Duration
	Heartbeat         time.Duration
	PublishRetries    int
	PublishRetryDelay time.Duration
}

// Client owns one connection and one channel. Publishing is serialized on the channel.
type Client struct {
	config  *Config
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  logger.Logger
	mu      sync.Mutex
}

func NewClient(config *Config, log logger.Logger) (*Client, error) {
	c := &Client{config: config, logger: log}
	if err := c.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}
	return c, nil
}

func (c *Client) connect() error {
	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 5
	}
	interval := c.config.RetryInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		c.conn, err = amqp.DialConfig(c.config.URL, amqp.Config{Heartbeat: c.config.Heartbeat, Locale: "en_US"})
		if err == nil {
			break
		}
		c.logger.Warn("Failed to connect to RabbitMQ", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})
		if attempt < attempts {
			time.Sleep(interval)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := c.setup(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to setup exchange and queue: %w", err)
	}

	c.logger.Info("RabbitMQ client initialized", map[string]interface{}{
		"exchange": c.config.ExchangeName,
		"queue":    c.config.QueueName,
	})
	return nil
}

// setup declares a durable topic exchange and, when QueueName is set, a durable
// queue bound with every binding key.
func (c *Client) setup() error {
	if err := c.channel.ExchangeDeclare(c.config.ExchangeName, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if c.config.QueueName == "" {
		return nil
	}

	if _, err := c.channel.QueueDeclare(c.config.QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	keys := c.config.BindingKeys
	if len(keys) == 0 {
		keys = []string{"#"}
	}
	for _, key := range keys {
		if err := c.channel.QueueBind(c.config.QueueName, key, c.config.ExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue with %s: %w", key, err)
		}
	}
	return nil
}

// PublishWithRetry publishes a persistent message, retrying with exponential backoff.
func (c *Client) PublishWithRetry(ctx context.Context, routingKey, messageID string, body []byte) error {
	maxRetries := c.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := c.config.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    messageID,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		c.mu.Lock()
		err := c.channel.PublishWithContext(ctx, c.config.ExchangeName, routingKey, false, false, msg)
		c.mu.Unlock()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < maxRetries {
			delay := baseDelay * time.Duration(1<<uint(attempt))
			c.logger.Warn("Failed to publish message to RabbitMQ, retrying", map[string]interface{}{
				"attempt":    attempt + 1,
				"retryAfter": delay.String(),
				"routingKey": routingKey,
				"error":      err.Error(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("failed to publish message after %d attempts: %w", maxRetries+1, lastErr)
}

// Consume applies the prefetch limit and starts a manual-ack consumer.
func (c *Client) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	prefetch := c.config.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}
	if err := c.channel.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := c.channel.Consume(c.config.QueueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}
	return deliveries, nil
}

func (c *Client) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

func (c *Client) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Warn("Failed to close RabbitMQ channel", map[string]interface{}{"error": err.Error()})
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
