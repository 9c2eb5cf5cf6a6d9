// Package bootstrap connects the backing services shared by both binaries,
// retrying each with exponential backoff while the environment comes up.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"mission-dispatch/internal/common/config"
	"mission-dispatch/internal/common/database"
	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/common/observability"
	"mission-dispatch/internal/common/rabbitmq"
	"mission-dispatch/internal/models"
)

// RetryWithBackoff runs operation until it succeeds or maxRetries attempts fail.
func RetryWithBackoff(ctx context.Context, log logger.Logger, name string, maxRetries int, initialDelay time.Duration, operation func() error) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		if err = operation(); err == nil {
			return nil
		}
		if i == maxRetries-1 {
			break
		}
		log.Warn(name+" failed, retrying", map[string]interface{}{
			"error":       err.Error(),
			"attempt":     i + 1,
			"maxRetries":  maxRetries,
			"nextRetryIn": delay.String(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, maxRetries, err)
}

func Postgres(ctx context.Context, cfg config.PostgresConfig, log logger.Logger) (*database.PostgresClient, error) {
	var pg *database.PostgresClient
	err := RetryWithBackoff(ctx, log, "PostgreSQL connection", 15, 2*time.Second, func() error {
		var err error
		pg, err = database.OpenPostgres(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info("PostgreSQL connected", map[string]interface{}{"host": cfg.Host, "database": cfg.Database})
	return pg, nil
}

func Redis(ctx context.Context, cfg config.RedisConfig, log logger.Logger) (*database.RedisClient, error) {
	var rdb *database.RedisClient
	err := RetryWithBackoff(ctx, log, "Redis connection", 10, 2*time.Second, func() error {
		var err error
		rdb, err = database.OpenRedis(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info("Redis connected", map[string]interface{}{"address": cfg.Address, "poolSize": cfg.PoolSize})
	return rdb, nil
}

// Elasticsearch connects and makes sure the inbox index exists with mapping.
func Elasticsearch(ctx context.Context, cfg config.ElasticsearchConfig, mapping string, log logger.Logger) (*database.ElasticsearchClient, error) {
	var es *database.ElasticsearchClient
	err := RetryWithBackoff(ctx, log, "Elasticsearch connection", 15, 2*time.Second, func() error {
		var err error
		es, err = database.OpenElasticsearch(ctx, cfg, cfg.InboxIndex, mapping)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info("Elasticsearch connected", map[string]interface{}{"url": cfg.GetURL(), "index": cfg.InboxIndex})
	return es, nil
}

// RabbitMQ opens the dispatch event exchange. When consume is set the
// notification queue is declared and bound to every event type.
func RabbitMQ(cfg config.RabbitMQConfig, consume bool, log logger.Logger) (*rabbitmq.Client, error) {
	rc := &rabbitmq.Config{
		URL:               cfg.URL,
		ExchangeName:      cfg.Exchange,
		Prefetch:          cfg.Prefetch,
		RetryAttempts:     10,
		RetryInterval:     2 * time.Second,
		Heartbeat:         10 * time.Second,
		PublishRetries:    cfg.PublishRetry,
		PublishRetryDelay: 200 * time.Millisecond,
	}
	if consume {
		rc.QueueName = cfg.Queue
		for _, t := range models.AllEventTypes {
			rc.BindingKeys = append(rc.BindingKeys, string(t))
		}
	}
	return rabbitmq.NewClient(rc, log)
}

// Tracing installs the Jaeger exporter when enabled and returns its shutdown func.
func Tracing(cfg config.TracingConfig, serviceName string, log logger.Logger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop
	}
	shutdown, err := observability.NewTracerProvider(serviceName, cfg.JaegerEndpoint, cfg.SampleRatio)
	if err != nil {
		log.Warn("Tracing disabled", map[string]interface{}{"error": err.Error()})
		return noop
	}
	return shutdown
}

// Logger builds the structured logger from config.
func Logger(cfg config.LoggingConfig) logger.Logger {
	return logger.NewStructured(cfg.Level, cfg.Format, cfg.Output)
}
