package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/common/metrics"
	"mission-dispatch/internal/models"

	"golang.org/x/time/rate"
)

// ErrMissingContact means the recipient cannot be reached on the channel.
// Retrying does not help, so the delivery fails immediately.
var ErrMissingContact = errors.New("MISSING_CONTACT")

// Sender delivers one notification through a channel provider.
type Sender interface {
	Channel() models.Channel
	Send(ctx context.Context, contact models.Contact, job models.DeliveryJob) error
}

// WorkerConfig bounds a channel worker.
type WorkerConfig struct {
	BatchSize         int
	VisibilityTimeout time.Duration
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	RatePerSecond     float64
	Burst             int
}

// Stats summarizes one RunOnce pass.
type Stats struct {
	Claimed int
	Sent    int
	Retried int
	Failed  int
}

// Worker drains the backlog of one channel. Workers for different channels
// share nothing but the store.
type Worker struct {
	store   Store
	sender  Sender
	index   Index
	limiter *rate.Limiter
	cfg     WorkerConfig
	logger  logger.Logger
	now     func() time.Time
}

func NewWorker(store Store, sender Sender, index Index, cfg WorkerConfig, log logger.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 5 * time.Minute
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = cfg.BackoffBase
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if index == nil {
		index = NopIndex
	}
	return &Worker{
		store:   store,
		sender:  sender,
		index:   index,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		cfg:     cfg,
		logger:  log.WithFields(map[string]interface{}{"channel": string(sender.Channel())}),
		now:     time.Now,
	}
}

func (w *Worker) Channel() models.Channel {
	return w.sender.Channel()
}

// RunOnce claims one batch and attempts each delivery once.
func (w *Worker) RunOnce(ctx context.Context) (Stats, error) {
	channel := w.sender.Channel()
	var stats Stats

	jobs, err := w.store.ClaimBatch(ctx, channel, w.now().UTC(), w.cfg.BatchSize, w.cfg.VisibilityTimeout)
	if err != nil {
		return stats, fmt.Errorf("claim batch: %w", err)
	}
	stats.Claimed = len(jobs)
	metrics.NotificationBatchSize.WithLabelValues(string(channel)).Set(float64(len(jobs)))

	for _, job := range jobs {
		if err := w.limiter.Wait(ctx); err != nil {
			// Unattempted jobs stay in processing and are reclaimed after the visibility timeout.
			return stats, err
		}
		status, err := w.deliver(ctx, job)
		if err != nil {
			return stats, err
		}
		switch status {
		case models.DeliverySent:
			stats.Sent++
		case models.DeliveryPending:
			stats.Retried++
		case models.DeliveryFailed:
			stats.Failed++
		}
	}

	if stats.Claimed > 0 {
		w.logger.Info("Delivery batch processed", map[string]interface{}{
			"claimed": stats.Claimed,
			"sent":    stats.Sent,
			"retried": stats.Retried,
			"failed":  stats.Failed,
		})
	}
	return stats, nil
}

func (w *Worker) deliver(ctx context.Context, job models.DeliveryJob) (models.DeliveryStatus, error) {
	channel := w.sender.Channel()

	contact, err := w.store.GetContact(ctx, job.RecipientID)
	if err == nil {
		start := time.Now()
		err = w.sender.Send(ctx, contact, job)
		metrics.NotificationDeliveryDuration.WithLabelValues(string(channel)).Observe(time.Since(start).Seconds())
	}

	now := w.now().UTC()
	d := models.Delivery{NotificationID: job.NotificationID, Channel: channel, UpdatedAt: now}

	switch {
	case err == nil:
		if markErr := w.store.MarkSent(ctx, job.NotificationID, channel, now); markErr != nil {
			return "", fmt.Errorf("mark sent: %w", markErr)
		}
		d.Status, d.SentAt, d.RetryCount = models.DeliverySent, &now, job.RetryCount

	case errors.Is(err, ErrMissingContact) || job.RetryCount+1 >= job.MaxRetries:
		retries := job.RetryCount + 1
		if markErr := w.store.MarkFailed(ctx, job.NotificationID, channel, retries, err.Error(), now); markErr != nil {
			return "", fmt.Errorf("mark failed: %w", markErr)
		}
		d.Status, d.Error, d.RetryCount = models.DeliveryFailed, err.Error(), retries
		w.logger.Warn("Delivery failed permanently", map[string]interface{}{
			"notificationId": job.NotificationID,
			"recipientId":    job.RecipientID,
			"retryCount":     retries,
			"error":          err.Error(),
		})

	default:
		retries := job.RetryCount + 1
		next := now.Add(Backoff(w.cfg.BackoffBase, w.cfg.BackoffMax, retries))
		if markErr := w.store.MarkRetry(ctx, job.NotificationID, channel, retries, next, err.Error(), now); markErr != nil {
			return "", fmt.Errorf("mark retry: %w", markErr)
		}
		d.Status, d.Error, d.RetryCount, d.NextRetryAt = models.DeliveryPending, err.Error(), retries, next
		w.logger.Debug("Delivery rescheduled", map[string]interface{}{
			"notificationId": job.NotificationID,
			"retryCount":     retries,
			"nextRetryAt":    next,
			"error":          err.Error(),
		})
	}

	metrics.NotificationDeliveries.WithLabelValues(string(channel), string(d.Status)).Inc()
	if err := w.index.UpdateDelivery(ctx, job.NotificationID, d); err != nil {
		w.logger.Warn("Failed to update inbox index", map[string]interface{}{
			"notificationId": job.NotificationID,
			"error":          err.Error(),
		})
	}
	return d.Status, nil
}
