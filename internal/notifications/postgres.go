package notifications

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"mission-dispatch/internal/common/database"
	"mission-dispatch/internal/models"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate notification schema: %w", err)
	}
	return nil
}

func channelStrings(channels []models.Channel) []string {
	out := make([]string, len(channels))
	for i, c := range channels {
		out[i] = string(c)
	}
	return out
}

func parseChannels(raw []string) ([]models.Channel, error) {
	out := make([]models.Channel, 0, len(raw))
	for _, r := range raw {
		c, err := models.ParseChannel(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *PostgresStore) Insert(ctx context.Context, n *models.Notification) (bool, error) {
	created := false
	err := database.InTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO notifications
				(id, recipient_id, event_type, related_entity_id, title, message, action_link,
				 priority, channels, dedup_key, status, skip_reason, max_retries, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (recipient_id, dedup_key) DO NOTHING`,
			n.ID, n.RecipientID, string(n.EventType), n.RelatedEntityID, n.Title, n.Message, n.ActionLink,
			int(n.Priority), pq.Array(channelStrings(n.Channels)), n.DedupKey, string(n.Status), n.SkipReason,
			n.MaxRetries, n.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		if rows == 0 {
			return nil
		}
		created = true

		if n.Status != models.NotificationQueued || len(n.Channels) == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO notification_deliveries (notification_id, channel, status, next_retry_at, updated_at)
			SELECT $1, unnest($2::text[]), 'pending', $3, $3`,
			n.ID, pq.Array(channelStrings(n.Channels)), n.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert deliveries: %w", err)
		}
		return nil
	})
	return created, err
}

const claimQuery = `
	WITH batch AS (
		SELECT d.notification_id, d.channel
		FROM notification_deliveries d
		JOIN notifications n ON n.id = d.notification_id
		WHERE d.channel = $1
		  AND (
		        (COALESCE(d.status, 'pending') = 'pending' AND d.next_retry_at <= $2)
		     OR (d.status = 'processing' AND d.updated_at <= $3)
		  )
		ORDER BY n.priority DESC, n.created_at
		LIMIT $4
		FOR UPDATE OF d SKIP LOCKED
	)
	UPDATE notification_deliveries d
	SET status = 'processing', updated_at = $2
	FROM batch, notifications n
	WHERE d.notification_id = batch.notification_id
	  AND d.channel = batch.channel
	  AND n.id = d.notification_id
	RETURNING d.notification_id, d.channel, n.recipient_id, n.event_type, n.title, n.message,
	          n.action_link, n.priority, d.retry_count, n.max_retries, n.created_at`

func (s *PostgresStore) ClaimBatch(ctx context.Context, channel models.Channel, now time.Time, limit int, visibility time.Duration) ([]models.DeliveryJob, error) {
	rows, err := s.db.QueryContext(ctx, claimQuery, string(channel), now, now.Add(-visibility), limit)
	if err != nil {
		return nil, fmt.Errorf("claim %s deliveries: %w", channel, err)
	}
	defer rows.Close()

	var jobs []models.DeliveryJob
	for rows.Next() {
		var (
			j         models.DeliveryJob
			ch, event string
			priority  int
		)
		if err := rows.Scan(&j.NotificationID, &ch, &j.RecipientID, &event, &j.Title, &j.Message,
			&j.ActionLink, &priority, &j.RetryCount, &j.MaxRetries, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		if j.Channel, err = models.ParseChannel(ch); err != nil {
			return nil, err
		}
		if j.EventType, err = models.ParseEventType(event); err != nil {
			return nil, err
		}
		j.Priority = models.Priority(priority)
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim %s deliveries: %w", channel, err)
	}
	sortJobs(jobs)
	return jobs, nil
}

// sortJobs restores backlog order, which UPDATE ... RETURNING does not preserve.
func sortJobs(jobs []models.DeliveryJob) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].Priority != jobs[j].Priority {
			return jobs[i].Priority > jobs[j].Priority
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
}

func (s *PostgresStore) MarkSent(ctx context.Context, notificationID string, channel models.Channel, at time.Time) error {
	return s.updateDelivery(ctx, "mark sent", `
		UPDATE notification_deliveries
		SET status = 'sent', sent_at = $3, error = '', updated_at = $3
		WHERE notification_id = $1 AND channel = $2`,
		notificationID, string(channel), at)
}

func (s *PostgresStore) MarkRetry(ctx context.Context, notificationID string, channel models.Channel, retryCount int, nextRetryAt time.Time, errMsg string, at time.Time) error {
	return s.updateDelivery(ctx, "mark retry", `
		UPDATE notification_deliveries
		SET status = 'pending', retry_count = $3, next_retry_at = $4, error = $5, updated_at = $6
		WHERE notification_id = $1 AND channel = $2`,
		notificationID, string(channel), retryCount, nextRetryAt, errMsg, at)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, notificationID string, channel models.Channel, retryCount int, errMsg string, at time.Time) error {
	return s.updateDelivery(ctx, "mark failed", `
		UPDATE notification_deliveries
		SET status = 'failed', retry_count = $3, error = $4, updated_at = $5
		WHERE notification_id = $1 AND channel = $2`,
		notificationID, string(channel), retryCount, errMsg, at)
}

func (s *PostgresStore) updateDelivery(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

const notificationColumns = `id, recipient_id, event_type, related_entity_id, title, message, action_link,
	priority, channels, dedup_key, status, skip_reason, max_retries, created_at, archived_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row scanner) (*models.Notification, error) {
	var (
		n             models.Notification
		event, status string
		priority      int
		channels      pq.StringArray
		archivedAt    sql.NullTime
	)
	if err := row.Scan(&n.ID, &n.RecipientID, &event, &n.RelatedEntityID, &n.Title, &n.Message, &n.ActionLink,
		&priority, &channels, &n.DedupKey, &status, &n.SkipReason, &n.MaxRetries, &n.CreatedAt, &archivedAt); err != nil {
		return nil, err
	}

	var err error
	if n.EventType, err = models.ParseEventType(event); err != nil {
		return nil, err
	}
	if n.Status, err = models.ParseNotificationStatus(status); err != nil {
		return nil, err
	}
	if n.Channels, err = parseChannels(channels); err != nil {
		return nil, err
	}
	n.Priority = models.Priority(priority)
	if archivedAt.Valid {
		t := archivedAt.Time
		n.ArchivedAt = &t
	}
	return &n, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Notification, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT channel, COALESCE(status, 'pending'), error, retry_count, next_retry_at, sent_at, updated_at
		FROM notification_deliveries
		WHERE notification_id = $1
		ORDER BY channel`, id)
	if err != nil {
		return nil, fmt.Errorf("get deliveries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d          models.Delivery
			ch, status string
			sentAt     sql.NullTime
		)
		if err := rows.Scan(&ch, &status, &d.Error, &d.RetryCount, &d.NextRetryAt, &sentAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		if d.Channel, err = models.ParseChannel(ch); err != nil {
			return nil, err
		}
		if d.Status, err = models.ParseDeliveryStatus(status); err != nil {
			return nil, err
		}
		if sentAt.Valid {
			t := sentAt.Time
			d.SentAt = &t
		}
		d.NotificationID = id
		n.Deliveries = append(n.Deliveries, d)
	}
	return n, rows.Err()
}

func (s *PostgresStore) ListInbox(ctx context.Context, recipientID string, includeArchived bool, limit int) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = $1
		  AND 'in_app' = ANY(channels)
		  AND ($2 OR archived_at IS NULL)
		ORDER BY created_at DESC
		LIMIT $3`, recipientID, includeArchived, limit)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Archive(ctx context.Context, id, recipientID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'archived', archived_at = COALESCE(archived_at, $3)
		WHERE id = $1 AND recipient_id = $2`, id, recipientID, at)
	if err != nil {
		return fmt.Errorf("archive notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive notification: %w", err)
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *PostgresStore) GetContact(ctx context.Context, recipientID string) (models.Contact, error) {
	c := models.Contact{RecipientID: recipientID}
	err := s.db.QueryRowContext(ctx, `
		SELECT email, phone, push_endpoint_arn FROM contacts WHERE recipient_id = $1`, recipientID,
	).Scan(&c.Email, &c.Phone, &c.PushEndpointARN)
	if errors.Is(err, sql.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetPreferences(ctx context.Context, recipientID string) (*Preferences, error) {
	var (
		disabled, muted      pq.StringArray
		quietStart, quietEnd sql.NullInt64
		timezone             string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT disabled_channels, muted_events, quiet_start, quiet_end, timezone
		FROM notification_preferences WHERE recipient_id = $1`, recipientID,
	).Scan(&disabled, &muted, &quietStart, &quietEnd, &timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	p := &Preferences{RecipientID: recipientID, Channels: map[models.Channel]bool{}}
	for _, raw := range disabled {
		c, err := models.ParseChannel(raw)
		if err != nil {
			return nil, err
		}
		p.Channels[c] = false
	}
	for _, raw := range muted {
		t, err := models.ParseEventType(raw)
		if err != nil {
			return nil, err
		}
		p.MutedEvents = append(p.MutedEvents, t)
	}
	if quietStart.Valid && quietEnd.Valid {
		p.QuietHours = &QuietHours{
			StartMinute: int(quietStart.Int64),
			EndMinute:   int(quietEnd.Int64),
			Timezone:    timezone,
		}
	}
	return p, nil
}

func (s *PostgresStore) SavePreferences(ctx context.Context, p Preferences) error {
	var disabled []string
	for c, enabled := range p.Channels {
		if !enabled {
			disabled = append(disabled, string(c))
		}
	}
	sort.Strings(disabled)
	muted := make([]string, len(p.MutedEvents))
	for i, t := range p.MutedEvents {
		muted[i] = string(t)
	}

	var quietStart, quietEnd sql.NullInt64
	timezone := "UTC"
	if q := p.QuietHours; q != nil {
		quietStart = sql.NullInt64{Int64: int64(q.StartMinute), Valid: true}
		quietEnd = sql.NullInt64{Int64: int64(q.EndMinute), Valid: true}
		if q.Timezone != "" {
			timezone = q.Timezone
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_preferences
			(recipient_id, disabled_channels, muted_events, quiet_start, quiet_end, timezone)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (recipient_id) DO UPDATE SET
			disabled_channels = EXCLUDED.disabled_channels,
			muted_events      = EXCLUDED.muted_events,
			quiet_start       = EXCLUDED.quiet_start,
			quiet_end         = EXCLUDED.quiet_end,
			timezone          = EXCLUDED.timezone`,
		p.RecipientID, pq.Array(disabled), pq.Array(muted), quietStart, quietEnd, timezone)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}
