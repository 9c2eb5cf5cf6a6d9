package notifications

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"mission-dispatch/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Helpers
// ==========================

var jobCols = []string{
	"notification_id", "channel", "recipient_id", "event_type", "title", "message",
	"action_link", "priority", "retry_count", "max_retries", "created_at",
}

var notificationCols = []string{
	"id", "recipient_id", "event_type", "related_entity_id", "title", "message", "action_link",
	"priority", "channels", "dedup_key", "status", "skip_reason", "max_retries", "created_at", "archived_at",
}

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func newMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func queued(channels ...models.Channel) *models.Notification {
	return &models.Notification{
		ID:          "n-1",
		RecipientID: "w1",
		EventType:   models.EventOfferPublished,
		Title:       "New mission available",
		Priority:    models.PriorityHigh,
		Channels:    channels,
		DedupKey:    "k-1",
		Status:      models.NotificationQueued,
		MaxRetries:  5,
		CreatedAt:   fixedNow,
	}
}

// ==========================
// Insert
// ==========================

func TestInsert_CreatesDeliveries(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO notifications .* ON CONFLICT \(recipient_id, dedup_key\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO notification_deliveries .* unnest\(\$2::text\[\]\)`).
		WithArgs("n-1", pq.Array([]string{"in_app", "email"}), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	created, err := s.Insert(context.Background(), queued(models.ChannelInApp, models.ChannelEmail))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_DuplicateIsNotCreated(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO notifications`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	created, err := s.Insert(context.Background(), queued(models.ChannelInApp))
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_SkippedHasNoDeliveries(t *testing.T) {
	s, mock := newMock(t)
	n := queued()
	n.Status = models.NotificationSkipped
	n.SkipReason = SkipQuietHours

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO notifications`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := s.Insert(context.Background(), n)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_RollsBackOnDeliveryFailure(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO notifications`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO notification_deliveries`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.Insert(context.Background(), queued(models.ChannelSMS))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert deliveries")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Deliveries
// ==========================

func TestClaimBatch(t *testing.T) {
	s, mock := newMock(t)
	older := fixedNow.Add(-time.Hour)

	mock.ExpectQuery(`WITH batch AS .* FOR UPDATE OF d SKIP LOCKED .* RETURNING`).
		WithArgs("sms", fixedNow, fixedNow.Add(-5*time.Minute), 10).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow("n-low", "sms", "w1", "offer.expired", "Offer expired", "", "", 0, 0, 5, older).
			AddRow("n-new", "sms", "w2", "offer.published", "New mission", "", "", 10, 1, 5, fixedNow).
			AddRow("n-old", "sms", "w3", "offer.published", "New mission", "", "", 10, 0, 5, older))

	jobs, err := s.ClaimBatch(context.Background(), models.ChannelSMS, fixedNow, 10, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"n-old", "n-new", "n-low"},
		[]string{jobs[0].NotificationID, jobs[1].NotificationID, jobs[2].NotificationID})
	assert.Equal(t, 1, jobs[1].RetryCount)
	assert.Equal(t, models.ChannelSMS, jobs[0].Channel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRetry_UnknownDelivery(t *testing.T) {
	s, mock := newMock(t)
	next := fixedNow.Add(time.Minute)

	mock.ExpectExec(`UPDATE notification_deliveries SET status = 'pending'`).
		WithArgs("n-1", "email", 2, next, "timeout", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.MarkRetry(context.Background(), "n-1", models.ChannelEmail, 2, next, "timeout", fixedNow)
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}

func TestMarkFailed(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`UPDATE notification_deliveries SET status = 'failed'`).
		WithArgs("n-1", "push", 5, "endpoint disabled", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.MarkFailed(context.Background(), "n-1", models.ChannelPush, 5, "endpoint disabled", fixedNow))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Inbox
// ==========================

func TestListInbox(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`FROM notifications WHERE recipient_id = \$1 AND 'in_app' = ANY\(channels\)`).
		WithArgs("w1", false, 20).
		WillReturnRows(sqlmock.NewRows(notificationCols).AddRow(
			"n-1", "w1", "offer.claimed", "m-1", "Mission confirmed", "You claimed it.", "",
			10, "{in_app,email}", "k-1", "queued", "", 5, fixedNow, nil,
		))

	inbox, err := s.ListInbox(context.Background(), "w1", false, 20)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, []models.Channel{models.ChannelInApp, models.ChannelEmail}, inbox[0].Channels)
	assert.Equal(t, models.EventOfferClaimed, inbox[0].EventType)
	assert.Nil(t, inbox[0].ArchivedAt)
}

func TestArchive(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`UPDATE notifications SET status = 'archived', archived_at = COALESCE\(archived_at, \$3\)`).
		WithArgs("n-1", "w1", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE notifications`).
		WithArgs("n-1", "w2", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Archive(context.Background(), "n-1", "w1", fixedNow))
	assert.ErrorIs(t, s.Archive(context.Background(), "n-1", "w2", fixedNow), ErrNotificationNotFound)
}

func TestGet_NotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`FROM notifications WHERE id = \$1`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}

// ==========================
// Contacts & preferences
// ==========================

func TestGetContact_Missing(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`FROM contacts`).WithArgs("w9").WillReturnError(sql.ErrNoRows)

	c, err := s.GetContact(context.Background(), "w9")
	require.NoError(t, err)
	assert.Equal(t, models.Contact{RecipientID: "w9"}, c)
}

func TestGetPreferences(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`FROM notification_preferences`).WithArgs("w1").
		WillReturnRows(sqlmock.NewRows([]string{"disabled_channels", "muted_events", "quiet_start", "quiet_end", "timezone"}).
			AddRow("{sms}", "{offer.expired}", 1320, 420, "Europe/Paris"))

	p, err := s.GetPreferences(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, map[models.Channel]bool{models.ChannelSMS: false}, p.Channels)
	assert.Equal(t, []models.EventType{models.EventOfferExpired}, p.MutedEvents)
	assert.Equal(t, &QuietHours{StartMinute: 1320, EndMinute: 420, Timezone: "Europe/Paris"}, p.QuietHours)
}

func TestGetPreferences_NoneStored(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`FROM notification_preferences`).WithArgs("w1").WillReturnError(sql.ErrNoRows)

	p, err := s.GetPreferences(context.Background(), "w1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSavePreferences(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`INSERT INTO notification_preferences .* ON CONFLICT \(recipient_id\) DO UPDATE`).
		WithArgs("w1", pq.Array([]string{"email", "sms"}), pq.Array([]string{}),
			sql.NullInt64{}, sql.NullInt64{}, "UTC").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.SavePreferences(context.Background(), Preferences{
		RecipientID: "w1",
		Channels:    map[models.Channel]bool{models.ChannelSMS: false, models.ChannelEmail: false, models.ChannelInApp: true},
		MutedEvents: []models.EventType{},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
