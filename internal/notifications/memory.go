package notifications

import (
	"context"
	"sort"
	"sync"
	"time"

	"mission-dispatch/internal/models"
)

// MemoryStore is the in-process Store used by tests and local runs.
type MemoryStore struct {
	mu            sync.Mutex
	notifications map[string]*models.Notification
	dedup         map[string]string
	deliveries    map[string]map[models.Channel]*models.Delivery
	contacts      map[string]models.Contact
	preferences   map[string]Preferences
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notifications: make(map[string]*models.Notification),
		dedup:         make(map[string]string),
		deliveries:    make(map[string]map[models.Channel]*models.Delivery),
		contacts:      make(map[string]models.Contact),
		preferences:   make(map[string]Preferences),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, n *models.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := n.RecipientID + "\x00" + n.DedupKey
	if _, exists := s.dedup[key]; exists {
		return false, nil
	}
	stored := *n
	stored.Channels = append([]models.Channel(nil), n.Channels...)
	stored.Deliveries = nil
	s.notifications[n.ID] = &stored
	s.dedup[key] = n.ID

	if n.Status == models.NotificationQueued {
		ds := make(map[models.Channel]*models.Delivery, len(n.Channels))
		for _, c := range n.Channels {
			ds[c] = &models.Delivery{
				NotificationID: n.ID,
				Channel:        c,
				Status:         models.DeliveryPending,
				NextRetryAt:    n.CreatedAt,
				UpdatedAt:      n.CreatedAt,
			}
		}
		s.deliveries[n.ID] = ds
	}
	return true, nil
}

func (s *MemoryStore) ClaimBatch(ctx context.Context, channel models.Channel, now time.Time, limit int, visibility time.Duration) ([]models.DeliveryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale := now.Add(-visibility)
	var due []*models.Delivery
	for _, ds := range s.deliveries {
		d, ok := ds[channel]
		if !ok {
			continue
		}
		switch d.Status {
		case models.DeliveryPending, "":
			if !d.NextRetryAt.After(now) {
				due = append(due, d)
			}
		case models.DeliveryProcessing:
			if !d.UpdatedAt.After(stale) {
				due = append(due, d)
			}
		}
	}

	jobs := make([]models.DeliveryJob, 0, len(due))
	for _, d := range due {
		n := s.notifications[d.NotificationID]
		jobs = append(jobs, models.DeliveryJob{
			NotificationID: n.ID,
			Channel:        channel,
			RecipientID:    n.RecipientID,
			EventType:      n.EventType,
			Title:          n.Title,
			Message:        n.Message,
			ActionLink:     n.ActionLink,
			Priority:       n.Priority,
			RetryCount:     d.RetryCount,
			MaxRetries:     n.MaxRetries,
			CreatedAt:      n.CreatedAt,
		})
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].Priority != jobs[j].Priority {
			return jobs[i].Priority > jobs[j].Priority
		}
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].NotificationID < jobs[j].NotificationID
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}

	for _, j := range jobs {
		d := s.deliveries[j.NotificationID][channel]
		d.Status = models.DeliveryProcessing
		d.UpdatedAt = now
	}
	return jobs, nil
}

func (s *MemoryStore) delivery(id string, channel models.Channel) (*models.Delivery, error) {
	d, ok := s.deliveries[id][channel]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	return d, nil
}

func (s *MemoryStore) MarkSent(ctx context.Context, notificationID string, channel models.Channel, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.delivery(notificationID, channel)
	if err != nil {
		return err
	}
	d.Status = models.DeliverySent
	d.SentAt = &at
	d.Error = ""
	d.UpdatedAt = at
	return nil
}

func (s *MemoryStore) MarkRetry(ctx context.Context, notificationID string, channel models.Channel, retryCount int, nextRetryAt time.Time, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.delivery(notificationID, channel)
	if err != nil {
		return err
	}
	d.Status = models.DeliveryPending
	d.RetryCount = retryCount
	d.NextRetryAt = nextRetryAt
	d.Error = errMsg
	d.UpdatedAt = at
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, notificationID string, channel models.Channel, retryCount int, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.delivery(notificationID, channel)
	if err != nil {
		return err
	}
	d.Status = models.DeliveryFailed
	d.RetryCount = retryCount
	d.Error = errMsg
	d.UpdatedAt = at
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	out := *n
	out.Deliveries = nil
	for _, c := range models.AllChannels {
		if d, ok := s.deliveries[id][c]; ok {
			out.Deliveries = append(out.Deliveries, *d)
		}
	}
	return &out, nil
}

func (s *MemoryStore) ListInbox(ctx context.Context, recipientID string, includeArchived bool, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Notification
	for _, n := range s.notifications {
		if n.RecipientID != recipientID || (!includeArchived && n.ArchivedAt != nil) {
			continue
		}
		for _, c := range n.Channels {
			if c == models.ChannelInApp {
				out = append(out, *n)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Archive(ctx context.Context, id, recipientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return ErrNotificationNotFound
	}
	n.Status = models.NotificationArchived
	if n.ArchivedAt == nil {
		n.ArchivedAt = &at
	}
	return nil
}

// PutContact stores contact details for a recipient.
func (s *MemoryStore) PutContact(c models.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.RecipientID] = c
}

func (s *MemoryStore) GetContact(ctx context.Context, recipientID string) (models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contacts[recipientID]; ok {
		return c, nil
	}
	return models.Contact{RecipientID: recipientID}, nil
}

func (s *MemoryStore) GetPreferences(ctx context.Context, recipientID string) (*Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.preferences[recipientID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) SavePreferences(ctx context.Context, p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[p.RecipientID] = p
	return nil
}
