package notifications

import (
	"context"
	"fmt"
	"time"

	"mission-dispatch/internal/models"

	"github.com/patrickmn/go-cache"
	"github.com/samber/lo"
)

// Preferences are a recipient's delivery choices. A channel missing from
// Channels is enabled.
type Preferences struct {
	RecipientID string                  `json:"recipientId"`
	Channels    map[models.Channel]bool `json:"channels"`
	MutedEvents []models.EventType      `json:"mutedEvents"`
	QuietHours  *QuietHours             `json:"quietHours,omitempty"`
}

// QuietHours is a daily window, in minutes from local midnight, during which
// intrusive channels are suppressed. Start > End wraps past midnight.
type QuietHours struct {
	StartMinute int    `json:"startMinute"`
	EndMinute   int    `json:"endMinute"`
	Timezone    string `json:"timezone"`
}

// Active reports whether now falls inside the window. An unknown timezone is treated as UTC.
func (q QuietHours) Active(now time.Time) bool {
	if q.StartMinute == q.EndMinute {
		return false
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil || q.Timezone == "" {
		loc = time.UTC
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if q.StartMinute < q.EndMinute {
		return minute >= q.StartMinute && minute < q.EndMinute
	}
	return minute >= q.StartMinute || minute < q.EndMinute
}

func (q QuietHours) Validate() error {
	if q.StartMinute < 0 || q.StartMinute >= 24*60 || q.EndMinute < 0 || q.EndMinute >= 24*60 {
		return fmt.Errorf("quiet hours must be within [0, 1440) minutes")
	}
	if q.Timezone != "" {
		if _, err := time.LoadLocation(q.Timezone); err != nil {
			return fmt.Errorf("quiet hours timezone: %w", err)
		}
	}
	return nil
}

// Skip reasons recorded on notifications whose channel set filtered to nothing.
const (
	SkipNoChannels  = "no channels requested"
	SkipEventMuted  = "event type muted"
	SkipChannelsOff = "all requested channels disabled"
	SkipQuietHours  = "quiet hours"
)

// FilterChannels applies prefs to the requested channels. When the result is
// empty the returned reason says why.
func FilterChannels(prefs *Preferences, eventType models.EventType, requested []models.Channel, now time.Time) ([]models.Channel, string) {
	channels := lo.Uniq(requested)
	if len(channels) == 0 {
		return nil, SkipNoChannels
	}
	if prefs == nil {
		return channels, ""
	}
	if lo.Contains(prefs.MutedEvents, eventType) {
		return nil, SkipEventMuted
	}

	channels = lo.Filter(channels, func(c models.Channel, _ int) bool {
		enabled, set := prefs.Channels[c]
		return !set || enabled
	})
	if len(channels) == 0 {
		return nil, SkipChannelsOff
	}

	if prefs.QuietHours != nil && prefs.QuietHours.Active(now) {
		channels = lo.Reject(channels, func(c models.Channel, _ int) bool { return c.Intrusive() })
		if len(channels) == 0 {
			return nil, SkipQuietHours
		}
	}
	return channels, ""
}

// PreferenceSource loads stored preferences; nil, nil means none stored.
type PreferenceSource interface {
	GetPreferences(ctx context.Context, recipientID string) (*Preferences, error)
}

// CachedPreferences fronts a PreferenceSource with a TTL cache. Absence is cached too.
type CachedPreferences struct {
	source PreferenceSource
	cache  *cache.Cache
}

func NewCachedPreferences(source PreferenceSource, ttl time.Duration) *CachedPreferences {
	return &CachedPreferences{
		source: source,
		cache:  cache.New(ttl, 2*ttl),
	}
}

func (c *CachedPreferences) GetPreferences(ctx context.Context, recipientID string) (*Preferences, error) {
	if v, ok := c.cache.Get(recipientID); ok {
		return v.(*Preferences), nil
	}
	prefs, err := c.source.GetPreferences(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(recipientID, prefs)
	return prefs, nil
}

// Invalidate drops the cached entry after a preference update.
func (c *CachedPreferences) Invalidate(recipientID string) {
	c.cache.Delete(recipientID)
}
