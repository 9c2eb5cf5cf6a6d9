package notifications

import (
	"fmt"
	"strings"
	"time"

	"mission-dispatch/internal/models"
)

var (
	allChannels   = []models.Channel{models.ChannelInApp, models.ChannelEmail, models.ChannelSMS, models.ChannelPush}
	urgent        = []models.Channel{models.ChannelInApp, models.ChannelEmail, models.ChannelPush}
	informational = []models.Channel{models.ChannelInApp}
)

// Templates renders dispatch events into notification requests.
type Templates struct {
	actionBaseURL string
}

func NewTemplates(actionBaseURL string) *Templates {
	return &Templates{actionBaseURL: strings.TrimRight(actionBaseURL, "/")}
}

func (t *Templates) link(path string, args ...interface{}) string {
	if t.actionBaseURL == "" {
		return ""
	}
	return t.actionBaseURL + fmt.Sprintf(path, args...)
}

// Render returns one request per recipient the event concerns. Events nobody
// needs to hear about render to nothing.
func (t *Templates) Render(evt models.DispatchEvent) []Request {
	title := evt.MissionTitle
	if title == "" {
		title = "Mission " + evt.MissionID
	}
	// Keyed by event id: a redelivered event collapses, a repeated one does not.
	base := Request{
		EventType:       evt.Type,
		RelatedEntityID: evt.MissionID,
		DedupKey:        evt.ID,
	}
	build := func(recipient, heading, message string, priority models.Priority, channels []models.Channel, link string) Request {
		r := base
		r.RecipientID = recipient
		r.Title = heading
		r.Message = message
		r.Priority = priority
		r.Channels = channels
		r.ActionLink = link
		return r
	}

	var out []Request
	switch evt.Type {
	case models.EventOfferPublished:
		until := ""
		if raw, ok := evt.Data["expiresAt"].(string); ok {
			if at, err := time.Parse(time.RFC3339, raw); err == nil {
				until = " until " + at.UTC().Format("15:04 MST")
			}
		}
		for _, r := range evt.Recipients {
			out = append(out, build(r, "New mission available",
				fmt.Sprintf("%s is open for you to claim%s.", title, until),
				models.PriorityHigh, allChannels, t.link("/offers/%s", evt.MissionID)))
		}

	case models.EventOfferClaimed:
		if evt.CandidateID != "" {
			out = append(out, build(evt.CandidateID, "Mission confirmed",
				fmt.Sprintf("You claimed %s. The exact location is now visible.", title),
				models.PriorityHigh, urgent, t.link("/missions/%s", evt.MissionID)))
		}
		for _, r := range evt.Recipients {
			out = append(out, build(r, "Mission no longer available",
				fmt.Sprintf("%s was claimed by another worker.", title),
				models.PriorityLow, informational, ""))
		}

	case models.EventOfferExpired:
		if evt.CandidateID != "" {
			out = append(out, build(evt.CandidateID, "Offer expired",
				fmt.Sprintf("Your offer for %s has expired.", title),
				models.PriorityLow, informational, ""))
		}

	case models.EventMissionAssigned:
		if evt.CandidateID != "" {
			out = append(out, build(evt.CandidateID, "Mission assigned to you",
				fmt.Sprintf("An administrator assigned %s to you.", title),
				models.PriorityHigh, allChannels, t.link("/missions/%s", evt.MissionID)))
		}
		for _, r := range evt.Recipients {
			out = append(out, build(r, "Mission reassigned",
				fmt.Sprintf("%s has been reassigned to another worker.", title),
				models.PriorityNormal, urgent, ""))
		}

	case models.EventMissionCancelled:
		message := fmt.Sprintf("%s has been cancelled.", title)
		if reason, ok := evt.Data["reason"].(string); ok && reason != "" {
			message = fmt.Sprintf("%s has been cancelled: %s.", title, reason)
		}
		if evt.CandidateID != "" {
			out = append(out, build(evt.CandidateID, "Mission cancelled", message,
				models.PriorityHigh, allChannels, t.link("/missions/%s", evt.MissionID)))
		}
		for _, r := range evt.Recipients {
			out = append(out, build(r, "Mission cancelled", message,
				models.PriorityNormal, informational, ""))
		}
	}
	return out
}
