package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	commonerrors "mission-dispatch/internal/common/errors"
	"mission-dispatch/internal/models"
	"mission-dispatch/internal/notifications"

	"github.com/go-playground/validator/v10"
)

type publishRequest struct {
	TTLMinutes       int  `json:"ttlMinutes" validate:"gte=0,lte=10080"`
	IncludeEmployees bool `json:"includeEmployees"`
}

type assignRequest struct {
	CandidateID string `json:"candidateId" validate:"required,max=128"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type claimResponse struct {
	Result models.ClaimResult `json:"result"`
}

type quietHoursDTO struct {
	StartMinute int    `json:"startMinute" validate:"gte=0,lt=1440"`
	EndMinute   int    `json:"endMinute" validate:"gte=0,lt=1440"`
	Timezone    string `json:"timezone" validate:"omitempty,timezone"`
}

type preferencesRequest struct {
	Channels    map[string]bool `json:"channels" validate:"dive,keys,oneof=in_app email sms push,endkeys"`
	MutedEvents []string        `json:"mutedEvents" validate:"dive,required"`
	QuietHours  *quietHoursDTO  `json:"quietHours"`
}

func (p preferencesRequest) toPreferences(recipientID string) (notifications.Preferences, error) {
	out := notifications.Preferences{RecipientID: recipientID, Channels: map[models.Channel]bool{}}
	for raw, enabled := range p.Channels {
		c, err := models.ParseChannel(raw)
		if err != nil {
			return out, commonerrors.NewValidationError(err.Error())
		}
		out.Channels[c] = enabled
	}
	for _, raw := range p.MutedEvents {
		t, err := models.ParseEventType(raw)
		if err != nil {
			return out, commonerrors.NewValidationError(err.Error())
		}
		out.MutedEvents = append(out.MutedEvents, t)
	}
	if q := p.QuietHours; q != nil {
		out.QuietHours = &notifications.QuietHours{StartMinute: q.StartMinute, EndMinute: q.EndMinute, Timezone: q.Timezone}
		if err := out.QuietHours.Validate(); err != nil {
			return out, commonerrors.NewValidationError(err.Error())
		}
	}
	return out, nil
}

// decode reads an optional JSON body into dst and validates it. An empty body
// leaves dst at its zero value.
func decode(r *http.Request, v *validator.Validate, dst interface{}) error {
	if r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return commonerrors.NewValidationError(fmt.Sprintf("invalid request body: %v", err))
		}
	}
	if err := v.Struct(dst); err != nil {
		return commonerrors.NewValidationError(validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
