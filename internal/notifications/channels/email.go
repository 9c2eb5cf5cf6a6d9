// Package channels holds the provider-backed Senders the notification workers drive.
package channels

import (
	"context"
	"fmt"
	"html"
	"strings"

	"mission-dispatch/internal/models"
	"mission-dispatch/internal/notifications"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the part of the SES client email delivery needs.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type Email struct {
	client    SESService
	fromEmail string
}

func NewEmail(client SESService, fromEmail string) *Email {
	return &Email{client: client, fromEmail: fromEmail}
}

func (e *Email) Channel() models.Channel {
	return models.ChannelEmail
}

func (e *Email) Send(ctx context.Context, contact models.Contact, job models.DeliveryJob) error {
	if strings.TrimSpace(contact.Email) == "" {
		return notifications.ErrMissingContact
	}

	text := job.Message
	body := "<p>" + html.EscapeString(job.Message) + "</p>"
	if job.ActionLink != "" {
		text += "\n\n" + job.ActionLink
		body += fmt.Sprintf(`<p><a href="%s">Open</a></p>`, html.EscapeString(job.ActionLink))
	}

	_, err := e.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{contact.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(job.Title)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(text)},
				Html: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(e.fromEmail),
	})
	if err != nil {
		return fmt.Errorf("ses send email: %w", err)
	}
	return nil
}
