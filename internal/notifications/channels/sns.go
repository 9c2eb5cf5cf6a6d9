package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mission-dispatch/internal/models"
	"mission-dispatch/internal/notifications"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSService is the part of the SNS client SMS and push delivery need.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMS sends text messages to the recipient's phone number.
type SMS struct {
	client   SNSService
	senderID string
}

func NewSMS(client SNSService, senderID string) *SMS {
	return &SMS{client: client, senderID: senderID}
}

func (s *SMS) Channel() models.Channel {
	return models.ChannelSMS
}

func (s *SMS) Send(ctx context.Context, contact models.Contact, job models.DeliveryJob) error {
	if strings.TrimSpace(contact.Phone) == "" {
		return notifications.ErrMissingContact
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(contact.Phone),
		Message:     aws.String(job.Title + ": " + job.Message),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String(smsType(job.Priority))},
		},
	}
	if s.senderID != "" {
		input.MessageAttributes["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}

	if _, err := s.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("sns publish sms: %w", err)
	}
	return nil
}

func smsType(p models.Priority) string {
	if p >= models.PriorityHigh {
		return "Transactional"
	}
	return "Promotional"
}

// Push sends mobile notifications to the recipient's platform endpoint.
type Push struct {
	client SNSService
}

func NewPush(client SNSService) *Push {
	return &Push{client: client}
}

func (p *Push) Channel() models.Channel {
	return models.ChannelPush
}

type pushPayload struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	ActionLink string `json:"actionLink,omitempty"`
	EventType  string `json:"eventType"`
	ID         string `json:"notificationId"`
}

func (p *Push) Send(ctx context.Context, contact models.Contact, job models.DeliveryJob) error {
	if strings.TrimSpace(contact.PushEndpointARN) == "" {
		return notifications.ErrMissingContact
	}

	message, err := pushMessage(job)
	if err != nil {
		return err
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(contact.PushEndpointARN),
		Message:          aws.String(message),
		MessageStructure: aws.String("json"),
	})
	if err != nil {
		return fmt.Errorf("sns publish push: %w", err)
	}
	return nil
}

// pushMessage builds the per-platform envelope SNS expects with MessageStructure=json.
func pushMessage(job models.DeliveryJob) (string, error) {
	payload := pushPayload{
		Title:      job.Title,
		Body:       job.Message,
		ActionLink: job.ActionLink,
		EventType:  string(job.EventType),
		ID:         job.NotificationID,
	}
	gcm, err := json.Marshal(map[string]interface{}{
		"notification": map[string]string{"title": job.Title, "body": job.Message},
		"data":         payload,
	})
	if err != nil {
		return "", fmt.Errorf("marshal gcm payload: %w", err)
	}
	apns, err := json.Marshal(map[string]interface{}{
		"aps":  map[string]interface{}{"alert": map[string]string{"title": job.Title, "body": job.Message}},
		"data": payload,
	})
	if err != nil {
		return "", fmt.Errorf("marshal apns payload: %w", err)
	}
	envelope, err := json.Marshal(map[string]string{
		"default": job.Title + ": " + job.Message,
		"GCM":     string(gcm),
		"APNS":    string(apns),
	})
	if err != nil {
		return "", fmt.Errorf("marshal push envelope: %w", err)
	}
	return string(envelope), nil
}
