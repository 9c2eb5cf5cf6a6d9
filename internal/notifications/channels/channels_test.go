package channels

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/dispatch/events"
	"mission-dispatch/internal/models"
	"mission-dispatch/internal/notifications"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

func sampleJob() models.DeliveryJob {
	return models.DeliveryJob{
		NotificationID: "n-1",
		RecipientID:    "w1",
		EventType:      models.EventOfferPublished,
		Title:          "New mission available",
		Message:        "Boiler repair is open for you to claim.",
		ActionLink:     "https://dispatch.example.com/offers/m-1",
		Priority:       models.PriorityHigh,
		CreatedAt:      time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// ==========================
// Email
// ==========================

func TestEmail_Send(t *testing.T) {
	var got *ses.SendEmailInput
	client := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			got = params
			return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
		},
	}

	err := NewEmail(client, "dispatch@example.com").Send(context.Background(),
		models.Contact{RecipientID: "w1", Email: "w1@example.com"}, sampleJob())
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, []string{"w1@example.com"}, got.Destination.ToAddresses)
	assert.Equal(t, "dispatch@example.com", aws.ToString(got.Source))
	assert.Equal(t, "New mission available", aws.ToString(got.Message.Subject.Data))
	assert.Contains(t, aws.ToString(got.Message.Body.Text.Data), "https://dispatch.example.com/offers/m-1")
	assert.Contains(t, aws.ToString(got.Message.Body.Html.Data), `<a href="https://dispatch.example.com/offers/m-1">`)
}

func TestEmail_MissingAddress(t *testing.T) {
	client := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			t.Fatal("SES must not be called without an address")
			return nil, nil
		},
	}

	err := NewEmail(client, "dispatch@example.com").Send(context.Background(), models.Contact{RecipientID: "w1"}, sampleJob())
	assert.ErrorIs(t, err, notifications.ErrMissingContact)
}

func TestEmail_ProviderError(t *testing.T) {
	client := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("throttled")
		},
	}

	err := NewEmail(client, "dispatch@example.com").Send(context.Background(),
		models.Contact{Email: "w1@example.com"}, sampleJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
	assert.NotErrorIs(t, err, notifications.ErrMissingContact)
}

// ==========================
// SMS & Push
// ==========================

func TestSMS_Send(t *testing.T) {
	var got *sns.PublishInput
	client := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			got = params
			return &sns.PublishOutput{}, nil
		},
	}

	err := NewSMS(client, "DISPATCH").Send(context.Background(), models.Contact{Phone: "+33600000000"}, sampleJob())
	require.NoError(t, err)

	assert.Equal(t, "+33600000000", aws.ToString(got.PhoneNumber))
	assert.Nil(t, got.TargetArn)
	assert.Equal(t, "New mission available: Boiler repair is open for you to claim.", aws.ToString(got.Message))
	assert.Equal(t, "Transactional", aws.ToString(got.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue))
	assert.Equal(t, "DISPATCH", aws.ToString(got.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue))
}

func TestSMS_MissingPhone(t *testing.T) {
	err := NewSMS(&MockSNSService{}, "").Send(context.Background(), models.Contact{Email: "w1@example.com"}, sampleJob())
	assert.ErrorIs(t, err, notifications.ErrMissingContact)
}

func TestPush_Send(t *testing.T) {
	var got *sns.PublishInput
	client := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			got = params
			return &sns.PublishOutput{}, nil
		},
	}
	arn := "arn:aws:sns:eu-west-3:123456789012:endpoint/GCM/dispatch/abc"

	err := NewPush(client).Send(context.Background(), models.Contact{PushEndpointARN: arn}, sampleJob())
	require.NoError(t, err)

	assert.Equal(t, arn, aws.ToString(got.TargetArn))
	assert.Equal(t, "json", aws.ToString(got.MessageStructure))

	var envelope map[string]string
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(got.Message)), &envelope))
	assert.Contains(t, envelope, "default")
	assert.Contains(t, envelope, "APNS")

	var gcm struct {
		Data pushPayload `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(envelope["GCM"]), &gcm))
	assert.Equal(t, "n-1", gcm.Data.ID)
	assert.Equal(t, "offer.published", gcm.Data.EventType)
}

func TestPush_MissingEndpoint(t *testing.T) {
	err := NewPush(&MockSNSService{}).Send(context.Background(), models.Contact{Phone: "+33600000000"}, sampleJob())
	assert.ErrorIs(t, err, notifications.ErrMissingContact)
}

// ==========================
// In-app
// ==========================

func TestInApp_PublishesToInboxTopic(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	hub := events.NewHub(rdb, logger.NewTestLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub, err := hub.Open(ctx, events.InboxTopic("w1"))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, NewInApp(hub).Send(ctx, models.Contact{RecipientID: "w1"}, sampleJob()))

	select {
	case msg := <-sub.C:
		assert.Equal(t, events.InboxTopic("w1"), msg.Topic)
		var got InboxMessage
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "n-1", got.NotificationID)
		assert.Equal(t, models.PriorityHigh, got.Priority)
	case <-ctx.Done():
		t.Fatal("no inbox message received")
	}
}

func TestSendersReportTheirChannel(t *testing.T) {
	senders := []notifications.Sender{
		NewInApp(nil), NewEmail(nil, ""), NewSMS(nil, ""), NewPush(nil),
	}
	var got []models.Channel
	for _, s := range senders {
		got = append(got, s.Channel())
	}
	assert.Equal(t, models.AllChannels, got)
}
