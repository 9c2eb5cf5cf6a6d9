package aws

import (
	"context"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

const smsMaxPriceAttribute = "AWS.SNS.SMS.MaxPrice"

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSClient publishes SMS (phone number) and mobile push (endpoint ARN)
// messages. SMS publishes carry the configured per-message price cap.
type SNSClient struct {
	client      snsAPI
	smsMaxPrice string
}

func NewSNSClient(cfg sdkaws.Config, smsMaxPrice string) *SNSClient {
	return &SNSClient{client: sns.NewFromConfig(cfg), smsMaxPrice: smsMaxPrice}
}

func (s *SNSClient) Publish(ctx context.Context, input *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if input.PhoneNumber != nil && s.smsMaxPrice != "" {
		if input.MessageAttributes == nil {
			input.MessageAttributes = map[string]types.MessageAttributeValue{}
		}
		if _, set := input.MessageAttributes[smsMaxPriceAttribute]; !set {
			input.MessageAttributes[smsMaxPriceAttribute] = types.MessageAttributeValue{
				DataType:    sdkaws.String("Number"),
				StringValue: sdkaws.String(s.smsMaxPrice),
			}
		}
	}
	return s.client.Publish(ctx, input, optFns...)
}
