package aws

import (
	"context"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESClient sends notification email, attaching the configuration set that
// routes bounce and complaint events when one is configured.
type SESClient struct {
	client           sesAPI
	configurationSet string
}

func NewSESClient(cfg sdkaws.Config, configurationSet string) *SESClient {
	return &SESClient{client: ses.NewFromConfig(cfg), configurationSet: configurationSet}
}

func (s *SESClient) SendEmail(ctx context.Context, input *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	if s.configurationSet != "" && input.ConfigurationSetName == nil {
		input.ConfigurationSetName = sdkaws.String(s.configurationSet)
	}
	return s.client.SendEmail(ctx, input, optFns...)
}
