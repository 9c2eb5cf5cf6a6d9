package aws

import (
	"context"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// LoadConfig resolves credentials once so the SES and SNS clients share them.
// maxAttempts bounds the SDK's own retries inside a single channel delivery;
// the notification worker's backoff handles anything beyond that.
func LoadConfig(ctx context.Context, region string, maxAttempts int) (sdkaws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if maxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(maxAttempts))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}
