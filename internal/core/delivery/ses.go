package delivery

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/bigcats-cc/email-sieve/internal/core/config"
)

// SendEmailAPI is the subset of the SES v2 client used for forwarding.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SES forwards raw messages through Amazon SES.
// SES only sends from verified identities, so a configured sender replaces
// the envelope sender of every forward.
type SES struct {
	sender string
	client SendEmailAPI
}

// NewSES builds an SES forwarder. Static credentials are used when both the
// access key ID and secret are set; otherwise the default AWS chain applies.
func NewSES(ctx context.Context, cfg config.SESConfig) (*SES, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESWithClient(cfg.Sender, sesv2.NewFromConfig(awsCfg)), nil
}

// NewSESWithClient builds an SES forwarder around an existing client.
func NewSESWithClient(sender string, client SendEmailAPI) *SES {
	return &SES{sender: sender, client: client}
}

// Name implements Forwarder.
func (s *SES) Name() string { return "ses" }

// Forward sends raw unchanged to to.
func (s *SES) Forward(ctx context.Context, from, to string, raw []byte) error {
	if s.sender != "" {
		from = s.sender
	}

	input := &sesv2.SendEmailInput{
		Destination: &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	}
	if from != "" {
		input.FromEmailAddress = aws.String(from)
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("SES send to %s failed: %w", to, err)
	}
	return nil
}
