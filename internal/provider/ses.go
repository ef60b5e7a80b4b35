package provider

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/audience-mailer/internal/pkg/logger"
)

// SES sends mail via AWS SES using the SDK v2. Single-send only.
type SES struct {
	region string
	client sesAPI
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// NewSES creates an SES adapter. Initializes the AWS SDK client if
// credentials are provided.
func NewSES(accessKey, secretKey, region string) *SES {
	if region == "" {
		region = "us-east-1"
	}
	s := &SES{region: region}

	if accessKey != "" && secretKey != "" {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		)
		if err != nil {
			log.Printf("[SES] Warning: failed to initialize AWS config: %v", err)
		} else {
			s.client = sesv2.NewFromConfig(cfg)
		}
	}
	return s
}

// Name implements Sender.
func (s *SES) Name() string { return "ses" }

// Send delivers a single email through AWS SES.
func (s *SES) Send(ctx context.Context, env *Envelope) (*SendResult, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(FormatFrom(env.FromName, env.FromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{env.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(env.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(env.HTMLBody), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("task_id"), Value: aws.String(env.TaskID)},
		},
	}
	if env.TextBody != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(env.TextBody), Charset: aws.String("UTF-8")}
	}
	if env.ReplyTo != "" {
		input.ReplyToAddresses = []string{env.ReplyTo}
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		log.Printf("[SES] Failed to send to %s: %v", logger.RedactEmail(env.To), err)
		return nil, err
	}

	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}
	log.Printf("[SES] Sent to %s (id: %s)", logger.RedactEmail(env.To), messageID)

	return &SendResult{Accepted: true, MessageID: messageID, SentAt: time.Now()}, nil
}
