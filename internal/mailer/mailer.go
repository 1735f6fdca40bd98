// Package mailer sends certificate emails. Provider "ses" uses AWS SES;
// "noop" (the default) only logs what would have been sent.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// ErrRejected marks a send the provider refused outright; sending the same
// message again will be refused too.
var ErrRejected = errors.New("mailer: message rejected")

// Email is one outgoing message. Either body may be empty, not both.
type Email struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

type Mailer interface {
	Send(ctx context.Context, email Email) error
}

type Config struct {
	Provider        string
	FromAddress     string
	FromName        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// New builds a Mailer from config. Unknown providers fall back to noop.
func New(cfg Config, logger *slog.Logger) Mailer {
	switch cfg.Provider {
	case "ses":
		awsCfg := aws.Config{
			Region: cfg.Region,
			Credentials: aws.NewCredentialsCache(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			),
			HTTPClient: &http.Client{
				Transport: &http.Transport{
					TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				},
			},
		}
		return NewSES(ses.NewFromConfig(awsCfg), cfg.FromAddress, cfg.FromName, logger)
	case "noop", "":
		return NewNoop(logger)
	default:
		logger.Warn("unknown mail provider, using noop", slog.String("provider", cfg.Provider))
		return NewNoop(logger)
	}
}

// sesAPI is the slice of *ses.Client the mailer calls.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESMailer struct {
	client      sesAPI
	fromAddress string
	fromName    string
	logger      *slog.Logger
}

func NewSES(client sesAPI, fromAddress, fromName string, logger *slog.Logger) *SESMailer {
	return &SESMailer{
		client:      client,
		fromAddress: fromAddress,
		fromName:    fromName,
		logger:      logger,
	}
}

func (s *SESMailer) Send(ctx context.Context, email Email) error {
	source := s.fromAddress
	if s.fromName != "" {
		source = fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(source),
		Destination: &types.Destination{
			ToAddresses: []string{email.To},
		},
		Message: &types.Message{
			Subject: utf8Content(email.Subject),
			Body:    &types.Body{},
		},
	}
	if email.HTMLBody != "" {
		input.Message.Body.Html = utf8Content(email.HTMLBody)
	}
	if email.TextBody != "" {
		input.Message.Body.Text = utf8Content(email.TextBody)
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		if rejectedBySES(err) {
			return fmt.Errorf("%w: sending via SES: %w", ErrRejected, err)
		}
		return fmt.Errorf("mailer: sending via SES: %w", err)
	}
	s.logger.Info("email sent",
		slog.String("provider", "ses"),
		slog.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

// rejectedBySES reports SES errors that no retry can fix.
func rejectedBySES(err error) bool {
	var (
		rejected    *types.MessageRejected
		unverified  *types.MailFromDomainNotVerifiedException
		noConfigSet *types.ConfigurationSetDoesNotExistException
	)
	return errors.As(err, &rejected) || errors.As(err, &unverified) || errors.As(err, &noConfigSet)
}

func utf8Content(s string) *types.Content {
	return &types.Content{
		Data:    aws.String(s),
		Charset: aws.String("UTF-8"),
	}
}

type NoopMailer struct {
	logger *slog.Logger
}

func NewNoop(logger *slog.Logger) *NoopMailer {
	return &NoopMailer{logger: logger}
}

func (n *NoopMailer) Send(_ context.Context, email Email) error {
	n.logger.Info("email would be sent",
		slog.String("provider", "noop"),
		slog.String("to", email.To),
		slog.String("subject", email.Subject),
	)
	return nil
}
