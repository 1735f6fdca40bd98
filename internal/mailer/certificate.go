package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/notify"
)

// MailerGroup is the subscription group every replica's certificate
// notifier joins, so each unlock is mailed once.
const MailerGroup = "mailer"

type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

type EventLookup interface {
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

// CertificateNotifier emails a user when a certificate.unlocked event
// arrives for them.
type CertificateNotifier struct {
	mailer Mailer
	users  UserLookup
	events EventLookup
	logger *slog.Logger
}

func NewCertificateNotifier(m Mailer, users UserLookup, events EventLookup, logger *slog.Logger) *CertificateNotifier {
	return &CertificateNotifier{mailer: m, users: users, events: events, logger: logger}
}

type certificateData struct {
	DisplayName string
	Kind        string
	EventName   string
	Hours       int
}

// Handle is a notify.Handler. Failures a redelivery cannot fix are marked
// permanent so the broker drops the message; anything else is retried.
func (c *CertificateNotifier) Handle(ctx context.Context, msg notify.Message) error {
	cert, err := notify.DecodeCertificate(msg)
	if err != nil {
		// a malformed payload will never decode; drop it
		c.logger.Error("decoding certificate event",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	user, err := c.users.GetByID(ctx, cert.UserID)
	if err != nil {
		err = fmt.Errorf("mailer: looking up user %s: %w", cert.UserID, err)
		if errors.Is(err, apperror.ErrNotFound) {
			return notify.Permanent(err)
		}
		return err
	}
	if user.Email == "" {
		c.logger.Info("no email on file, skipping certificate mail", slog.String("user_id", user.ID))
		return nil
	}

	data := certificateData{
		DisplayName: user.DisplayName,
		Kind:        string(cert.Kind),
		Hours:       cert.Hours,
	}
	if data.DisplayName == "" {
		data.DisplayName = "volunteer"
	}
	if cert.Kind == notify.CertificateEvent {
		data.EventName = cert.EventID
		if event, err := c.events.GetByID(ctx, cert.EventID); err == nil {
			data.EventName = event.Name
		}
	}

	subject, html, text, err := Render("certificate", data)
	if err != nil {
		return notify.Permanent(fmt.Errorf("mailer: rendering certificate mail: %w", err))
	}

	err = c.mailer.Send(ctx, Email{
		To:       user.Email,
		Subject:  subject,
		HTMLBody: html,
		TextBody: text,
	})
	if errors.Is(err, ErrRejected) {
		c.logger.Warn("certificate mail rejected, dropping",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return notify.Permanent(err)
	}
	return err
}

// Start subscribes the notifier to certificate unlocks.
func (c *CertificateNotifier) Start(ctx context.Context, backend notify.Backend) *notify.Subscription {
	return notify.Start(ctx, backend, notify.Grouped(notify.TopicCertificateUnlocked, MailerGroup), c.Handle, c.logger)
}
