package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sakif/servicehours/internal/model"
)

// CertificateKind tells an event certificate from the global one.
type CertificateKind string

const (
	CertificateEvent  CertificateKind = "event"
	CertificateGlobal CertificateKind = "global"
)

// CertificateUnlocked is published when a recompute moves a user's hours
// across a certificate threshold upward.
type CertificateUnlocked struct {
	UserID  string          `json:"userId"`
	Kind    CertificateKind `json:"kind"`
	EventID string          `json:"eventId,omitempty"`
	Hours   int             `json:"hours"`
}

// SessionChanged is published on sign-in and sign-out.
type SessionChanged struct {
	UserID   string `json:"userId"`
	SignedIn bool   `json:"signedIn"`
}

// Publisher is what the service layer depends on.
type Publisher interface {
	PublishProgress(ctx context.Context, progress model.Progress) error
	PublishCertificate(ctx context.Context, cert CertificateUnlocked) error
	PublishSession(ctx context.Context, change SessionChanged) error
}

const AttrUserID = "user_id"

// Bus encodes typed events as JSON onto a Backend.
type Bus struct {
	backend Backend
}

var _ Publisher = (*Bus)(nil)

func NewBus(backend Backend) *Bus {
	return &Bus{backend: backend}
}

// Backend exposes the transport so callers can subscribe.
func (b *Bus) Backend() Backend {
	return b.backend
}

func (b *Bus) PublishProgress(ctx context.Context, progress model.Progress) error {
	return b.publish(ctx, TopicProgressUpdated, progress.UserID, progress)
}

func (b *Bus) PublishCertificate(ctx context.Context, cert CertificateUnlocked) error {
	return b.publish(ctx, TopicCertificateUnlocked, cert.UserID, cert)
}

func (b *Bus) PublishSession(ctx context.Context, change SessionChanged) error {
	return b.publish(ctx, TopicSessionChanged, change.UserID, change)
}

func (b *Bus) publish(ctx context.Context, topic, userID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("notify: encoding %s: %w", topic, err)
	}
	if _, err := b.backend.Publish(ctx, topic, data, map[string]string{AttrUserID: userID}); err != nil {
		return fmt.Errorf("notify: publishing %s: %w", topic, err)
	}
	return nil
}

func DecodeProgress(msg Message) (model.Progress, error) {
	var p model.Progress
	err := json.Unmarshal(msg.Data, &p)
	return p, err
}

func DecodeCertificate(msg Message) (CertificateUnlocked, error) {
	var c CertificateUnlocked
	err := json.Unmarshal(msg.Data, &c)
	return c, err
}
