// Package repository declares the storage contracts the service layer depends on.
//
// The service layer only ever sees these interfaces; internal/repository/sqlite
// is the one implementation, and service tests substitute hand-written fakes.
package repository

import (
	"context"
	"time"

	"github.com/sakif/servicehours/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// EventFilter narrows an event listing. A zero Location means every location.
type EventFilter struct {
	Location model.Location
	ListOptions
}

type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context, filter EventFilter) ([]model.Event, error)
	// Delete removes the event and its registrations. Hour requests are kept.
	Delete(ctx context.Context, id string) error
}

type RegistrationRepository interface {
	// Create returns apperror.ErrConflict when (UserID, EventID) already
	// exists, or when limit > 0 and the event already has limit registrations.
	Create(ctx context.Context, reg *model.Registration, limit int) error
	Get(ctx context.Context, userID, eventID string) (*model.Registration, error)
	Delete(ctx context.Context, userID, eventID string) error
	ListByUser(ctx context.Context, userID string) ([]model.Registration, error)
	// UpdateHoursApproved refreshes the cached total. A missing registration
	// is not an error.
	UpdateHoursApproved(ctx context.Context, userID, eventID string, hours int) error
}

type HourRequestRepository interface {
	Create(ctx context.Context, req *model.HourRequest) error
	GetByID(ctx context.Context, id string) (*model.HourRequest, error)
	// Transition moves a pending request to a terminal status in one
	// conditional write. It returns apperror.ErrNotFound for an unknown id and
	// apperror.ErrInvalidState when the request is no longer pending.
	Transition(ctx context.Context, id string, to model.HourRequestStatus, decidedBy string, at time.Time) (*model.HourRequest, error)
	ListApprovedByUser(ctx context.Context, userID string) ([]model.HourRequest, error)
	ListByUser(ctx context.Context, userID string) ([]model.HourRequest, error)
	ListPending(ctx context.Context) ([]model.HourRequest, error)
}

type AccountRepository interface {
	Get(ctx context.Context, userID string) (*model.Account, error)
	// Save inserts or replaces the account row.
	Save(ctx context.Context, account *model.Account) error
}

type CertificateRepository interface {
	ListByUser(ctx context.Context, userID string) ([]model.CertificateUnlock, error)
	// Record stores the unlock once per (UserID, EventID). It reports false,
	// with no error, when that certificate was already recorded.
	Record(ctx context.Context, unlock *model.CertificateUnlock) (bool, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// UpsertGitHub finds the user by GitHub id, creating it on first sign-in.
	UpsertGitHub(ctx context.Context, user *model.User) error
	SetRole(ctx context.Context, id string, role model.Role) error
}
