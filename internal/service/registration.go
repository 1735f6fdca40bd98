package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/repository"
)

// RegistrationService enrolls users in events. It never touches the hour
// ledger.
type RegistrationService struct {
	registrations   repository.RegistrationRepository
	events          repository.EventRepository
	engine          Recomputer
	policy          UnregisterPolicy
	enforceCapacity bool
	logger          *slog.Logger
}

func NewRegistrationService(
	registrations repository.RegistrationRepository,
	events repository.EventRepository,
	engine Recomputer,
	policy UnregisterPolicy,
	enforceCapacity bool,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		registrations:   registrations,
		events:          events,
		engine:          engine,
		policy:          policy,
		enforceCapacity: enforceCapacity,
		logger:          logger,
	}
}

// Register creates the (user, event) registration with zero hours. A user
// limit of 0 means unlimited.
func (s *RegistrationService) Register(ctx context.Context, userID, eventID string) (*model.Registration, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user id is required")
	}

	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("service/registration: registering for %s: %w", eventID, err)
	}

	limit := 0
	if s.enforceCapacity {
		limit = event.UserLimit
	}

	reg := &model.Registration{
		UserID:    userID,
		EventID:   eventID,
		EventName: event.Name,
		Status:    model.RegistrationRegistered,
	}
	if err := s.registrations.Create(ctx, reg, limit); err != nil {
		return nil, fmt.Errorf("service/registration: registering %s for %s: %w", userID, eventID, err)
	}

	s.logger.Info("user registered",
		slog.String("user_id", userID),
		slog.String("event_id", eventID),
	)

	// under the exclude policy, re-registering brings retained hours back
	if s.policy == HoursExclude {
		if err := s.recompute(ctx, userID); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Unregister deletes the registration. Approved requests stay in the
// ledger; whether they keep counting depends on the unregister policy.
func (s *RegistrationService) Unregister(ctx context.Context, userID, eventID string) error {
	if err := s.registrations.Delete(ctx, userID, eventID); err != nil {
		return fmt.Errorf("service/registration: unregistering %s from %s: %w", userID, eventID, err)
	}

	s.logger.Info("user unregistered",
		slog.String("user_id", userID),
		slog.String("event_id", eventID),
	)

	if s.policy == HoursExclude {
		return s.recompute(ctx, userID)
	}
	return nil
}

func (s *RegistrationService) ListForUser(ctx context.Context, userID string) ([]model.Registration, error) {
	regs, err := s.registrations.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/registration: listing for %s: %w", userID, err)
	}
	return regs, nil
}

// recompute refreshes the caches after a registration change. The
// registration write is already committed when it fails.
func (s *RegistrationService) recompute(ctx context.Context, userID string) error {
	if _, err := s.engine.RecomputeForUser(ctx, userID); err != nil {
		s.logger.Error("recompute after registration change failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/registration: recomputing progress for %s: %w", userID, err)
	}
	return nil
}
