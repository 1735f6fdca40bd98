package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/repository"
)

// ProgressService backs the progress view: it recomputes on load and
// decorates certificates with names for display.
type ProgressService struct {
	engine *AccountingEngine
	users  repository.UserRepository
	events repository.EventRepository
}

func NewProgressService(engine *AccountingEngine, users repository.UserRepository, events repository.EventRepository) *ProgressService {
	return &ProgressService{engine: engine, users: users, events: events}
}

// View recomputes and returns the user's progress.
func (s *ProgressService) View(ctx context.Context, userID string) (*model.Progress, error) {
	return s.engine.RecomputeForUser(ctx, userID)
}

// Certificates returns every certificate the user has unlocked.
func (s *ProgressService) Certificates(ctx context.Context, userID string) ([]Certificate, error) {
	progress, err := s.engine.RecomputeForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/progress: loading user %s: %w", userID, err)
	}

	unlocks, err := s.engine.certificates.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/progress: loading certificates for %s: %w", userID, err)
	}
	issued := make(map[string]time.Time, len(unlocks))
	for _, u := range unlocks {
		issued[u.EventID] = u.UnlockedAt
	}

	certs := s.engine.Certificates(progress)
	for i := range certs {
		certs[i].DisplayName = user.DisplayName
		certs[i].IssuedAt = issued[certs[i].EventID]
		if certs[i].EventID == "" {
			continue
		}
		event, err := s.events.GetByID(ctx, certs[i].EventID)
		switch {
		case err == nil:
			certs[i].EventName = event.Name
		case errors.Is(err, apperror.ErrNotFound):
			// deleted event: the certificate still stands
		default:
			return nil, fmt.Errorf("service/progress: loading event %s: %w", certs[i].EventID, err)
		}
	}
	return certs, nil
}
