package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/repository"
)

// MaxHoursPerRequest caps a single submission at one week around the clock.
const MaxHoursPerRequest = 168

// ParseHours turns raw user input into a whole number of hours. It rejects
// anything that is not an integer literal ("1.5", "2e3", "ten", "").
// Range checks happen in Submit.
func ParseHours(raw json.Number) (int, error) {
	s := strings.TrimSpace(raw.String())
	if s == "" {
		return 0, apperror.ValidationFailed("hoursRequested", "hours are required")
	}
	hours, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperror.ValidationFailed("hoursRequested", "hours must be a whole number")
	}
	return hours, nil
}

// HourService is the hour-request ledger: volunteers submit, organizers
// approve or reject, and approval triggers a recompute.
type HourService struct {
	hours  repository.HourRequestRepository
	events repository.EventRepository
	engine Recomputer
	now    func() time.Time
	logger *slog.Logger
}

func NewHourService(
	hours repository.HourRequestRepository,
	events repository.EventRepository,
	engine Recomputer,
	logger *slog.Logger,
) *HourService {
	return &HourService{
		hours:  hours,
		events: events,
		engine: engine,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Submit appends a pending request. Nothing is recomputed until approval.
func (s *HourService) Submit(ctx context.Context, userID, eventID string, hours int) (*model.HourRequest, error) {
	if hours <= 0 {
		return nil, apperror.ValidationFailed("hoursRequested", "hours must be a positive whole number")
	}
	if hours > MaxHoursPerRequest {
		return nil, apperror.ValidationFailed("hoursRequested",
			fmt.Sprintf("hours must be at most %d per request", MaxHoursPerRequest))
	}
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user id is required")
	}

	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, fmt.Errorf("service/hours: submitting for event %s: %w", eventID, err)
	}

	req := &model.HourRequest{
		UserID:         userID,
		EventID:        eventID,
		HoursRequested: hours,
		Status:         model.HourRequestPending,
	}
	if err := s.hours.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("service/hours: creating request: %w", err)
	}

	s.logger.Info("hour request submitted",
		slog.String("request_id", req.ID),
		slog.String("user_id", userID),
		slog.String("event_id", eventID),
		slog.Int("hours", hours),
	)
	return req, nil
}

// Approve moves a pending request to approved and recomputes the owner's
// progress. When the recompute fails the approval stays committed in the
// ledger and the error is returned; the next recompute (any progress view)
// rebuilds the caches.
func (s *HourService) Approve(ctx context.Context, deciderID, requestID string) (*model.HourRequest, error) {
	req, err := s.decide(ctx, deciderID, requestID, model.HourRequestApproved)
	if err != nil {
		return nil, err
	}

	if _, err := s.engine.RecomputeForUser(ctx, req.UserID); err != nil {
		s.logger.Error("recompute after approval failed",
			slog.String("request_id", req.ID),
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/hours: request %s approved, recomputing progress: %w", req.ID, err)
	}
	return req, nil
}

// Reject moves a pending request to rejected. Aggregates are untouched.
func (s *HourService) Reject(ctx context.Context, deciderID, requestID string) (*model.HourRequest, error) {
	return s.decide(ctx, deciderID, requestID, model.HourRequestRejected)
}

func (s *HourService) decide(ctx context.Context, deciderID, requestID string, to model.HourRequestStatus) (*model.HourRequest, error) {
	if requestID == "" {
		return nil, apperror.ValidationFailed("id", "request id is required")
	}

	req, err := s.hours.Transition(ctx, requestID, to, deciderID, s.now())
	if err != nil {
		return nil, fmt.Errorf("service/hours: %s request %s: %w", to, requestID, err)
	}

	s.logger.Info("hour request decided",
		slog.String("request_id", req.ID),
		slog.String("status", string(req.Status)),
		slog.String("decided_by", deciderID),
	)
	return req, nil
}

func (s *HourService) Get(ctx context.Context, id string) (*model.HourRequest, error) {
	req, err := s.hours.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/hours: getting request %s: %w", id, err)
	}
	return req, nil
}

// ListPending is the organizer review queue, oldest first.
func (s *HourService) ListPending(ctx context.Context) ([]model.HourRequest, error) {
	reqs, err := s.hours.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/hours: listing pending: %w", err)
	}
	return reqs, nil
}

func (s *HourService) ListForUser(ctx context.Context, userID string) ([]model.HourRequest, error) {
	reqs, err := s.hours.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/hours: listing for user %s: %w", userID, err)
	}
	return reqs, nil
}
