package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/repository"
)

const (
	MaxEventNameLength        = 120
	MaxEventDescriptionLength = 5000
	DefaultListLimit          = 50
	MaxListLimit              = 200
)

// DeletePolicy decides who may delete an event.
type DeletePolicy string

const (
	// DeleteOwner allows the event's creator and admins.
	DeleteOwner DeletePolicy = "owner"
	// DeleteOrganizer allows any organizer or admin.
	DeleteOrganizer DeletePolicy = "organizer"
	// DeleteAny allows any signed-in user.
	DeleteAny DeletePolicy = "any"
)

// EventPolicy holds the event catalog's authorization rules.
type EventPolicy struct {
	CreateRole model.Role
	Delete     DeletePolicy
}

func DefaultEventPolicy() EventPolicy {
	return EventPolicy{CreateRole: model.RoleOrganizer, Delete: DeleteOwner}
}

func (p EventPolicy) CanCreate(actor model.Identity) bool {
	return actor.Role.AtLeast(p.CreateRole)
}

func (p EventPolicy) CanDelete(actor model.Identity, event *model.Event) bool {
	if actor.Role.AtLeast(model.RoleAdmin) {
		return true
	}
	switch p.Delete {
	case DeleteAny:
		return actor.Role.Valid()
	case DeleteOrganizer:
		return actor.Role.AtLeast(model.RoleOrganizer)
	default:
		return event.CreatedBy != "" && event.CreatedBy == actor.UserID
	}
}

// EventInput is what a caller supplies to create an event.
type EventInput struct {
	Name        string
	Description string
	Date        string
	Location    string
	Address     string
	UserLimit   int
}

type EventService struct {
	events repository.EventRepository
	policy EventPolicy
	logger *slog.Logger
}

func NewEventService(events repository.EventRepository, policy EventPolicy, logger *slog.Logger) *EventService {
	return &EventService{events: events, policy: policy, logger: logger}
}

// Create validates the input, checks the actor may create events, and saves.
func (s *EventService) Create(ctx context.Context, actor model.Identity, in EventInput) (*model.Event, error) {
	if !s.policy.CanCreate(actor) {
		return nil, apperror.Forbidden("creating events requires role " + string(s.policy.CreateRole))
	}

	event, err := validateEvent(in)
	if err != nil {
		return nil, err
	}
	event.CreatedBy = actor.UserID

	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("service/event: creating event: %w", err)
	}

	s.logger.Info("event created",
		slog.String("event_id", event.ID),
		slog.String("created_by", actor.UserID),
		slog.String("location", string(event.Location)),
	)
	return event, nil
}

func validateEvent(in EventInput) (*model.Event, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "event name is required")
	}
	if utf8.RuneCountInString(name) > MaxEventNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("event name must be %d characters or fewer", MaxEventNameLength))
	}

	description := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(description) > MaxEventDescriptionLength {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or fewer", MaxEventDescriptionLength))
	}

	location := model.Location(strings.TrimSpace(in.Location))
	if !location.Valid() {
		return nil, apperror.ValidationFailed("location",
			fmt.Sprintf("location must be one of %q or %q", model.LocationElPaso, model.LocationJuarez))
	}

	date := strings.TrimSpace(in.Date)
	if _, err := time.Parse(model.EventDateLayout, date); err != nil {
		return nil, apperror.ValidationFailed("date", "date must be formatted YYYY-MM-DD")
	}

	if in.UserLimit < 0 {
		return nil, apperror.ValidationFailed("userLimit", "user limit must not be negative")
	}

	return &model.Event{
		Name:        name,
		Description: description,
		Date:        date,
		Location:    location,
		Address:     strings.TrimSpace(in.Address),
		UserLimit:   in.UserLimit,
	}, nil
}

// Delete removes the event and its registrations. Approved hours for it
// stay in the ledger.
func (s *EventService) Delete(ctx context.Context, actor model.Identity, eventID string) error {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("service/event: deleting %s: %w", eventID, err)
	}
	if !s.policy.CanDelete(actor, event) {
		return apperror.Forbidden("not allowed to delete this event")
	}

	if err := s.events.Delete(ctx, eventID); err != nil {
		return fmt.Errorf("service/event: deleting %s: %w", eventID, err)
	}

	s.logger.Info("event deleted",
		slog.String("event_id", eventID),
		slog.String("deleted_by", actor.UserID),
	)
	return nil
}

func (s *EventService) Get(ctx context.Context, id string) (*model.Event, error) {
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/event: getting %s: %w", id, err)
	}
	return event, nil
}

// List returns events, optionally filtered by location. An empty location
// means all; an unknown one is a validation error.
func (s *EventService) List(ctx context.Context, location string, limit, offset int) ([]model.Event, error) {
	filter := repository.EventFilter{}
	if location = strings.TrimSpace(location); location != "" {
		loc := model.Location(location)
		if !loc.Valid() {
			return nil, apperror.ValidationFailed("location", "unknown location "+location)
		}
		filter.Location = loc
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	filter.Limit = limit
	filter.Offset = offset

	events, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service/event: listing: %w", err)
	}
	return events, nil
}
