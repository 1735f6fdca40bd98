package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/auth"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/service"
)

// EventService is the slice of service.EventService the handler needs.
type EventService interface {
	Create(ctx context.Context, actor model.Identity, in service.EventInput) (*model.Event, error)
	Delete(ctx context.Context, actor model.Identity, id string) error
	Get(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context, location string, limit, offset int) ([]model.Event, error)
}

var _ EventService = (*service.EventService)(nil)

// EventHandler serves the event catalog.
type EventHandler struct {
	events EventService
	logger *slog.Logger
}

func NewEventHandler(events EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

type createEventRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Location    string `json:"location"`
	Address     string `json:"address"`
	UserLimit   int    `json:"userLimit"`
}

// HandleList returns events, optionally filtered by location.
//
// HTTP: GET /api/events?location=El%20Paso&limit=50&offset=0
func (h *EventHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	events, err := h.events.List(r.Context(), r.URL.Query().Get("location"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleGet returns one event.
//
// HTTP: GET /api/events/{id}
func (h *EventHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// HandleCreate publishes a new event.
//
// HTTP: POST /api/events
// REQUEST BODY: {"name":"…","date":"2026-11-01","location":"El Paso","userLimit":20}
func (h *EventHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	event, err := h.events.Create(r.Context(), actor, service.EventInput{
		Name:        req.Name,
		Description: req.Description,
		Date:        req.Date,
		Location:    req.Location,
		Address:     req.Address,
		UserLimit:   req.UserLimit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// HandleDelete removes an event and its registrations.
//
// HTTP: DELETE /api/events/{id}
func (h *EventHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.events.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireIdentity reads the caller from the context RequireAuth filled. It
// writes a 401 and returns false when the route was mounted without it.
func requireIdentity(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return model.Identity{}, false
	}
	return identity, true
}
