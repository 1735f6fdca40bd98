package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/service"
)

type HourService interface {
	Submit(ctx context.Context, userID, eventID string, hours int) (*model.HourRequest, error)
	Approve(ctx context.Context, deciderID, requestID string) (*model.HourRequest, error)
	Reject(ctx context.Context, deciderID, requestID string) (*model.HourRequest, error)
	ListPending(ctx context.Context) ([]model.HourRequest, error)
	ListForUser(ctx context.Context, userID string) ([]model.HourRequest, error)
}

var _ HourService = (*service.HourService)(nil)

// HourHandler serves the hour-request ledger: submission for volunteers,
// the review queue for organizers.
type HourHandler struct {
	hours  HourService
	logger *slog.Logger
}

func NewHourHandler(hours HourService, logger *slog.Logger) *HourHandler {
	return &HourHandler{hours: hours, logger: logger}
}

// hoursRequested is a json.Number so "1.5" reaches ParseHours and comes
// back as a field-level validation error instead of a decode failure.
type submitHoursRequest struct {
	HoursRequested json.Number `json:"hoursRequested"`
}

// HandleSubmit files a pending request for the caller.
//
// HTTP: POST /api/events/{id}/hour-requests
// REQUEST BODY: {"hoursRequested": 8}
func (h *HourHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req submitHoursRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	hours, err := service.ParseHours(req.HoursRequested)
	if err != nil {
		writeError(w, err)
		return
	}

	created, err := h.hours.Submit(r.Context(), actor.UserID, chi.URLParam(r, "id"), hours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// HandleListMine lists the caller's requests in every state.
//
// HTTP: GET /api/me/hour-requests
func (h *HourHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	reqs, err := h.hours.ListForUser(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// HandleListPending is the organizer review queue.
//
// HTTP: GET /api/hour-requests
func (h *HourHandler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.hours.ListPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// HandleApprove approves a pending request and recomputes its owner.
//
// HTTP: POST /api/hour-requests/{id}/approve
func (h *HourHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.hours.Approve)
}

// HandleReject rejects a pending request.
//
// HTTP: POST /api/hour-requests/{id}/reject
func (h *HourHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.hours.Reject)
}

func (h *HourHandler) decide(
	w http.ResponseWriter,
	r *http.Request,
	decide func(ctx context.Context, deciderID, requestID string) (*model.HourRequest, error),
) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	req, err := decide(r.Context(), actor.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
