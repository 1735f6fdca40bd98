package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/service"
)

type RegistrationService interface {
	Register(ctx context.Context, userID, eventID string) (*model.Registration, error)
	Unregister(ctx context.Context, userID, eventID string) error
	ListForUser(ctx context.Context, userID string) ([]model.Registration, error)
}

var _ RegistrationService = (*service.RegistrationService)(nil)

// RegistrationHandler enrolls the caller in events.
type RegistrationHandler struct {
	registrations RegistrationService
	logger        *slog.Logger
}

func NewRegistrationHandler(registrations RegistrationService, logger *slog.Logger) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations, logger: logger}
}

// HandleRegister registers the caller for the event.
//
// HTTP: POST /api/events/{id}/registration
func (h *RegistrationHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	reg, err := h.registrations.Register(r.Context(), actor.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// HandleUnregister removes the caller's registration.
//
// HTTP: DELETE /api/events/{id}/registration
func (h *RegistrationHandler) HandleUnregister(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.registrations.Unregister(r.Context(), actor.UserID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListMine lists the caller's registrations.
//
// HTTP: GET /api/me/registrations
func (h *RegistrationHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	regs, err := h.registrations.ListForUser(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, regs)
}
