package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/notify"
	"github.com/sakif/servicehours/internal/service"
)

// streamHeartbeat keeps idle SSE connections open through proxies.
const streamHeartbeat = 25 * time.Second

type ProgressService interface {
	View(ctx context.Context, userID string) (*model.Progress, error)
	Certificates(ctx context.Context, userID string) ([]service.Certificate, error)
}

var _ ProgressService = (*service.ProgressService)(nil)

// ProgressHandler serves the caller's derived progress, as a snapshot and
// as a live stream of progress.updated events.
type ProgressHandler struct {
	progress ProgressService
	backend  notify.Backend
	logger   *slog.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

func NewProgressHandler(progress ProgressService, backend notify.Backend, logger *slog.Logger) *ProgressHandler {
	return &ProgressHandler{
		progress: progress,
		backend:  backend,
		logger:   logger,
		closing:  make(chan struct{}),
	}
}

// Shutdown ends every open progress stream. Other requests are unaffected;
// the server registers it with http.Server.RegisterOnShutdown.
func (h *ProgressHandler) Shutdown() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// HandleView recomputes and returns the caller's progress.
//
// HTTP: GET /api/me/progress
func (h *ProgressHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	progress, err := h.progress.View(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// HandleCertificates lists every certificate the caller has unlocked.
//
// HTTP: GET /api/me/certificates
func (h *ProgressHandler) HandleCertificates(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	certs, err := h.progress.Certificates(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, certs)
}

// HandleStream pushes the caller's progress as Server-Sent Events: one
// snapshot on connect, then one "progress" event per update.
//
// HTTP: GET /api/me/progress/stream
//
// Updates a slow client cannot take are dropped. Each event carries the
// full progress.
func (h *ProgressHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	// subscribe before taking the snapshot so no update falls between them
	updates := make(chan model.Progress, 8)
	sub := notify.Start(ctx, h.backend, notify.TopicProgressUpdated, func(_ context.Context, msg notify.Message) error {
		if msg.Attributes[notify.AttrUserID] != actor.UserID {
			return nil
		}
		progress, err := notify.DecodeProgress(msg)
		if err != nil {
			h.logger.Warn("dropping malformed progress event", slog.String("error", err.Error()))
			return nil
		}
		select {
		case updates <- progress:
		default:
		}
		return nil
	}, h.logger)
	defer sub.Stop()

	snapshot, err := h.progress.View(ctx, actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	// the server's WriteTimeout would otherwise cut the stream
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, rc, "progress", snapshot); err != nil {
		return
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closing:
			return
		case <-sub.Done():
			h.logger.Warn("progress stream ended by backend", slog.String("user_id", actor.UserID))
			return
		case progress := <-updates:
			if err := writeEvent(w, rc, "progress", progress); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}
