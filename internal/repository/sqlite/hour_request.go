package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/repository"
)

var _ repository.HourRequestRepository = (*HourRequestDB)(nil)

// HourRequestDB stores the hour ledger. It is the only authoritative record
// of approved hours; every other total is derived from it.
type HourRequestDB struct {
	conn *sql.DB
}

const hourRequestColumns = `id, user_id, event_id, hours_requested, status, requested_at, decided_by, decided_at`

// Create appends a request. Status defaults to pending.
func (h *HourRequestDB) Create(ctx context.Context, req *model.HourRequest) error {
	req.ID = xid.New().String()
	if req.Status == "" {
		req.Status = model.HourRequestPending
	}
	req.RequestedAt = time.Now().UTC()

	_, err := h.conn.ExecContext(ctx,
		`INSERT INTO hour_requests (id, user_id, event_id, hours_requested, status, requested_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.UserID,
		req.EventID,
		req.HoursRequested,
		string(req.Status),
		req.RequestedAt,
	)
	if err != nil {
		return apperror.StoreUnavailable("creating hour request", err)
	}
	return nil
}

func (h *HourRequestDB) GetByID(ctx context.Context, id string) (*model.HourRequest, error) {
	row := h.conn.QueryRowContext(ctx,
		`SELECT `+hourRequestColumns+` FROM hour_requests WHERE id = ?`, id)

	req, err := scanHourRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("hour request", id)
		}
		return nil, apperror.StoreUnavailable("getting hour request", err)
	}
	return req, nil
}

// Transition is a single conditional UPDATE, so of two concurrent decisions
// on the same request exactly one changes a row.
func (h *HourRequestDB) Transition(ctx context.Context, id string, to model.HourRequestStatus, decidedBy string, at time.Time) (*model.HourRequest, error) {
	if !to.Terminal() {
		return nil, apperror.ValidationFailed("status", "target status must be approved or rejected")
	}

	result, err := h.conn.ExecContext(ctx,
		`UPDATE hour_requests SET status = ?, decided_by = ?, decided_at = ?
		 WHERE id = ? AND status = ?`,
		string(to), decidedBy, at.UTC(), id, string(model.HourRequestPending))
	if err != nil {
		return nil, apperror.StoreUnavailable("transitioning hour request", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, apperror.StoreUnavailable("transitioning hour request", err)
	}

	current, err := h.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, apperror.InvalidState("hour request", id, string(current.Status))
	}
	return current, nil
}

func (h *HourRequestDB) ListApprovedByUser(ctx context.Context, userID string) ([]model.HourRequest, error) {
	return h.list(ctx, "listing approved hour requests",
		`WHERE user_id = ? AND status = ? ORDER BY requested_at ASC`,
		userID, string(model.HourRequestApproved))
}

func (h *HourRequestDB) ListByUser(ctx context.Context, userID string) ([]model.HourRequest, error) {
	return h.list(ctx, "listing hour requests",
		`WHERE user_id = ? ORDER BY requested_at DESC`, userID)
}

// ListPending returns the review queue, oldest first.
func (h *HourRequestDB) ListPending(ctx context.Context) ([]model.HourRequest, error) {
	return h.list(ctx, "listing pending hour requests",
		`WHERE status = ? ORDER BY requested_at ASC`, string(model.HourRequestPending))
}

func (h *HourRequestDB) list(ctx context.Context, op, where string, args ...any) ([]model.HourRequest, error) {
	rows, err := h.conn.QueryContext(ctx,
		`SELECT `+hourRequestColumns+` FROM hour_requests `+where, args...)
	if err != nil {
		return nil, apperror.StoreUnavailable(op, err)
	}
	defer rows.Close()

	reqs := []model.HourRequest{}
	for rows.Next() {
		req, err := scanHourRequest(rows)
		if err != nil {
			return nil, apperror.StoreUnavailable(op, err)
		}
		reqs = append(reqs, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.StoreUnavailable(op, err)
	}
	return reqs, nil
}

func scanHourRequest(s scanner) (*model.HourRequest, error) {
	var req model.HourRequest
	var status string
	var decidedAt sql.NullTime
	if err := s.Scan(
		&req.ID,
		&req.UserID,
		&req.EventID,
		&req.HoursRequested,
		&status,
		&req.RequestedAt,
		&req.DecidedBy,
		&decidedAt,
	); err != nil {
		return nil, err
	}
	req.Status = model.HourRequestStatus(status)
	if decidedAt.Valid {
		t := decidedAt.Time
		req.DecidedAt = &t
	}
	return &req, nil
}
