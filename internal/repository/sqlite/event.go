package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/repository"
)

var _ repository.EventRepository = (*EventDB)(nil)

// EventDB stores the event catalog.
type EventDB struct {
	conn *sql.DB
}

const eventColumns = `id, name, description, event_date, location, address, user_limit, created_by, created_at, updated_at`

// Create inserts a new event, assigning its ID and timestamps in place.
func (e *EventDB) Create(ctx context.Context, event *model.Event) error {
	event.ID = xid.New().String()
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now

	_, err := e.conn.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Name,
		event.Description,
		event.Date,
		string(event.Location),
		event.Address,
		event.UserLimit,
		event.CreatedBy,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return apperror.StoreUnavailable("creating event", err)
	}
	return nil
}

func (e *EventDB) GetByID(ctx context.Context, id string) (*model.Event, error) {
	row := e.conn.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("event", id)
		}
		return nil, apperror.StoreUnavailable("getting event", err)
	}
	return event, nil
}

// List returns events ordered by date, soonest first.
func (e *EventDB) List(ctx context.Context, filter repository.EventFilter) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	var args []any

	if filter.Location != "" {
		query += ` WHERE location = ?`
		args = append(args, string(filter.Location))
	}
	query += ` ORDER BY event_date ASC, created_at ASC`

	// LIMIT -1 means "no limit" in SQLite.
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := e.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperror.StoreUnavailable("listing events", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, apperror.StoreUnavailable("scanning event", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.StoreUnavailable("iterating events", err)
	}
	return events, nil
}

// Delete removes the event and every registration for it in one transaction.
// Hour requests stay: the ledger outlives the catalog.
func (e *EventDB) Delete(ctx context.Context, id string) error {
	tx, err := e.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperror.StoreUnavailable("deleting event", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return apperror.StoreUnavailable("deleting event", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperror.StoreUnavailable("deleting event", err)
	}
	if affected == 0 {
		return apperror.NotFound("event", id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_registrations WHERE event_id = ?`, id); err != nil {
		return apperror.StoreUnavailable("deleting event registrations", err)
	}

	if err := tx.Commit(); err != nil {
		return apperror.StoreUnavailable("deleting event", err)
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*model.Event, error) {
	var ev model.Event
	var location string
	err := s.Scan(
		&ev.ID,
		&ev.Name,
		&ev.Description,
		&ev.Date,
		&location,
		&ev.Address,
		&ev.UserLimit,
		&ev.CreatedBy,
		&ev.CreatedAt,
		&ev.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	ev.Location = model.Location(location)
	return &ev, nil
}
