package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/repository"
)

var _ repository.RegistrationRepository = (*RegistrationDB)(nil)

// RegistrationDB stores event_registrations. Rows are keyed by the composite
// "<userID>_<eventID>" id, so a duplicate insert trips the primary key.
type RegistrationDB struct {
	conn *sql.DB
}

const registrationColumns = `id, user_id, event_id, event_name, hours_approved, status, registered_at`

// Create inserts the registration. With limit > 0 the capacity check and
// the insert are one statement, so concurrent registrations cannot overfill
// the event.
func (r *RegistrationDB) Create(ctx context.Context, reg *model.Registration, limit int) error {
	reg.ID = model.RegistrationID(reg.UserID, reg.EventID)
	if reg.Status == "" {
		reg.Status = model.RegistrationRegistered
	}
	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = time.Now().UTC()
	}

	query := `INSERT INTO event_registrations (` + registrationColumns + `)
		 SELECT ?, ?, ?, ?, ?, ?, ?`
	args := []any{
		reg.ID,
		reg.UserID,
		reg.EventID,
		reg.EventName,
		reg.HoursApproved,
		string(reg.Status),
		reg.RegisteredAt,
	}
	if limit > 0 {
		query += `
		 WHERE (SELECT COUNT(*) FROM event_registrations WHERE event_id = ?) < ?`
		args = append(args, reg.EventID, limit)
	}

	result, err := r.conn.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("registration", reg.ID)
		}
		return apperror.StoreUnavailable("creating registration", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperror.StoreUnavailable("creating registration", err)
	}
	if affected == 0 {
		return apperror.ConflictMessage(fmt.Sprintf("event %s is full", reg.EventID))
	}
	return nil
}

func (r *RegistrationDB) Get(ctx context.Context, userID, eventID string) (*model.Registration, error) {
	id := model.RegistrationID(userID, eventID)
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM event_registrations WHERE id = ?`, id)

	reg, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("registration", id)
		}
		return nil, apperror.StoreUnavailable("getting registration", err)
	}
	return reg, nil
}

func (r *RegistrationDB) Delete(ctx context.Context, userID, eventID string) error {
	id := model.RegistrationID(userID, eventID)
	result, err := r.conn.ExecContext(ctx, `DELETE FROM event_registrations WHERE id = ?`, id)
	if err != nil {
		return apperror.StoreUnavailable("deleting registration", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperror.StoreUnavailable("deleting registration", err)
	}
	if affected == 0 {
		return apperror.NotFound("registration", id)
	}
	return nil
}

// ListByUser returns the user's registrations, most recent first.
func (r *RegistrationDB) ListByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+registrationColumns+` FROM event_registrations
		 WHERE user_id = ? ORDER BY registered_at DESC`, userID)
	if err != nil {
		return nil, apperror.StoreUnavailable("listing registrations", err)
	}
	defer rows.Close()

	regs := []model.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, apperror.StoreUnavailable("scanning registration", err)
		}
		regs = append(regs, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.StoreUnavailable("iterating registrations", err)
	}
	return regs, nil
}

func (r *RegistrationDB) UpdateHoursApproved(ctx context.Context, userID, eventID string, hours int) error {
	_, err := r.conn.ExecContext(ctx,
		`UPDATE event_registrations SET hours_approved = ? WHERE id = ?`,
		hours, model.RegistrationID(userID, eventID))
	if err != nil {
		return apperror.StoreUnavailable("updating approved hours", err)
	}
	return nil
}

func scanRegistration(s scanner) (*model.Registration, error) {
	var reg model.Registration
	var status string
	if err := s.Scan(
		&reg.ID,
		&reg.UserID,
		&reg.EventID,
		&reg.EventName,
		&reg.HoursApproved,
		&status,
		&reg.RegisteredAt,
	); err != nil {
		return nil, err
	}
	reg.Status = model.RegistrationStatus(status)
	return &reg, nil
}
