package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/repository"
)

var _ repository.CertificateRepository = (*CertificateDB)(nil)

// CertificateDB remembers which certificates a user has already unlocked.
type CertificateDB struct {
	conn *sql.DB
}

func (c *CertificateDB) ListByUser(ctx context.Context, userID string) ([]model.CertificateUnlock, error) {
	rows, err := c.conn.QueryContext(ctx,
		`SELECT user_id, event_id, hours, unlocked_at
		 FROM certificates WHERE user_id = ?
		 ORDER BY event_id`,
		userID,
	)
	if err != nil {
		return nil, apperror.StoreUnavailable("listing certificates", err)
	}
	defer rows.Close()

	unlocks := []model.CertificateUnlock{}
	for rows.Next() {
		var u model.CertificateUnlock
		if err := rows.Scan(&u.UserID, &u.EventID, &u.Hours, &u.UnlockedAt); err != nil {
			return nil, apperror.StoreUnavailable("scanning certificate", err)
		}
		unlocks = append(unlocks, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.StoreUnavailable("listing certificates", err)
	}
	return unlocks, nil
}

// Record inserts the unlock unless (user, event) is already present. The
// affected-row count decides which of two racing recomputes announces it.
func (c *CertificateDB) Record(ctx context.Context, unlock *model.CertificateUnlock) (bool, error) {
	if unlock.UnlockedAt.IsZero() {
		unlock.UnlockedAt = time.Now().UTC()
	}
	res, err := c.conn.ExecContext(ctx,
		`INSERT INTO certificates (user_id, event_id, hours, unlocked_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, event_id) DO NOTHING`,
		unlock.UserID,
		unlock.EventID,
		unlock.Hours,
		unlock.UnlockedAt,
	)
	if err != nil {
		return false, apperror.StoreUnavailable("recording certificate", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperror.StoreUnavailable("recording certificate", err)
	}
	return n == 1, nil
}
