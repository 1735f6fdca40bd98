package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/repository"
)

var _ repository.AccountRepository = (*AccountDB)(nil)

// AccountDB stores the cached coin balance per user.
type AccountDB struct {
	conn *sql.DB
}

func (a *AccountDB) Get(ctx context.Context, userID string) (*model.Account, error) {
	var acct model.Account
	err := a.conn.QueryRowContext(ctx,
		`SELECT user_id, coins, approved_hours, updated_at FROM accounts WHERE user_id = ?`,
		userID,
	).Scan(&acct.UserID, &acct.Coins, &acct.ApprovedHours, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("account", userID)
		}
		return nil, apperror.StoreUnavailable("getting account", err)
	}
	return &acct, nil
}

// Save upserts the account and stamps UpdatedAt.
func (a *AccountDB) Save(ctx context.Context, account *model.Account) error {
	account.UpdatedAt = time.Now().UTC()
	_, err := a.conn.ExecContext(ctx,
		`INSERT INTO accounts (user_id, coins, approved_hours, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     coins = excluded.coins,
		     approved_hours = excluded.approved_hours,
		     updated_at = excluded.updated_at`,
		account.UserID,
		account.Coins,
		account.ApprovedHours,
		account.UpdatedAt,
	)
	if err != nil {
		return apperror.StoreUnavailable("saving account", err)
	}
	return nil
}
