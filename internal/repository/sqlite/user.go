package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/repository"
)

var _ repository.UserRepository = (*UserDB)(nil)

// UserDB stores accounts that can sign in, by password or through GitHub.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, email, display_name, role, password_hash, github_id, created_at, updated_at`

// Create inserts a new user. Emails are stored lower-cased and must be unique.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.RoleVolunteer
	}

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.DisplayName,
		string(user.Role),
		user.PasswordHash,
		nullableInt64(user.GitHubID),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ConflictMessage("an account with that email already exists")
		}
		return apperror.StoreUnavailable("creating user", err)
	}
	return nil
}

func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return u.getOne(ctx, "id", id)
}

func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.getOne(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (u *UserDB) getOne(ctx context.Context, column, value string) (*model.User, error) {
	row := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, apperror.StoreUnavailable("getting user", err)
	}
	return user, nil
}

// UpsertGitHub keeps the internal ID stable across sign-ins: an existing
// row matched by github_id has its profile refreshed, otherwise a new
// volunteer is created.
func (u *UserDB) UpsertGitHub(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return apperror.ValidationFailed("githubId", "github id is required")
	}

	row := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, *user.GitHubID)
	existing, err := scanUser(row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return apperror.StoreUnavailable("looking up github user", err)
	}

	if existing == nil {
		return u.Create(ctx, user)
	}

	existing.DisplayName = user.DisplayName
	if user.Email != "" {
		existing.Email = strings.ToLower(strings.TrimSpace(user.Email))
	}
	existing.UpdatedAt = time.Now().UTC()

	_, err = u.conn.ExecContext(ctx,
		`UPDATE users SET email = ?, display_name = ?, updated_at = ? WHERE id = ?`,
		existing.Email, existing.DisplayName, existing.UpdatedAt, existing.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ConflictMessage("an account with that email already exists")
		}
		return apperror.StoreUnavailable("updating github user", err)
	}

	*user = *existing
	return nil
}

func (u *UserDB) SetRole(ctx context.Context, id string, role model.Role) error {
	if !role.Valid() {
		return apperror.ValidationFailed("role", "unknown role "+string(role))
	}
	result, err := u.conn.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), time.Now().UTC(), id)
	if err != nil {
		return apperror.StoreUnavailable("setting user role", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperror.StoreUnavailable("setting user role", err)
	}
	if affected == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func scanUser(s scanner) (*model.User, error) {
	var user model.User
	var role string
	var githubID sql.NullInt64
	if err := s.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&role,
		&user.PasswordHash,
		&githubID,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Role = model.Role(role)
	if githubID.Valid {
		id := githubID.Int64
		user.GitHubID = &id
	}
	return &user, nil
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
