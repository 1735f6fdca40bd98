package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/auth"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/notify"
	"github.com/sakif/servicehours/internal/repository"
)

const MaxDisplayNameLength = 80

// AuthService handles sign-up, sign-in and sign-out.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                               ↘ TokenService (JWT), PasswordService (bcrypt)
//
// It never touches cookies; the handler turns AuthResult into one.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	publisher notify.Publisher
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	publisher notify.Publisher,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		publisher: publisher,
		logger:    logger,
	}
}

// AuthResult bundles the user and the issued token so the handler can set
// the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// SignUp creates a volunteer account with a password and signs it in.
func (s *AuthService) SignUp(ctx context.Context, email, password, displayName string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, apperror.ValidationFailed("email", "a valid email address is required")
	}
	if err := auth.CheckStrength(password); err != nil {
		return nil, apperror.ValidationFailed("password", strings.TrimPrefix(err.Error(), "auth: "))
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}
	if utf8.RuneCountInString(displayName) > MaxDisplayNameLength {
		return nil, apperror.ValidationFailed("displayName",
			fmt.Sprintf("display name must be %d characters or fewer", MaxDisplayNameLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		DisplayName:  displayName,
		Role:         model.RoleVolunteer,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user signed up", slog.String("user_id", user.ID))
	return s.issue(ctx, user)
}

// Login checks an email and password. Unknown emails and wrong passwords
// produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := apperror.Unauthorized("invalid email or password")

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	return s.issue(ctx, user)
}

// LoginOrRegisterGitHub upserts the GitHub user and signs it in.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	githubID := ghUser.ID
	user := &model.User{
		Email:       ghUser.Email,
		DisplayName: ghUser.DisplayName(),
		Role:        model.RoleVolunteer,
		GitHubID:    &githubID,
	}
	if err := s.users.UpsertGitHub(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("user_id", user.ID),
		slog.String("login", ghUser.Login),
	)
	return s.issue(ctx, user)
}

// Logout announces the sign-out. Tokens are stateless, so clearing the
// cookie is the handler's job.
func (s *AuthService) Logout(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	s.publishSession(ctx, userID, false)
}

func (s *AuthService) CurrentUser(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user id is required")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// SetRole changes the role of the user with the given email. The change
// takes effect at the user's next sign-in.
func (s *AuthService) SetRole(ctx context.Context, email string, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, apperror.ValidationFailed("role", "role must be volunteer, organizer or admin")
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: finding %s: %w", email, err)
	}
	if err := s.users.SetRole(ctx, user.ID, role); err != nil {
		return nil, fmt.Errorf("service/auth: setting role for %s: %w", user.ID, err)
	}
	user.Role = role

	s.logger.Info("user role changed",
		slog.String("user_id", user.ID),
		slog.String("role", string(role)),
	)
	return user, nil
}

func (s *AuthService) issue(ctx context.Context, user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(model.Identity{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Role:        user.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	s.publishSession(ctx, user.ID, true)
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) publishSession(ctx context.Context, userID string, signedIn bool) {
	if err := s.publisher.PublishSession(ctx, notify.SessionChanged{UserID: userID, SignedIn: signedIn}); err != nil {
		s.logger.Warn("publishing session change",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
