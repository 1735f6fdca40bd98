package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/auth"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/notify"
)

// =========================================================================
// TEST HELPERS
// =========================================================================

type authFixture struct {
	svc       *AuthService
	users     *fakeUserRepo
	tokens    *auth.TokenService
	publisher *recordingPublisher
}

func newTestAuthService(t *testing.T) *authFixture {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-at-least-16")
	require.NoError(t, err)

	f := &authFixture{
		users:     newFakeUserRepo(),
		tokens:    tokens,
		publisher: &recordingPublisher{},
	}
	f.svc = NewAuthService(f.users, tokens, auth.NewPasswordServiceForTest(bcrypt.MinCost), f.publisher, testLogger())
	return f
}

// =========================================================================
// SignUp
// =========================================================================

func TestSignUp(t *testing.T) {
	f := newTestAuthService(t)

	result, err := f.svc.SignUp(context.Background(), "  Ana@Example.com ", "correct horse", "Ana")
	require.NoError(t, err)

	assert.NotEmpty(t, result.User.ID)
	assert.Equal(t, "ana@example.com", result.User.Email)
	assert.Equal(t, model.RoleVolunteer, result.User.Role)
	assert.NotEqual(t, "correct horse", result.User.PasswordHash)

	identity, err := f.tokens.Validate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, identity.UserID)
	assert.Equal(t, model.RoleVolunteer, identity.Role)
	assert.Equal(t, "Ana", identity.DisplayName)

	require.Len(t, f.publisher.sessions, 1)
	assert.Equal(t, notify.SessionChanged{UserID: result.User.ID, SignedIn: true}, f.publisher.sessions[0])
}

func TestSignUp_DefaultsDisplayNameToMailbox(t *testing.T) {
	f := newTestAuthService(t)

	result, err := f.svc.SignUp(context.Background(), "luis@example.com", "correct horse", "")
	require.NoError(t, err)
	assert.Equal(t, "luis", result.User.DisplayName)
}

func TestSignUp_Validation(t *testing.T) {
	tests := []struct {
		name      string
		email     string
		password  string
		wantField string
	}{
		{"empty email", "", "correct horse", "email"},
		{"malformed email", "not-an-email", "correct horse", "email"},
		{"short password", "a@example.com", "short", "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestAuthService(t)

			_, err := f.svc.SignUp(context.Background(), tt.email, tt.password, "")

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.wantField, appErr.Field)
			assert.Empty(t, f.publisher.sessions)
		})
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	f := newTestAuthService(t)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "ana@example.com", "correct horse", "Ana")
	require.NoError(t, err)

	_, err = f.svc.SignUp(ctx, "ANA@example.com", "another password", "Ana 2")
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

// =========================================================================
// Login
// =========================================================================

func TestLogin(t *testing.T) {
	f := newTestAuthService(t)
	ctx := context.Background()
	signup, err := f.svc.SignUp(ctx, "ana@example.com", "correct horse", "Ana")
	require.NoError(t, err)

	result, err := f.svc.Login(ctx, "Ana@Example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, signup.User.ID, result.User.ID)
	assert.NotEmpty(t, result.Token)
}

func TestLogin_FailuresLookTheSame(t *testing.T) {
	f := newTestAuthService(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, "ana@example.com", "correct horse", "Ana")
	require.NoError(t, err)

	_, wrongPassword := f.svc.Login(ctx, "ana@example.com", "battery staple")
	_, unknownEmail := f.svc.Login(ctx, "nobody@example.com", "correct horse")

	assert.ErrorIs(t, wrongPassword, apperror.ErrUnauthorized)
	assert.ErrorIs(t, unknownEmail, apperror.ErrUnauthorized)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLogin_GitHubOnlyAccountHasNoPassword(t *testing.T) {
	f := newTestAuthService(t)
	ctx := context.Background()
	_, err := f.svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 7, Login: "octo", Email: "octo@example.com"})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "octo@example.com", "anything at all")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestLogin_StoreUnavailable(t *testing.T) {
	f := newTestAuthService(t)
	f.users.err = errStoreDown

	_, err := f.svc.Login(context.Background(), "ana@example.com", "correct horse")
	assert.ErrorIs(t, err, apperror.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, apperror.ErrUnauthorized)
}

// =========================================================================
// GitHub
// =========================================================================

func TestLoginOrRegisterGitHub(t *testing.T) {
	f := newTestAuthService(t)
	ctx := context.Background()
	gh := &auth.GitHubUser{ID: 42, Login: "octocat", Name: "The Octocat", Email: "octo@example.com"}

	first, err := f.svc.LoginOrRegisterGitHub(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, "The Octocat", first.User.DisplayName)
	require.NotNil(t, first.User.GitHubID)
	assert.Equal(t, int64(42), *first.User.GitHubID)

	gh.Name = "Mona"
	second, err := f.svc.LoginOrRegisterGitHub(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID, "same GitHub id must map to the same user")
	assert.Equal(t, "Mona", second.User.DisplayName)
}

func TestLoginOrRegisterGitHub_Nil(t *testing.T) {
	f := newTestAuthService(t)

	_, err := f.svc.LoginOrRegisterGitHub(context.Background(), nil)
	assert.Error(t, err)
}

// =========================================================================
// Logout / CurrentUser / SetRole
// =========================================================================

func TestLogout(t *testing.T) {
	f := newTestAuthService(t)

	f.svc.Logout(context.Background(), "user-1")
	f.svc.Logout(context.Background(), "")

	require.Len(t, f.publisher.sessions, 1)
	assert.Equal(t, notify.SessionChanged{UserID: "user-1", SignedIn: false}, f.publisher.sessions[0])
}

func TestCurrentUser(t *testing.T) {
	f := newTestAuthService(t)
	ctx := context.Background()
	signup, err := f.svc.SignUp(ctx, "ana@example.com", "correct horse", "Ana")
	require.NoError(t, err)

	user, err := f.svc.CurrentUser(ctx, signup.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)

	_, err = f.svc.CurrentUser(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.svc.CurrentUser(ctx, "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestSetRole(t *testing.T) {
	f := newTestAuthService(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, "ana@example.com", "correct horse", "Ana")
	require.NoError(t, err)

	user, err := f.svc.SetRole(ctx, "ana@example.com", model.RoleOrganizer)
	require.NoError(t, err)
	assert.Equal(t, model.RoleOrganizer, user.Role)

	// the new role shows up in the next token
	result, err := f.svc.Login(ctx, "ana@example.com", "correct horse")
	require.NoError(t, err)
	identity, err := f.tokens.Validate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleOrganizer, identity.Role)

	_, err = f.svc.SetRole(ctx, "ana@example.com", model.Role("owner"))
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.SetRole(ctx, "nobody@example.com", model.RoleAdmin)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
