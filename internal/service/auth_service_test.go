package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Mentrauz/OpenRoll-sub000/internal/models"
)

type userRepoStub struct {
	users   map[string]*models.User
	byEmail map[string]*models.User
	tokens  map[string]*models.RefreshToken
	logs    []*models.AuditLog
}

func newUserRepoStub() *userRepoStub {
	return &userRepoStub{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]*models.User),
		tokens:  make(map[string]*models.RefreshToken),
	}
}

func (s *userRepoStub) addUser(user *models.User) {
	s.users[user.ID] = user
	s.byEmail[user.Email] = user
}

func (s *userRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := s.byEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (s *userRepoStub) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if user, ok := s.users[id]; ok {
		user.PasswordHash = passwordHash
	}
	return nil
}

func (s *userRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, token := range s.tokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (s *userRepoStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.tokens[token.Token] = token
	return nil
}

func (s *userRepoStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := s.tokens[token]; ok {
		return stored, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userRepoStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range s.tokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (s *userRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func newTestAuthService(repo *userRepoStub) *AuthService {
	return NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "openroll-test",
	})
}

func hashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthServiceLoginIssuesTokens(t *testing.T) {
	repo := newUserRepoStub()
	repo.addUser(&models.User{
		ID:           "user-1",
		Email:        "ops@example.com",
		PasswordHash: hashPassword(t, "secret123"),
		FullName:     "Ops One",
		Role:         models.RoleDataOps,
		Active:       true,
	})
	svc := newTestAuthService(repo)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "ops@example.com", Password: "secret123"})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	require.Equal(t, models.RoleDataOps, res.User.Role)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, models.RoleDataOps, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := newUserRepoStub()
	repo.addUser(&models.User{
		ID:           "user-1",
		Email:        "ops@example.com",
		PasswordHash: hashPassword(t, "secret123"),
		Active:       true,
	})
	svc := newTestAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ops@example.com", Password: "nope-nope"})
	require.Error(t, err)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	repo := newUserRepoStub()
	repo.addUser(&models.User{
		ID:           "user-1",
		Email:        "ops@example.com",
		PasswordHash: hashPassword(t, "secret123"),
		Active:       false,
	})
	svc := newTestAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ops@example.com", Password: "secret123"})
	require.Error(t, err)
}

func TestAuthServiceRefreshRejectsRevokedToken(t *testing.T) {
	repo := newUserRepoStub()
	repo.addUser(&models.User{ID: "user-1", Email: "ops@example.com", Active: true})
	repo.tokens["revoked"] = &models.RefreshToken{
		ID:        "tok-1",
		UserID:    "user-1",
		Token:     "revoked",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
		Revoked:   true,
	}
	svc := newTestAuthService(repo)

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "revoked"})
	require.Error(t, err)
}

func TestAuthServiceChangePasswordRevokesSessions(t *testing.T) {
	repo := newUserRepoStub()
	repo.addUser(&models.User{
		ID:           "user-1",
		Email:        "ops@example.com",
		PasswordHash: hashPassword(t, "oldpass"),
		Active:       true,
	})
	repo.tokens["live"] = &models.RefreshToken{
		ID:        "tok-1",
		UserID:    "user-1",
		Token:     "live",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	svc := newTestAuthService(repo)

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "oldpass",
		NewPassword: "newpass1",
	})
	require.NoError(t, err)
	require.True(t, repo.tokens["live"].Revoked)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users["user-1"].PasswordHash), []byte("newpass1")))
}
