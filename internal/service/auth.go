package service

import (
	"context"
	"errors"
	"time"

	"github.com/chatledger/chatledger-go/internal/crypto"
	"github.com/chatledger/chatledger-go/internal/model"
	"github.com/chatledger/chatledger-go/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailRequired      = errors.New("email is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrEmailTaken         = errors.New("email already taken")
	ErrUserNotFound       = errors.New("user not found")
)

// UserStore is the persistence capability the auth service depends on.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	Delete(ctx context.Context, id int64) error
}

// AuthService handles registration, login, and token refresh.
type AuthService struct {
	users      UserStore
	jwtSecret  string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, secret string, accessTTL, refreshTTL time.Duration) *AuthService {
	return &AuthService{
		users:      users,
		jwtSecret:  secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Register creates a new user account.
func (s *AuthService) Register(ctx context.Context, req model.CredentialsRequest) error {
	if req.Email == "" {
		return ErrEmailRequired
	}
	if req.Password == "" {
		return ErrPasswordRequired
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return err
	}

	user := &model.User{
		Email:        req.Email,
		PasswordHash: hash,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return ErrEmailTaken
		}
		return err
	}

	return nil
}

// Login authenticates a user and returns an access/refresh token pair.
func (s *AuthService) Login(ctx context.Context, req model.CredentialsRequest) (model.TokenPairResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.TokenPairResponse{}, ErrInvalidCredentials
		}
		return model.TokenPairResponse{}, err
	}

	match, err := crypto.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return model.TokenPairResponse{}, err
	}
	if !match {
		return model.TokenPairResponse{}, ErrInvalidCredentials
	}

	pair, err := crypto.GenerateTokenPair(user.ID, s.jwtSecret, s.accessTTL, s.refreshTTL)
	if err != nil {
		return model.TokenPairResponse{}, err
	}

	return model.TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Refresh mints a new access token from a valid refresh token.
func (s *AuthService) Refresh(refreshToken string) (model.AccessTokenResponse, error) {
	access, err := crypto.RefreshAccessToken(refreshToken, s.jwtSecret, s.accessTTL)
	if err != nil {
		return model.AccessTokenResponse{}, err
	}
	return model.AccessTokenResponse{AccessToken: access}, nil
}

// GetUser retrieves a user by ID and returns safe user data.
func (s *AuthService) GetUser(ctx context.Context, userID int64) (model.UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.UserResponse{}, ErrUserNotFound
		}
		return model.UserResponse{}, err
	}

	return model.UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}, nil
}

// DeleteUser removes a user account; chats and transactions cascade.
func (s *AuthService) DeleteUser(ctx context.Context, userID int64) error {
	err := s.users.Delete(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}
