package services

import (
	"context"
	"errors"
	"strings"

	"github.com/storycreator/apiserver/internal/store"
	"github.com/storycreator/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// ErrUsernameTaken is returned by Register when the username already exists.
var ErrUsernameTaken = errors.New("username already exists")

// ErrMissingCredentials is returned when username or password is empty.
var ErrMissingCredentials = errors.New("missing credentials")

// ErrInvalidCredentials is returned by Login for both an unknown username
// and a wrong password. Callers must not be able to tell the two apart.
var ErrInvalidCredentials = errors.New("credentials do not match")

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByAccessToken(ctx context.Context, token string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	AppendLikedStory(ctx context.Context, userID int64, snapshot types.Story) (types.User, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int64) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

// GetByAccessToken resolves the principal for a bearer token. A miss comes
// back as store.ErrNotFound; any other error is a store failure and must be
// kept distinct from an authentication rejection.
func (s *UserService) GetByAccessToken(ctx context.Context, token string) (types.User, error) {
	if token == "" {
		return types.User{}, store.ErrNotFound
	}
	return s.repo.GetByAccessToken(ctx, token)
}

// Register creates a new account. The password is bcrypt-hashed with a
// fresh salt and a new access token is minted; the plaintext is never
// stored. A duplicate username surfaces as ErrUsernameTaken.
func (s *UserService) Register(ctx context.Context, username, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return types.User{}, ErrMissingCredentials
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	token, err := newAccessToken()
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     username,
		PasswordHash: string(hashed),
		AccessToken:  token,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrUsernameTaken
		}
		return types.User{}, err
	}
	return user, nil
}

// Login verifies the credentials and returns the account with its original
// access token. An unknown username and a wrong password both produce
// ErrInvalidCredentials so usernames cannot be enumerated.
func (s *UserService) Login(ctx context.Context, username, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return types.User{}, ErrMissingCredentials
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}
