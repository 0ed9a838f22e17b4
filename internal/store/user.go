package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/storycreator/apiserver/types"
)

const uniqueViolationCode = "23505"

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (types.User, error) {
	const query = `
		SELECT id, username, password_hash, access_token, liked_stories, created_at, updated_at
		FROM users
		WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT id, username, password_hash, access_token, liked_stories, created_at, updated_at
		FROM users
		WHERE username = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, username))
}

// GetByAccessToken resolves the user whose bearer token equals the given
// value. Each call re-queries the store; there is no caching.
func (r *UserRepository) GetByAccessToken(ctx context.Context, token string) (types.User, error) {
	const query = `
		SELECT id, username, password_hash, access_token, liked_stories, created_at, updated_at
		FROM users
		WHERE access_token = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, token))
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	const query = `
		SELECT id, username, password_hash, access_token, liked_stories, created_at, updated_at
		FROM users
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.LikedStories == nil {
		user.LikedStories = []types.Story{}
	}

	likedJSON, err := json.Marshal(user.LikedStories)
	if err != nil {
		return types.User{}, err
	}

	const query = `
		INSERT INTO users (username, password_hash, access_token, liked_stories, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.PasswordHash,
		user.AccessToken,
		likedJSON,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
			return types.User{}, ErrDuplicate
		}
		return types.User{}, err
	}
	return user, nil
}

// AppendLikedStory appends a story snapshot to the user's liked list in a
// single statement and returns the post-append user. The append is atomic
// for the user row only; it is not coordinated with any story update.
func (r *UserRepository) AppendLikedStory(ctx context.Context, userID int64, snapshot types.Story) (types.User, error) {
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return types.User{}, err
	}

	const query = `
		UPDATE users
		SET liked_stories = liked_stories || $2::jsonb,
			updated_at = $3
		WHERE id = $1
		RETURNING id, username, password_hash, access_token, liked_stories, created_at, updated_at`
	return r.scanUser(r.db.QueryRowContext(ctx, query, userID, snapshotJSON, time.Now()))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *UserRepository) scanUser(row rowScanner) (types.User, error) {
	var user types.User
	var likedJSON []byte
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.AccessToken,
		&likedJSON,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	if len(likedJSON) > 0 {
		if err := json.Unmarshal(likedJSON, &user.LikedStories); err != nil {
			return types.User{}, err
		}
	}
	if user.LikedStories == nil {
		user.LikedStories = []types.Story{}
	}
	return user, nil
}
