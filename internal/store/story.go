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

const storyColumns = `id, name, story_content, story_img, tags, likes, user_id, username, is_complete, created_at, updated_at`

// StoryRepository handles persistence for stories.
type StoryRepository struct {
	db *sql.DB
}

func NewStoryRepository(db *sql.DB) *StoryRepository {
	return &StoryRepository{db: db}
}

// List returns stories ordered by creation time, newest first. When tag is
// non-empty only stories whose tag set contains it are returned.
func (r *StoryRepository) List(ctx context.Context, tag string) ([]types.Story, error) {
	if tag != "" {
		tagJSON, err := json.Marshal([]string{tag})
		if err != nil {
			return nil, err
		}
		const query = `
			SELECT ` + storyColumns + `
			FROM stories
			WHERE tags @> $1
			ORDER BY created_at DESC`
		return r.queryStories(ctx, query, tagJSON)
	}

	const query = `
		SELECT ` + storyColumns + `
		FROM stories
		ORDER BY created_at DESC`
	return r.queryStories(ctx, query)
}

// ListByOwner returns the stories created by the given user, newest first.
func (r *StoryRepository) ListByOwner(ctx context.Context, ownerID int64) ([]types.Story, error) {
	const query = `
		SELECT ` + storyColumns + `
		FROM stories
		WHERE user_id = $1
		ORDER BY created_at DESC`
	return r.queryStories(ctx, query, ownerID)
}

// ListByIDs returns the stories matching any of the given ids, newest first.
func (r *StoryRepository) ListByIDs(ctx context.Context, ids []int64) ([]types.Story, error) {
	if len(ids) == 0 {
		return []types.Story{}, nil
	}
	const query = `
		SELECT ` + storyColumns + `
		FROM stories
		WHERE id = ANY($1)
		ORDER BY created_at DESC`
	return r.queryStories(ctx, query, pq.Array(ids))
}

func (r *StoryRepository) GetByID(ctx context.Context, id int64) (types.Story, error) {
	const query = `
		SELECT ` + storyColumns + `
		FROM stories
		WHERE id = $1`
	return r.scanStory(r.db.QueryRowContext(ctx, query, id))
}

func (r *StoryRepository) Create(ctx context.Context, story types.Story) (types.Story, error) {
	now := time.Now()
	story.CreatedAt = now
	story.UpdatedAt = now
	if story.Story.Tags == nil {
		story.Story.Tags = []string{}
	}

	tagsJSON, err := json.Marshal(story.Story.Tags)
	if err != nil {
		return types.Story{}, err
	}

	const query = `
		INSERT INTO stories (name, story_content, story_img, tags, likes, user_id, username, is_complete, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		story.Story.Name,
		story.Story.StoryContent,
		story.Story.StoryImg,
		tagsJSON,
		story.Likes,
		story.UserID,
		story.Username,
		story.IsComplete,
		story.CreatedAt,
		story.UpdatedAt,
	).Scan(&story.ID); err != nil {
		return types.Story{}, err
	}
	return story, nil
}

// IncrementLikes adds 1 to the story's like counter in a single statement
// and returns the post-increment story. The increment is atomic for the
// story row, so concurrent likes are never lost.
func (r *StoryRepository) IncrementLikes(ctx context.Context, id int64) (types.Story, error) {
	const query = `
		UPDATE stories
		SET likes = likes + 1,
			updated_at = $2
		WHERE id = $1
		RETURNING ` + storyColumns
	return r.scanStory(r.db.QueryRowContext(ctx, query, id, time.Now()))
}

// SetImage records the object-storage key of the story's image.
func (r *StoryRepository) SetImage(ctx context.Context, id int64, imageKey string) (types.Story, error) {
	const query = `
		UPDATE stories
		SET story_img = $2,
			updated_at = $3
		WHERE id = $1
		RETURNING ` + storyColumns
	return r.scanStory(r.db.QueryRowContext(ctx, query, id, imageKey, time.Now()))
}

func (r *StoryRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM stories WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *StoryRepository) queryStories(ctx context.Context, query string, args ...any) ([]types.Story, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stories := make([]types.Story, 0)
	for rows.Next() {
		story, err := r.scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, story)
	}
	return stories, rows.Err()
}

func (r *StoryRepository) scanStory(row rowScanner) (types.Story, error) {
	var story types.Story
	var tagsJSON []byte
	err := row.Scan(
		&story.ID,
		&story.Story.Name,
		&story.Story.StoryContent,
		&story.Story.StoryImg,
		&tagsJSON,
		&story.Likes,
		&story.UserID,
		&story.Username,
		&story.IsComplete,
		&story.CreatedAt,
		&story.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Story{}, ErrNotFound
		}
		return types.Story{}, err
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &story.Story.Tags); err != nil {
			return types.Story{}, err
		}
	}
	return story, nil
}
