package services

import (
	"context"
	"errors"
	"strings"

	"github.com/storycreator/apiserver/types"
)

const minStoryContentLength = 5

// ErrInvalidStory is returned when story content fails validation.
var ErrInvalidStory = errors.New("invalid story content")

// ErrNotOwner is returned when a user tries to delete a story they do not own.
var ErrNotOwner = errors.New("not the story owner")

// StoryRepository defines persistence operations for stories.
type StoryRepository interface {
	List(ctx context.Context, tag string) ([]types.Story, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]types.Story, error)
	ListByIDs(ctx context.Context, ids []int64) ([]types.Story, error)
	GetByID(ctx context.Context, id int64) (types.Story, error)
	Create(ctx context.Context, story types.Story) (types.Story, error)
	IncrementLikes(ctx context.Context, id int64) (types.Story, error)
	SetImage(ctx context.Context, id int64, imageKey string) (types.Story, error)
	Delete(ctx context.Context, id int64) error
}

// StoryService encapsulates story use-cases.
type StoryService struct {
	repo StoryRepository
}

func NewStoryService(repo StoryRepository) *StoryService {
	return &StoryService{repo: repo}
}

// List returns stories newest first, optionally filtered to those whose tag
// set contains tag.
func (s *StoryService) List(ctx context.Context, tag string) ([]types.Story, error) {
	return s.repo.List(ctx, tag)
}

func (s *StoryService) ListByOwner(ctx context.Context, ownerID int64) ([]types.Story, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// ListLiked resolves the story ids held in the user's liked snapshots and
// returns the current story records. Snapshots whose story has since been
// deleted are skipped.
func (s *StoryService) ListLiked(ctx context.Context, user types.User) ([]types.Story, error) {
	ids := make([]int64, 0, len(user.LikedStories))
	for _, snapshot := range user.LikedStories {
		ids = append(ids, snapshot.ID)
	}
	return s.repo.ListByIDs(ctx, ids)
}

func (s *StoryService) Get(ctx context.Context, id int64) (types.Story, error) {
	return s.repo.GetByID(ctx, id)
}

// Create validates the content and persists a new story. The owner's id and
// username are copied onto the story at creation time and are not kept in
// sync with later user changes.
func (s *StoryService) Create(ctx context.Context, details types.StoryDetails, owner types.User) (types.Story, error) {
	details.Name = strings.TrimSpace(details.Name)
	details.StoryContent = strings.TrimSpace(details.StoryContent)
	if details.Name == "" {
		return types.Story{}, errors.Join(ErrInvalidStory, errors.New("name is required"))
	}
	if len(details.StoryContent) < minStoryContentLength {
		return types.Story{}, errors.Join(ErrInvalidStory, errors.New("storyContent must be at least 5 characters"))
	}

	return s.repo.Create(ctx, types.Story{
		Story:    details,
		UserID:   owner.ID,
		Username: owner.Username,
	})
}

// Delete removes a story after checking that the requester owns it.
func (s *StoryService) Delete(ctx context.Context, id int64, requester types.User) (types.Story, error) {
	story, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Story{}, err
	}
	if story.UserID != requester.ID {
		return types.Story{}, ErrNotOwner
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return types.Story{}, err
	}
	return story, nil
}

// SetImage records the object-storage key of the story's image.
func (s *StoryService) SetImage(ctx context.Context, id int64, imageKey string) (types.Story, error) {
	return s.repo.SetImage(ctx, id, imageKey)
}
