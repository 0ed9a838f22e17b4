package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/storycreator/apiserver/types"
)

// LikeEventChannel is the MQ channel carrying like outcomes. Consumers can
// use the events to detect stories whose counter and liker lists have
// drifted apart after a partial failure.
const LikeEventChannel = "story.likes"

// EventPublisher sends domain events to a message queue.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// LikeEvent is the payload published for every like attempt that
// incremented the story counter.
type LikeEvent struct {
	StoryID          int64     `json:"story_id"`
	UserID           int64     `json:"user_id"`
	Likes            int       `json:"likes"`
	SnapshotAppended bool      `json:"snapshot_appended"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// LikeResult reports the outcome of each half of a like interaction.
type LikeResult struct {
	// Story is the post-increment story, set whenever Incremented is true.
	Story types.Story
	// User is the post-append user, set whenever SnapshotAppended is true.
	User types.User
	// Incremented reports whether the story counter was bumped.
	Incremented bool
	// SnapshotAppended reports whether the snapshot reached the user's
	// liked list. It can be false while Incremented is true; that state
	// is durable and is surfaced rather than hidden.
	SnapshotAppended bool
}

// LikeService coordinates the two-document like interaction.
//
// The two writes are deliberately not wrapped in a transaction: the store
// guarantees atomicity per document only, and the coordinator preserves
// that boundary. The counter increment always runs first; the snapshot
// append is only attempted after the increment succeeded.
type LikeService struct {
	stories StoryRepository
	users   UserRepository
	events  EventPublisher
}

// NewLikeService constructs the coordinator. events may be nil, in which
// case no like events are published.
func NewLikeService(stories StoryRepository, users UserRepository, events EventPublisher) *LikeService {
	return &LikeService{
		stories: stories,
		users:   users,
		events:  events,
	}
}

// Like increments the story's counter and appends the post-increment
// snapshot to the user's liked list.
//
// There is no dedup: liking the same story twice increments twice and
// appends two snapshots. If the append fails after the increment
// succeeded, the returned result still carries the incremented story so
// the caller can report the partial state, and the returned error
// describes the failed half.
func (s *LikeService) Like(ctx context.Context, user types.User, storyID int64) (LikeResult, error) {
	var result LikeResult

	story, err := s.stories.IncrementLikes(ctx, storyID)
	if err != nil {
		return result, err
	}
	result.Story = story
	result.Incremented = true

	updatedUser, err := s.users.AppendLikedStory(ctx, user.ID, story)
	if err != nil {
		s.publishEvent(ctx, story, user.ID, false)
		return result, fmt.Errorf("append liked story for user %d: %w", user.ID, err)
	}
	result.User = updatedUser
	result.SnapshotAppended = true

	s.publishEvent(ctx, story, user.ID, true)
	return result, nil
}

// publishEvent is best-effort: a queue failure never changes the outcome
// of the like itself.
func (s *LikeService) publishEvent(ctx context.Context, story types.Story, userID int64, snapshotAppended bool) {
	if s.events == nil {
		return
	}

	event := LikeEvent{
		StoryID:          story.ID,
		UserID:           userID,
		Likes:            story.Likes,
		SnapshotAppended: snapshotAppended,
		OccurredAt:       time.Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal like event for story %d: %v", story.ID, err)
		return
	}

	attrs := map[string]string{
		"story_id":          strconv.FormatInt(story.ID, 10),
		"snapshot_appended": strconv.FormatBool(snapshotAppended),
	}
	if _, err := s.events.Publish(ctx, LikeEventChannel, data, attrs); err != nil {
		log.Printf("publish like event for story %d: %v", story.ID, err)
	}
}
