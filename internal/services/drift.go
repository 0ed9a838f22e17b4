package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/storycreator/apiserver/internal/mq"
)

// EventSubscriber consumes domain events from a message queue.
type EventSubscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// DriftAuditor consumes like events and records those where the story
// counter moved but the snapshot never reached the user's liked list.
type DriftAuditor struct {
	queue   EventSubscriber
	onDrift func(LikeEvent)
}

// NewDriftAuditor constructs the auditor. onDrift may be nil, in which
// case drifted likes are logged.
func NewDriftAuditor(queue EventSubscriber, onDrift func(LikeEvent)) *DriftAuditor {
	if onDrift == nil {
		onDrift = logDrift
	}
	return &DriftAuditor{queue: queue, onDrift: onDrift}
}

// Run consumes the like-event channel until ctx is done.
func (a *DriftAuditor) Run(ctx context.Context) error {
	return a.queue.Subscribe(ctx, LikeEventChannel, a.handle)
}

func (a *DriftAuditor) handle(ctx context.Context, msg mq.Message) error {
	var event LikeEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		// A malformed payload is dropped, not requeued.
		log.Printf("drop malformed like event %s: %v", msg.ID, err)
		return nil
	}
	if !event.SnapshotAppended {
		a.onDrift(event)
	}
	return nil
}

func logDrift(event LikeEvent) {
	log.Printf(
		"like drift: story %d counter moved without a snapshot for user %d",
		event.StoryID,
		event.UserID,
	)
}
