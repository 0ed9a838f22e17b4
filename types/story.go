package types

import "time"

// StoryDetails is the author-provided content of a story.
type StoryDetails struct {
	// Name is the story title. Required.
	Name string `json:"name" db:"name"`

	// StoryContent is the body text. Required, at least 5 characters
	// after trimming.
	StoryContent string `json:"storyContent" db:"story_content"`

	// StoryImg references an uploaded story image, if any.
	StoryImg string `json:"storyImg,omitempty" db:"story_img"`

	// Tags is an optional set of labels used for list filtering.
	Tags []string `json:"tags,omitempty" db:"tags"`
}

// Story represents a story document.
type Story struct {
	// ID is the unique identifier of the story.
	ID int64 `json:"id" db:"id"`

	// Story holds the author-provided content.
	Story StoryDetails `json:"story"`

	// Likes counts like interactions. Defaults to 0 and only ever
	// increases under the supported operations.
	Likes int `json:"likes" db:"likes"`

	// UserID and Username are copies of the creating user's id and name
	// taken at creation time. They are not updated if the user changes
	// later.
	UserID   int64  `json:"userId" db:"user_id"`
	Username string `json:"username" db:"username"`

	// IsComplete marks a finished story.
	IsComplete bool `json:"isComplete" db:"is_complete"`

	// CreatedAt is the creation timestamp and the default sort key
	// (descending) for listings.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the story.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
