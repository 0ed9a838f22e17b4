package types

import "time"

// User represents an account in the system.
type User struct {
	// ID is the unique identifier of the user, assigned by the store.
	ID int64 `json:"id" db:"id"`

	// Username is the unique login name chosen by the user. Immutable
	// after registration.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the bcrypt digest of the user's password.
	// The plaintext is never persisted. Never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// AccessToken is the opaque bearer credential minted once at
	// registration. It has no expiry and is never rotated. Requests are
	// authenticated by matching it against the Authorization header.
	// Never serialized on the user record; returned only by the
	// register and login endpoints.
	AccessToken string `json:"-" db:"access_token"`

	// LikedStories holds snapshots of stories the user liked, appended
	// in like order. Each entry is a copy taken at like time and is not
	// kept in sync with the story afterwards.
	LikedStories []Story `json:"likedStories" db:"liked_stories"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
