package models

import "time"

// User represents an account within the MeoMeo platform. Accounts created
// through Google sign-in start in a provisional state (OnboardingExpiresAt
// set) until the owner picks a username and avatar color.
type User struct {
	ID            int64
	Username      string
	DisplayName   string
	AvatarURL     string
	AvatarBgColor string
	PasswordHash  string
	GoogleID      string
	GoogleEmail   string

	OnboardingExpiresAt *time.Time

	RefreshTokenID        string
	RefreshTokenHash      string
	RefreshTokenExpiresAt *time.Time

	ThemePreference string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Provisional reports whether the account is still waiting on onboarding.
func (u User) Provisional() bool {
	return u.OnboardingExpiresAt != nil
}

// Story is a user-authored post, public or private. Archived stories stay
// readable by their owner but drop out of the public feed.
type Story struct {
	ID         int64
	UserID     int64
	Content    string
	Visibility string
	Archived   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// StoryFeedItem is a story joined with its author and engagement counts,
// the shape returned by feed and detail endpoints.
type StoryFeedItem struct {
	Story
	Username      string
	DisplayName   string
	AvatarURL     string
	AvatarBgColor string
	LikeCount     int
	CommentCount  int
}

// Comment is an append-only reply attached to a story.
type Comment struct {
	ID        int64
	UserID    int64
	StoryID   int64
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CommentWithAuthor carries the commenting user's username for display.
type CommentWithAuthor struct {
	Comment
	Username string
}

// Share maps an opaque token to a story for link-based access.
type Share struct {
	ID        int64
	StoryID   int64
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ErrorResponse is the wire envelope every failing endpoint returns.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

// DailyScore is the cached per-(user, day) engagement snapshot. It is a
// write-through cache; the source of truth is always the stories, likes and
// comments tables.
type DailyScore struct {
	UserID    int64
	Date      string
	Score     int
	UpdatedAt time.Time
}
