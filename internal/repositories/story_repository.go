package repositories

import (
	"context"

	"github.com/meomeo/backend/internal/models"
)

// StoryRepository defines persistence for stories.
type StoryRepository interface {
	Create(ctx context.Context, userID int64, content, visibility string) (models.Story, error)
	// Get returns the bare story row, regardless of visibility or archival.
	Get(ctx context.Context, id int64) (models.Story, error)
	// GetDetail returns the story joined with its author and engagement counts.
	GetDetail(ctx context.Context, id int64) (models.StoryFeedItem, error)
	// PublicFeed lists non-archived public stories, newest first.
	PublicFeed(ctx context.Context, limit, offset int) ([]models.StoryFeedItem, error)
	CountPublic(ctx context.Context) (int, error)
	// ListByUser lists all of a user's stories, both visibilities, newest first.
	ListByUser(ctx context.Context, userID int64) ([]models.StoryFeedItem, error)
	UpdateVisibility(ctx context.Context, id int64, visibility string) error
	Archive(ctx context.Context, id int64) error
	// Delete removes the story; likes and comments cascade at the storage layer.
	Delete(ctx context.Context, id int64) error
}

// LikeRepository defines persistence for likes. A (user, story) pair may hold
// at most one like, enforced by a unique constraint.
type LikeRepository interface {
	// Like inserts the like; ErrConflict means the story was already liked.
	Like(ctx context.Context, userID, storyID int64) error
	Unlike(ctx context.Context, userID, storyID int64) error
	IsLiked(ctx context.Context, userID, storyID int64) (bool, error)
	CountForStory(ctx context.Context, storyID int64) (int, error)
}

// CommentRepository defines persistence for comments.
type CommentRepository interface {
	Create(ctx context.Context, userID, storyID int64, content string) (models.Comment, error)
	// ListForStory returns the story's comments oldest first with author names.
	ListForStory(ctx context.Context, storyID int64) ([]models.CommentWithAuthor, error)
	CountForStory(ctx context.Context, storyID int64) (int, error)
}
