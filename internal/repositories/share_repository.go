package repositories

import (
	"context"
	"time"

	"github.com/meomeo/backend/internal/models"
)

// ShareResolution is the result of a share-token lookup: the story it points
// at, that story's visibility and the link's expiry.
type ShareResolution struct {
	StoryID    int64
	Visibility string
	ExpiresAt  time.Time
}

// ShareRepository defines persistence for share links.
type ShareRepository interface {
	Create(ctx context.Context, storyID int64, token string, expiresAt time.Time) (models.Share, error)
	// Resolve looks a token up without enforcing expiry; callers decide
	// whether an expired link is Gone.
	Resolve(ctx context.Context, token string) (ShareResolution, error)
}
