package repositories

import (
	"context"
	"time"
)

// ScoreRepository exposes the engagement counts the daily scorer aggregates
// and the snapshot cache it writes through to. Counts are always computed
// from the source tables; the daily_scores row is never read back as truth.
type ScoreRepository interface {
	// CountStoriesCreated counts stories the user authored in [from, to).
	CountStoriesCreated(ctx context.Context, userID int64, from, to time.Time) (int, error)
	// CountLikesReceived counts likes placed in [from, to) on the user's stories.
	CountLikesReceived(ctx context.Context, userID int64, from, to time.Time) (int, error)
	// CountCommentsReceived counts comments placed in [from, to) on the user's stories.
	CountCommentsReceived(ctx context.Context, userID int64, from, to time.Time) (int, error)
	// UpsertDailyScore records the computed snapshot for (user, day).
	UpsertDailyScore(ctx context.Context, userID int64, day time.Time, score int) error
}
