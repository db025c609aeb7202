// Package scores computes the daily MeoMeo engagement score: stories posted,
// likes received and comments received by a user during the current UTC day.
package scores

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meomeo/backend/internal/logging"
	"github.com/meomeo/backend/internal/repositories"
)

// Scorer aggregates a user's engagement counts for a single UTC day and
// writes the result through to the daily_scores snapshot table.
type Scorer struct {
	repo repositories.ScoreRepository
	now  func() time.Time
}

// NewScorer constructs a Scorer. A nil clock defaults to time.Now.
func NewScorer(repo repositories.ScoreRepository, now func() time.Time) *Scorer {
	if now == nil {
		now = time.Now
	}
	return &Scorer{repo: repo, now: now}
}

// DayBounds returns the half-open UTC day window [start, end) containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// DailyScore computes the user's score for the current UTC day from the
// source tables and caches the result. The cache write is best effort: a
// failure is logged and the freshly computed score is still returned.
func (s *Scorer) DailyScore(ctx context.Context, userID int64) (int, error) {
	from, to := DayBounds(s.now())

	posts, err := s.repo.CountStoriesCreated(ctx, userID, from, to)
	if err != nil {
		return 0, fmt.Errorf("count stories created: %w", err)
	}
	likes, err := s.repo.CountLikesReceived(ctx, userID, from, to)
	if err != nil {
		return 0, fmt.Errorf("count likes received: %w", err)
	}
	comments, err := s.repo.CountCommentsReceived(ctx, userID, from, to)
	if err != nil {
		return 0, fmt.Errorf("count comments received: %w", err)
	}

	score := posts + likes + comments
	if err := s.repo.UpsertDailyScore(ctx, userID, from, score); err != nil {
		logging.FromContext(ctx).Warn("daily score cache write failed",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	return score, nil
}
