package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/meomeo/backend/internal/db"
)

// PostgresScoreRepository computes engagement counts from the source tables
// and writes daily snapshots into daily_scores.
type PostgresScoreRepository struct {
	pool db.Pool
}

// NewPostgresScoreRepository constructs a score repository backed by PostgreSQL.
func NewPostgresScoreRepository(pool db.Pool) *PostgresScoreRepository {
	return &PostgresScoreRepository{pool: pool}
}

func (r *PostgresScoreRepository) count(ctx context.Context, query string, userID int64, from, to time.Time) (int, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var n int
	if err := conn.QueryRow(ctx, query, userID, from, to).Scan(&n); err != nil {
		return 0, fmt.Errorf("count engagement: %w", err)
	}
	return n, nil
}

// CountStoriesCreated counts stories the user authored in [from, to).
func (r *PostgresScoreRepository) CountStoriesCreated(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	return r.count(ctx, `
        SELECT COUNT(*) FROM stories
        WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
    `, userID, from, to)
}

// CountLikesReceived counts likes placed in [from, to) on the user's stories.
func (r *PostgresScoreRepository) CountLikesReceived(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	return r.count(ctx, `
        SELECT COUNT(*) FROM likes l
        INNER JOIN stories s ON l.story_id = s.id
        WHERE s.user_id = $1 AND l.created_at >= $2 AND l.created_at < $3
    `, userID, from, to)
}

// CountCommentsReceived counts comments placed in [from, to) on the user's stories.
func (r *PostgresScoreRepository) CountCommentsReceived(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	return r.count(ctx, `
        SELECT COUNT(*) FROM comments c
        INNER JOIN stories s ON c.story_id = s.id
        WHERE s.user_id = $1 AND c.created_at >= $2 AND c.created_at < $3
    `, userID, from, to)
}

// UpsertDailyScore records the computed snapshot for (user, day).
func (r *PostgresScoreRepository) UpsertDailyScore(ctx context.Context, userID int64, day time.Time, score int) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO daily_scores (user_id, date, score)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id, date) DO UPDATE
        SET score = EXCLUDED.score, updated_at = NOW()
    `, userID, day, score)
	if err != nil {
		return fmt.Errorf("upsert daily score: %w", err)
	}
	return nil
}

var _ ScoreRepository = (*PostgresScoreRepository)(nil)
