package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meomeo/backend/internal/db"
	"github.com/meomeo/backend/internal/models"
)

// PostgresShareRepository provides PostgreSQL-backed persistence for share links.
type PostgresShareRepository struct {
	pool db.Pool
}

// NewPostgresShareRepository constructs a share repository backed by PostgreSQL.
func NewPostgresShareRepository(pool db.Pool) *PostgresShareRepository {
	return &PostgresShareRepository{pool: pool}
}

// Create inserts a share link and returns the stored row.
func (r *PostgresShareRepository) Create(ctx context.Context, storyID int64, token string, expiresAt time.Time) (models.Share, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Share{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var share models.Share
	err = conn.QueryRow(ctx, `
        INSERT INTO shares (story_id, share_token, expires_at)
        VALUES ($1, $2, $3)
        RETURNING id, story_id, share_token, expires_at, created_at
    `, storyID, token, expiresAt).Scan(
		&share.ID, &share.StoryID, &share.Token, &share.ExpiresAt, &share.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return models.Share{}, ErrConflict
			case pgerrcode.ForeignKeyViolation:
				return models.Share{}, ErrNotFound
			}
		}
		return models.Share{}, fmt.Errorf("insert share: %w", err)
	}
	return share, nil
}

// Resolve looks a share token up along with the target story's visibility.
// Expiry is returned, not enforced.
func (r *PostgresShareRepository) Resolve(ctx context.Context, token string) (ShareResolution, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return ShareResolution{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var res ShareResolution
	err = conn.QueryRow(ctx, `
        SELECT sh.story_id, st.visibility, sh.expires_at
        FROM shares sh
        INNER JOIN stories st ON sh.story_id = st.id
        WHERE sh.share_token = $1
    `, token).Scan(&res.StoryID, &res.Visibility, &res.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ShareResolution{}, ErrNotFound
		}
		return ShareResolution{}, fmt.Errorf("select share: %w", err)
	}
	return res, nil
}

var _ ShareRepository = (*PostgresShareRepository)(nil)
