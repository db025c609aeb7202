package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meomeo/backend/internal/db"
	"github.com/meomeo/backend/internal/models"
)

const storyFeedColumns = `s.id, s.user_id, s.content, s.visibility, s.archived, s.created_at, s.updated_at,
        u.username, u.display_name, u.avatar_url, u.avatar_bg_color,
        (SELECT COUNT(*) FROM likes l WHERE l.story_id = s.id) AS like_count,
        (SELECT COUNT(*) FROM comments c WHERE c.story_id = s.id) AS comment_count`

// PostgresStoryRepository provides PostgreSQL-backed persistence for stories.
type PostgresStoryRepository struct {
	pool db.Pool
}

// NewPostgresStoryRepository constructs a story repository backed by PostgreSQL.
func NewPostgresStoryRepository(pool db.Pool) *PostgresStoryRepository {
	return &PostgresStoryRepository{pool: pool}
}

func scanFeedItem(row pgx.Row) (models.StoryFeedItem, error) {
	var (
		item                   models.StoryFeedItem
		displayName, avatarURL sql.NullString
	)
	err := row.Scan(
		&item.ID, &item.UserID, &item.Content, &item.Visibility, &item.Archived,
		&item.CreatedAt, &item.UpdatedAt,
		&item.Username, &displayName, &avatarURL, &item.AvatarBgColor,
		&item.LikeCount, &item.CommentCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.StoryFeedItem{}, ErrNotFound
		}
		return models.StoryFeedItem{}, fmt.Errorf("scan story: %w", err)
	}
	item.DisplayName = displayName.String
	item.AvatarURL = avatarURL.String
	if item.DisplayName == "" {
		item.DisplayName = item.Username
	}
	return item, nil
}

// Create inserts a story and returns the stored row.
func (r *PostgresStoryRepository) Create(ctx context.Context, userID int64, content, visibility string) (models.Story, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Story{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var story models.Story
	err = conn.QueryRow(ctx, `
        INSERT INTO stories (user_id, content, visibility)
        VALUES ($1, $2, $3)
        RETURNING id, user_id, content, visibility, archived, created_at, updated_at
    `, userID, content, visibility).Scan(
		&story.ID, &story.UserID, &story.Content, &story.Visibility, &story.Archived,
		&story.CreatedAt, &story.UpdatedAt,
	)
	if err != nil {
		return models.Story{}, fmt.Errorf("insert story: %w", err)
	}
	return story, nil
}

// Get returns the bare story row.
func (r *PostgresStoryRepository) Get(ctx context.Context, id int64) (models.Story, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Story{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var story models.Story
	err = conn.QueryRow(ctx, `
        SELECT id, user_id, content, visibility, archived, created_at, updated_at
        FROM stories
        WHERE id = $1
    `, id).Scan(
		&story.ID, &story.UserID, &story.Content, &story.Visibility, &story.Archived,
		&story.CreatedAt, &story.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Story{}, ErrNotFound
		}
		return models.Story{}, fmt.Errorf("select story: %w", err)
	}
	return story, nil
}

// GetDetail returns the story joined with its author and engagement counts.
func (r *PostgresStoryRepository) GetDetail(ctx context.Context, id int64) (models.StoryFeedItem, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.StoryFeedItem{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+storyFeedColumns+`
        FROM stories s
        INNER JOIN users u ON s.user_id = u.id
        WHERE s.id = $1
    `, id)
	return scanFeedItem(row)
}

// PublicFeed lists non-archived public stories in reverse chronological order.
func (r *PostgresStoryRepository) PublicFeed(ctx context.Context, limit, offset int) ([]models.StoryFeedItem, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+storyFeedColumns+`
        FROM stories s
        INNER JOIN users u ON s.user_id = u.id
        WHERE s.visibility = 'public' AND NOT s.archived
        ORDER BY s.created_at DESC
        LIMIT $1 OFFSET $2
    `, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query public feed: %w", err)
	}
	defer rows.Close()

	return collectFeedItems(rows)
}

// CountPublic counts non-archived public stories.
func (r *PostgresStoryRepository) CountPublic(ctx context.Context) (int, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var total int
	err = conn.QueryRow(ctx, `
        SELECT COUNT(*) FROM stories WHERE visibility = 'public' AND NOT archived
    `).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count public stories: %w", err)
	}
	return total, nil
}

// ListByUser lists all of a user's stories, both visibilities, newest first.
func (r *PostgresStoryRepository) ListByUser(ctx context.Context, userID int64) ([]models.StoryFeedItem, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+storyFeedColumns+`
        FROM stories s
        INNER JOIN users u ON s.user_id = u.id
        WHERE s.user_id = $1
        ORDER BY s.created_at DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query user stories: %w", err)
	}
	defer rows.Close()

	return collectFeedItems(rows)
}

func collectFeedItems(rows pgx.Rows) ([]models.StoryFeedItem, error) {
	var items []models.StoryFeedItem
	for rows.Next() {
		item, err := scanFeedItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stories: %w", err)
	}
	return items, nil
}

// UpdateVisibility sets the story's visibility flag.
func (r *PostgresStoryRepository) UpdateVisibility(ctx context.Context, id int64, visibility string) error {
	return r.exec(ctx, `UPDATE stories SET visibility = $2, updated_at = NOW() WHERE id = $1`, id, visibility)
}

// Archive soft-hides the story from the public feed.
func (r *PostgresStoryRepository) Archive(ctx context.Context, id int64) error {
	return r.exec(ctx, `UPDATE stories SET archived = TRUE, updated_at = NOW() WHERE id = $1`, id)
}

// Delete removes the story; likes, comments and shares cascade.
func (r *PostgresStoryRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, `DELETE FROM stories WHERE id = $1`, id)
}

func (r *PostgresStoryRepository) exec(ctx context.Context, query string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec story update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PostgresLikeRepository provides PostgreSQL-backed persistence for likes.
type PostgresLikeRepository struct {
	pool db.Pool
}

// NewPostgresLikeRepository constructs a like repository backed by PostgreSQL.
func NewPostgresLikeRepository(pool db.Pool) *PostgresLikeRepository {
	return &PostgresLikeRepository{pool: pool}
}

// Like inserts the like. The UNIQUE (user_id, story_id) constraint makes the
// insert itself the authoritative duplicate check; ErrConflict means the
// story was already liked, even under concurrent requests.
func (r *PostgresLikeRepository) Like(ctx context.Context, userID, storyID int64) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO likes (user_id, story_id) VALUES ($1, $2)
    `, userID, storyID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return ErrConflict
			case pgerrcode.ForeignKeyViolation:
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert like: %w", err)
	}
	return nil
}

// Unlike removes the like if present; removing an absent like is not an error.
func (r *PostgresLikeRepository) Unlike(ctx context.Context, userID, storyID int64) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        DELETE FROM likes WHERE user_id = $1 AND story_id = $2
    `, userID, storyID)
	if err != nil {
		return fmt.Errorf("delete like: %w", err)
	}
	return nil
}

// IsLiked reports whether the user has liked the story.
func (r *PostgresLikeRepository) IsLiked(ctx context.Context, userID, storyID int64) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var liked bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM likes WHERE user_id = $1 AND story_id = $2)
    `, userID, storyID).Scan(&liked)
	if err != nil {
		return false, fmt.Errorf("check like: %w", err)
	}
	return liked, nil
}

// CountForStory counts the story's likes.
func (r *PostgresLikeRepository) CountForStory(ctx context.Context, storyID int64) (int, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var count int
	err = conn.QueryRow(ctx, `SELECT COUNT(*) FROM likes WHERE story_id = $1`, storyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count likes: %w", err)
	}
	return count, nil
}

// PostgresCommentRepository provides PostgreSQL-backed persistence for comments.
type PostgresCommentRepository struct {
	pool db.Pool
}

// NewPostgresCommentRepository constructs a comment repository backed by PostgreSQL.
func NewPostgresCommentRepository(pool db.Pool) *PostgresCommentRepository {
	return &PostgresCommentRepository{pool: pool}
}

// Create inserts a comment and returns the stored row.
func (r *PostgresCommentRepository) Create(ctx context.Context, userID, storyID int64, content string) (models.Comment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Comment{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var comment models.Comment
	err = conn.QueryRow(ctx, `
        INSERT INTO comments (user_id, story_id, content)
        VALUES ($1, $2, $3)
        RETURNING id, user_id, story_id, content, created_at, updated_at
    `, userID, storyID, content).Scan(
		&comment.ID, &comment.UserID, &comment.StoryID, &comment.Content,
		&comment.CreatedAt, &comment.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return models.Comment{}, ErrNotFound
		}
		return models.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return comment, nil
}

// ListForStory returns the story's comments oldest first with author names.
func (r *PostgresCommentRepository) ListForStory(ctx context.Context, storyID int64) ([]models.CommentWithAuthor, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT c.id, c.user_id, c.story_id, c.content, c.created_at, c.updated_at, u.username
        FROM comments c
        INNER JOIN users u ON c.user_id = u.id
        WHERE c.story_id = $1
        ORDER BY c.created_at ASC
    `, storyID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []models.CommentWithAuthor
	for rows.Next() {
		var c models.CommentWithAuthor
		if err := rows.Scan(&c.ID, &c.UserID, &c.StoryID, &c.Content, &c.CreatedAt, &c.UpdatedAt, &c.Username); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// CountForStory counts the story's comments.
func (r *PostgresCommentRepository) CountForStory(ctx context.Context, storyID int64) (int, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var count int
	err = conn.QueryRow(ctx, `SELECT COUNT(*) FROM comments WHERE story_id = $1`, storyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return count, nil
}

var _ StoryRepository = (*PostgresStoryRepository)(nil)
var _ LikeRepository = (*PostgresLikeRepository)(nil)
var _ CommentRepository = (*PostgresCommentRepository)(nil)
