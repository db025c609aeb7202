package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meomeo/backend/internal/db"
	"github.com/meomeo/backend/internal/models"
)

const userColumns = `id, username, display_name, avatar_url, avatar_bg_color, password_hash,
        google_id, google_email, onboarding_expires_at,
        refresh_token_id, refresh_token_hash, refresh_token_expires_at,
        theme_preference, created_at, updated_at`

// PostgresUserRepository provides PostgreSQL-backed persistence for accounts.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

func scanUser(row pgx.Row) (models.User, error) {
	var (
		user                              models.User
		displayName, avatarURL            sql.NullString
		googleID, googleEmail             sql.NullString
		refreshID, refreshHash            sql.NullString
		onboardingExpires, refreshExpires sql.NullTime
	)

	err := row.Scan(
		&user.ID, &user.Username, &displayName, &avatarURL, &user.AvatarBgColor, &user.PasswordHash,
		&googleID, &googleEmail, &onboardingExpires,
		&refreshID, &refreshHash, &refreshExpires,
		&user.ThemePreference, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("scan user: %w", err)
	}

	user.DisplayName = displayName.String
	user.AvatarURL = avatarURL.String
	user.GoogleID = googleID.String
	user.GoogleEmail = googleEmail.String
	user.RefreshTokenID = refreshID.String
	user.RefreshTokenHash = refreshHash.String
	if onboardingExpires.Valid {
		t := onboardingExpires.Time.UTC()
		user.OnboardingExpiresAt = &t
	}
	if refreshExpires.Valid {
		t := refreshExpires.Time.UTC()
		user.RefreshTokenExpiresAt = &t
	}
	return user, nil
}

func (r *PostgresUserRepository) findOne(ctx context.Context, where string, args ...any) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, args...)
	return scanUser(row)
}

// FindByID fetches a user by primary key.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id int64) (models.User, error) {
	return r.findOne(ctx, `id = $1`, id)
}

// FindByUsername fetches a user by exact username.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findOne(ctx, `username = $1`, username)
}

// FindByGoogleID fetches the account linked to a Google subject id.
func (r *PostgresUserRepository) FindByGoogleID(ctx context.Context, googleID string) (models.User, error) {
	return r.findOne(ctx, `google_id = $1`, googleID)
}

// FindByGoogleEmailUnlinked fetches the account holding the Google email that
// has not been linked to a Google subject yet.
func (r *PostgresUserRepository) FindByGoogleEmailUnlinked(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, `google_email = $1 AND google_id IS NULL`, email)
}

// FindByRefreshTokenID fetches the account holding the given refresh-token
// lookup id. The id is indexed, so this is a single-row read.
func (r *PostgresUserRepository) FindByRefreshTokenID(ctx context.Context, tokenID string) (models.User, error) {
	return r.findOne(ctx, `refresh_token_id = $1`, tokenID)
}

// CreateProvisional inserts a pending-onboarding row for a first Google
// sign-in and returns the created user.
func (r *PostgresUserRepository) CreateProvisional(ctx context.Context, googleID, googleEmail, tempUsername string, onboardingExpiresAt time.Time) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        INSERT INTO users (username, password_hash, google_id, google_email, onboarding_expires_at)
        VALUES ($1, '', $2, $3, $4)
        RETURNING `+userColumns+`
    `, tempUsername, googleID, googleEmail, onboardingExpiresAt.UTC())

	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return models.User{}, ErrConflict
		}
		return models.User{}, fmt.Errorf("insert provisional user: %w", err)
	}
	return user, nil
}

// LinkGoogle attaches a verified Google identity to an existing account.
func (r *PostgresUserRepository) LinkGoogle(ctx context.Context, userID int64, googleID, googleEmail string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET google_id = $2, google_email = $3, updated_at = NOW()
        WHERE id = $1
    `, userID, googleID, googleEmail)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("link google identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRefreshToken replaces the account's stored refresh credential.
func (r *PostgresUserRepository) SetRefreshToken(ctx context.Context, userID int64, token StoredRefreshToken) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET refresh_token_id = $2, refresh_token_hash = $3, refresh_token_expires_at = $4, updated_at = NOW()
        WHERE id = $1
    `, userID, token.ID, token.SecretHash, token.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteOnboarding converts a provisional row into an active account:
// username and avatar color are set, onboarding fields cleared, and the first
// refresh credential stored, all in one statement.
func (r *PostgresUserRepository) CompleteOnboarding(ctx context.Context, userID int64, completion OnboardingCompletion) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        UPDATE users
        SET username = $2,
            avatar_bg_color = $3,
            refresh_token_id = $4,
            refresh_token_hash = $5,
            refresh_token_expires_at = $6,
            onboarding_expires_at = NULL,
            updated_at = NOW()
        WHERE id = $1
        RETURNING `+userColumns+`
    `, userID, completion.Username, completion.AvatarBgColor,
		completion.RefreshToken.ID, completion.RefreshToken.SecretHash, completion.RefreshToken.ExpiresAt.UTC())

	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return models.User{}, ErrConflict
		}
		return models.User{}, fmt.Errorf("complete onboarding: %w", err)
	}
	return user, nil
}

// UsernameTaken reports whether the username is held, case-insensitively, by
// any account other than excludeID.
func (r *PostgresUserRepository) UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var taken bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM users WHERE LOWER(username) = LOWER($1) AND id <> $2
        )
    `, username, excludeID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return taken, nil
}

// UpdateProfile applies a partial profile edit; nil fields keep their value.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, userID int64, update ProfileUpdate) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        UPDATE users
        SET avatar_url = COALESCE($2, avatar_url),
            display_name = COALESCE($3, display_name),
            avatar_bg_color = COALESCE($4, avatar_bg_color),
            updated_at = NOW()
        WHERE id = $1
        RETURNING `+userColumns+`
    `, userID, update.AvatarURL, update.DisplayName, update.AvatarBgColor)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

// UpdateTheme persists the account's theme preference.
func (r *PostgresUserRepository) UpdateTheme(ctx context.Context, userID int64, theme string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        UPDATE users
        SET theme_preference = $2, updated_at = NOW()
        WHERE id = $1
        RETURNING `+userColumns+`
    `, userID, theme)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("update theme: %w", err)
	}
	return user, nil
}

// List returns every active account ordered by username.
func (r *PostgresUserRepository) List(ctx context.Context) ([]models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+userColumns+`
        FROM users
        WHERE onboarding_expires_at IS NULL
        ORDER BY username ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
