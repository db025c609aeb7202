package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meomeo/backend/internal/auth"
	"github.com/meomeo/backend/internal/config"
	"github.com/meomeo/backend/internal/db"
	"github.com/meomeo/backend/internal/handlers"
	"github.com/meomeo/backend/internal/middleware"
	"github.com/meomeo/backend/internal/repositories"
	"github.com/meomeo/backend/internal/scores"
	"github.com/meomeo/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. Avatar storage and Google sign-in stay nil unless configured;
// their endpoints report the gap instead of the process refusing to start.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, error) {
	users := repositories.NewPostgresUserRepository(pool)
	scorer := scores.NewScorer(repositories.NewPostgresScoreRepository(pool), nil)

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		return handlers.Dependencies{}, fmt.Errorf("configure token service: %w", err)
	}

	hasher := auth.NewHasher(cfg.BcryptCost)
	refresh := auth.NewRefreshManager(hasher, users, cfg.RefreshTokenTTL)

	var google auth.IdentityVerifier
	if cfg.GoogleClientID != "" {
		verifier, err := auth.NewGoogleVerifier(cfg.GoogleClientID)
		if err != nil {
			return handlers.Dependencies{}, fmt.Errorf("configure google verifier: %w", err)
		}
		google = verifier
	}

	var avatars handlers.AvatarStore
	if cfg.ObjectStore.Bucket != "" {
		store, err := storage.NewAvatarStorage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, fmt.Errorf("configure avatar storage: %w", err)
		}
		avatars = store
	}

	return handlers.Dependencies{
		Users:    users,
		Stories:  repositories.NewPostgresStoryRepository(pool),
		Likes:    repositories.NewPostgresLikeRepository(pool),
		Comments: repositories.NewPostgresCommentRepository(pool),
		Shares:   repositories.NewPostgresShareRepository(pool),

		Scores:    scorer,
		Tokens:    tokens,
		Verifier:  tokens,
		Refresh:   refresh,
		Google:    google,
		Passwords: hasher,
		Avatars:   avatars,

		AuthLimiter:   middleware.NewIPRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow, cfg.AuthRateBurst, 10*time.Minute),
		OnboardingTTL: cfg.OnboardingTTL,
		ShareTokenTTL: cfg.ShareTokenTTL,
		CORSOrigin:    cfg.CORSOrigin,
		Logger:        logger,
	}, nil
}
