package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meomeo/backend/internal/middleware"
)

// NewRouter wires every HTTP endpoint onto a chi router.
func NewRouter(deps Dependencies) http.Handler {
	health := HealthHandler{}
	auth := AuthHandler{
		Users:         deps.Users,
		Tokens:        deps.Tokens,
		Refresh:       deps.Refresh,
		Google:        deps.Google,
		Passwords:     deps.Passwords,
		Scores:        deps.Scores,
		Limiter:       deps.AuthLimiter,
		OnboardingTTL: deps.OnboardingTTL,
	}
	stories := StoryHandler{Stories: deps.Stories, Scores: deps.Scores}
	likes := LikeHandler{Likes: deps.Likes, Stories: deps.Stories, Scores: deps.Scores}
	comments := CommentHandler{Comments: deps.Comments, Stories: deps.Stories, Scores: deps.Scores}
	shares := ShareHandler{Shares: deps.Shares, Stories: deps.Stories, TTL: deps.ShareTokenTTL}
	users := UserHandler{Users: deps.Users, Scores: deps.Scores, Avatars: deps.Avatars}

	r := chi.NewRouter()
	if deps.Logger != nil {
		r.Use(middleware.RequestLogger(deps.Logger))
	}
	r.Use(middleware.CORS(deps.CORSOrigin))

	r.Get("/healthz", health.Handle)

	r.Post("/login", auth.Login)
	r.Post("/google-auth", auth.GoogleAuth)
	r.Post("/onboarding", auth.Onboarding)
	r.Post("/refresh", auth.HandleRefresh)
	r.Get("/users/check-username", users.CheckUsername)

	// Public reads; a bearer token, when present and valid, unlocks the
	// owner view of private stories.
	r.Group(func(g chi.Router) {
		g.Use(middleware.OptionalAuth(deps.Verifier))
		g.Get("/stories/{id}", stories.Get)
		g.Get("/comments", comments.List)
	})
	r.Get("/shares/{token}", shares.Resolve)

	r.Group(func(g chi.Router) {
		g.Use(middleware.RequireAuth(deps.Verifier))

		g.Get("/stories", stories.PublicFeed)
		g.Post("/stories", stories.Create)
		g.Get("/stories/me", stories.Mine)
		g.Put("/stories/{id}", stories.UpdateVisibility)
		g.Put("/stories/{id}/archive", stories.Archive)
		g.Delete("/stories/{id}", stories.Delete)

		g.Get("/likes", likes.Status)
		g.Post("/likes", likes.Like)
		g.Delete("/likes", likes.Unlike)

		g.Post("/comments", comments.Create)
		g.Post("/shares", shares.Create)

		g.Get("/users", users.List)
		g.Get("/users/{id}", users.Get)
		g.Get("/users/{id}/daily-score", users.DailyScore)
		g.Put("/users/me", users.UpdateProfile)
		g.Put("/users/me/theme", users.UpdateTheme)
		g.Post("/users/me/avatar", users.UploadAvatar)
	})

	return r
}
