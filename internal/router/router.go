package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"magiclink-auth/internal/config"
	"magiclink-auth/internal/handler"
	"magiclink-auth/internal/middleware"
)

func New(
	cfg *config.Config,
	sessionMiddleware *middleware.SessionMiddleware,
	authHandler *handler.AuthHandler,
	adminHandler *handler.AdminHandler,
	healthHandler *handler.HealthHandler,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", healthHandler.Check)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/magic-link", authHandler.MagicLink)
			auth.Post("/verify", authHandler.Verify)
			auth.With(sessionMiddleware.RequireAuth).Post("/logout", authHandler.Logout)
		})

		api.With(sessionMiddleware.RequireAuth).Get("/users/me", authHandler.Me)

		api.Route("/admin/users", func(admin chi.Router) {
			admin.Use(sessionMiddleware.RequireAuth, sessionMiddleware.RequireRoles("admin"))

			admin.Get("/", adminHandler.ListUsers)
			admin.Get("/{id}", adminHandler.GetUser)
			admin.Patch("/{id}", adminHandler.UpdateUser)
			admin.Delete("/{id}", adminHandler.DeleteUser)
		})
	})

	return r
}
