package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/itchan-dev/retroboard/backend/internal/setup"
	mw "github.com/itchan-dev/retroboard/shared/middleware"
	"github.com/itchan-dev/retroboard/shared/middleware/metrics"
	rl "github.com/itchan-dev/retroboard/shared/middleware/ratelimiter"
)

// New creates and configures a chi router with all the routes.
// IMPORTANT! ratelimiters set with .Use limit request for all endpoints combined in that group
func New(deps *setup.Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)

	// setup CORS for the board frontend
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Public.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(mw.SecurityHeadersWithCSP(deps.Config.Public.SecureCookies, mw.APIContentSecurityPolicy))

	h := deps.Handler
	authMw := deps.AuthMiddleware

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(authMw.NeedAuth())

		// one websocket per tab is plenty; frames are limited inside the session
		v1.With(mw.RateLimit(rl.New(1, 5, time.Hour), mw.GetEmailFromContext)).Get("/ws", h.Connect)

		v1.With(mw.RateLimit(rl.Rps10(), mw.GetEmailFromContext)).Get("/boards/{board}", h.GetBoard)

		// Mutations: 10 RPS per user combined
		v1.Group(func(m chi.Router) {
			m.Use(mw.RateLimit(rl.Rps10(), mw.GetEmailFromContext))
			m.Use(mw.GlobalRateLimit(rl.Rps1000()))

			m.Post("/boards", h.CreateBoard)
			m.Post("/boards/{board}/members", h.AddMember)

			m.Post("/boards/{board}/stickers", h.CreateSticker)
			m.Put("/boards/{board}/stickers/{sticker}", h.UpdateSticker)
			m.Delete("/boards/{board}/stickers/{sticker}", h.DeleteSticker)

			m.Post("/boards/{board}/stickers/{sticker}/votes", h.AddVote)
			m.Delete("/boards/{board}/stickers/{sticker}/votes", h.RemoveVote)

			m.Post("/boards/{board}/stickers/{sticker}/comments", h.AddComment)
			m.Put("/boards/{board}/stickers/{sticker}/comments/{comment}", h.UpdateComment)
			m.Delete("/boards/{board}/stickers/{sticker}/comments/{comment}", h.DeleteComment)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})

	return r
}
