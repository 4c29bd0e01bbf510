package handler

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/itchan-dev/retroboard/backend/internal/realtime"
	"github.com/itchan-dev/retroboard/shared/config"
	"github.com/itchan-dev/retroboard/shared/logger"
	"github.com/itchan-dev/retroboard/shared/middleware/ratelimiter"
)

// Websocket upgrades authenticated requests into realtime sessions.
type Websocket struct {
	upgrader websocket.Upgrader
	frames   realtime.FrameHandler
	limiter  *ratelimiter.UserRateLimiter
	cfg      realtime.SessionConfig
}

func NewWebsocket(frames realtime.FrameHandler, cfg *config.Config) *Websocket {
	sessionCfg := realtime.DefaultSessionConfig()
	sessionCfg.SendBuffer = cfg.Public.Realtime.SendBuffer
	sessionCfg.MaxMessageSize = cfg.Public.Realtime.MaxMessageSize
	sessionCfg.PingPeriod = cfg.PingPeriod()

	origins := cfg.Public.CorsOrigins
	return &Websocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r, origins)
			},
		},
		frames:  frames,
		limiter: newSessionLimiter(cfg),
		cfg:     sessionCfg,
	}
}

// Connect serves GET /v1/ws. It blocks for the lifetime of the session.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	conn, err := h.ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		logger.Log.Debug("websocket upgrade failed", "email", user.Email, "error", err)
		return
	}
	session := realtime.NewSession(conn, user, h.ws.frames, h.ws.limiter, h.ws.cfg)
	session.Serve(context.WithoutCancel(r.Context()))
}

// originAllowed accepts non-browser clients, same-host pages and the
// configured CORS origins.
func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(allowed, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
