package handler

import (
	"net/http"

	"github.com/itchan-dev/retroboard/backend/internal/realtime"
	"github.com/itchan-dev/retroboard/backend/internal/service"
	"github.com/itchan-dev/retroboard/shared/config"
	"github.com/itchan-dev/retroboard/shared/domain"
	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	mw "github.com/itchan-dev/retroboard/shared/middleware"
	"github.com/itchan-dev/retroboard/shared/middleware/ratelimiter"
	"github.com/itchan-dev/retroboard/shared/utils"
)

type Handler struct {
	board   service.BoardService
	sticker service.StickerService
	vote    service.VoteService
	comment service.CommentService
	ws      *Websocket
	health  HealthChecker
	cfg     *config.Config
}

func New(
	board service.BoardService,
	sticker service.StickerService,
	vote service.VoteService,
	comment service.CommentService,
	frames realtime.FrameHandler,
	health HealthChecker,
	cfg *config.Config,
) *Handler {
	return &Handler{
		board:   board,
		sticker: sticker,
		vote:    vote,
		comment: comment,
		ws:      NewWebsocket(frames, cfg),
		health:  health,
		cfg:     cfg,
	}
}

// Stop releases background resources of the websocket endpoint.
func (h *Handler) Stop() {
	h.ws.limiter.Stop()
}

func requireUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	user := mw.GetUserFromContext(r)
	if user == nil {
		utils.WriteErrorAndStatusCode(w, internal_errors.ErrUnauthorized)
		return domain.User{}, false
	}
	return *user, true
}

func newSessionLimiter(cfg *config.Config) *ratelimiter.UserRateLimiter {
	rate := cfg.Public.Realtime.RatePerSec
	return ratelimiter.New(rate, rate*2, cfg.PingPeriod()*4)
}
