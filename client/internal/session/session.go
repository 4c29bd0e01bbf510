// Package session is one participant attached to one board: the shared
// channel, the dispatcher, the board view and the countdown wired together.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/itchan-dev/retroboard/client/internal/apiclient"
	"github.com/itchan-dev/retroboard/client/internal/boardview"
	"github.com/itchan-dev/retroboard/client/internal/channel"
	"github.com/itchan-dev/retroboard/client/internal/dispatch"
	"github.com/itchan-dev/retroboard/client/internal/timer"
	"github.com/itchan-dev/retroboard/shared/domain"
	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/itchan-dev/retroboard/shared/logger"
)

// API is the part of the REST client a session needs.
type API interface {
	Token() string
	WebsocketURL() (string, error)
	GetBoard(ctx context.Context, boardId domain.BoardId) (*domain.BoardSnapshot, error)
	CreateSticker(ctx context.Context, boardId domain.BoardId, column, content string) (*domain.Sticker, error)
	UpdateSticker(ctx context.Context, boardId domain.BoardId, id domain.StickerId, column, content *string) (*domain.Sticker, error)
	DeleteSticker(ctx context.Context, boardId domain.BoardId, id domain.StickerId) error
	AddVote(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId) error
	RemoveVote(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId) error
	AddComment(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, content string) (*domain.Comment, error)
	UpdateComment(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId, content string) (*domain.Comment, error)
	DeleteComment(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId) error
}

var _ API = (*apiclient.APIClient)(nil)

type Config struct {
	BoardId domain.BoardId
	// Email is the authenticated participant, used as the timer actor and voter.
	Email domain.Email
	// TickInterval drives the countdown. Defaults to one second.
	TickInterval time.Duration
	Now          func() time.Time
	// OnTick receives every countdown sample, plus one as soon as the timer
	// starts or resumes. It may be called from more than one goroutine.
	OnTick func(remaining time.Duration, phase timer.Phase, expired bool)
	// OnError receives error events the server sent for this board.
	OnError func(err error)
}

type Session struct {
	cfg     Config
	api     API
	manager *channel.Manager
	log     *slog.Logger

	conn   *channel.Conn
	handle *channel.Handle
	view   *boardview.View
	timer  *timer.Timer
	disp   *dispatch.Dispatcher

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Open attaches to cfg.BoardId over the manager's shared connection and loads
// the authoritative board state. Close must be called on every exit path.
func Open(ctx context.Context, api API, manager *channel.Manager, cfg Config) (*Session, error) {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	cfg.Email = domain.NormalizeEmail(cfg.Email)

	url, err := api.WebsocketURL()
	if err != nil {
		return nil, err
	}
	header := http.Header{"Authorization": {"Bearer " + api.Token()}}
	conn, err := manager.Acquire(ctx, url, header)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:     cfg,
		api:     api,
		manager: manager,
		log:     logger.Component("session").With("board_id", cfg.BoardId),
		conn:    conn,
		view:    boardview.New(cfg.BoardId),
		ctx:     runCtx,
		cancel:  cancel,
	}
	s.timer = timer.New(cfg.Now, s.publishTimer)
	s.disp = dispatch.New(s.handlers())

	handle, err := conn.Attach(ctx, cfg.BoardId, s.disp.Dispatch)
	if err != nil {
		cancel()
		manager.Release(conn)
		return nil, err
	}
	s.handle = handle

	if err := s.Refresh(ctx); err != nil {
		s.Close()
		return nil, err
	}

	conn.OnReconnected(s.refreshAfterReconnect)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.timer.Run(runCtx, cfg.TickInterval, cfg.OnTick)
	}()

	s.log.Info("attached", "email", cfg.Email)
	return s, nil
}

func (s *Session) handlers() dispatch.Handlers {
	h := s.view.Handlers()
	for _, t := range []events.Type{events.TimerStart, events.TimerPause, events.TimerResume, events.TimerStop} {
		h[t] = s.applyTimer
	}
	h[events.Error] = s.remoteError
	return h
}

func (s *Session) applyTimer(env events.Envelope) {
	state, err := events.DecodeData[events.TimerPayload](env)
	if err != nil {
		s.log.Warn("dropping undecodable timer event", "type", env.Type, "error", err)
		return
	}
	s.timer.Apply(env.Type, state)
	if env.Type == events.TimerStart || env.Type == events.TimerResume {
		s.sample()
	}
}

// sample reports a running countdown without waiting for the next tick.
func (s *Session) sample() {
	if s.cfg.OnTick == nil {
		return
	}
	if phase := s.timer.Phase(); phase == timer.Running {
		s.cfg.OnTick(s.timer.Remaining(), phase, false)
	}
}

func (s *Session) remoteError(env events.Envelope) {
	payload, err := events.DecodeData[events.ErrorPayload](env)
	if err != nil {
		s.log.Warn("dropping undecodable error event", "error", err)
		return
	}
	s.log.Warn("server rejected a request", "code", payload.Code, "message", payload.Message)
	if s.cfg.OnError != nil {
		s.cfg.OnError(&channel.RemoteError{Code: payload.Code, Message: payload.Message})
	}
}

func (s *Session) publishTimer(t events.Type, state domain.TimerState) {
	if s.handle != nil {
		s.handle.Publish(t, state)
	}
}

// Refresh replaces the view with the board as stored on the server.
func (s *Session) Refresh(ctx context.Context) error {
	snap, err := s.api.GetBoard(ctx, s.cfg.BoardId)
	if err != nil {
		return fmt.Errorf("fetch board %s: %w", s.cfg.BoardId, err)
	}
	s.view.Reset(*snap)
	switch {
	case snap.Timer == nil || !snap.Timer.IsActive:
		s.timer.Apply(events.TimerStop, domain.TimerState{})
	case snap.Timer.IsPaused:
		s.timer.Apply(events.TimerPause, *snap.Timer)
	default:
		s.timer.Apply(events.TimerStart, *snap.Timer)
	}
	return nil
}

// refreshAfterReconnect reloads state, since events sent while the socket was
// down are not replayed.
func (s *Session) refreshAfterReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 15*time.Second)
		defer cancel()
		if err := s.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("refresh after reconnect failed", "error", err)
		}
	}()
}

// Close detaches from the board, stops the countdown and releases the
// connection. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		if s.handle != nil {
			s.handle.Detach()
		}
		s.wg.Wait()
		err = s.manager.Release(s.conn)
		s.log.Info("detached")
	})
	return err
}

func (s *Session) View() *boardview.View          { return s.view }
func (s *Session) Timer() *timer.Timer            { return s.timer }
func (s *Session) State() channel.State           { return s.conn.State() }
func (s *Session) OnState(fn func(channel.State)) { s.conn.OnState(fn) }

// Sticker and comment mutations go through the REST API; the returned record
// is folded in right away and the later broadcast is absorbed as a duplicate.

func (s *Session) AddSticker(ctx context.Context, column, content string) (*domain.Sticker, error) {
	st, err := s.api.CreateSticker(ctx, s.cfg.BoardId, column, content)
	if err != nil {
		return nil, err
	}
	s.view.CreateSticker(*st)
	return st, nil
}

func (s *Session) EditSticker(ctx context.Context, id domain.StickerId, column, content *string) (*domain.Sticker, error) {
	st, err := s.api.UpdateSticker(ctx, s.cfg.BoardId, id, column, content)
	if err != nil {
		return nil, err
	}
	s.view.UpdateSticker(*st)
	return st, nil
}

func (s *Session) DeleteSticker(ctx context.Context, id domain.StickerId) error {
	if err := s.api.DeleteSticker(ctx, s.cfg.BoardId, id); err != nil {
		return err
	}
	s.view.DeleteSticker(id)
	return nil
}

// Vote shows the vote before the server confirms it and rolls back on failure.
func (s *Session) Vote(ctx context.Context, stickerId domain.StickerId) error {
	vote := domain.Vote{StickerId: stickerId, Email: s.cfg.Email}
	s.view.AddVote(vote)
	if err := s.api.AddVote(ctx, s.cfg.BoardId, stickerId); err != nil {
		s.view.RemoveVote(vote)
		return err
	}
	return nil
}

func (s *Session) Unvote(ctx context.Context, stickerId domain.StickerId) error {
	vote := domain.Vote{StickerId: stickerId, Email: s.cfg.Email}
	s.view.RemoveVote(vote)
	if err := s.api.RemoveVote(ctx, s.cfg.BoardId, stickerId); err != nil {
		s.view.AddVote(vote)
		return err
	}
	return nil
}

func (s *Session) AddComment(ctx context.Context, stickerId domain.StickerId, content string) (*domain.Comment, error) {
	c, err := s.api.AddComment(ctx, s.cfg.BoardId, stickerId, content)
	if err != nil {
		return nil, err
	}
	s.view.AddComment(*c)
	return c, nil
}

func (s *Session) EditComment(ctx context.Context, stickerId domain.StickerId, id domain.CommentId, content string) (*domain.Comment, error) {
	c, err := s.api.UpdateComment(ctx, s.cfg.BoardId, stickerId, id, content)
	if err != nil {
		return nil, err
	}
	s.view.UpdateComment(*c)
	return c, nil
}

func (s *Session) DeleteComment(ctx context.Context, stickerId domain.StickerId, id domain.CommentId) error {
	if err := s.api.DeleteComment(ctx, s.cfg.BoardId, stickerId, id); err != nil {
		return err
	}
	s.view.DeleteComment(stickerId, id)
	return nil
}

// Timer controls are owner-only. The server enforces it too; checking here
// keeps a member's local countdown from diverging.

func (s *Session) StartTimer(d time.Duration) error {
	if err := s.requireOwner(); err != nil {
		return err
	}
	if s.timer.Start(s.cfg.BoardId, d, s.cfg.Email) != nil {
		s.sample()
	}
	return nil
}

func (s *Session) PauseTimer() error {
	if err := s.requireOwner(); err != nil {
		return err
	}
	s.timer.Pause(s.cfg.Email)
	return nil
}

func (s *Session) ResumeTimer() error {
	if err := s.requireOwner(); err != nil {
		return err
	}
	if s.timer.Resume(s.cfg.Email) != nil {
		s.sample()
	}
	return nil
}

func (s *Session) StopTimer() error {
	if err := s.requireOwner(); err != nil {
		return err
	}
	s.timer.Stop(s.cfg.Email)
	return nil
}

func (s *Session) requireOwner() error {
	for _, m := range s.view.Members() {
		if m.Email == s.cfg.Email && m.Role == domain.RoleOwner {
			return nil
		}
	}
	return internal_errors.Forbidden("Only the board owner controls the timer")
}
