package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/itchan-dev/retroboard/client/internal/channel"
	"github.com/itchan-dev/retroboard/client/internal/timer"
	"github.com/itchan-dev/retroboard/shared/domain"
	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	board = "b1"
	owner = "owner@x.io"
)

// wsServer answers joins with the configured members and records every frame.
type wsServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	members  []domain.Member
	reject   atomic.Bool

	mu       sync.Mutex
	conns    []*websocket.Conn
	received []events.Envelope
}

func newWSServer(t *testing.T, members []domain.Member) *wsServer {
	s := &wsServer{members: members}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, ws)
	s.mu.Unlock()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		env, err := events.Decode(raw)
		if err != nil {
			continue
		}
		s.mu.Lock()
		s.received = append(s.received, env)
		s.mu.Unlock()

		if env.Type != events.PresenceJoin {
			continue
		}
		if s.reject.Load() {
			s.write(ws, events.Error, events.ErrorPayload{BoardId: env.BoardId, Request: events.PresenceJoin, Code: "forbidden", Message: "no"})
			continue
		}
		s.write(ws, events.PresenceList, events.PresenceListPayload{Members: s.members})
	}
}

func (s *wsServer) write(ws *websocket.Conn, t events.Type, payload any) {
	raw, _ := events.Encode(t, board, payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	ws.WriteMessage(websocket.TextMessage, raw)
}

func (s *wsServer) push(t events.Type, payload any) {
	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns...)
	s.mu.Unlock()
	for _, ws := range conns {
		s.write(ws, t, payload)
	}
}

func (s *wsServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.conns {
		ws.Close()
	}
	s.conns = nil
}

func (s *wsServer) got(t events.Type) []events.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Envelope
	for _, env := range s.received {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

// fakeAPI is a func-field mock of the REST client.
type fakeAPI struct {
	wsURL string

	mu       sync.Mutex
	snapshot domain.BoardSnapshot
	fetches  int

	AddVoteFunc       func(stickerId domain.StickerId) error
	CreateStickerFunc func(column, content string) (*domain.Sticker, error)
}

func (f *fakeAPI) Token() string                 { return "token" }
func (f *fakeAPI) WebsocketURL() (string, error) { return f.wsURL, nil }

func (f *fakeAPI) GetBoard(ctx context.Context, boardId domain.BoardId) (*domain.BoardSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	snap := f.snapshot
	return &snap, nil
}

func (f *fakeAPI) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeAPI) CreateSticker(ctx context.Context, boardId domain.BoardId, column, content string) (*domain.Sticker, error) {
	return f.CreateStickerFunc(column, content)
}

func (f *fakeAPI) UpdateSticker(ctx context.Context, boardId domain.BoardId, id domain.StickerId, column, content *string) (*domain.Sticker, error) {
	return nil, internal_errors.ErrNotFound
}

func (f *fakeAPI) DeleteSticker(ctx context.Context, boardId domain.BoardId, id domain.StickerId) error {
	return nil
}

func (f *fakeAPI) AddVote(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId) error {
	return f.AddVoteFunc(stickerId)
}

func (f *fakeAPI) RemoveVote(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId) error {
	return nil
}

func (f *fakeAPI) AddComment(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, content string) (*domain.Comment, error) {
	return nil, internal_errors.ErrNotFound
}

func (f *fakeAPI) UpdateComment(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId, content string) (*domain.Comment, error) {
	return nil, internal_errors.ErrNotFound
}

func (f *fakeAPI) DeleteComment(ctx context.Context, boardId domain.BoardId, stickerId domain.StickerId, id domain.CommentId) error {
	return nil
}

var members = []domain.Member{
	{Email: owner, Role: domain.RoleOwner, Online: true},
	{Email: "member@x.io", Role: domain.RoleMember, Online: true},
}

func setup(t *testing.T) (*wsServer, *fakeAPI, *channel.Manager) {
	srv := newWSServer(t, members)
	api := &fakeAPI{
		wsURL: "ws" + strings.TrimPrefix(srv.srv.URL, "http"),
		snapshot: domain.BoardSnapshot{
			Board:    domain.Board{Id: board, Name: "retro", Owner: owner},
			Stickers: []domain.Sticker{{Id: "s1", BoardId: board, Column: "good", Content: "hi", Author: owner}},
			Members:  members,
		},
	}
	m := channel.NewManager(channel.Config{
		NewBackOff:    func() backoff.BackOff { return backoff.NewConstantBackOff(20 * time.Millisecond) },
		AttachTimeout: time.Second,
	})
	t.Cleanup(func() { m.Close() })
	return srv, api, m
}

func open(t *testing.T, api *fakeAPI, m *channel.Manager, email domain.Email) *Session {
	t.Helper()
	s, err := Open(context.Background(), api, m, Config{BoardId: board, Email: email, TickInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenLoadsSnapshotAndFollowsEvents(t *testing.T) {
	srv, api, m := setup(t)
	s := open(t, api, m, owner)

	assert.Equal(t, channel.Connected, s.State())
	require.Len(t, s.View().Stickers(), 1)
	online, offline := s.View().Counts()
	assert.Equal(t, 2, online)
	assert.Zero(t, offline)

	srv.push(events.StickerCreated, domain.Sticker{Id: "s2", BoardId: board, Column: "bad", Content: "x"})
	srv.push(events.PresenceLeft, events.PresenceLeftPayload{Email: "member@x.io"})
	srv.push(events.TimerStart, domain.TimerState{Id: "t1", BoardId: board, Duration: 600, StartTime: time.Now().UnixMilli(), IsActive: true, CreatedBy: owner})

	assert.Eventually(t, func() bool {
		_, offline := s.View().Counts()
		return len(s.View().Stickers()) == 2 && offline == 1 && s.Timer().Phase() == timer.Running
	}, time.Second, 10*time.Millisecond)
	assert.InDelta(t, 600, s.Timer().Remaining().Seconds(), 2)
}

func TestOpenRestoresPausedTimer(t *testing.T) {
	_, api, m := setup(t)
	remaining := int64(42)
	api.snapshot.Timer = &domain.TimerState{Id: "t1", BoardId: board, Duration: 300, IsActive: true, IsPaused: true, RemainingTime: &remaining}

	s := open(t, api, m, owner)
	assert.Equal(t, timer.Paused, s.Timer().Phase())
	assert.Equal(t, 42*time.Second, s.Timer().Remaining())
}

func TestOpenForbidden(t *testing.T) {
	srv, api, m := setup(t)
	srv.reject.Store(true)

	_, err := Open(context.Background(), api, m, Config{BoardId: board, Email: owner})
	assert.ErrorIs(t, err, channel.ErrForbidden)
	assert.Zero(t, m.Refs(api.wsURL))
	assert.Zero(t, api.fetchCount())
}

func TestOptimisticVote(t *testing.T) {
	srv, api, m := setup(t)
	s := open(t, api, m, "Member@X.io")

	api.AddVoteFunc = func(domain.StickerId) error { return internal_errors.ErrRateLimited }
	err := s.Vote(context.Background(), "s1")
	assert.ErrorIs(t, err, internal_errors.ErrRateLimited)
	st, _ := s.View().Sticker("s1")
	assert.Empty(t, st.Votes, "failed vote is rolled back")

	api.AddVoteFunc = func(domain.StickerId) error { return nil }
	require.NoError(t, s.Vote(context.Background(), "s1"))
	st, _ = s.View().Sticker("s1")
	assert.Equal(t, []domain.Vote{{StickerId: "s1", Email: "member@x.io"}}, st.Votes)

	// the broadcast of our own vote changes nothing
	srv.push(events.VoteAdded, events.VotePayload{StickerId: "s1", Email: "member@x.io"})
	srv.push(events.StickerDeleted, events.StickerDeletedPayload{Id: "missing"})
	assert.Eventually(t, func() bool { return s.disp.Stats().Dispatched >= 3 }, time.Second, 10*time.Millisecond)
	st, _ = s.View().Sticker("s1")
	assert.Len(t, st.Votes, 1)
}

func TestAddSticker(t *testing.T) {
	_, api, m := setup(t)
	s := open(t, api, m, owner)

	api.CreateStickerFunc = func(column, content string) (*domain.Sticker, error) {
		return &domain.Sticker{Id: "s2", BoardId: board, Column: column, Content: content, Author: owner}, nil
	}
	_, err := s.AddSticker(context.Background(), "good", "ship it")
	require.NoError(t, err)
	_, ok := s.View().Sticker("s2")
	assert.True(t, ok)

	_, err = s.EditSticker(context.Background(), "s2", nil, nil)
	assert.ErrorIs(t, err, internal_errors.ErrNotFound)
}

func TestTimerControls(t *testing.T) {
	t.Run("members cannot control the timer", func(t *testing.T) {
		srv, api, m := setup(t)
		s := open(t, api, m, "member@x.io")

		err := s.StartTimer(time.Minute)
		assert.Equal(t, http.StatusForbidden, internal_errors.StatusCode(err))
		assert.Equal(t, timer.Idle, s.Timer().Phase())
		assert.Empty(t, srv.got(events.TimerStart))
	})

	t.Run("owner transitions are published", func(t *testing.T) {
		srv, api, m := setup(t)
		s := open(t, api, m, owner)

		require.NoError(t, s.StartTimer(5*time.Minute))
		require.NoError(t, s.PauseTimer())
		require.NoError(t, s.ResumeTimer())
		require.NoError(t, s.StopTimer())

		assert.Eventually(t, func() bool { return len(srv.got(events.TimerStop)) == 1 }, time.Second, 10*time.Millisecond)
		starts := srv.got(events.TimerStart)
		require.Len(t, starts, 1)
		state, err := events.DecodeData[events.TimerPayload](starts[0])
		require.NoError(t, err)
		assert.Equal(t, int64(300), state.Duration)
		assert.Equal(t, owner, state.ActorEmail)
		assert.Len(t, srv.got(events.TimerPause), 1)
		assert.Len(t, srv.got(events.TimerResume), 1)
	})
}

func TestTimerStartIsSampledRightAway(t *testing.T) {
	type sample struct {
		remaining time.Duration
		phase     timer.Phase
		expired   bool
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	openTicking := func(t *testing.T, email domain.Email) (*wsServer, *Session, chan sample) {
		srv, api, m := setup(t)
		samples := make(chan sample, 8)
		s, err := Open(context.Background(), api, m, Config{
			BoardId: board,
			Email:   email,
			// no tick fires during the test
			TickInterval: time.Hour,
			Now:          func() time.Time { return now },
			OnTick: func(remaining time.Duration, phase timer.Phase, expired bool) {
				samples <- sample{remaining, phase, expired}
			},
		})
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return srv, s, samples
	}
	next := func(t *testing.T, samples chan sample) sample {
		select {
		case got := <-samples:
			return got
		case <-time.After(time.Second):
			t.Fatal("no countdown sample")
			return sample{}
		}
	}

	t.Run("remote start", func(t *testing.T) {
		srv, _, samples := openTicking(t, "member@x.io")

		started := now.Add(-10 * time.Second).UnixMilli()
		srv.push(events.TimerStart, domain.TimerState{Id: "t1", BoardId: board, Duration: 300, StartTime: started, IsActive: true, CreatedBy: owner})

		assert.Equal(t, sample{290 * time.Second, timer.Running, false}, next(t, samples))
	})

	t.Run("remote resume", func(t *testing.T) {
		srv, _, samples := openTicking(t, "member@x.io")

		srv.push(events.TimerResume, domain.TimerState{Id: "t1", BoardId: board, Duration: 120, StartTime: now.UnixMilli(), IsActive: true, CreatedBy: owner})

		assert.Equal(t, sample{120 * time.Second, timer.Running, false}, next(t, samples))
	})

	t.Run("remote pause does not sample", func(t *testing.T) {
		srv, _, samples := openTicking(t, "member@x.io")
		remaining := int64(60)

		srv.push(events.TimerPause, domain.TimerState{Id: "t1", BoardId: board, Duration: 120, StartTime: now.UnixMilli(), IsActive: true, IsPaused: true, RemainingTime: &remaining, CreatedBy: owner})
		srv.push(events.TimerResume, domain.TimerState{Id: "t1", BoardId: board, Duration: 60, StartTime: now.UnixMilli(), IsActive: true, CreatedBy: owner})

		assert.Equal(t, sample{60 * time.Second, timer.Running, false}, next(t, samples))
	})

	t.Run("local start", func(t *testing.T) {
		_, s, samples := openTicking(t, owner)

		require.NoError(t, s.StartTimer(5*time.Minute))

		assert.Equal(t, sample{5 * time.Minute, timer.Running, false}, next(t, samples))
	})
}

func TestRemoteErrorIsReported(t *testing.T) {
	srv, api, m := setup(t)
	errs := make(chan error, 1)
	s, err := Open(context.Background(), api, m, Config{BoardId: board, Email: owner, OnError: func(err error) { errs <- err }})
	require.NoError(t, err)
	defer s.Close()

	srv.push(events.Error, events.ErrorPayload{BoardId: board, Code: "forbidden", Message: "owner only"})
	select {
	case err := <-errs:
		var remote *channel.RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, "forbidden", remote.Code)
	case <-time.After(time.Second):
		t.Fatal("error not reported")
	}
}

func TestRefreshAfterReconnect(t *testing.T) {
	srv, api, m := setup(t)
	s := open(t, api, m, owner)
	require.Equal(t, 1, api.fetchCount())

	api.mu.Lock()
	api.snapshot.Stickers = append(api.snapshot.Stickers, domain.Sticker{Id: "missed", BoardId: board})
	api.mu.Unlock()
	srv.dropAll()

	assert.Eventually(t, func() bool {
		_, ok := s.View().Sticker("missed")
		return ok && api.fetchCount() >= 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return len(srv.got(events.PresenceJoin)) >= 2 }, time.Second, 10*time.Millisecond)
}

func TestClose(t *testing.T) {
	srv, api, m := setup(t)
	s, err := Open(context.Background(), api, m, Config{BoardId: board, Email: owner})
	require.NoError(t, err)
	require.Equal(t, 1, m.Refs(api.wsURL))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Zero(t, m.Refs(api.wsURL))
	assert.Equal(t, channel.Disconnected, s.State())
	assert.Eventually(t, func() bool { return len(srv.got(events.PresenceLeave)) == 1 }, time.Second, 10*time.Millisecond)
}

func TestSessionsShareOneConnection(t *testing.T) {
	_, api, m := setup(t)
	a := open(t, api, m, owner)
	b := open(t, api, m, owner)

	assert.Same(t, a.conn, b.conn)
	assert.Equal(t, 2, m.Refs(api.wsURL))

	require.NoError(t, a.Close())
	assert.Equal(t, channel.Connected, b.State())
}
