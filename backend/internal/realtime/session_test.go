package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/itchan-dev/retroboard/shared/domain"
	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/itchan-dev/retroboard/shared/middleware/ratelimiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPresence struct {
	joinFunc       func(ctx context.Context, sessionId domain.SessionId, boardId domain.BoardId, user domain.User) ([]domain.Member, error)
	leaveFunc      func(ctx context.Context, sessionId domain.SessionId, boardId domain.BoardId, user domain.User) error
	disconnectFunc func(ctx context.Context, sessionId domain.SessionId) error
}

func (m *mockPresence) Join(ctx context.Context, sessionId domain.SessionId, boardId domain.BoardId, user domain.User) ([]domain.Member, error) {
	if m.joinFunc != nil {
		return m.joinFunc(ctx, sessionId, boardId, user)
	}
	return []domain.Member{{Email: user.Email, Role: domain.RoleMember, Online: true}}, nil
}

func (m *mockPresence) Leave(ctx context.Context, sessionId domain.SessionId, boardId domain.BoardId, user domain.User) error {
	if m.leaveFunc != nil {
		return m.leaveFunc(ctx, sessionId, boardId, user)
	}
	return nil
}

func (m *mockPresence) Disconnect(ctx context.Context, sessionId domain.SessionId) error {
	if m.disconnectFunc != nil {
		return m.disconnectFunc(ctx, sessionId)
	}
	return nil
}

type mockTimers struct {
	controlFunc func(ctx context.Context, origin domain.SessionId, boardId domain.BoardId, actor domain.Email, t events.Type, state domain.TimerState) error
	currentFunc func(ctx context.Context, boardId domain.BoardId) (*domain.TimerState, error)
}

func (m *mockTimers) Control(ctx context.Context, origin domain.SessionId, boardId domain.BoardId, actor domain.Email, t events.Type, state domain.TimerState) error {
	if m.controlFunc != nil {
		return m.controlFunc(ctx, origin, boardId, actor, t, state)
	}
	return nil
}

func (m *mockTimers) Current(ctx context.Context, boardId domain.BoardId) (*domain.TimerState, error) {
	if m.currentFunc != nil {
		return m.currentFunc(ctx, boardId)
	}
	return nil, nil
}

type testServer struct {
	url string
	hub *Hub
}

func newTestServer(t *testing.T, gw *Gateway, limiter *ratelimiter.UserRateLimiter) *testServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		user := domain.User{Email: r.URL.Query().Get("email")}
		NewSession(conn, user, gw, limiter, DefaultSessionConfig()).Serve(context.Background())
	}))
	t.Cleanup(srv.Close)
	return &testServer{url: "ws" + strings.TrimPrefix(srv.URL, "http"), hub: gw.hub}
}

func dial(t *testing.T, srv *testServer, email string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(srv.url+"?email="+email, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ events.Type, boardId domain.BoardId, payload any) {
	t.Helper()
	raw, err := events.Encode(typ, boardId, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func read(t *testing.T, conn *websocket.Conn) events.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := events.Decode(raw)
	require.NoError(t, err)
	return env
}

func TestGatewayJoin(t *testing.T) {
	t.Run("presence list then cached timer", func(t *testing.T) {
		remaining := int64(190)
		timers := &mockTimers{currentFunc: func(ctx context.Context, boardId domain.BoardId) (*domain.TimerState, error) {
			return &domain.TimerState{Id: "t1", BoardId: boardId, Duration: 300, IsActive: true, IsPaused: true, RemainingTime: &remaining}, nil
		}}
		hub := NewHub(NewMemoryBroker())
		srv := newTestServer(t, NewGateway(hub, &mockPresence{}, timers), nil)
		conn := dial(t, srv, "alice@x.com")

		send(t, conn, events.PresenceJoin, "", events.JoinRequest{BoardId: "b1"})

		list := read(t, conn)
		assert.Equal(t, events.PresenceList, list.Type)
		payload, err := events.DecodeData[events.PresenceListPayload](list)
		require.NoError(t, err)
		assert.Equal(t, []domain.Member{{Email: "alice@x.com", Role: domain.RoleMember, Online: true}}, payload.Members)

		timer := read(t, conn)
		assert.Equal(t, events.TimerPause, timer.Type)
		state, err := events.DecodeData[events.TimerPayload](timer)
		require.NoError(t, err)
		assert.Equal(t, int64(190), *state.RemainingTime)

		assert.Equal(t, 1, hub.Peers("b1"))
	})

	t.Run("forbidden join yields error and no subscription", func(t *testing.T) {
		presence := &mockPresence{joinFunc: func(ctx context.Context, sessionId domain.SessionId, boardId domain.BoardId, user domain.User) ([]domain.Member, error) {
			return nil, internal_errors.ErrForbidden
		}}
		hub := NewHub(NewMemoryBroker())
		srv := newTestServer(t, NewGateway(hub, presence, &mockTimers{}), nil)
		conn := dial(t, srv, "mallory@x.com")

		send(t, conn, events.PresenceJoin, "b1", events.JoinRequest{BoardId: "b1"})

		env := read(t, conn)
		assert.Equal(t, events.Error, env.Type)
		payload, err := events.DecodeData[events.ErrorPayload](env)
		require.NoError(t, err)
		assert.Equal(t, "forbidden", payload.Code)
		assert.Equal(t, "b1", payload.BoardId)
		assert.Equal(t, events.PresenceJoin, payload.Request)
		assert.Equal(t, 0, hub.Peers("b1"))
	})

	t.Run("missing board id", func(t *testing.T) {
		srv := newTestServer(t, NewGateway(NewHub(NewMemoryBroker()), &mockPresence{}, &mockTimers{}), nil)
		conn := dial(t, srv, "alice@x.com")

		send(t, conn, events.PresenceJoin, "", nil)

		env := read(t, conn)
		payload, err := events.DecodeData[events.ErrorPayload](env)
		require.NoError(t, err)
		assert.Equal(t, "bad_request", payload.Code)
	})
}

func TestGatewayBroadcastAndDisconnect(t *testing.T) {
	var mu sync.Mutex
	var disconnected []domain.SessionId
	presence := &mockPresence{disconnectFunc: func(ctx context.Context, sessionId domain.SessionId) error {
		mu.Lock()
		disconnected = append(disconnected, sessionId)
		mu.Unlock()
		return nil
	}}
	hub := NewHub(NewMemoryBroker())
	srv := newTestServer(t, NewGateway(hub, presence, &mockTimers{}), nil)

	alice := dial(t, srv, "alice@x.com")
	bob := dial(t, srv, "bob@x.com")
	send(t, alice, events.PresenceJoin, "b1", events.JoinRequest{BoardId: "b1"})
	send(t, bob, events.PresenceJoin, "b1", events.JoinRequest{BoardId: "b1"})
	read(t, alice)
	read(t, bob)

	require.NoError(t, hub.Publish(context.Background(), "b1", events.StickerDeleted, events.StickerDeletedPayload{Id: "s1", BoardId: "b1"}, ""))
	assert.Equal(t, events.StickerDeleted, read(t, alice).Type)
	assert.Equal(t, events.StickerDeleted, read(t, bob).Type)

	alice.Close()
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(disconnected) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return hub.Peers("b1") == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestGatewayLeave(t *testing.T) {
	left := make(chan domain.BoardId, 1)
	presence := &mockPresence{leaveFunc: func(ctx context.Context, sessionId domain.SessionId, boardId domain.BoardId, user domain.User) error {
		left <- boardId
		return nil
	}}
	hub := NewHub(NewMemoryBroker())
	srv := newTestServer(t, NewGateway(hub, presence, &mockTimers{}), nil)
	conn := dial(t, srv, "alice@x.com")

	send(t, conn, events.PresenceJoin, "b1", events.JoinRequest{BoardId: "b1"})
	read(t, conn)
	send(t, conn, events.PresenceLeave, "b1", events.LeaveRequest{BoardId: "b1"})

	select {
	case b := <-left:
		assert.Equal(t, "b1", b)
	case <-time.After(3 * time.Second):
		t.Fatal("leave not called")
	}
	assert.Eventually(t, func() bool { return hub.Peers("b1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestGatewayTimer(t *testing.T) {
	t.Run("requires attachment", func(t *testing.T) {
		var called atomic.Bool
		timers := &mockTimers{controlFunc: func(ctx context.Context, origin domain.SessionId, boardId domain.BoardId, actor domain.Email, typ events.Type, state domain.TimerState) error {
			called.Store(true)
			return nil
		}}
		srv := newTestServer(t, NewGateway(NewHub(NewMemoryBroker()), &mockPresence{}, timers), nil)
		conn := dial(t, srv, "alice@x.com")

		send(t, conn, events.TimerStart, "b1", domain.TimerState{Id: "t1", Duration: 300, IsActive: true})

		env := read(t, conn)
		payload, err := events.DecodeData[events.ErrorPayload](env)
		require.NoError(t, err)
		assert.Equal(t, "forbidden", payload.Code)
		assert.Equal(t, events.TimerStart, payload.Request)
		assert.False(t, called.Load())
	})

	t.Run("relays to timer service with actor", func(t *testing.T) {
		got := make(chan events.Type, 1)
		timers := &mockTimers{controlFunc: func(ctx context.Context, origin domain.SessionId, boardId domain.BoardId, actor domain.Email, typ events.Type, state domain.TimerState) error {
			assert.Equal(t, "owner@x.com", actor)
			assert.Equal(t, "b1", boardId)
			assert.NotEmpty(t, origin)
			got <- typ
			return nil
		}}
		srv := newTestServer(t, NewGateway(NewHub(NewMemoryBroker()), &mockPresence{}, timers), nil)
		conn := dial(t, srv, "owner@x.com")
		send(t, conn, events.PresenceJoin, "b1", events.JoinRequest{BoardId: "b1"})
		read(t, conn)

		send(t, conn, events.TimerStart, "b1", domain.TimerState{Id: "t1", Duration: 300, IsActive: true})

		select {
		case typ := <-got:
			assert.Equal(t, events.TimerStart, typ)
		case <-time.After(3 * time.Second):
			t.Fatal("timer control not called")
		}
	})
}

func TestSessionRejects(t *testing.T) {
	t.Run("unsupported type", func(t *testing.T) {
		srv := newTestServer(t, NewGateway(NewHub(NewMemoryBroker()), &mockPresence{}, &mockTimers{}), nil)
		conn := dial(t, srv, "alice@x.com")

		send(t, conn, events.StickerCreated, "b1", domain.Sticker{Id: "s1"})

		payload, err := events.DecodeData[events.ErrorPayload](read(t, conn))
		require.NoError(t, err)
		assert.Equal(t, "bad_request", payload.Code)
	})

	t.Run("malformed frame", func(t *testing.T) {
		srv := newTestServer(t, NewGateway(NewHub(NewMemoryBroker()), &mockPresence{}, &mockTimers{}), nil)
		conn := dial(t, srv, "alice@x.com")

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

		payload, err := events.DecodeData[events.ErrorPayload](read(t, conn))
		require.NoError(t, err)
		assert.Equal(t, "bad_request", payload.Code)
		assert.Empty(t, payload.Request)
	})

	t.Run("rate limited", func(t *testing.T) {
		limiter := ratelimiter.New(0, 1, time.Hour)
		defer limiter.Stop()
		srv := newTestServer(t, NewGateway(NewHub(NewMemoryBroker()), &mockPresence{}, &mockTimers{}), limiter)
		conn := dial(t, srv, "alice@x.com")

		send(t, conn, events.PresenceJoin, "b1", events.JoinRequest{BoardId: "b1"})
		assert.Equal(t, events.PresenceList, read(t, conn).Type)

		send(t, conn, events.PresenceJoin, "b2", events.JoinRequest{BoardId: "b2"})
		env := read(t, conn)
		var payload events.ErrorPayload
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		assert.Equal(t, "rate_limited", payload.Code)
		assert.Equal(t, events.PresenceJoin, payload.Request)
	})
}
