// Package channel is the participant side of the board channels: one websocket
// to the server, multiplexing any number of attached boards.
package channel

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/itchan-dev/retroboard/shared/domain"
	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/itchan-dev/retroboard/shared/logger"
)

type Config struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
	// NewBackOff builds the reconnect schedule. Defaults to exponential, forever.
	NewBackOff    func() backoff.BackOff
	AttachTimeout time.Duration
	WriteWait     time.Duration
	// ReadTimeout is extended on every frame and server ping.
	ReadTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.NewBackOff == nil {
		c.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		}
	}
	if c.AttachTimeout <= 0 {
		c.AttachTimeout = 10 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 90 * time.Second
	}
	return c
}

// Handle is one attachment to a board. Callers must Detach it on every exit path.
type Handle struct {
	conn    *Conn
	boardId domain.BoardId
	deliver func([]byte)
	once    sync.Once
}

func (h *Handle) BoardId() domain.BoardId { return h.boardId }

func (h *Handle) Publish(t events.Type, payload any) { h.conn.Publish(h, t, payload) }

func (h *Handle) Detach() { h.conn.Detach(h) }

type Conn struct {
	cfg Config
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	writeMu sync.Mutex

	mu          sync.Mutex
	ws          *websocket.Conn
	state       State
	started     bool
	closed      bool
	boards      map[domain.BoardId]map[*Handle]struct{}
	waiters     map[domain.BoardId][]chan error
	observers   []func(State)
	reconnected []func()
}

func New(cfg Config) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		cfg:     cfg.withDefaults(),
		log:     logger.Component("channel").With("url", cfg.URL),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		boards:  make(map[domain.BoardId]map[*Handle]struct{}),
		waiters: make(map[domain.BoardId][]chan error),
	}
}

// OnState registers an observer of connection state transitions.
func (c *Conn) OnState(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// OnReconnected registers fn to run after an automatic reconnect, once every
// attached board has been re-joined. Events may have been missed before it.
func (c *Conn) OnReconnected(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnected = append(c.reconnected, fn)
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the server once. Later drops are recovered in the background
// until Close.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &ConnectionError{Op: "connect", Err: ErrClosed}
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.setState(Connecting)
	ws, err := c.dial(ctx)
	if err != nil {
		c.setState(Disconnected)
		return &ConnectionError{Op: "connect", Err: err}
	}
	if !c.install(ws) {
		return &ConnectionError{Op: "connect", Err: ErrClosed}
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &ConnectionError{Op: "connect", Err: ErrClosed}
	}
	c.started = true
	c.mu.Unlock()

	go c.run(ws)
	return nil
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, backoff.Permanent(ErrUnauthorized)
		}
		return nil, err
	}
	ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	ws.SetPingHandler(func(data string) error {
		ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteWait))
		var ne net.Error
		if errors.Is(err, websocket.ErrCloseSent) || (errors.As(err, &ne) && ne.Timeout()) {
			return nil
		}
		return err
	})
	return ws, nil
}

// install makes ws the live connection unless Close won the race.
func (c *Conn) install(ws *websocket.Conn) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return false
	}
	c.ws = ws
	c.mu.Unlock()
	c.setState(Connected)
	return true
}

func (c *Conn) run(ws *websocket.Conn) {
	defer close(c.done)
	for {
		err := c.readLoop(ws)
		c.drop(ws, err)
		if c.ctx.Err() != nil {
			c.setState(Disconnected)
			return
		}
		c.log.Warn("connection lost", "error", err)
		c.setState(Disconnected)

		ws, err = c.reconnect()
		if err != nil {
			c.log.Info("reconnect loop stopped", "error", err)
			c.setState(Disconnected)
			return
		}
		c.rejoin()
		c.notifyReconnected()
	}
}

func (c *Conn) readLoop(ws *websocket.Conn) error {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		c.route(raw)
	}
}

// drop forgets ws and fails attaches still waiting on it.
func (c *Conn) drop(ws *websocket.Conn, cause error) {
	ws.Close()
	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	pending := c.waiters
	c.waiters = make(map[domain.BoardId][]chan error)
	c.mu.Unlock()

	for _, waiters := range pending {
		resolve(waiters, &ConnectionError{Op: "attach", Err: cause})
	}
}

func (c *Conn) reconnect() (*websocket.Conn, error) {
	var ws *websocket.Conn
	op := func() error {
		c.setState(Connecting)
		conn, err := c.dial(c.ctx)
		if err != nil {
			c.setState(Disconnected)
			return err
		}
		ws = conn
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.log.Info("reconnect failed", "error", err, "retry_in", wait)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(c.cfg.NewBackOff(), c.ctx), notify); err != nil {
		return nil, err
	}
	if !c.install(ws) {
		return nil, ErrClosed
	}
	return ws, nil
}

// rejoin re-enters presence on every attached board. The server answers each
// with a fresh presence:list.
func (c *Conn) rejoin() {
	c.mu.Lock()
	boards := make([]domain.BoardId, 0, len(c.boards))
	for boardId := range c.boards {
		boards = append(boards, boardId)
	}
	c.mu.Unlock()

	for _, boardId := range boards {
		if err := c.write(events.PresenceJoin, boardId, events.JoinRequest{BoardId: boardId}); err != nil {
			c.log.Warn("rejoin failed", "board_id", boardId, "error", err)
		}
	}
}

func (c *Conn) notifyReconnected() {
	c.mu.Lock()
	fns := slices.Clone(c.reconnected)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	observers := slices.Clone(c.observers)
	c.mu.Unlock()

	c.log.Debug("state changed", "state", s)
	for _, fn := range observers {
		fn(s)
	}
}

// route hands a frame to the handles of its board. Attach waiters are released
// by presence:list, or by an error answering the join of that board.
func (c *Conn) route(raw []byte) {
	env, err := events.Decode(raw)
	if err != nil {
		c.log.Warn("dropping malformed frame", "error", err)
		return
	}
	rejected := joinRejection(env)

	c.mu.Lock()
	var waiters []chan error
	if env.Type == events.PresenceList || rejected != nil {
		waiters = c.waiters[env.BoardId]
		delete(c.waiters, env.BoardId)
	}
	handles := make([]*Handle, 0, len(c.boards[env.BoardId]))
	for h := range c.boards[env.BoardId] {
		handles = append(handles, h)
	}
	c.mu.Unlock()

	if rejected != nil && len(waiters) > 0 {
		resolve(waiters, rejected)
		return
	}
	if len(handles) == 0 {
		c.log.Debug("no handle for frame", "type", env.Type, "board_id", env.BoardId)
	}
	for _, h := range handles {
		h.deliver(raw)
	}
	resolve(waiters, nil)
}

func resolve(waiters []chan error, err error) {
	for _, w := range waiters {
		w <- err
	}
}

// Attach joins boardId and waits for the server's presence:list. Every frame
// of the board, that list included, is passed to deliver on the read goroutine.
func (c *Conn) Attach(ctx context.Context, boardId domain.BoardId, deliver func([]byte)) (*Handle, error) {
	if boardId == "" {
		return nil, internal_errors.BadRequest("Board id is required")
	}
	h := &Handle{conn: c, boardId: boardId, deliver: deliver}
	wait := make(chan error, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, &ConnectionError{Op: "attach", Err: ErrClosed}
	}
	if c.ws == nil {
		c.mu.Unlock()
		return nil, &ConnectionError{Op: "attach", Err: ErrNotConnected}
	}
	if c.boards[boardId] == nil {
		c.boards[boardId] = make(map[*Handle]struct{})
	}
	c.boards[boardId][h] = struct{}{}
	c.waiters[boardId] = append(c.waiters[boardId], wait)
	c.mu.Unlock()

	if err := c.write(events.PresenceJoin, boardId, events.JoinRequest{BoardId: boardId}); err != nil {
		c.abandon(h, wait)
		return nil, &ConnectionError{Op: "attach", Err: err}
	}

	timeout := time.NewTimer(c.cfg.AttachTimeout)
	defer timeout.Stop()
	select {
	case err := <-wait:
		if err != nil {
			c.abandon(h, wait)
			return nil, err
		}
		c.log.Debug("attached", "board_id", boardId)
		return h, nil
	case <-timeout.C:
		c.leaveIfLast(c.abandon(h, wait), boardId)
		return nil, &ConnectionError{Op: "attach", Err: context.DeadlineExceeded}
	case <-ctx.Done():
		c.leaveIfLast(c.abandon(h, wait), boardId)
		return nil, &ConnectionError{Op: "attach", Err: ctx.Err()}
	}
}

// abandon undoes a failed attach. It reports whether the board has no handles left.
func (c *Conn) abandon(h *Handle, wait chan error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiters[h.boardId] = slices.DeleteFunc(c.waiters[h.boardId], func(w chan error) bool { return w == wait })
	if len(c.waiters[h.boardId]) == 0 {
		delete(c.waiters, h.boardId)
	}
	return c.forget(h)
}

func (c *Conn) forget(h *Handle) bool {
	handles, ok := c.boards[h.boardId]
	if !ok {
		return false
	}
	delete(handles, h)
	if len(handles) > 0 {
		return false
	}
	delete(c.boards, h.boardId)
	return true
}

func (c *Conn) leaveIfLast(last bool, boardId domain.BoardId) {
	if !last {
		return
	}
	if err := c.write(events.PresenceLeave, boardId, events.LeaveRequest{BoardId: boardId}); err != nil {
		c.log.Debug("leave not sent", "board_id", boardId, "error", err)
	}
}

// Publish sends an event on the handle's board. Fire-and-forget: failures are
// logged, and a peer that is mid-reconnect simply misses it.
func (c *Conn) Publish(h *Handle, t events.Type, payload any) {
	c.mu.Lock()
	_, attached := c.boards[h.boardId][h]
	c.mu.Unlock()
	if !attached {
		c.log.Warn("publish on detached handle", "type", t, "board_id", h.boardId)
		return
	}
	if err := c.write(t, h.boardId, payload); err != nil {
		c.log.Warn("publish failed", "type", t, "board_id", h.boardId, "error", err)
	}
}

// Detach leaves the board once its last handle is gone. Safe to call twice.
func (c *Conn) Detach(h *Handle) {
	h.once.Do(func() {
		c.mu.Lock()
		last := c.forget(h)
		c.mu.Unlock()
		c.leaveIfLast(last, h.boardId)
	})
}

func (c *Conn) write(t events.Type, boardId domain.BoardId, payload any) error {
	msg, err := events.Encode(t, boardId, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return ws.WriteMessage(websocket.TextMessage, msg)
}

// Close stops the reconnect loop and closes the socket. The server treats it
// as a disconnect of every attached board.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	ws := c.ws
	c.mu.Unlock()

	c.cancel()
	if ws != nil {
		c.writeMu.Lock()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		ws.Close()
	}
	if started {
		<-c.done
	}
	c.setState(Disconnected)
	return nil
}
