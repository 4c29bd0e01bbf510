// Package presence tracks who is looking at which board.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/itchan-dev/retroboard/shared/domain"
	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/itchan-dev/retroboard/shared/logger"
)

type Store interface {
	UpsertPresence(ctx context.Context, entry domain.PresenceEntry) error
	SetOnline(ctx context.Context, boardId domain.BoardId, email domain.Email, online bool, lastSeen time.Time) error
	ListPresence(ctx context.Context, boardId domain.BoardId) ([]domain.PresenceEntry, error)
	// ResetOnline marks entries owned by instance offline; "" means all of them.
	ResetOnline(ctx context.Context, instance string) error
}

type Authorizer interface {
	IsMember(ctx context.Context, boardId domain.BoardId, email domain.Email) (bool, error)
	Role(ctx context.Context, boardId domain.BoardId, email domain.Email) (domain.Role, error)
}

type Publisher interface {
	Publish(ctx context.Context, boardId domain.BoardId, t events.Type, payload any, origin domain.SessionId) error
}

type identityKey struct {
	board domain.BoardId
	email domain.Email
}

// identityLock serializes the store writes and broadcasts of one identity.
type identityLock struct {
	mu   sync.Mutex
	refs int
}

// Registry keeps one presence entry per (board, email). An identity may be
// attached through several sessions; it goes offline when the last one leaves.
//
// Session counts are decided under mu. Store writes happen outside it, one
// identity at a time, and each write re-reads the count first, so a join
// racing the disconnect of the same identity always settles on the latest count.
type Registry struct {
	store    Store
	auth     Authorizer
	pub      Publisher
	now      func() time.Time
	instance string
	log      *slog.Logger

	mu          sync.Mutex
	attachments map[domain.SessionId]map[domain.BoardId]domain.Email
	sessions    map[identityKey]int
	// online is what this registry last wrote to the store
	online map[identityKey]bool
	locks  map[identityKey]*identityLock
}

type Option func(*Registry)

// WithInstance tags the entries this process writes, so ResetOnline only
// touches those. Needed when several processes share the store.
func WithInstance(id string) Option {
	return func(r *Registry) { r.instance = id }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func New(store Store, auth Authorizer, pub Publisher, opts ...Option) *Registry {
	r := &Registry{
		store:       store,
		auth:        auth,
		pub:         pub,
		now:         time.Now,
		log:         logger.Component("presence"),
		attachments: make(map[domain.SessionId]map[domain.BoardId]domain.Email),
		sessions:    make(map[identityKey]int),
		online:      make(map[identityKey]bool),
		locks:       make(map[identityKey]*identityLock),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Join attaches the session to the board and returns the full member list
// for the joiner. Rejected joins change nothing and broadcast nothing.
func (r *Registry) Join(ctx context.Context, sessionId domain.SessionId, boardId domain.BoardId, user domain.User) ([]domain.Member, error) {
	email := domain.NormalizeEmail(user.Email)
	if email == "" {
		joinsTotal.WithLabelValues("unauthorized").Inc()
		return nil, internal_errors.ErrUnauthorized
	}
	if boardId == "" {
		return nil, internal_errors.BadRequest("boardId is required")
	}

	role, err := r.auth.Role(ctx, boardId, email)
	if err != nil {
		return nil, err
	}
	if !role.IsMember() {
		joinsTotal.WithLabelValues("forbidden").Inc()
		return nil, internal_errors.ErrForbidden
	}

	key := identityKey{board: boardId, email: email}
	if already := r.attach(sessionId, key); already {
		joinsTotal.WithLabelValues("merged").Inc()
		r.log.Debug("session already attached", "board_id", boardId, "email", email, "session_id", sessionId)
	} else {
		joined, err := r.sync(ctx, key, role, sessionId)
		if err != nil {
			// sessions that attached meanwhile retry the write in their own sync
			r.detach(sessionId, boardId)
			return nil, err
		}
		if joined {
			joinsTotal.WithLabelValues("joined").Inc()
		} else {
			joinsTotal.WithLabelValues("merged").Inc()
			r.log.Debug("identity already online", "board_id", boardId, "email", email, "session_id", sessionId)
		}
	}

	entries, err := r.store.ListPresence(ctx, boardId)
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	members := make([]domain.Member, 0, len(entries))
	for _, e := range entries {
		members = append(members, e.Member())
	}
	return members, nil
}

// Leave detaches the session from the board. Unknown attachments are ignored.
func (r *Registry) Leave(ctx context.Context, sessionId domain.SessionId, boardId domain.BoardId, user domain.User) error {
	email, ok := r.detach(sessionId, boardId)
	if !ok {
		return nil
	}
	if attached := domain.NormalizeEmail(user.Email); attached != "" && attached != email {
		r.log.Warn("leave identity mismatch", "board_id", boardId, "attached", email, "requested", attached)
	}
	_, err := r.sync(ctx, identityKey{board: boardId, email: email}, "", sessionId)
	return err
}

// Disconnect leaves every board the session is attached to.
func (r *Registry) Disconnect(ctx context.Context, sessionId domain.SessionId) error {
	r.mu.Lock()
	boards := r.attachments[sessionId]
	delete(r.attachments, sessionId)
	keys := make([]identityKey, 0, len(boards))
	for boardId, email := range boards {
		key := identityKey{board: boardId, email: email}
		r.release(key)
		keys = append(keys, key)
	}
	r.mu.Unlock()

	var firstErr error
	for _, key := range keys {
		if _, err := r.sync(ctx, key, "", sessionId); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ResetOnline marks the entries of this instance offline. Online flags do not
// survive a restart since no session does.
func (r *Registry) ResetOnline(ctx context.Context) error {
	return r.store.ResetOnline(ctx, r.instance)
}

// Sessions returns how many sessions of email are attached to the board.
func (r *Registry) Sessions(boardId domain.BoardId, email domain.Email) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[identityKey{board: boardId, email: domain.NormalizeEmail(email)}]
}

// sync brings the stored flag of key in line with its current session count
// and broadcasts the change. role is only needed to bring an identity online;
// callers without one leave that to the join that attached the session.
// It reports whether this call took the identity online.
func (r *Registry) sync(ctx context.Context, key identityKey, role domain.Role, origin domain.SessionId) (bool, error) {
	unlock := r.lockIdentity(key)
	defer unlock()

	r.mu.Lock()
	attached, online := r.sessions[key] > 0, r.online[key]
	r.mu.Unlock()

	switch {
	case attached && !online && role != "":
		entry := domain.PresenceEntry{BoardId: key.board, Email: key.email, Role: role, Online: true, LastSeen: r.now(), Instance: r.instance}
		if err := r.store.UpsertPresence(ctx, entry); err != nil {
			return false, fmt.Errorf("upsert presence: %w", err)
		}
		r.setOnline(key, true)
		r.publish(ctx, key.board, events.PresenceJoined, events.PresenceJoinedPayload{Email: key.email, Role: role}, origin)
		return true, nil
	case !attached && online:
		leavesTotal.Inc()
		err := r.store.SetOnline(ctx, key.board, key.email, false, r.now())
		r.setOnline(key, false)
		// peers are told either way, the row is corrected on the next join or restart
		r.publish(ctx, key.board, events.PresenceLeft, events.PresenceLeftPayload{Email: key.email}, origin)
		if err != nil {
			return false, fmt.Errorf("set offline: %w", err)
		}
	}
	return false, nil
}

func (r *Registry) setOnline(key identityKey, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if online {
		r.online[key] = true
	} else {
		delete(r.online, key)
	}
}

func (r *Registry) lockIdentity(key identityKey) (unlock func()) {
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &identityLock{}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(r.locks, key)
		}
		r.mu.Unlock()
	}
}

func (r *Registry) publish(ctx context.Context, boardId domain.BoardId, t events.Type, payload any, origin domain.SessionId) {
	if err := r.pub.Publish(ctx, boardId, t, payload, origin); err != nil {
		r.log.Warn("failed to publish presence event", "board_id", boardId, "type", t, "error", err)
	}
}

// attach counts the session for key. It reports whether the session was
// already attached, in which case nothing changes.
func (r *Registry) attach(sessionId domain.SessionId, key identityKey) (already bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	boards, ok := r.attachments[sessionId]
	if !ok {
		boards = make(map[domain.BoardId]domain.Email)
		r.attachments[sessionId] = boards
	}
	if _, ok := boards[key.board]; ok {
		return true
	}
	boards[key.board] = key.email
	r.sessions[key]++
	return false
}

func (r *Registry) detach(sessionId domain.SessionId, boardId domain.BoardId) (email domain.Email, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	boards, found := r.attachments[sessionId]
	if !found {
		return "", false
	}
	email, ok = boards[boardId]
	if !ok {
		return "", false
	}
	delete(boards, boardId)
	if len(boards) == 0 {
		delete(r.attachments, sessionId)
	}
	r.release(identityKey{board: boardId, email: email})
	return email, true
}

// release must be called with mu held.
func (r *Registry) release(key identityKey) {
	if r.sessions[key]--; r.sessions[key] <= 0 {
		delete(r.sessions, key)
	}
}
