package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/itchan-dev/retroboard/shared/domain"
	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/itchan-dev/retroboard/shared/logger"
)

// Peer is a local receiver of board broadcasts. Send must not block.
type Peer interface {
	ID() domain.SessionId
	Send(msg []byte) bool
}

// Hub tracks which local peers are attached to which boards and keeps one
// broker subscription per board while at least one of them is attached.
type Hub struct {
	broker Broker
	log    *slog.Logger

	mu     sync.RWMutex
	boards map[domain.BoardId]*room
}

type room struct {
	peers map[Peer]struct{}
	ready chan struct{}
	sub   Subscription
	err   error
}

func NewHub(broker Broker) *Hub {
	if broker == nil {
		panic("broker cannot be nil for Hub")
	}
	return &Hub{
		broker: broker,
		log:    logger.Component("hub"),
		boards: make(map[domain.BoardId]*room),
	}
}

// Publish encodes the event and hands it to the broker. Peers on every
// instance receive it except the one whose ID equals origin.
func (h *Hub) Publish(ctx context.Context, boardId domain.BoardId, t events.Type, payload any, origin domain.SessionId) error {
	msg, err := events.EncodeFrom(t, boardId, origin, payload)
	if err != nil {
		return err
	}
	if err := h.broker.Publish(ctx, Channel(boardId), msg); err != nil {
		publishFailures.Inc()
		return fmt.Errorf("publish %s on board %s: %w", t, boardId, err)
	}
	eventsPublished.WithLabelValues(string(t)).Inc()
	return nil
}

// Subscribe attaches p to the board. The first peer on a board opens the
// broker subscription, later ones wait until it is confirmed.
func (h *Hub) Subscribe(ctx context.Context, boardId domain.BoardId, p Peer) error {
	h.mu.Lock()
	r, exists := h.boards[boardId]
	if !exists {
		r = &room{peers: make(map[Peer]struct{}), ready: make(chan struct{})}
		h.boards[boardId] = r
		activeChannels.Inc()
	}
	r.peers[p] = struct{}{}
	h.mu.Unlock()

	if exists {
		select {
		case <-r.ready:
		case <-ctx.Done():
			h.Unsubscribe(boardId, p)
			return ctx.Err()
		}
		if r.err != nil {
			return r.err
		}
		return nil
	}

	sub, err := h.broker.Subscribe(ctx, Channel(boardId), func(msg []byte) {
		h.deliver(boardId, msg)
	})

	h.mu.Lock()
	r.sub, r.err = sub, err
	close(r.ready)
	stale := h.boards[boardId] != r
	if err != nil && !stale {
		delete(h.boards, boardId)
		activeChannels.Dec()
	}
	h.mu.Unlock()

	if err != nil {
		return err
	}
	if stale {
		// everyone left while the subscription was being confirmed
		sub.Close()
	}
	return nil
}

// Unsubscribe detaches p from the board. It is a no-op when p is not attached.
func (h *Hub) Unsubscribe(boardId domain.BoardId, p Peer) {
	h.mu.Lock()
	sub := h.detachLocked(boardId, p)
	h.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			h.log.Warn("failed to close subscription", "board_id", boardId, "error", err)
		}
	}
}

// UnsubscribeAll detaches p from every board.
func (h *Hub) UnsubscribeAll(p Peer) {
	var subs []Subscription
	h.mu.Lock()
	for boardId, r := range h.boards {
		if _, ok := r.peers[p]; !ok {
			continue
		}
		if sub := h.detachLocked(boardId, p); sub != nil {
			subs = append(subs, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (h *Hub) detachLocked(boardId domain.BoardId, p Peer) Subscription {
	r, ok := h.boards[boardId]
	if !ok {
		return nil
	}
	if _, ok := r.peers[p]; !ok {
		return nil
	}
	delete(r.peers, p)
	if len(r.peers) > 0 {
		return nil
	}
	delete(h.boards, boardId)
	activeChannels.Dec()
	// nil while the subscribe call is still in flight; the subscriber closes it then
	return r.sub
}

// IsAttached reports whether p is attached to the board.
func (h *Hub) IsAttached(boardId domain.BoardId, p Peer) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.boards[boardId]
	if !ok {
		return false
	}
	_, ok = r.peers[p]
	return ok
}

// Peers returns the number of local peers attached to the board.
func (h *Hub) Peers(boardId domain.BoardId) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.boards[boardId]; ok {
		return len(r.peers)
	}
	return 0
}

func (h *Hub) deliver(boardId domain.BoardId, msg []byte) {
	env, err := events.Decode(msg)
	if err != nil {
		h.log.Warn("dropping malformed broker message", "board_id", boardId, "error", err)
		deliveriesDropped.WithLabelValues("malformed").Inc()
		return
	}

	h.mu.RLock()
	r, ok := h.boards[boardId]
	var targets []Peer
	if ok {
		targets = make([]Peer, 0, len(r.peers))
		for p := range r.peers {
			if env.Origin != "" && p.ID() == env.Origin {
				continue
			}
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range targets {
		if !p.Send(msg) {
			h.log.Warn("slow consumer, dropping message", "board_id", boardId, "session_id", p.ID(), "type", env.Type)
			deliveriesDropped.WithLabelValues("slow_consumer").Inc()
		}
	}
}
