// Package realtime is the server half of the channel transport: a pub/sub
// broker with one channel per board, and the websocket sessions attached to it.
package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/itchan-dev/retroboard/shared/domain"
)

// Channel names the pub/sub topic of a board.
func Channel(boardId domain.BoardId) string {
	return "board:" + boardId
}

// Broker delivers messages published on a channel to every subscriber of that
// channel. Messages from one publisher arrive in publish order; nothing is
// guaranteed across publishers or channels.
type Broker interface {
	Publish(ctx context.Context, channel string, msg []byte) error
	Subscribe(ctx context.Context, channel string, fn func(msg []byte)) (Subscription, error)
	Close() error
}

type Subscription interface {
	Close() error
}

var ErrBrokerClosed = errors.New("broker closed")

// MemoryBroker fans out in-process. Delivery runs synchronously on the
// publisher's goroutine, so subscriber callbacks must not block.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	closed bool
}

type memorySub struct {
	broker  *MemoryBroker
	channel string
	fn      func([]byte)
	once    sync.Once
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySub]struct{})}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, msg []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBrokerClosed
	}
	targets := make([]*memorySub, 0, len(b.subs[channel]))
	for s := range b.subs[channel] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.fn(msg)
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string, fn func([]byte)) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	s := &memorySub{broker: b, channel: channel, fn: fn}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memorySub]struct{})
	}
	b.subs[channel][s] = struct{}{}
	return s, nil
}

// Subscribers returns how many subscriptions a channel has.
func (b *MemoryBroker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string]map[*memorySub]struct{})
	return nil
}

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		defer s.broker.mu.Unlock()
		if subs, ok := s.broker.subs[s.channel]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.broker.subs, s.channel)
			}
		}
	})
	return nil
}
