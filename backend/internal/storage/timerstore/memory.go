// Package timerstore keeps the latest timer state of each board so late
// joiners can be brought up to date.
package timerstore

import (
	"context"
	"sync"

	"github.com/itchan-dev/retroboard/shared/domain"
)

type Memory struct {
	mu     sync.RWMutex
	states map[domain.BoardId]domain.TimerState
}

func NewMemory() *Memory {
	return &Memory{states: make(map[domain.BoardId]domain.TimerState)}
}

// Get returns nil when the board has no timer.
func (m *Memory) Get(ctx context.Context, boardId domain.BoardId) (*domain.TimerState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[boardId]
	if !ok {
		return nil, nil
	}
	return st.Clone(), nil
}

func (m *Memory) Set(ctx context.Context, state domain.TimerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.BoardId] = *state.Clone()
	return nil
}

func (m *Memory) Delete(ctx context.Context, boardId domain.BoardId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, boardId)
	return nil
}
