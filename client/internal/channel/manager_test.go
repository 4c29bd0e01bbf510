package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager(t *testing.T) {
	f := newFakeServer(t)
	m := NewManager(fastConfig(""))
	defer m.Close()
	ctx := context.Background()

	first, err := m.Acquire(ctx, f.url(), nil)
	require.NoError(t, err)
	second, err := m.Acquire(ctx, f.url(), nil)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 2, m.Refs(f.url()))
	assert.Eventually(t, func() bool { return f.connections() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, m.Release(first))
	assert.Equal(t, Connected, first.State())
	assert.Equal(t, 1, m.Refs(f.url()))

	require.NoError(t, m.Release(second))
	assert.Equal(t, Disconnected, second.State())
	assert.Equal(t, 0, m.Refs(f.url()))

	// releasing an unknown connection is a no-op
	assert.NoError(t, m.Release(first))

	third, err := m.Acquire(ctx, f.url(), nil)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Eventually(t, func() bool { return f.connections() == 2 }, time.Second, 10*time.Millisecond)
}

func TestManagerConcurrentAcquire(t *testing.T) {
	f := newFakeServer(t)
	m := NewManager(fastConfig(""))
	defer m.Close()

	const users = 8
	conns := make([]*Conn, users)
	var wg sync.WaitGroup
	for i := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := m.Acquire(context.Background(), f.url(), nil)
			assert.NoError(t, err)
			conns[i] = conn
		}()
	}
	wg.Wait()

	for _, conn := range conns[1:] {
		assert.Same(t, conns[0], conn)
	}
	assert.Eventually(t, func() bool { return f.connections() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, users, m.Refs(f.url()))
}

func TestManagerDialFailure(t *testing.T) {
	m := NewManager(Config{})
	_, err := m.Acquire(context.Background(), "ws://127.0.0.1:1/v1/ws", nil)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, 0, m.Refs("ws://127.0.0.1:1/v1/ws"))
}

func TestManagerIsolation(t *testing.T) {
	f := newFakeServer(t)
	a, b := NewManager(fastConfig("")), NewManager(fastConfig(""))
	defer a.Close()
	defer b.Close()

	ca, err := a.Acquire(context.Background(), f.url(), nil)
	require.NoError(t, err)
	cb, err := b.Acquire(context.Background(), f.url(), nil)
	require.NoError(t, err)

	assert.NotSame(t, ca, cb)
	assert.Eventually(t, func() bool { return f.connections() == 2 }, time.Second, 10*time.Millisecond)
}
