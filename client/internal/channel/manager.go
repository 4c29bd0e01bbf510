package channel

import (
	"context"
	"net/http"
	"sync"

	"github.com/itchan-dev/retroboard/shared/logger"
)

// Manager shares one Conn per server URL between any number of users.
// Acquire and Release are reference counted; the last Release closes the socket.
type Manager struct {
	base Config

	mu    sync.Mutex
	conns map[string]*managed
}

type managed struct {
	conn  *Conn
	refs  int
	ready chan struct{}
	err   error
}

// NewManager takes the settings every managed connection starts from.
func NewManager(base Config) *Manager {
	return &Manager{base: base, conns: make(map[string]*managed)}
}

// Acquire returns the shared connection for url, dialing it on first use.
// header is only used by the first acquirer.
func (m *Manager) Acquire(ctx context.Context, url string, header http.Header) (*Conn, error) {
	m.mu.Lock()
	if e, ok := m.conns[url]; ok {
		e.refs++
		m.mu.Unlock()
		return m.await(ctx, e)
	}
	e := &managed{refs: 1, ready: make(chan struct{})}
	m.conns[url] = e
	m.mu.Unlock()

	cfg := m.base
	cfg.URL = url
	if header != nil {
		cfg.Header = header
	}
	conn := New(cfg)
	err := conn.Connect(ctx)

	m.mu.Lock()
	if err != nil {
		e.err = err
		delete(m.conns, url)
	} else {
		e.conn = conn
	}
	m.mu.Unlock()
	close(e.ready)

	if err != nil {
		return nil, err
	}
	logger.Log.Debug("shared connection opened", "url", url)
	return conn, nil
}

func (m *Manager) await(ctx context.Context, e *managed) (*Conn, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		// give the reference back once the dial settles
		go func() {
			<-e.ready
			if e.err == nil {
				m.Release(e.conn)
			}
		}()
		return nil, &ConnectionError{Op: "connect", Err: ctx.Err()}
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.conn, nil
}

// Release drops one reference to conn. Unknown connections are ignored.
func (m *Manager) Release(conn *Conn) error {
	if conn == nil {
		return nil
	}
	m.mu.Lock()
	e, ok := m.conns[conn.cfg.URL]
	if !ok || e.conn != conn {
		m.mu.Unlock()
		return nil
	}
	e.refs--
	if e.refs > 0 {
		m.mu.Unlock()
		return nil
	}
	delete(m.conns, conn.cfg.URL)
	m.mu.Unlock()

	logger.Log.Debug("shared connection closed", "url", conn.cfg.URL)
	return conn.Close()
}

// Refs reports how many users hold the connection for url.
func (m *Manager) Refs(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.conns[url]; ok {
		return e.refs
	}
	return 0
}

// Close tears down every connection regardless of references.
func (m *Manager) Close() error {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for url, e := range m.conns {
		if e.conn != nil {
			conns = append(conns, e.conn)
		}
		delete(m.conns, url)
	}
	m.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	return nil
}
