// Package dispatch routes inbound board frames to per-type handlers.
package dispatch

import (
	"log/slog"
	"sync/atomic"

	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/itchan-dev/retroboard/shared/logger"
)

// Handlers maps an event type to its callback.
type Handlers map[events.Type]func(events.Envelope)

// Dispatcher reads its table through an atomic pointer, so callers swap
// handlers with SetHandlers while the subscription feeding Dispatch stays put.
type Dispatcher struct {
	table atomic.Pointer[Handlers]
	log   *slog.Logger

	dispatched atomic.Uint64
	dropped    atomic.Uint64
	panics     atomic.Uint64
}

func New(h Handlers) *Dispatcher {
	d := &Dispatcher{log: logger.Component("dispatch")}
	d.SetHandlers(h)
	return d
}

// SetHandlers replaces the table. The map is copied; later edits to h have no effect.
func (d *Dispatcher) SetHandlers(h Handlers) {
	table := make(Handlers, len(h))
	for t, fn := range h {
		if fn != nil {
			table[t] = fn
		}
	}
	d.table.Store(&table)
}

// Dispatch decodes raw and calls the handler for its type exactly once, on the
// calling goroutine. Malformed frames and unknown types are logged and dropped.
func (d *Dispatcher) Dispatch(raw []byte) {
	env, err := events.Decode(raw)
	if err != nil {
		d.dropped.Add(1)
		d.log.Warn("dropping malformed event", "error", err)
		return
	}
	d.DispatchEnvelope(env)
}

func (d *Dispatcher) DispatchEnvelope(env events.Envelope) {
	fn, ok := (*d.table.Load())[env.Type]
	if !ok {
		d.dropped.Add(1)
		d.log.Warn("dropping unknown event", "type", env.Type, "board_id", env.BoardId)
		return
	}
	d.call(fn, env)
}

func (d *Dispatcher) call(fn func(events.Envelope), env events.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.log.Error("event handler panicked", "type", env.Type, "board_id", env.BoardId, "panic", r)
		}
	}()
	d.dispatched.Add(1)
	fn(env)
}

type Stats struct {
	Dispatched uint64
	Dropped    uint64
	Panics     uint64
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched: d.dispatched.Load(),
		Dropped:    d.dropped.Load(),
		Panics:     d.panics.Load(),
	}
}
