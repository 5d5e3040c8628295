package redis

import (
	"context"
	"fmt"
	"time"
)

// Handler is the caller-visible connection object (§4.6). It forwards
// command calls to whichever pool Connection the Factory selects and
// exposes the transaction/pipeline/disconnect surface.
type Handler struct {
	factory *Factory
	opts    *Options
}

// New dials a Factory for addr and returns a Handler once the pool
// first reaches its target size (eager mode, the common case for this
// package; callers wanting lazy semantics can use NewLazy and await
// Ready themselves).
func New(ctx context.Context, opts *Options) (*Handler, error) {
	opts = opts.withDefaults()
	f := NewFactory(opts)
	if err := f.Ready(ctx); err != nil {
		return nil, err
	}
	return &Handler{factory: f, opts: opts}, nil
}

// NewLazy returns a Handler immediately; the pool fills in the
// background and commands issued while no pool Connection is live yet
// surface ErrNoConnectionAvailable.
func NewLazy(opts *Options) *Handler {
	opts = opts.withDefaults()
	return &Handler{factory: NewFactory(opts), opts: opts}
}

// Ready blocks until the underlying pool has reached its target size.
func (h *Handler) Ready(ctx context.Context) error {
	return h.factory.Ready(ctx)
}

// Execute is the generic command primitive every typed command wrapper
// is built on (§1's explicit out-of-scope note: the full command-to-method
// mapping is not part of this package; commands.go carries a
// representative slice of it).
func (h *Handler) Execute(ctx context.Context, name string, args ...interface{}) (*Reply, error) {
	conn, err := h.factory.GetConnection()
	if err != nil {
		return nil, err
	}
	return conn.Execute(ctx, false, name, args...)
}

// Multi acquires an exclusive Connection, optionally WATCHes the given
// keys, issues MULTI, and returns a bound Transaction handle (§4.6).
func (h *Handler) Multi(ctx context.Context, watchKeys ...string) (*Transaction, error) {
	conn, err := h.factory.GetExclusiveConnection()
	if err != nil {
		return nil, err
	}
	if len(watchKeys) > 0 {
		args := make([]interface{}, len(watchKeys))
		for i, k := range watchKeys {
			args[i] = k
		}
		if _, err := conn.Execute(ctx, false, "WATCH", args...); err != nil {
			h.factory.ReleaseConnection(conn)
			return nil, err
		}
	}
	if _, err := conn.Execute(ctx, false, "MULTI"); err != nil {
		h.factory.ReleaseConnection(conn)
		return nil, err
	}
	conn.beginMulti()
	return &Transaction{handler: h, conn: conn}, nil
}

// Watch reserves a Connection and issues WATCH without opening a
// transaction; the Connection stays exclusive until Unwatch or a
// subsequent Multi call on the same handle (§4.6).
func (h *Handler) Watch(ctx context.Context, keys ...string) (*WatchHandle, error) {
	conn, err := h.factory.GetExclusiveConnection()
	if err != nil {
		return nil, err
	}
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	if _, err := conn.Execute(ctx, false, "WATCH", args...); err != nil {
		h.factory.ReleaseConnection(conn)
		return nil, err
	}
	return &WatchHandle{handler: h, conn: conn}, nil
}

// Pipeline acquires an exclusive Connection and returns a Pipeline
// handle that buffers subsequent commands for one batched write (§4.6).
func (h *Handler) Pipeline() (*Pipeline, error) {
	conn, err := h.factory.GetExclusiveConnection()
	if err != nil {
		return nil, err
	}
	conn.beginPipeline()
	return &Pipeline{handler: h, conn: conn}, nil
}

// Subscribe starts a dedicated pub/sub Factory (single Connection,
// 120s-capped reconnect backoff per §4.5) and returns a Subscriber bound
// to it. A subscriber gets its own Factory rather than borrowing from
// the shared pool because its Connection must survive and resubscribe
// across reconnects on its own schedule, decoupled from ordinary
// command traffic (§4.9).
func (h *Handler) Subscribe(ctx context.Context, onMessage MessageFunc) (*Subscriber, error) {
	subOpts := *h.opts
	subOpts.PoolSize = 1
	subOpts.MaxReconnectDelay = 120 * time.Second
	f := NewFactory(&subOpts)
	if err := f.Ready(ctx); err != nil {
		return nil, err
	}
	return newSubscriber(f, onMessage), nil
}

// Disconnect stops reconnection and closes every Connection in the pool
// (§4.6). It returns without waiting for the pool to report empty; see
// Factory.Close.
func (h *Handler) Disconnect() {
	h.factory.Close()
}

// String formats the Handler per §6's repr contract.
func (h *Handler) String() string {
	n := h.factory.Size()
	if n == 0 {
		return "<Redis Connection: Not connected>"
	}
	return fmt.Sprintf("<Redis Connection: %s - %d connection(s)>", h.factory.Addr(), n)
}
