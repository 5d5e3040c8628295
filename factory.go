package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Factory maintains a pool of Connections to one endpoint, round-robin
// dispatching ordinary commands while keeping transaction/pipeline/
// subscriber Connections out of rotation, and reconnecting lost members
// with bounded exponential backoff (§4.5).
type Factory struct {
	opts *Options

	mu       sync.Mutex
	addr     string
	conns    []*Connection
	reserved map[*Connection]bool
	cursor   int
	closing  bool

	readyOnce sync.Once
	readyCh   chan struct{}
	readyErr  error

	size atomic.Int64
}

// NewFactory builds a Factory targeting opts.Addr and begins establishing
// opts.PoolSize Connections in the background. Callers that need eager
// semantics should block on Ready(ctx); lazy callers may start issuing
// commands immediately and let individual calls surface
// ErrNoConnectionAvailable while no pool Connection is live yet.
func NewFactory(opts *Options) *Factory {
	opts = opts.withDefaults()
	f := &Factory{
		opts:     opts,
		addr:     opts.Addr,
		reserved: make(map[*Connection]bool),
		readyCh:  make(chan struct{}),
	}
	for i := 0; i < opts.PoolSize; i++ {
		go f.maintainSlot()
	}
	return f
}

// Ready blocks until the pool has reached its target size at least once,
// or ctx is done.
func (f *Factory) Ready(ctx context.Context) error {
	select {
	case <-f.readyCh:
		return f.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Size reports the current live Connection count.
func (f *Factory) Size() int {
	return int(f.size.Load())
}

// maintainSlot owns one pool position for the Factory's lifetime: it
// dials, registers the Connection, waits for it to die (via onClose),
// then reconnects with backoff unless the Factory is closing or
// NoReconnect is set.
func (f *Factory) maintainSlot() {
	b := f.newBackoff()
	for {
		f.mu.Lock()
		closing := f.closing
		addr := f.addr
		f.mu.Unlock()
		if closing {
			return
		}

		opts := *f.opts
		opts.Addr = addr
		ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
		conn, err := DialConnection(ctx, &opts)
		cancel()
		if err != nil {
			f.opts.Logger.Warnf("connect to %s failed: %v", addr, err)
			if f.opts.NoReconnect || IsKind(err, KindResponseError) {
				// A response-error during handshake means the server rejected
				// our AUTH/SELECT, not that the transport is flaky; retrying
				// the same bad credentials forever just spams the log, so
				// give up this slot for good.
				f.signalReady(err)
				return
			}
			time.Sleep(b.NextBackOff())
			continue
		}
		b.Reset()

		died := make(chan struct{})
		conn.onClose = func(_ *Connection, cause error) {
			f.opts.Logger.Warnf("connection to %s lost: %v", addr, cause)
			close(died)
		}

		f.addConn(conn)
		if f.Size() == f.opts.PoolSize {
			f.signalReady(nil)
		}

		<-died
		f.removeConn(conn)

		if f.opts.NoReconnect {
			return
		}
	}
}

// newBackoff builds the exponential-backoff policy capped at
// opts.MaxReconnectDelay (default 10s; callers building a Subscriber's
// Factory pass 120s per §4.5).
func (f *Factory) newBackoff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 100 * time.Millisecond
	eb.MaxInterval = f.opts.MaxReconnectDelay
	// No jitter: a randomized delay may exceed MaxInterval, which would
	// break the MaxReconnectDelay cap.
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0 // retry forever; Factory.Close stops the loop instead
	return eb
}

func (f *Factory) signalReady(err error) {
	f.readyOnce.Do(func() {
		f.readyErr = err
		close(f.readyCh)
	})
}

func (f *Factory) addConn(c *Connection) {
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()
	f.size.Add(1)
}

func (f *Factory) removeConn(c *Connection) {
	f.mu.Lock()
	for i, cc := range f.conns {
		if cc == c {
			f.conns = append(f.conns[:i], f.conns[i+1:]...)
			break
		}
	}
	delete(f.reserved, c)
	f.mu.Unlock()
	f.size.Add(-1)
}

// GetConnection advances the round-robin cursor and returns the next
// Connection not currently reserved for transaction/pipeline/subscriber
// use. It returns ErrNoConnectionAvailable if every live Connection is
// reserved or the pool is empty.
func (f *Factory) GetConnection() (*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.conns)
	if n == 0 {
		return nil, ErrNoConnectionAvailable
	}
	for i := 0; i < n; i++ {
		idx := (f.cursor + i) % n
		c := f.conns[idx]
		if f.reserved[c] || c.State() == stateClosed {
			continue
		}
		f.cursor = (idx + 1) % n
		return c, nil
	}
	return nil, ErrNoConnectionAvailable
}

// GetExclusiveConnection returns a Connection taken out of round-robin
// rotation until ReleaseConnection is called, for Transaction, Pipeline,
// and Subscriber use (§4.5's exclusive variant).
func (f *Factory) GetExclusiveConnection() (*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.conns)
	if n == 0 {
		return nil, ErrNoConnectionAvailable
	}
	for i := 0; i < n; i++ {
		idx := (f.cursor + i) % n
		c := f.conns[idx]
		if f.reserved[c] || c.State() == stateClosed {
			continue
		}
		f.reserved[c] = true
		f.cursor = (idx + 1) % n
		return c, nil
	}
	return nil, ErrNoConnectionAvailable
}

// ReleaseConnection returns a previously-exclusive Connection to the
// round-robin pool.
func (f *Factory) ReleaseConnection(c *Connection) {
	f.mu.Lock()
	delete(f.reserved, c)
	f.mu.Unlock()
}

// SetAddr replaces the Factory's target endpoint and tears down every
// live Connection; maintainSlot's reconnect loop re-establishes to the
// new address, per §4.5's Sentinel-driven endpoint change. All in-flight
// requests on the torn-down Connections fail with connection-error.
func (f *Factory) SetAddr(addr string) {
	f.mu.Lock()
	f.addr = addr
	conns := append([]*Connection(nil), f.conns...)
	f.mu.Unlock()

	for _, c := range conns {
		c.teardown(ErrConnectionLost)
	}
}

// Addr reports the Factory's current target endpoint.
func (f *Factory) Addr() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addr
}

// Close stops reconnection and closes every Connection currently in the
// pool. It does not wait for the pool slots to deregister them: Size can
// still count them for a moment after Close returns.
func (f *Factory) Close() {
	f.mu.Lock()
	f.closing = true
	conns := append([]*Connection(nil), f.conns...)
	f.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
