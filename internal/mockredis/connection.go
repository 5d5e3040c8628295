// Package mockredis's per-client Connection: state tracking, buffered
// I/O, and the keyspace-session fields (auth, selected DB, MULTI/WATCH,
// pub/sub subscriptions) that the command handlers in store.go read and
// mutate directly.
package mockredis

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	redis "github.com/l00pss/txredis"
)

// Connection represents a client connection to the Redis server.
type Connection struct {
	conn      net.Conn
	reader    *bufio.Reader
	writer    *bufio.Writer
	server    *Server
	state     atomic.Int32
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	lastUsed  time.Time

	writeMu sync.Mutex // serializes writeValue calls against async pubsub pushes

	// codec decodes incoming command frames; pending holds any
	// additional commands readValue's Codec.Feed decoded in the same
	// read as the one readCommand is about to return (a pipelined
	// batch arrives in one syscall). readBuf is its reusable read
	// buffer, allocated lazily on first read.
	codec   *redis.Codec
	pending []*redis.Reply
	readBuf []byte

	authenticated bool
	selectedDB    int

	inMulti  bool
	queued   []*Command
	watching map[string]int64 // key -> version observed at WATCH time

	subChannels map[string]bool
	subPatterns map[string]bool
}

// setState atomically updates the connection state and fires the
// server's ConnStateHook, if configured.
func (c *Connection) setState(state ConnState) {
	c.state.Store(int32(state))
	if c.server.ConnStateHook != nil {
		c.server.ConnStateHook(c.conn, state)
	}
}

// Close tears the connection down exactly once, safe to call
// concurrently or more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// GetState returns the current connection state.
func (c *Connection) GetState() ConnState {
	return ConnState(c.state.Load())
}

// RemoteAddr returns the client's network address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the server-side address this connection was
// accepted on.
func (c *Connection) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}
