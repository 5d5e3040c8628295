package redis

import (
	"context"
	"crypto/sha1"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
)

// ConnState is a Connection's position in the §4.4 lifecycle.
type ConnState int

const (
	stateHandshake ConnState = iota
	stateNormal
	stateTransaction
	stateSubscriber
	statePipeline
	stateClosed
)

func (s ConnState) String() string {
	switch s {
	case stateHandshake:
		return "handshake"
	case stateNormal:
		return "normal"
	case stateTransaction:
		return "transaction"
	case stateSubscriber:
		return "subscriber"
	case statePipeline:
		return "pipeline"
	default:
		return "closed"
	}
}

// subscribeOnlyCommands are the only commands legal on a subscriber
// Connection, per §4.9.
var subscribeOnlyCommands = map[string]bool{
	"SUBSCRIBE": true, "UNSUBSCRIBE": true,
	"PSUBSCRIBE": true, "PUNSUBSCRIBE": true,
	"PING": true, "QUIT": true,
}

// Connection is one live socket to a Redis-speaking endpoint, carrying
// its own Codec, Router, and §4.4 state. It is owned by exactly one
// goroutine-confined read loop plus whatever goroutine currently holds
// the write side: writeMu lets only one caller write at a time, since the
// Factory's round-robin can hand the same Connection to several callers;
// transaction/pipeline/subscriber work additionally reserves the
// Connection for exclusive use.
type Connection struct {
	opts *Options
	id   uuid.UUID

	netConn net.Conn
	codec   *Codec
	router  *Router

	writeMu sync.Mutex

	mu        sync.Mutex
	state     ConnState
	lastErr   error
	scriptSHA map[string]bool
	charset   string

	closeOnce sync.Once
	closed    chan struct{}

	onClose func(*Connection, error) // Factory notification hook

	// pushSink, when set, receives every completed Reply directly instead
	// of the Router: a subscriber Connection never carries ordinary
	// request replies in its pending queue (§3 invariant) because
	// message/pmessage pushes have no corresponding request to pair with.
	pushSink func(*Reply)
}

// DialConnection opens a new transport to opts.Addr, performs the §4.4
// handshake (AUTH then SELECT), and starts the background read loop.
// The returned Connection is in stateNormal.
func DialConnection(ctx context.Context, opts *Options) (*Connection, error) {
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}

	network := "tcp"
	if isUnixAddr(opts.Addr) {
		network = "unix"
	}

	var netConn net.Conn
	var err error
	if opts.TLSConfig != nil && network == "tcp" {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: opts.TLSConfig}
		netConn, err = tlsDialer.DialContext(ctx, network, opts.Addr)
	} else {
		netConn, err = dialer.DialContext(ctx, network, opts.Addr)
	}
	if err != nil {
		return nil, wrapErr(KindTimeout, "dial "+opts.Addr, err)
	}

	c := &Connection{
		opts:      opts,
		id:        uuid.New(),
		netConn:   netConn,
		codec:     NewCodec(opts.Charset, !opts.NoNumberConversion),
		state:     stateHandshake,
		scriptSHA: make(map[string]bool),
		charset:   opts.Charset,
		closed:    make(chan struct{}),
	}
	c.router = NewRouter(opts.ReplyTimeout, c.onReplyTimeout)

	go c.readLoop()

	if err := c.handshake(ctx); err != nil {
		c.teardown(err)
		return nil, err
	}

	c.mu.Lock()
	c.state = stateNormal
	c.mu.Unlock()
	opts.Logger.Infof("conn %s: connected to %s", c.id, opts.Addr)
	return c, nil
}

// ID returns this Connection's correlation id, stable for its lifetime.
// A reconnect creates a new Connection with a new id, so the id tells
// apart the log lines of successive sockets; the connect/teardown and
// Transaction EXEC/DISCARD log lines carry it.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) handshake(ctx context.Context) error {
	if c.opts.Password != "" {
		if _, err := c.Execute(ctx, false, "AUTH", c.opts.Password); err != nil {
			return err
		}
	}
	if c.opts.DBID != 0 {
		if _, err := c.Execute(ctx, false, "SELECT", c.opts.DBID); err != nil {
			return err
		}
	}
	return nil
}

// State reports the Connection's current lifecycle state.
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError reports the error that closed this Connection, or nil if it
// is still open or was closed cleanly via Close.
func (c *Connection) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SetCharset overrides the text charset used for subsequent commands on
// this Connection. Passing "" switches to binary passthrough: string
// arguments are sent as their raw bytes and bulk replies are returned as
// []byte rather than decoded text.
func (c *Connection) SetCharset(charset string) {
	c.mu.Lock()
	c.charset = charset
	c.codec.charset = charset
	c.mu.Unlock()
}

// legal checks whether name is permitted in the Connection's current
// state, per the §4.4 legal-command matrix.
func (c *Connection) legal(name string) error {
	switch c.state {
	case stateClosed:
		return ErrClosed
	case stateSubscriber:
		if !subscribeOnlyCommands[name] {
			return ErrNotPermitted
		}
	case stateTransaction:
		if name == "WATCH" {
			return newErr(KindRedisError, "WATCH is not allowed inside MULTI")
		}
		// everything else is either a transaction terminator or gets
		// queued server-side; both are legal.
	}
	return nil
}

// blockingCommands opt out of the reply-timeout per §4.3.
var blockingCommands = map[string]bool{
	"BLPOP": true, "BRPOP": true, "BRPOPLPUSH": true,
	"BLMOVE": true, "BZPOPMIN": true, "BZPOPMAX": true,
	"WAIT": true,
}

// Execute sends one command and waits for its reply. It is the single
// low-level send path every command wrapper, Transaction, and Pipeline
// ultimately funnels through when not buffering for a batched write.
func (c *Connection) Execute(ctx context.Context, blockingOverride bool, name string, args ...interface{}) (*Reply, error) {
	c.mu.Lock()
	if err := c.legal(name); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	charset := c.charset
	c.mu.Unlock()

	blocking := blockingOverride || blockingCommands[name]

	buf, err := EncodeCommand(charset, name, args...)
	if err != nil {
		return nil, err
	}

	pr, err := c.enqueueAndWrite(blocking, buf)
	if err != nil {
		return nil, err
	}

	return c.wait(ctx, pr)
}

// enqueueAndWrite registers the pending request and writes its bytes
// while holding writeMu for both steps: two goroutines issuing commands
// on the same Connection concurrently must have their Router.Enqueue
// order match their actual write order, or the FIFO reply matching in
// §3's invariant breaks.
func (c *Connection) enqueueAndWrite(blocking bool, buf []byte) (*PendingRequest, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.State() == stateClosed {
		return nil, ErrClosed
	}

	pr := c.router.Enqueue(blocking)
	if _, err := c.netConn.Write(buf); err != nil {
		c.router.Cancel(pr)
		go c.teardown(wrapErr(KindConnectionError, "write failed", err))
		return nil, ErrConnectionLost
	}
	return pr, nil
}

// enqueueAndWriteBatch is enqueueAndWrite's multi-command counterpart
// for Pipeline.Execute: every buffered command is registered with the
// Router, in order, then all bytes are sent as a single transport write
// so the three-command scenario in §8 observes exactly one write
// syscall while still preserving per-command FIFO matching.
func (c *Connection) enqueueAndWriteBatch(bufs [][]byte, blocking []bool) ([]*PendingRequest, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.State() == stateClosed {
		return nil, ErrClosed
	}

	prs := make([]*PendingRequest, len(bufs))
	for i := range bufs {
		prs[i] = c.router.Enqueue(blocking[i])
	}

	total := 0
	for _, b := range bufs {
		total += len(b)
	}
	merged := make([]byte, 0, total)
	for _, b := range bufs {
		merged = append(merged, b...)
	}

	if _, err := c.netConn.Write(merged); err != nil {
		for _, pr := range prs {
			c.router.Cancel(pr)
		}
		go c.teardown(wrapErr(KindConnectionError, "write failed", err))
		return nil, ErrConnectionLost
	}
	return prs, nil
}

func (c *Connection) wait(ctx context.Context, pr *PendingRequest) (*Reply, error) {
	select {
	case res := <-pr.Result():
		if res.err != nil {
			return nil, res.err
		}
		if res.reply.Type == ErrReply {
			return res.reply, res.reply.Err
		}
		return res.reply, nil
	case <-ctx.Done():
		c.router.Cancel(pr)
		return nil, wrapErr(KindTimeout, "command cancelled", ctx.Err())
	case <-c.closed:
		return nil, ErrConnectionLost
	}
}

// readLoop is the Connection's background reader: it feeds bytes off the
// wire into the Codec and hands completed replies to the Router. It runs
// until the transport errors or Close is called.
func (c *Connection) readLoop() {
	buf := make([]byte, 16*1024)
	for {
		n, err := c.netConn.Read(buf)
		if n > 0 {
			feedErr := c.codec.Feed(buf[:n], func(r *Reply) error {
				c.mu.Lock()
				sink := c.pushSink
				c.mu.Unlock()
				if sink != nil {
					sink(r)
				} else {
					c.router.Deliver(r)
				}
				return nil
			})
			if feedErr != nil {
				c.teardown(wrapErr(KindInvalidResponse, "protocol error", feedErr))
				return
			}
		}
		if err != nil {
			c.teardown(wrapErr(KindConnectionError, "read failed", err))
			return
		}
	}
}

// onReplyTimeout is the Router's callback when the head request's
// reply-timeout elapses: fail that one request, then tear down the
// transport so every later request fails with connection-error (§4.3).
func (c *Connection) onReplyTimeout() {
	c.router.FailHead(newErr(KindTimeout, "reply timeout exceeded"))
	c.teardown(ErrConnectionLost)
}

// teardown closes the transport and fails every outstanding request
// exactly once, no matter how many goroutines observe the failure
// concurrently (read loop, writer, reply-timeout).
func (c *Connection) teardown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = stateClosed
		c.lastErr = cause
		c.mu.Unlock()

		_ = c.netConn.Close()
		close(c.closed)
		c.router.FailAll(ErrConnectionLost)
		c.opts.Logger.Warnf("conn %s: torn down: %v", c.id, cause)

		if c.onClose != nil {
			c.onClose(c, cause)
		}
	})
}

// Close shuts the Connection down cleanly: it issues QUIT best-effort
// then tears down the transport. Unlike teardown triggered by a
// transport error, Close does not record a LastError.
func (c *Connection) Close() error {
	_, _ = c.Execute(context.Background(), false, "QUIT")
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
	c.teardown(nil)
	return nil
}

// beginMulti transitions to the transaction state. Called only by
// Transaction, which owns exclusive access to this Connection.
func (c *Connection) beginMulti() {
	c.mu.Lock()
	c.state = stateTransaction
	c.mu.Unlock()
}

// endMulti transitions back to normal after EXEC or DISCARD.
func (c *Connection) endMulti() {
	c.mu.Lock()
	c.state = stateNormal
	c.mu.Unlock()
}

// beginPipeline/endPipeline bracket a Pipeline's buffering window.
func (c *Connection) beginPipeline() {
	c.mu.Lock()
	c.state = statePipeline
	c.mu.Unlock()
}

func (c *Connection) endPipeline() {
	c.mu.Lock()
	c.state = stateNormal
	c.mu.Unlock()
}

func (c *Connection) beginSubscriber(sink func(*Reply)) {
	c.mu.Lock()
	c.state = stateSubscriber
	c.pushSink = sink
	c.mu.Unlock()
}

// SendOnly writes a command without registering it with the Router: used
// for SUBSCRIBE/PSUBSCRIBE/UNSUBSCRIBE on a subscriber Connection, whose
// replies and pushes are both routed to pushSink rather than matched
// against individual requests.
func (c *Connection) SendOnly(name string, args ...interface{}) error {
	c.mu.Lock()
	if err := c.legal(name); err != nil {
		c.mu.Unlock()
		return err
	}
	charset := c.charset
	c.mu.Unlock()

	buf, err := EncodeCommand(charset, name, args...)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.State() == stateClosed {
		return ErrClosed
	}
	if _, err := c.netConn.Write(buf); err != nil {
		go c.teardown(wrapErr(KindConnectionError, "write failed", err))
		return ErrConnectionLost
	}
	return nil
}

// Eval implements the §4.4 script-hash cache: a script whose SHA1 this
// Connection has cached is sent as EVALSHA, falling back to EVAL when the
// server reports it unknown; any other script is sent as EVAL directly.
// A successful EVAL caches the SHA1.
func (c *Connection) Eval(ctx context.Context, script string, keys []string, args []interface{}) (*Reply, error) {
	sum := sha1.Sum([]byte(script))
	sha := hex.EncodeToString(sum[:])

	c.mu.Lock()
	known := c.scriptSHA[sha]
	c.mu.Unlock()

	evalArgs := make([]interface{}, 0, len(keys)+len(args)+1)
	evalArgs = append(evalArgs, len(keys))
	for _, k := range keys {
		evalArgs = append(evalArgs, k)
	}
	evalArgs = append(evalArgs, args...)

	if known {
		shaArgs := append([]interface{}{sha}, evalArgs...)
		reply, err := c.Execute(ctx, false, "EVALSHA", shaArgs...)
		if err == nil || !errors.Is(err, errNoScript) {
			return reply, err
		}
		// fall through to EVAL below; server forgot the script.
	}

	full := append([]interface{}{script}, evalArgs...)
	reply, err := c.Execute(ctx, false, "EVAL", full...)
	if err == nil {
		c.mu.Lock()
		c.scriptSHA[sha] = true
		c.mu.Unlock()
	}
	return reply, err
}

// ScriptFlush clears the connection's known-script set, mirroring
// SCRIPT FLUSH clearing the server's script cache.
func (c *Connection) ScriptFlush(ctx context.Context) (*Reply, error) {
	reply, err := c.Execute(ctx, false, "SCRIPT", "FLUSH")
	if err == nil {
		c.mu.Lock()
		c.scriptSHA = make(map[string]bool)
		c.mu.Unlock()
	}
	return reply, err
}

// errNoScript is matched against RedisError via errors.Is's Unwrap chain
// by comparing Kind, since EVALSHA's NOSCRIPT failure has no fixed
// message text to compare against.
var errNoScript = newErr(KindScriptDoesNotExist, "NOSCRIPT")

// Is lets errors.Is(err, errNoScript) match any RedisError with the same
// Kind, regardless of the server's exact message text.
func (e *RedisError) Is(target error) bool {
	te, ok := target.(*RedisError)
	if !ok {
		return false
	}
	return e.kind == te.kind
}
