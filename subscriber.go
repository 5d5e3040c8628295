package redis

import (
	"context"
	"sync"
	"time"
)

// MessageFunc receives a published message. pattern is empty for a
// channel-exact SUBSCRIBE delivery and non-empty for a PSUBSCRIBE match
// (§4.9).
type MessageFunc func(pattern, channel string, payload []byte)

// Subscriber is a dedicated pub/sub Factory with exactly one Connection.
// It keeps its own authoritative set of channels and patterns so that,
// whenever the Factory replaces a dead Connection with a fresh one, it
// can re-subscribe before resuming delivery to the caller's callback
// (§4.9). The Factory, not the Subscriber, owns reconnection; the
// Subscriber's job is to notice the Connection identity changed and
// replay its subscriptions onto the new one.
type Subscriber struct {
	factory *Factory
	onMsg   MessageFunc

	mu       sync.Mutex
	channels map[string]bool
	patterns map[string]bool
	closed   bool
}

func newSubscriber(f *Factory, onMsg MessageFunc) *Subscriber {
	s := &Subscriber{
		factory:  f,
		onMsg:    onMsg,
		channels: make(map[string]bool),
		patterns: make(map[string]bool),
	}
	go s.loop()
	return s
}

// Subscribe adds channels to the subscription set and issues SUBSCRIBE
// on the current Connection.
func (s *Subscriber) Subscribe(ctx context.Context, channels ...string) error {
	s.mu.Lock()
	for _, c := range channels {
		s.channels[c] = true
	}
	s.mu.Unlock()
	return s.sendSubscribe(ctx, "SUBSCRIBE", channels)
}

// PSubscribe adds patterns to the subscription set and issues
// PSUBSCRIBE on the current Connection.
func (s *Subscriber) PSubscribe(ctx context.Context, patterns ...string) error {
	s.mu.Lock()
	for _, p := range patterns {
		s.patterns[p] = true
	}
	s.mu.Unlock()
	return s.sendSubscribe(ctx, "PSUBSCRIBE", patterns)
}

// Unsubscribe removes channels (all, if none given) and issues
// UNSUBSCRIBE.
func (s *Subscriber) Unsubscribe(ctx context.Context, channels ...string) error {
	s.mu.Lock()
	if len(channels) == 0 {
		for c := range s.channels {
			channels = append(channels, c)
		}
		s.channels = make(map[string]bool)
	} else {
		for _, c := range channels {
			delete(s.channels, c)
		}
	}
	s.mu.Unlock()
	return s.sendSubscribe(ctx, "UNSUBSCRIBE", channels)
}

func (s *Subscriber) sendSubscribe(ctx context.Context, name string, items []string) error {
	if len(items) == 0 {
		return nil
	}
	conn, err := s.factory.GetConnection()
	if err != nil {
		return err
	}
	args := make([]interface{}, len(items))
	for i, it := range items {
		args[i] = it
	}
	return conn.SendOnly(name, args...)
}

// Close stops the subscription and tears down the dedicated Factory.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.factory.Close()
	return nil
}

// loop waits for the Factory's Connection to become available, wires it
// as a subscriber Connection (every reply routed to s.dispatch rather
// than the Router), replays the current subscription set, and then
// blocks until that Connection dies — at which point the Factory is
// already establishing a replacement, and the loop starts over on
// whatever Connection it hands back next.
func (s *Subscriber) loop() {
	for {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		ctx := context.Background()
		if err := s.factory.Ready(ctx); err != nil {
			return
		}
		conn, err := s.factory.GetConnection()
		if err != nil {
			// The replacement Connection is not registered yet.
			time.Sleep(10 * time.Millisecond)
			continue
		}

		died := make(chan struct{})
		var once sync.Once
		conn.beginSubscriber(func(r *Reply) { s.dispatch(r) })
		prevOnClose := conn.onClose
		conn.onClose = func(c *Connection, cause error) {
			once.Do(func() { close(died) })
			if prevOnClose != nil {
				prevOnClose(c, cause)
			}
		}

		s.resubscribe(conn)
		<-died
	}
}

// resubscribe replays every channel/pattern this Subscriber has
// previously registered onto conn, the Factory's newest Connection.
func (s *Subscriber) resubscribe(conn *Connection) {
	s.mu.Lock()
	channels := make([]interface{}, 0, len(s.channels))
	for c := range s.channels {
		channels = append(channels, c)
	}
	patterns := make([]interface{}, 0, len(s.patterns))
	for p := range s.patterns {
		patterns = append(patterns, p)
	}
	s.mu.Unlock()

	if len(channels) > 0 {
		_ = conn.SendOnly("SUBSCRIBE", channels...)
	}
	if len(patterns) > 0 {
		_ = conn.SendOnly("PSUBSCRIBE", patterns...)
	}
}

func (s *Subscriber) dispatch(reply *Reply) {
	if reply.Type != ArrayReply || len(reply.Array) < 3 {
		return
	}
	kind := textOf(reply.Array[0])

	switch kind {
	case "message":
		s.onMsg("", textOf(reply.Array[1]), bytesOf(reply.Array[2]))
	case "pmessage":
		if len(reply.Array) < 4 {
			return
		}
		s.onMsg(textOf(reply.Array[1]), textOf(reply.Array[2]), bytesOf(reply.Array[3]))
	}
}

func textOf(r *Reply) string {
	switch v := r.Value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func bytesOf(r *Reply) []byte {
	switch v := r.Value.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}
