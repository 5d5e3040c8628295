package redis

import (
	"sync"
	"time"
)

// routerResult is what a PendingRequest eventually receives: either a
// decoded Reply or a terminal error, never both.
type routerResult struct {
	reply *Reply
	err   error
}

// PendingRequest is the caller-visible handle for one outstanding
// command. Exactly one result ever arrives on Result().
type PendingRequest struct {
	ch        chan routerResult
	blocking  bool
	cancelled bool
}

// Result returns the channel the eventual reply or error arrives on.
func (p *PendingRequest) Result() <-chan routerResult { return p.ch }

// Router is a single Connection's FIFO of outstanding requests. Every
// completed parse from the Codec is handed to Deliver, which always
// resolves the oldest entry — RESP guarantees replies arrive in request
// order on one socket (§3 invariants), so no correlation id is needed.
//
// Router also owns the single reply-timeout timer described in §4.3: only
// ever the head of the queue is the timer is watching, because the head
// is always the next reply due. A later entry only becomes "the timer's
// business" once it becomes the head itself, at which point Deliver/
// FailHead rearm the timer for a full replyTimeout from that moment;
// entries carry no deadline of their own.
type Router struct {
	mu    sync.Mutex
	queue []*PendingRequest

	replyTimeout time.Duration
	timer        *time.Timer
	onTimeout    func()
}

// NewRouter returns a Router. replyTimeout of zero disables the timer
// entirely, matching §8's "Reply-timeout 0 → treated as disabled".
// onTimeout is invoked (off the Router's lock) when the head entry's
// deadline elapses; the Connection supplies a callback that fails the
// head with a timeout error and tears down the transport.
func NewRouter(replyTimeout time.Duration, onTimeout func()) *Router {
	return &Router{replyTimeout: replyTimeout, onTimeout: onTimeout}
}

// Enqueue registers a new outstanding request and returns its handle.
// blocking commands (BLPOP and friends) opt out of the reply-timeout per
// §4.3 and rely on their own command-level deadline instead.
func (r *Router) Enqueue(blocking bool) *PendingRequest {
	pr := &PendingRequest{ch: make(chan routerResult, 1), blocking: blocking}
	r.mu.Lock()
	r.queue = append(r.queue, pr)
	if len(r.queue) == 1 {
		r.armLocked()
	}
	r.mu.Unlock()
	return pr
}

// Len reports the number of outstanding requests; it never goes
// negative per §3's pending-queue invariant.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Cancel marks a still-pending request so that its eventual reply, when
// it arrives, is discarded rather than delivered — the reply is still
// consumed off the wire so later FIFO matching isn't corrupted, per §5's
// cancellation semantics. Cancelling a request already at the head does
// not stop the Codec from parsing its reply; it only suppresses the
// channel send.
func (r *Router) Cancel(p *PendingRequest) {
	r.mu.Lock()
	p.cancelled = true
	r.mu.Unlock()
}

// Deliver completes the oldest outstanding request with reply.
func (r *Router) Deliver(reply *Reply) {
	r.mu.Lock()
	if len(r.queue) == 0 {
		r.mu.Unlock()
		return
	}
	pr := r.queue[0]
	r.queue = r.queue[1:]
	r.stopLocked()
	if len(r.queue) > 0 {
		r.armLocked()
	}
	r.mu.Unlock()

	if !pr.cancelled {
		pr.ch <- routerResult{reply: reply}
	}
}

// FailHead completes only the oldest outstanding request with err,
// leaving the rest of the queue intact. Used when the head's own
// reply-timeout elapses: later entries are still waiting on a
// connection that (for the moment) is still alive.
func (r *Router) FailHead(err error) {
	r.mu.Lock()
	if len(r.queue) == 0 {
		r.mu.Unlock()
		return
	}
	pr := r.queue[0]
	r.queue = r.queue[1:]
	r.stopLocked()
	if len(r.queue) > 0 {
		r.armLocked()
	}
	r.mu.Unlock()

	if !pr.cancelled {
		pr.ch <- routerResult{err: err}
	}
}

// FailAll drains the entire queue, completing every outstanding request
// with err. Called on transport loss so every pending command completes
// with a connection-error within one event-loop cycle (§8 invariant 3).
func (r *Router) FailAll(err error) {
	r.mu.Lock()
	q := r.queue
	r.queue = nil
	r.stopLocked()
	r.mu.Unlock()

	for _, pr := range q {
		if !pr.cancelled {
			pr.ch <- routerResult{err: err}
		}
	}
}

// armLocked starts (or restarts) the reply-timeout timer for the new
// head of the queue. Caller must hold r.mu. Blocking requests and a
// zero replyTimeout both disable the timer.
func (r *Router) armLocked() {
	if r.replyTimeout <= 0 || r.onTimeout == nil {
		return
	}
	if r.queue[0].blocking {
		return
	}
	r.timer = time.AfterFunc(r.replyTimeout, r.onTimeout)
}

// stopLocked cancels any active timer. Caller must hold r.mu.
func (r *Router) stopLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
