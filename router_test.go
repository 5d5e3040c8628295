package redis

import (
	"testing"
	"time"
)

func TestRouterFIFODelivery(t *testing.T) {
	r := NewRouter(0, nil)
	p1 := r.Enqueue(false)
	p2 := r.Enqueue(false)
	p3 := r.Enqueue(false)

	r.Deliver(&Reply{Type: IntegerReply, Integer: 1})
	r.Deliver(&Reply{Type: IntegerReply, Integer: 2})
	r.Deliver(&Reply{Type: IntegerReply, Integer: 3})

	for i, p := range []*PendingRequest{p1, p2, p3} {
		res := <-p.Result()
		if res.err != nil {
			t.Fatalf("p%d: unexpected error %v", i+1, res.err)
		}
		if res.reply.Integer != int64(i+1) {
			t.Fatalf("p%d: got %d, want %d", i+1, res.reply.Integer, i+1)
		}
	}
}

func TestRouterCancelSuppressesDelivery(t *testing.T) {
	r := NewRouter(0, nil)
	p1 := r.Enqueue(false)
	p2 := r.Enqueue(false)

	r.Cancel(p1)
	r.Deliver(&Reply{Type: StatusReply, Status: "first"})
	r.Deliver(&Reply{Type: StatusReply, Status: "second"})

	select {
	case res := <-p1.Result():
		t.Fatalf("cancelled request should not receive a result, got %+v", res)
	default:
	}

	res := <-p2.Result()
	if res.reply.Status != "second" {
		t.Fatalf("p2 got %+v, want the second reply", res.reply)
	}
}

func TestRouterFailAllDrainsEveryEntry(t *testing.T) {
	r := NewRouter(0, nil)
	var pending []*PendingRequest
	for i := 0; i < 5; i++ {
		pending = append(pending, r.Enqueue(false))
	}

	sentinel := ErrConnectionLost
	r.FailAll(sentinel)

	for i, p := range pending {
		res := <-p.Result()
		if res.err != sentinel {
			t.Fatalf("p%d: got %v, want %v", i, res.err, sentinel)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("queue should be empty after FailAll, got %d", r.Len())
	}
}

func TestRouterFailHeadLeavesRestPending(t *testing.T) {
	r := NewRouter(0, nil)
	p1 := r.Enqueue(false)
	p2 := r.Enqueue(false)

	r.FailHead(ErrConnectionLost)

	res := <-p1.Result()
	if res.err != ErrConnectionLost {
		t.Fatalf("p1: got %v", res.err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected p2 still queued, Len() = %d", r.Len())
	}

	r.Deliver(&Reply{Type: StatusReply, Status: "OK"})
	res2 := <-p2.Result()
	if res2.reply.Status != "OK" {
		t.Fatalf("p2: got %+v", res2.reply)
	}
}

func TestRouterReplyTimeoutFiresOnHeadOnly(t *testing.T) {
	fired := make(chan struct{}, 1)
	r := NewRouter(20*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	p := r.Enqueue(false)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timeout callback never fired")
	}
	// the request itself is not resolved by the timer; that's the
	// Connection's job (onReplyTimeout calls FailHead).
	select {
	case res := <-p.Result():
		t.Fatalf("Router should not resolve the request on its own, got %+v", res)
	default:
	}
}

func TestRouterBlockingRequestsDisableTimer(t *testing.T) {
	fired := make(chan struct{}, 1)
	r := NewRouter(20*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	r.Enqueue(true) // blocking: opts out of the reply-timeout
	select {
	case <-fired:
		t.Fatal("timer should not fire for a blocking head request")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestRouterZeroTimeoutDisablesTimer(t *testing.T) {
	r := NewRouter(0, func() { t.Fatal("onTimeout should never be called") })
	r.Enqueue(false)
	time.Sleep(30 * time.Millisecond)
}
