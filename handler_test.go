package redis

import (
	"testing"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	return newTestHandlerWithPool(t, 1)
}

func newTestHandlerWithPool(t *testing.T, poolSize int) *Handler {
	t.Helper()
	srv := startMockServer(t)
	opts := NewOptions(srv.Addr())
	opts.PoolSize = poolSize
	h, err := New(testContext(t), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(h.Disconnect)
	return h
}

func TestHandlerGetSet(t *testing.T) {
	h := newTestHandler(t)
	ctx := testContext(t)

	if _, err := h.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	reply, err := h.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s, _ := reply.Value.(string); s != "v" {
		t.Fatalf("got %#v", reply.Value)
	}
}

func TestHandlerStringRepr(t *testing.T) {
	h := newTestHandler(t)
	if got := h.String(); got == "<Redis Connection: Not connected>" {
		t.Fatalf("expected a connected repr, got %q", got)
	}

	lazy := NewLazy(&Options{Addr: "127.0.0.1:1"})
	defer lazy.Disconnect()
	if got := lazy.String(); got != "<Redis Connection: Not connected>" {
		t.Fatalf("got %q before the pool ever connects", got)
	}
}

func TestHandlerMultiCommit(t *testing.T) {
	h := newTestHandler(t)
	ctx := testContext(t)

	tx, err := h.Multi(ctx)
	if err != nil {
		t.Fatalf("Multi: %v", err)
	}
	if _, err := tx.Execute(ctx, "SET", "tx-key", "1"); err != nil {
		t.Fatalf("queue SET: %v", err)
	}
	if _, err := tx.Execute(ctx, "INCR", "tx-key"); err != nil {
		t.Fatalf("queue INCR: %v", err)
	}

	replies, err := tx.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(replies) != 2 {
		t.Fatalf("got %d replies, want 2", len(replies))
	}
	if replies[1].Integer != 2 {
		t.Fatalf("INCR result = %+v, want 2", replies[1])
	}

	got, err := h.Get(ctx, "tx-key")
	if err != nil {
		t.Fatalf("Get after commit: %v", err)
	}
	if n, _ := got.Value.(int64); n != 2 {
		t.Fatalf("post-commit value = %#v, want int64(2)", got.Value)
	}
}

func TestHandlerWatchFailureSurfacesErrWatchFailed(t *testing.T) {
	// Needs a second pool connection free for the interloping Set while
	// the Multi/Commit sequence holds the first one exclusively.
	h := newTestHandlerWithPool(t, 2)
	ctx := testContext(t)

	if _, err := h.Set(ctx, "watched", "0"); err != nil {
		t.Fatalf("seed Set: %v", err)
	}

	tx, err := h.Multi(ctx, "watched")
	if err != nil {
		t.Fatalf("Multi: %v", err)
	}
	if _, err := tx.Execute(ctx, "SET", "watched", "1"); err != nil {
		t.Fatalf("queue SET: %v", err)
	}

	// The handler's other pool connection modifies the watched key before
	// EXEC, which must abort the transaction per the §8 watch-failure
	// scenario.
	if _, err := h.Set(ctx, "watched", "interloper"); err != nil {
		t.Fatalf("interloping Set: %v", err)
	}

	_, err = tx.Commit(ctx)
	if err != ErrWatchFailed {
		t.Fatalf("got %v, want ErrWatchFailed", err)
	}
}

func TestHandlerDiscardAbortsQueuedCommands(t *testing.T) {
	h := newTestHandler(t)
	ctx := testContext(t)

	if _, err := h.Set(ctx, "discard-key", "before"); err != nil {
		t.Fatalf("seed Set: %v", err)
	}

	tx, err := h.Multi(ctx)
	if err != nil {
		t.Fatalf("Multi: %v", err)
	}
	if _, err := tx.Execute(ctx, "SET", "discard-key", "after"); err != nil {
		t.Fatalf("queue SET: %v", err)
	}
	if err := tx.Discard(ctx); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	reply, err := h.Get(ctx, "discard-key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s, _ := reply.Value.(string); s != "before" {
		t.Fatalf("discarded transaction's command still applied: got %#v", reply.Value)
	}
}

func TestHandlerPipelineReturnsRepliesInOrder(t *testing.T) {
	h := newTestHandler(t)
	ctx := testContext(t)

	p, err := h.Pipeline()
	if err != nil {
		t.Fatalf("Pipeline: %v", err)
	}
	p.Add("SET", "p1", "a")
	p.Add("SET", "p2", "b")
	p.Add("GET", "p1")

	replies, err := p.Execute(ctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(replies) != 3 {
		t.Fatalf("got %d replies, want 3", len(replies))
	}
	if replies[0].Status != "OK" || replies[1].Status != "OK" {
		t.Fatalf("SET replies = %+v, %+v", replies[0], replies[1])
	}
	if s, _ := replies[2].Value.(string); s != "a" {
		t.Fatalf("GET reply = %#v, want \"a\"", replies[2].Value)
	}
}

func TestHandlerWatchHandlePromotesToTransaction(t *testing.T) {
	h := newTestHandler(t)
	ctx := testContext(t)

	wh, err := h.Watch(ctx, "promote-key")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	tx, err := wh.Multi(ctx)
	if err != nil {
		t.Fatalf("Multi: %v", err)
	}
	if _, err := tx.Execute(ctx, "SET", "promote-key", "done"); err != nil {
		t.Fatalf("queue SET: %v", err)
	}
	if _, err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reply, err := h.Get(ctx, "promote-key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s, _ := reply.Value.(string); s != "done" {
		t.Fatalf("got %#v", reply.Value)
	}
}
