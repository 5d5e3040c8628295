package redis

import (
	"sync"
	"testing"
	"time"
)

type recordedMessage struct {
	pattern, channel string
	payload          []byte
}

type messageRecorder struct {
	mu  sync.Mutex
	got []recordedMessage
}

func (r *messageRecorder) record(pattern, channel string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, recordedMessage{pattern, channel, append([]byte(nil), payload...)})
}

func (r *messageRecorder) snapshot() []recordedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedMessage(nil), r.got...)
}

// publishUntilDelivered republishes on a timer since SUBSCRIBE is sent with
// SendOnly and has no reply to wait on: the registration on the server side
// races with the test's own PUBLISH, so retry until the recorder sees it.
func publishUntilDelivered(t *testing.T, h *Handler, channel, payload string, want func() bool) {
	t.Helper()
	ctx := testContext(t)
	for {
		if want() {
			return
		}
		if _, err := h.Execute(ctx, "PUBLISH", channel, payload); err != nil {
			t.Fatalf("PUBLISH: %v", err)
		}
		select {
		case <-ctx.Done():
			t.Fatal("message was never delivered to the subscriber")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSubscriberExactChannelDelivery(t *testing.T) {
	srv := startMockServer(t)
	h, err := New(testContext(t), NewOptions(srv.Addr()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Disconnect()

	rec := &messageRecorder{}
	sub, err := h.Subscribe(testContext(t), rec.record)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if err := sub.Subscribe(testContext(t), "news"); err != nil {
		t.Fatalf("Subscribe(news): %v", err)
	}

	publishUntilDelivered(t, h, "news", "hello", func() bool {
		return len(rec.snapshot()) > 0
	})

	got := rec.snapshot()
	if got[0].channel != "news" || got[0].pattern != "" {
		t.Fatalf("got %+v, want channel=news pattern=\"\"", got[0])
	}
	if string(got[0].payload) != "hello" {
		t.Fatalf("payload = %q, want \"hello\"", got[0].payload)
	}
}

func TestSubscriberPatternDelivery(t *testing.T) {
	srv := startMockServer(t)
	h, err := New(testContext(t), NewOptions(srv.Addr()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Disconnect()

	rec := &messageRecorder{}
	sub, err := h.Subscribe(testContext(t), rec.record)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if err := sub.PSubscribe(testContext(t), "news.*"); err != nil {
		t.Fatalf("PSubscribe: %v", err)
	}

	publishUntilDelivered(t, h, "news.sports", "score", func() bool {
		return len(rec.snapshot()) > 0
	})

	got := rec.snapshot()
	if got[0].pattern != "news.*" || got[0].channel != "news.sports" {
		t.Fatalf("got %+v, want pattern=news.* channel=news.sports", got[0])
	}
	if string(got[0].payload) != "score" {
		t.Fatalf("payload = %q, want \"score\"", got[0].payload)
	}
}

func TestSubscriberUnsubscribeStopsDelivery(t *testing.T) {
	srv := startMockServer(t)
	h, err := New(testContext(t), NewOptions(srv.Addr()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Disconnect()

	rec := &messageRecorder{}
	sub, err := h.Subscribe(testContext(t), rec.record)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if err := sub.Subscribe(testContext(t), "chatter"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	publishUntilDelivered(t, h, "chatter", "first", func() bool {
		return len(rec.snapshot()) > 0
	})

	if err := sub.Unsubscribe(testContext(t), "chatter"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	// Give the server a moment to process UNSUBSCRIBE before publishing
	// again; there is nothing further to poll for other than absence.
	time.Sleep(30 * time.Millisecond)
	if _, err := h.Execute(testContext(t), "PUBLISH", "chatter", "second"); err != nil {
		t.Fatalf("PUBLISH: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 1 {
		t.Fatalf("got %d messages after unsubscribe, want 1 (no further delivery)", len(got))
	}
}
