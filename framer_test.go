package redis

import (
	"errors"
	"strings"
	"testing"
)

func collectFrames(t *testing.T, f *Framer, chunks ...[]byte) []frameEvent {
	t.Helper()
	var got []frameEvent
	for _, c := range chunks {
		if err := f.Feed(c, func(ev frameEvent) error {
			got = append(got, ev)
			return nil
		}); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
	return got
}

func TestFramerLineMode(t *testing.T) {
	f := NewFramer()
	events := collectFrames(t, f, []byte("+OK\r\n-ERR bad\r\n"))
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if string(events[0].Line) != "+OK" {
		t.Errorf("event 0 = %q", events[0].Line)
	}
	if string(events[1].Line) != "-ERR bad" {
		t.Errorf("event 1 = %q", events[1].Line)
	}
}

func TestFramerLineSplitAcrossChunks(t *testing.T) {
	f := NewFramer()
	events := collectFrames(t, f, []byte("+PO"), []byte("NG\r"), []byte("\n"))
	if len(events) != 1 || string(events[0].Line) != "+PONG" {
		t.Fatalf("got %+v", events)
	}
}

func TestFramerRawMode(t *testing.T) {
	f := NewFramer()
	f.SetRawMode(7) // "hello" + CRLF
	events := collectFrames(t, f, []byte("hel"), []byte("lo\r\n"))
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if string(events[0].Raw) != "hello\r\n" {
		t.Errorf("raw = %q", events[0].Raw)
	}
}

func TestFramerRawModeRevertsToLine(t *testing.T) {
	f := NewFramer()
	f.SetRawMode(7)
	collectFrames(t, f, []byte("hello\r\n"))
	events := collectFrames(t, f, []byte("+OK\r\n"))
	if len(events) != 1 || string(events[0].Line) != "+OK" {
		t.Fatalf("expected line mode to resume, got %+v", events)
	}
}

func TestFramerSetLineModeWithExtra(t *testing.T) {
	f := NewFramer()
	f.SetRawMode(100)
	f.SetLineMode([]byte("+OK\r\n"))
	events := collectFrames(t, f, nil)
	if len(events) != 1 || string(events[0].Line) != "+OK" {
		t.Fatalf("got %+v", events)
	}
}

func TestFramerClearLineBuffer(t *testing.T) {
	f := NewFramer()
	collectFrames(t, f, []byte("partial line no terminator"))
	f.ClearLineBuffer()
	events := collectFrames(t, f, []byte("+OK\r\n"))
	if len(events) != 1 || string(events[0].Line) != "+OK" {
		t.Fatalf("stale buffer leaked into next line: %+v", events)
	}
}

func TestFramerOverlongLineIsFatal(t *testing.T) {
	f := NewFramer()
	long := strings.Repeat("x", maxLineLength+1)
	err := f.Feed([]byte(long), func(frameEvent) error { return nil })
	if err == nil {
		t.Fatal("expected a framing violation error")
	}
}

func TestFramerEmitErrorPropagates(t *testing.T) {
	f := NewFramer()
	errBoom := errors.New("boom")
	err := f.Feed([]byte("+OK\r\n"), func(frameEvent) error {
		return errBoom
	})
	if err != errBoom {
		t.Fatalf("got %v, want errBoom", err)
	}
}
