package redis

import (
	"testing"
	"time"
)

func TestFactoryReadyReachesPoolSize(t *testing.T) {
	srv := startMockServer(t)
	opts := NewOptions(srv.Addr())
	opts.PoolSize = 3
	f := NewFactory(opts)
	t.Cleanup(f.Close)

	if err := f.Ready(testContext(t)); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if f.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", f.Size())
	}
}

func TestFactoryGetConnectionRoundRobins(t *testing.T) {
	srv := startMockServer(t)
	opts := NewOptions(srv.Addr())
	opts.PoolSize = 3
	f := NewFactory(opts)
	t.Cleanup(f.Close)
	if err := f.Ready(testContext(t)); err != nil {
		t.Fatalf("Ready: %v", err)
	}

	seen := make(map[*Connection]bool)
	for i := 0; i < 3; i++ {
		c, err := f.GetConnection()
		if err != nil {
			t.Fatalf("GetConnection: %v", err)
		}
		seen[c] = true
	}
	if len(seen) != 3 {
		t.Fatalf("round robin visited %d distinct connections, want 3", len(seen))
	}
}

func TestFactoryExclusiveConnectionIsSkippedByRoundRobin(t *testing.T) {
	srv := startMockServer(t)
	opts := NewOptions(srv.Addr())
	opts.PoolSize = 2
	f := NewFactory(opts)
	t.Cleanup(f.Close)
	if err := f.Ready(testContext(t)); err != nil {
		t.Fatalf("Ready: %v", err)
	}

	reserved, err := f.GetExclusiveConnection()
	if err != nil {
		t.Fatalf("GetExclusiveConnection: %v", err)
	}

	for i := 0; i < 4; i++ {
		c, err := f.GetConnection()
		if err != nil {
			t.Fatalf("GetConnection: %v", err)
		}
		if c == reserved {
			t.Fatalf("round robin returned the reserved connection")
		}
	}

	f.ReleaseConnection(reserved)
}

func TestFactoryAllReservedReturnsNoConnectionAvailable(t *testing.T) {
	srv := startMockServer(t)
	opts := NewOptions(srv.Addr())
	opts.PoolSize = 1
	f := NewFactory(opts)
	t.Cleanup(f.Close)
	if err := f.Ready(testContext(t)); err != nil {
		t.Fatalf("Ready: %v", err)
	}

	if _, err := f.GetExclusiveConnection(); err != nil {
		t.Fatalf("GetExclusiveConnection: %v", err)
	}
	if _, err := f.GetConnection(); err != ErrNoConnectionAvailable {
		t.Fatalf("got %v, want ErrNoConnectionAvailable", err)
	}
}

func TestFactorySetAddrMovesPoolToNewEndpoint(t *testing.T) {
	srvA := startMockServer(t)
	srvB := startMockServer(t)

	opts := NewOptions(srvA.Addr())
	opts.PoolSize = 1
	f := NewFactory(opts)
	t.Cleanup(f.Close)
	if err := f.Ready(testContext(t)); err != nil {
		t.Fatalf("Ready: %v", err)
	}

	f.SetAddr(srvB.Addr())

	// The torn-down connection to A is replaced by a fresh dial to B;
	// poll briefly since the reconnect runs on its own goroutine.
	deadlineCtx := testContext(t)
	for {
		if f.Addr() == srvB.Addr() {
			if c, err := f.GetConnection(); err == nil && c.State() != stateClosed {
				break
			}
		}
		select {
		case <-deadlineCtx.Done():
			t.Fatal("pool never reconnected to the new address")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
