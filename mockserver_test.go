package redis

import (
	"context"
	"testing"
	"time"

	"github.com/l00pss/txredis/internal/mockredis"
)

// testContext returns a context bounded by a generous per-test deadline
// so a hung dial or reply can't stall the suite indefinitely.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// startMockServer boots a mockredis.Server on an OS-assigned port, serves
// in the background, and returns it already listening. The caller gets
// the bound address via srv.Addr().
func startMockServer(t *testing.T) *mockredis.Server {
	t.Helper()
	srv := mockredis.NewServer("127.0.0.1:0")
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() {
		_ = srv.Shutdown(testContext(t))
	})
	return srv
}
