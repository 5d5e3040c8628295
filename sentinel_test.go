package redis

import (
	"net"
	"testing"
	"time"
)

func splitAddr(t *testing.T, addr string) (string, string) {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort(%q): %v", addr, err)
	}
	return host, port
}

func TestSentinelDiscoverMaster(t *testing.T) {
	master := startMockServer(t)
	master.Role = "master"

	sentinel := startMockServer(t)
	ip, port := splitAddr(t, master.Addr())
	sentinel.SetMasters("mymaster", ip, port)

	sc := NewSentinelClient(&SentinelOptions{
		Addrs:   []string{sentinel.Addr()},
		Service: "mymaster",
	})
	addr, err := sc.DiscoverMaster(testContext(t))
	if err != nil {
		t.Fatalf("DiscoverMaster: %v", err)
	}
	if addr != master.Addr() {
		t.Fatalf("got %q, want %q", addr, master.Addr())
	}
}

func TestSentinelDiscoverMasterQuorumRejectsLowNumOtherSentinels(t *testing.T) {
	master := startMockServer(t)
	master.Role = "master"

	sentinel := startMockServer(t)
	ip, port := splitAddr(t, master.Addr())
	sentinel.SetMasters("mymaster", ip, port)

	// The mock always reports num-other-sentinels=2; asking for 3 must
	// make every candidate fail quorum.
	sc := NewSentinelClient(&SentinelOptions{
		Addrs:             []string{sentinel.Addr()},
		Service:           "mymaster",
		MinOtherSentinels: 3,
	})
	_, err := sc.DiscoverMaster(testContext(t))
	if err != ErrMasterNotFound {
		t.Fatalf("got %v, want ErrMasterNotFound", err)
	}
}

func TestSentinelDiscoverSlaves(t *testing.T) {
	master := startMockServer(t)
	master.Role = "master"
	slave := startMockServer(t)
	slave.Role = "slave"

	sentinel := startMockServer(t)
	mIP, mPort := splitAddr(t, master.Addr())
	sentinel.SetMasters("mymaster", mIP, mPort)
	sIP, sPort := splitAddr(t, slave.Addr())
	sentinel.SetSlaves("mymaster", [][2]string{{sIP, sPort}})

	sc := NewSentinelClient(&SentinelOptions{
		Addrs:   []string{sentinel.Addr()},
		Service: "mymaster",
	})
	slaves, err := sc.DiscoverSlaves(testContext(t))
	if err != nil {
		t.Fatalf("DiscoverSlaves: %v", err)
	}
	if len(slaves) != 1 || slaves[0] != slave.Addr() {
		t.Fatalf("got %v, want [%s]", slaves, slave.Addr())
	}
}

func TestSentinelDiscoverSlavesFallsBackToMaster(t *testing.T) {
	master := startMockServer(t)
	master.Role = "master"

	sentinel := startMockServer(t)
	ip, port := splitAddr(t, master.Addr())
	sentinel.SetMasters("mymaster", ip, port)
	// No slaves configured.

	sc := NewSentinelClient(&SentinelOptions{
		Addrs:   []string{sentinel.Addr()},
		Service: "mymaster",
	})
	slaves, err := sc.DiscoverSlaves(testContext(t))
	if err != nil {
		t.Fatalf("DiscoverSlaves: %v", err)
	}
	if len(slaves) != 1 || slaves[0] != master.Addr() {
		t.Fatalf("got %v, want fallback [%s]", slaves, master.Addr())
	}
}

func TestSentinelVerifyRole(t *testing.T) {
	master := startMockServer(t)
	master.Role = "master"

	sc := NewSentinelClient(&SentinelOptions{Addrs: []string{"127.0.0.1:0"}, Service: "mymaster"})
	if err := sc.VerifyRole(testContext(t), master.Addr(), "master"); err != nil {
		t.Fatalf("VerifyRole: %v", err)
	}
	if err := sc.VerifyRole(testContext(t), master.Addr(), "slave"); err == nil {
		t.Fatal("expected a mismatch error verifying against the wrong role")
	}
}

func TestSentinelMasterForReconfiguresOnFailover(t *testing.T) {
	masterA := startMockServer(t)
	masterA.Role = "master"
	masterB := startMockServer(t)
	masterB.Role = "master"

	sentinel := startMockServer(t)
	aIP, aPort := splitAddr(t, masterA.Addr())
	sentinel.SetMasters("mymaster", aIP, aPort)

	sc := NewSentinelClient(&SentinelOptions{
		Addrs:               []string{sentinel.Addr()},
		Service:             "mymaster",
		ReconfigureInterval: 20 * time.Millisecond,
	})
	defer sc.Stop()

	h, err := sc.MasterFor(testContext(t), NewOptions(""))
	if err != nil {
		t.Fatalf("MasterFor: %v", err)
	}
	defer h.Disconnect()
	if h.factory.Addr() != masterA.Addr() {
		t.Fatalf("initial address = %q, want %q", h.factory.Addr(), masterA.Addr())
	}

	bIP, bPort := splitAddr(t, masterB.Addr())
	sentinel.SetMasters("mymaster", bIP, bPort)

	deadline := testContext(t)
	for h.factory.Addr() != masterB.Addr() {
		select {
		case <-deadline.Done():
			t.Fatalf("pool never followed failover to %q, stuck on %q", masterB.Addr(), h.factory.Addr())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
