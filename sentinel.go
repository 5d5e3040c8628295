package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// SentinelOptions configures a SentinelClient (§4.8, §6).
type SentinelOptions struct {
	// Addrs is the list of Sentinel endpoints ("host:port") to query.
	Addrs []string
	// Service is the monitored master's configured name.
	Service string
	// MinOtherSentinels is the num-other-sentinels quorum a MASTERS entry
	// must meet to be accepted.
	MinOtherSentinels int
	// DiscoveryTimeout bounds a single round trip to one Sentinel.
	DiscoveryTimeout time.Duration
	// Password, when set, authenticates against the discovered master/
	// slave itself (not the Sentinels), per §4.8 point 5.
	Password string
	// ReconfigureInterval is how often the background loop re-runs
	// discovery looking for a master change. Zero disables the
	// background loop, and a Handler from MasterFor then stays on the
	// address discovered when it was created.
	ReconfigureInterval time.Duration
	// Logger receives diagnostic output; nil means NopLogger.
	Logger *Logger
}

func (o *SentinelOptions) withDefaults() *SentinelOptions {
	if o.DiscoveryTimeout == 0 {
		o.DiscoveryTimeout = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = NopLogger
	}
	return o
}

// SentinelClient watches a named master/slave set through a pool of
// Sentinel endpoints, selecting a quorum-acceptable master and keeping a
// target Factory pointed at it as failovers happen (§4.8).
type SentinelClient struct {
	opts *SentinelOptions

	mu         sync.Mutex
	masterAddr string
	slaveAddrs []string

	stopCh chan struct{}
}

// sentinelEntry is one flattened key/value record as SENTINEL MASTERS/
// SLAVES returns it: a RESP array alternating field name, field value.
type sentinelEntry map[string]string

func flattenEntry(r *Reply) sentinelEntry {
	e := make(sentinelEntry)
	if r == nil || r.Type != ArrayReply {
		return e
	}
	for i := 0; i+1 < len(r.Array); i += 2 {
		e[textOf(r.Array[i])] = textOf(r.Array[i+1])
	}
	return e
}

func (e sentinelEntry) downFlags() bool {
	flags := e["flags"]
	return strings.Contains(flags, "s_down") ||
		strings.Contains(flags, "o_down") ||
		strings.Contains(flags, "disconnected")
}

func (e sentinelEntry) addr() string {
	if e["ip"] == "" || e["port"] == "" {
		return ""
	}
	return e["ip"] + ":" + e["port"]
}

func (e sentinelEntry) otherSentinels() int {
	n, _ := parseInt(e["num-other-sentinels"])
	return n
}

func parseInt(s string) (int, error) {
	n := 0
	neg := false
	if s == "" {
		return 0, newErr(KindInvalidData, "empty integer field")
	}
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return 0, newErr(KindInvalidData, "not an integer: "+s)
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

// NewSentinelClient builds a SentinelClient; it does not perform
// discovery until DiscoverMaster/DiscoverSlaves/MasterFor is called.
func NewSentinelClient(opts *SentinelOptions) *SentinelClient {
	opts = opts.withDefaults()
	return &SentinelClient{opts: opts}
}

// probeSentinel dials one Sentinel endpoint long enough to run a single
// command and returns its reply.
func (sc *SentinelClient) probeSentinel(ctx context.Context, addr string, name string, args ...interface{}) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, sc.opts.DiscoveryTimeout)
	defer cancel()

	opts := NewOptions(addr)
	opts.ConnectTimeout = sc.opts.DiscoveryTimeout
	opts.Logger = sc.opts.Logger
	// SENTINEL MASTERS/SLAVES replies are field/value pairs where values
	// like "port" and "num-other-sentinels" must stay text so addr() and
	// otherSentinels() can parse them back; number conversion would hand
	// flattenEntry an int64 it can't stringify.
	opts.NoNumberConversion = true
	conn, err := DialConnection(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return conn.Execute(ctx, false, name, args...)
}

// DiscoverMaster probes every configured Sentinel in parallel with
// SENTINEL MASTERS, filters to quorum-acceptable entries for the
// configured service, and returns the address reported by the majority
// of accepting Sentinels (ties broken by first observed), per §4.8.1.
func (sc *SentinelClient) DiscoverMaster(ctx context.Context) (string, error) {
	votes := make(chan string, len(sc.opts.Addrs))

	var wg sync.WaitGroup
	for _, addr := range sc.opts.Addrs {
		addr := addr
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := sc.probeSentinel(ctx, addr, "SENTINEL", "MASTERS")
			if err != nil || reply.Type != ArrayReply {
				return
			}
			for _, item := range reply.Array {
				e := flattenEntry(item)
				if e["name"] != sc.opts.Service {
					continue
				}
				if !strings.Contains(e["flags"], "master") {
					continue
				}
				if e.downFlags() {
					continue
				}
				if e.otherSentinels() < sc.opts.MinOtherSentinels {
					continue
				}
				a := e.addr()
				if a == "" {
					continue
				}
				votes <- a
				return
			}
		}()
	}
	wg.Wait()
	close(votes)

	tally := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0
	for addr := range votes {
		tally[addr]++
		if _, ok := firstSeen[addr]; !ok {
			firstSeen[addr] = order
			order++
		}
	}

	best := ""
	bestVotes := -1
	bestOrder := 1 << 30
	for addr, count := range tally {
		if count > bestVotes || (count == bestVotes && firstSeen[addr] < bestOrder) {
			best = addr
			bestVotes = count
			bestOrder = firstSeen[addr]
		}
	}
	if best == "" {
		return "", ErrMasterNotFound
	}

	sc.mu.Lock()
	sc.masterAddr = best
	sc.mu.Unlock()
	return best, nil
}

// DiscoverSlaves unions the slave addresses reported by every Sentinel
// for the configured service, excluding down/disconnected entries, per
// §4.8.2. It falls back to the master address when no slave is found.
func (sc *SentinelClient) DiscoverSlaves(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, addr := range sc.opts.Addrs {
		addr := addr
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := sc.probeSentinel(ctx, addr, "SENTINEL", "SLAVES", sc.opts.Service)
			if err != nil || reply.Type != ArrayReply {
				return
			}
			for _, item := range reply.Array {
				e := flattenEntry(item)
				if e.downFlags() {
					continue
				}
				a := e.addr()
				if a == "" {
					continue
				}
				mu.Lock()
				seen[a] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	slaves := make([]string, 0, len(seen))
	for a := range seen {
		slaves = append(slaves, a)
	}
	if len(slaves) == 0 {
		master, err := sc.DiscoverMaster(ctx)
		if err != nil {
			return nil, err
		}
		slaves = []string{master}
	}

	sc.mu.Lock()
	sc.slaveAddrs = slaves
	sc.mu.Unlock()
	return slaves, nil
}

// VerifyRole connects to addr and confirms ROLE reports expectedRole
// ("master" or "slave"), guarding against a stale Sentinel reply
// (§4.8.3).
func (sc *SentinelClient) VerifyRole(ctx context.Context, addr, expectedRole string) error {
	opts := NewOptions(addr)
	opts.ConnectTimeout = sc.opts.DiscoveryTimeout
	opts.Password = sc.opts.Password
	opts.Logger = sc.opts.Logger
	conn, err := DialConnection(ctx, opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	reply, err := conn.Execute(ctx, false, "ROLE")
	if err != nil {
		return err
	}
	if reply.Type != ArrayReply || len(reply.Array) == 0 {
		return newErr(KindInvalidResponse, "malformed ROLE reply")
	}
	role := textOf(reply.Array[0])
	if role != expectedRole {
		return newErr(KindMasterNotFound, "ROLE reported "+role+", expected "+expectedRole)
	}
	return nil
}

// MasterFor runs master discovery and verifies the result's role, making
// up to 3 attempts when discovery finds no acceptable master or the role
// check fails (paced with a cenkalti/backoff exponential backoff, per
// SPEC_FULL.md supplemented feature 6), and returns a Handler bound to it
// via a Factory that watch keeps pointed at the current master as
// failovers occur.
func (sc *SentinelClient) MasterFor(ctx context.Context, opts *Options) (*Handler, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = sc.opts.DiscoveryTimeout
	b.MaxElapsedTime = 0

	var addr string
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		addr, err = sc.DiscoverMaster(ctx)
		if err == nil {
			if err = sc.VerifyRole(ctx, addr, "master"); err == nil {
				break
			}
		}
		if attempt < 2 {
			select {
			case <-time.After(b.NextBackOff()):
			case <-ctx.Done():
				return nil, wrapErr(KindTimeout, "master verification retry cancelled", ctx.Err())
			}
		}
	}
	if err != nil {
		return nil, err
	}

	handlerOpts := *opts
	handlerOpts.Addr = addr
	h, err := New(ctx, &handlerOpts)
	if err != nil {
		return nil, err
	}

	sc.watch(h.factory, "master")
	return h, nil
}

// watch starts the §4.8.4 reconfiguration loop: on ReconfigureInterval,
// re-run master discovery and, if the address changed, call
// Factory.SetAddr to drop and re-establish every pool Connection.
func (sc *SentinelClient) watch(f *Factory, role string) {
	if sc.opts.ReconfigureInterval <= 0 {
		return
	}
	sc.mu.Lock()
	if sc.stopCh == nil {
		sc.stopCh = make(chan struct{})
	}
	stop := sc.stopCh
	sc.mu.Unlock()

	go func() {
		ticker := time.NewTicker(sc.opts.ReconfigureInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), sc.opts.DiscoveryTimeout)
				var addr string
				var err error
				if role == "master" {
					addr, err = sc.DiscoverMaster(ctx)
				}
				cancel()
				if err != nil {
					sc.opts.Logger.Warnf("sentinel rediscovery failed: %v", err)
					continue
				}
				if addr != f.Addr() {
					sc.opts.Logger.Infof("master changed to %s, reconfiguring pool", addr)
					f.SetAddr(addr)
				}
			}
		}
	}()
}

// Stop ends the background reconfiguration loop.
func (sc *SentinelClient) Stop() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.stopCh != nil {
		close(sc.stopCh)
		sc.stopCh = nil
	}
}
