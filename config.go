package redis

import (
	"crypto/tls"
	"time"
)

// Options configures a Factory/Handler pair. The field set follows the
// configuration table in SPEC_FULL.md §6 verbatim; names are Go-cased but
// semantics are unchanged.
type Options struct {
	// Addr is "host:port" for TCP, or an absolute path for a Unix domain
	// socket (detected the way the teacher's xenking/twokaybee cousins
	// do: a leading '/').
	Addr string

	// DBID selects the logical database with SELECT on handshake if
	// non-zero.
	DBID int

	// Password, if set, is sent via AUTH on handshake.
	Password string

	// PoolSize is the target number of Connections per Factory. Default 1.
	PoolSize int

	// NoReconnect disables automatic reconnection on transport loss.
	// Reconnection is enabled by default (§4.5's `reconnect` option,
	// inverted so the zero value keeps the spec's default behavior).
	NoReconnect bool

	// Charset names the text codec used for string command arguments and
	// bulk-reply text. Empty means binary passthrough; NewOptions sets it
	// to "utf-8", and Connection.SetCharset overrides it per Connection
	// (see SPEC_FULL.md supplemented feature 3).
	Charset string

	// NoNumberConversion disables the bulk-reply numeric-conversion
	// policy of §4.2. Conversion is enabled by default, inverted for the
	// same zero-value reason as NoReconnect.
	NoNumberConversion bool

	// ConnectTimeout bounds TCP handshake duration. Default 1s.
	ConnectTimeout time.Duration

	// ReplyTimeout bounds any single non-blocking command's reply.
	// Zero disables it.
	ReplyTimeout time.Duration

	// MaxReconnectDelay caps the exponential backoff between reconnect
	// attempts. Default 10s for normal factories; Subscriber factories
	// should pass 120s per §4.5.
	MaxReconnectDelay time.Duration

	// TLSConfig is passed through verbatim to tls.Dial; txredis manages
	// no certificate state of its own (§1 Non-goals).
	TLSConfig *tls.Config

	// Replicas sets the virtual-node count per shard for the consistent
	// hash ring. Default 160.
	Replicas int

	// MinOtherSentinels is the Sentinel quorum requirement
	// (num-other-sentinels) a MASTERS entry must meet to be accepted.
	MinOtherSentinels int

	// DiscoveryTimeout bounds a single Sentinel MASTERS/SLAVES/ROLE
	// round trip.
	DiscoveryTimeout time.Duration

	// Logger receives diagnostic output; nil means NopLogger.
	Logger *Logger
}

// NewOptions returns an Options populated with the defaults from
// SPEC_FULL.md §6, the same way redkit.NewServer pre-fills its Server
// rather than leaving zero-value timeouts in place.
func NewOptions(addr string) *Options {
	o := &Options{Addr: addr, Charset: "utf-8"}
	o.withDefaults()
	return o
}

// withDefaults fills zero-valued fields with their spec defaults. It
// deliberately leaves Charset alone: "" is the factory-wide binary
// passthrough per SPEC_FULL.md supplemented feature 3, not an unset
// field to paper over, so only NewOptions pins it to "utf-8".
func (o *Options) withDefaults() *Options {
	if o.PoolSize == 0 {
		o.PoolSize = 1
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = time.Second
	}
	if o.MaxReconnectDelay == 0 {
		o.MaxReconnectDelay = 10 * time.Second
	}
	if o.Replicas == 0 {
		o.Replicas = 160
	}
	if o.DiscoveryTimeout == 0 {
		o.DiscoveryTimeout = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = NopLogger
	}
	return o
}

func isUnixAddr(addr string) bool {
	return len(addr) != 0 && addr[0] == '/'
}
