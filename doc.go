// Package redis implements the core of an asynchronous Redis client:
// wire-protocol framing and codec (Framer, Codec), a FIFO reply Router,
// a per-socket Connection state machine, a reconnecting Factory pool,
// a Handler facade with transaction/pipeline/subscriber support, a
// consistent-hash Sharder, and a Sentinel-driven discovery client.
//
// The generic Handler.Execute primitive is the foundation every typed
// command method is built on; this package ships a representative slice
// of those methods rather than the full Redis command set (commands.go).
package redis
