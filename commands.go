package redis

import "context"

/*
The one-to-one mapping from every Redis command to a method name is
explicitly out of scope for this package (§1): it is a mechanical,
line-per-command shim that adds nothing over Handler.Execute. What
follows is a representative slice of that shim — enough to exercise the
codec's argument encoding and bulk-decoding paths end to end — not the
full command set.
*/

// Get issues GET.
func (h *Handler) Get(ctx context.Context, key string) (*Reply, error) {
	return h.Execute(ctx, "GET", key)
}

// Set issues SET.
func (h *Handler) Set(ctx context.Context, key string, value interface{}) (*Reply, error) {
	return h.Execute(ctx, "SET", key, value)
}

// Del issues DEL.
func (h *Handler) Del(ctx context.Context, keys ...string) (*Reply, error) {
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return h.Execute(ctx, "DEL", args...)
}

// Incr issues INCR.
func (h *Handler) Incr(ctx context.Context, key string) (*Reply, error) {
	return h.Execute(ctx, "INCR", key)
}

// HSet issues HSET.
func (h *Handler) HSet(ctx context.Context, key, field string, value interface{}) (*Reply, error) {
	return h.Execute(ctx, "HSET", key, field, value)
}

// HGetAll issues HGETALL.
func (h *Handler) HGetAll(ctx context.Context, key string) (*Reply, error) {
	return h.Execute(ctx, "HGETALL", key)
}

// ZAdd issues ZADD.
func (h *Handler) ZAdd(ctx context.Context, key string, score float64, member string) (*Reply, error) {
	return h.Execute(ctx, "ZADD", key, score, member)
}

// ZScore issues ZSCORE.
func (h *Handler) ZScore(ctx context.Context, key, member string) (*Reply, error) {
	return h.Execute(ctx, "ZSCORE", key, member)
}

// MGet issues MGET as an ordinary command on one pool Connection; the
// scatter-gather path (§4.7) is Sharder.Execute with "MGET".
func (h *Handler) MGet(ctx context.Context, keys ...string) (*Reply, error) {
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return h.Execute(ctx, "MGET", args...)
}

// Ping issues PING.
func (h *Handler) Ping(ctx context.Context) (*Reply, error) {
	return h.Execute(ctx, "PING")
}

// Eval runs a Lua script through Connection.Eval's script-hash cache
// (§4.4) on the next Connection the pool's round-robin hands out. The
// SHA1 cache lives on each Connection, so with a pool larger than one a
// repeated script is sent as EVAL again on any Connection that has not
// run it yet.
func (h *Handler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (*Reply, error) {
	conn, err := h.factory.GetConnection()
	if err != nil {
		return nil, err
	}
	return conn.Eval(ctx, script, keys, args)
}

// ScriptKill issues SCRIPT KILL, translating "no script running" into
// ErrNoScriptRunning per the Supplemented Features' KILL/Busy
// distinction.
func (h *Handler) ScriptKill(ctx context.Context) (*Reply, error) {
	reply, err := h.Execute(ctx, "SCRIPT", "KILL")
	if err != nil && IsKind(err, KindNoScriptRunning) {
		return nil, ErrNoScriptRunning
	}
	return reply, err
}

// Role issues ROLE, used by Sentinel-driven discovery to verify a
// newly-connected endpoint's reported role (§4.8).
func (h *Handler) Role(ctx context.Context) (*Reply, error) {
	return h.Execute(ctx, "ROLE")
}
