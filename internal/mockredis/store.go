package mockredis

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// storeState is the shared, in-memory keyspace backing a mockredis.Server.
// It exists only so txredis's own tests have a real (if tiny) RESP peer to
// dial, pipeline against, and fail over — it does not aim to be a faithful
// Redis data-structure engine.
type storeState struct {
	mu sync.Mutex

	strings map[string]string
	hashes  map[string]map[string]string
	sorted  map[string]map[string]float64
	expires map[string]time.Time
	version map[string]int64 // bumped on every mutation, read by WATCH

	scripts map[string]string // sha1 hex -> body

	channels map[string]map[*Connection]bool
	patterns map[string]map[*Connection]bool

	masters []sentinelEndpoint
	slaves  []sentinelEndpoint
}

type sentinelEndpoint struct {
	name string
	ip   string
	port string
}

func newStoreState() storeState {
	return storeState{
		strings:  make(map[string]string),
		hashes:   make(map[string]map[string]string),
		sorted:   make(map[string]map[string]float64),
		expires:  make(map[string]time.Time),
		version:  make(map[string]int64),
		scripts:  make(map[string]string),
		channels: make(map[string]map[*Connection]bool),
		patterns: make(map[string]map[*Connection]bool),
	}
}

func (s *storeState) bump(key string) {
	s.version[key]++
}

func ok() RedisValue             { return RedisValue{Type: SimpleString, Str: "OK"} }
func errVal(msg string) RedisValue { return RedisValue{Type: ErrorReply, Str: msg} }
func intVal(n int64) RedisValue  { return RedisValue{Type: Integer, Int: n} }
func bulk(s string) RedisValue   { return RedisValue{Type: BulkString, Bulk: []byte(s)} }
func nullVal() RedisValue        { return RedisValue{Type: Null} }
func arrVal(v []RedisValue) RedisValue { return RedisValue{Type: Array, Array: v} }

// SetAuth configures the password AUTH must match.
func (s *Server) SetAuth(password string) { s.RequirePass = password }

// SetMasters configures the addresses returned by SENTINEL MASTERS for the
// given service name (only one service is modeled).
func (s *Server) SetMasters(name, ip, port string) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.masters = []sentinelEndpoint{{name: name, ip: ip, port: port}}
}

// SetSlaves configures the addresses returned by SENTINEL SLAVES.
func (s *Server) SetSlaves(name string, addrs [][2]string) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.slaves = s.store.slaves[:0]
	for _, a := range addrs {
		s.store.slaves = append(s.store.slaves, sentinelEndpoint{name: name, ip: a[0], port: a[1]})
	}
}

// registerStoreHandlers wires the in-memory keyspace into the generic
// CommandHandler registry. Called once from NewServer, after
// registerDefaultHandlers.
func (s *Server) registerStoreHandlers() {
	s.store = newStoreState()

	reg := func(name string, f func(*Connection, *Command) RedisValue) {
		s.RegisterCommandFunc(name, f)
	}

	reg("AUTH", s.cmdAuth)
	reg("SELECT", s.cmdSelect)
	reg("ROLE", s.cmdRole)
	reg("TIME", s.cmdTime)
	reg("INFO", s.cmdInfo)

	reg("GET", s.cmdGet)
	reg("SET", s.cmdSet)
	reg("DEL", s.cmdDel)
	reg("EXISTS", s.cmdExists)
	reg("MGET", s.cmdMget)
	reg("MSET", s.cmdMset)
	reg("EXPIRE", s.cmdExpire)
	reg("TTL", s.cmdTTL)
	reg("INCR", s.cmdIncr)

	reg("HSET", s.cmdHset)
	reg("HGET", s.cmdHget)
	reg("HGETALL", s.cmdHgetall)

	reg("ZADD", s.cmdZadd)
	reg("ZSCORE", s.cmdZscore)

	reg("MULTI", s.cmdMulti)
	reg("EXEC", s.cmdExec)
	reg("DISCARD", s.cmdDiscard)
	reg("WATCH", s.cmdWatch)
	reg("UNWATCH", s.cmdUnwatch)

	reg("SUBSCRIBE", s.cmdSubscribe)
	reg("PSUBSCRIBE", s.cmdPsubscribe)
	reg("UNSUBSCRIBE", s.cmdUnsubscribe)
	reg("PUBLISH", s.cmdPublish)

	reg("SCRIPT", s.cmdScript)
	reg("EVAL", s.cmdEval)
	reg("EVALSHA", s.cmdEvalsha)

	reg("SENTINEL", s.cmdSentinel)
}

func (s *Server) requireArgs(cmd *Command, n int) bool { return len(cmd.Args) >= n }

// registerDefaultHandlers wires the handful of connection-level commands
// that need no keyspace state: PING, ECHO, QUIT.
func (s *Server) registerDefaultHandlers() {
	s.RegisterCommandFunc("PING", func(conn *Connection, cmd *Command) RedisValue {
		if len(cmd.Args) == 0 {
			return RedisValue{Type: SimpleString, Str: "PONG"}
		}
		return bulk(cmd.Args[0])
	})
	s.RegisterCommandFunc("ECHO", func(conn *Connection, cmd *Command) RedisValue {
		if len(cmd.Args) != 1 {
			return errVal("ERR wrong number of arguments for 'echo' command")
		}
		return bulk(cmd.Args[0])
	})
	s.RegisterCommandFunc("QUIT", func(conn *Connection, cmd *Command) RedisValue {
		return ok()
	})
}

func (s *Server) cmdAuth(c *Connection, cmd *Command) RedisValue {
	if len(cmd.Args) != 1 {
		return errVal("ERR wrong number of arguments for 'auth' command")
	}
	if s.RequirePass == "" {
		return errVal("ERR Client sent AUTH, but no password is set")
	}
	if cmd.Args[0] != s.RequirePass {
		return errVal("ERR invalid password")
	}
	c.authenticated = true
	return ok()
}

func (s *Server) cmdSelect(c *Connection, cmd *Command) RedisValue {
	if len(cmd.Args) != 1 {
		return errVal("ERR wrong number of arguments for 'select' command")
	}
	n, err := strconv.Atoi(cmd.Args[0])
	if err != nil {
		return errVal("ERR value is not an integer or out of range")
	}
	c.selectedDB = n
	return ok()
}

func (s *Server) cmdRole(c *Connection, cmd *Command) RedisValue {
	role := s.Role
	if role == "" {
		role = "master"
	}
	return arrVal([]RedisValue{bulk(role), intVal(0), arrVal(nil)})
}

func (s *Server) cmdTime(c *Connection, cmd *Command) RedisValue {
	now := time.Now()
	return arrVal([]RedisValue{
		bulk(strconv.FormatInt(now.Unix(), 10)),
		bulk(strconv.FormatInt(int64(now.Nanosecond()/1000), 10)),
	})
}

func (s *Server) cmdInfo(c *Connection, cmd *Command) RedisValue {
	return bulk("# Server\r\nredis_version:mockredis\r\nrole:" + s.Role + "\r\n")
}

func (s *Server) expired(key string) bool {
	t, ok := s.store.expires[key]
	return ok && time.Now().After(t)
}

func (s *Server) cmdGet(c *Connection, cmd *Command) RedisValue {
	if !s.requireArgs(cmd, 1) {
		return errVal("ERR wrong number of arguments for 'get' command")
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	key := cmd.Args[0]
	if s.expired(key) {
		delete(s.store.strings, key)
		return nullVal()
	}
	v, ok := s.store.strings[key]
	if !ok {
		return nullVal()
	}
	return bulk(v)
}

func (s *Server) cmdSet(c *Connection, cmd *Command) RedisValue {
	if !s.requireArgs(cmd, 2) {
		return errVal("ERR wrong number of arguments for 'set' command")
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	key, val := cmd.Args[0], cmd.Args[1]
	s.store.strings[key] = val
	delete(s.store.expires, key)
	s.store.bump(key)
	return ok()
}

func (s *Server) cmdDel(c *Connection, cmd *Command) RedisValue {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	var n int64
	for _, key := range cmd.Args {
		if _, ok := s.store.strings[key]; ok {
			delete(s.store.strings, key)
			n++
		}
		if _, ok := s.store.hashes[key]; ok {
			delete(s.store.hashes, key)
			n++
		}
		s.store.bump(key)
	}
	return intVal(n)
}

func (s *Server) cmdExists(c *Connection, cmd *Command) RedisValue {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	var n int64
	for _, key := range cmd.Args {
		if _, ok := s.store.strings[key]; ok {
			n++
		}
	}
	return intVal(n)
}

func (s *Server) cmdMget(c *Connection, cmd *Command) RedisValue {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	out := make([]RedisValue, len(cmd.Args))
	for i, key := range cmd.Args {
		if v, ok := s.store.strings[key]; ok && !s.expired(key) {
			out[i] = bulk(v)
		} else {
			out[i] = nullVal()
		}
	}
	return arrVal(out)
}

func (s *Server) cmdMset(c *Connection, cmd *Command) RedisValue {
	if len(cmd.Args) == 0 || len(cmd.Args)%2 != 0 {
		return errVal("ERR wrong number of arguments for 'mset' command")
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	for i := 0; i < len(cmd.Args); i += 2 {
		s.store.strings[cmd.Args[i]] = cmd.Args[i+1]
		s.store.bump(cmd.Args[i])
	}
	return ok()
}

func (s *Server) cmdExpire(c *Connection, cmd *Command) RedisValue {
	if !s.requireArgs(cmd, 2) {
		return errVal("ERR wrong number of arguments for 'expire' command")
	}
	secs, err := strconv.Atoi(cmd.Args[1])
	if err != nil {
		return errVal("ERR value is not an integer or out of range")
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	key := cmd.Args[0]
	if _, ok := s.store.strings[key]; !ok {
		return intVal(0)
	}
	s.store.expires[key] = time.Now().Add(time.Duration(secs) * time.Second)
	return intVal(1)
}

func (s *Server) cmdTTL(c *Connection, cmd *Command) RedisValue {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	key := cmd.Args[0]
	if _, ok := s.store.strings[key]; !ok {
		return intVal(-2)
	}
	exp, ok := s.store.expires[key]
	if !ok {
		return intVal(-1)
	}
	remaining := time.Until(exp)
	if remaining < 0 {
		return intVal(-2)
	}
	return intVal(int64(remaining.Seconds()))
}

func (s *Server) cmdIncr(c *Connection, cmd *Command) RedisValue {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	key := cmd.Args[0]
	n, _ := strconv.ParseInt(s.store.strings[key], 10, 64)
	n++
	s.store.strings[key] = strconv.FormatInt(n, 10)
	s.store.bump(key)
	return intVal(n)
}

func (s *Server) cmdHset(c *Connection, cmd *Command) RedisValue {
	if len(cmd.Args) < 3 || len(cmd.Args)%2 != 1 {
		return errVal("ERR wrong number of arguments for 'hset' command")
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	key := cmd.Args[0]
	h, ok := s.store.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.store.hashes[key] = h
	}
	var added int64
	for i := 1; i < len(cmd.Args); i += 2 {
		if _, exists := h[cmd.Args[i]]; !exists {
			added++
		}
		h[cmd.Args[i]] = cmd.Args[i+1]
	}
	s.store.bump(key)
	return intVal(added)
}

func (s *Server) cmdHget(c *Connection, cmd *Command) RedisValue {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	h, ok := s.store.hashes[cmd.Args[0]]
	if !ok {
		return nullVal()
	}
	v, ok := h[cmd.Args[1]]
	if !ok {
		return nullVal()
	}
	return bulk(v)
}

func (s *Server) cmdHgetall(c *Connection, cmd *Command) RedisValue {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	h := s.store.hashes[cmd.Args[0]]
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]RedisValue, 0, len(keys)*2)
	for _, k := range keys {
		out = append(out, bulk(k), bulk(h[k]))
	}
	return arrVal(out)
}

func (s *Server) cmdZadd(c *Connection, cmd *Command) RedisValue {
	if len(cmd.Args) < 3 {
		return errVal("ERR wrong number of arguments for 'zadd' command")
	}
	score, err := strconv.ParseFloat(cmd.Args[1], 64)
	if err != nil {
		return errVal("ERR value is not a valid float")
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	key := cmd.Args[0]
	z, ok := s.store.sorted[key]
	if !ok {
		z = make(map[string]float64)
		s.store.sorted[key] = z
	}
	var added int64
	if _, exists := z[cmd.Args[2]]; !exists {
		added = 1
	}
	z[cmd.Args[2]] = score
	return intVal(added)
}

func (s *Server) cmdZscore(c *Connection, cmd *Command) RedisValue {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	z, ok := s.store.sorted[cmd.Args[0]]
	if !ok {
		return nullVal()
	}
	score, ok := z[cmd.Args[1]]
	if !ok {
		return nullVal()
	}
	return bulk(strconv.FormatFloat(score, 'f', -1, 64))
}

// --- transactions ---

func (s *Server) cmdMulti(c *Connection, cmd *Command) RedisValue {
	c.inMulti = true
	c.queued = nil
	return ok()
}

func (s *Server) cmdWatch(c *Connection, cmd *Command) RedisValue {
	if c.inMulti {
		return errVal("ERR WATCH inside MULTI is not allowed")
	}
	if c.watching == nil {
		c.watching = make(map[string]int64)
	}
	s.store.mu.Lock()
	for _, key := range cmd.Args {
		c.watching[key] = s.store.version[key]
	}
	s.store.mu.Unlock()
	return ok()
}

func (s *Server) cmdUnwatch(c *Connection, cmd *Command) RedisValue {
	c.watching = nil
	return ok()
}

func (s *Server) cmdDiscard(c *Connection, cmd *Command) RedisValue {
	if !c.inMulti {
		return errVal("ERR DISCARD without MULTI")
	}
	c.inMulti = false
	c.queued = nil
	c.watching = nil
	return ok()
}

func (s *Server) cmdExec(c *Connection, cmd *Command) RedisValue {
	if !c.inMulti {
		return errVal("ERR EXEC without MULTI")
	}
	c.inMulti = false
	queued := c.queued
	c.queued = nil

	s.store.mu.Lock()
	dirty := false
	for key, ver := range c.watching {
		if s.store.version[key] != ver {
			dirty = true
			break
		}
	}
	s.store.mu.Unlock()
	c.watching = nil

	if dirty {
		return nullVal()
	}

	out := make([]RedisValue, len(queued))
	for i, qc := range queued {
		out[i] = s.dispatch(c, qc)
	}
	return arrVal(out)
}

// --- pub/sub ---

func (s *Server) cmdSubscribe(c *Connection, cmd *Command) RedisValue {
	if c.subChannels == nil {
		c.subChannels = make(map[string]bool)
	}
	s.store.mu.Lock()
	for _, ch := range cmd.Args {
		c.subChannels[ch] = true
		if s.store.channels[ch] == nil {
			s.store.channels[ch] = make(map[*Connection]bool)
		}
		s.store.channels[ch][c] = true
	}
	s.store.mu.Unlock()

	for _, ch := range cmd.Args {
		count := len(c.subChannels) + len(c.subPatterns)
		msg := arrVal([]RedisValue{bulk("subscribe"), bulk(ch), intVal(int64(count))})
		c.writeMu.Lock()
		c.writeValue(msg)
		c.writer.Flush()
		c.writeMu.Unlock()
	}
	// The caller's readCommand/writeValue loop in handleConnectionInternal
	// would otherwise also try to write a response for this command;
	// returning this sentinel value makes that loop skip the write.
	return RedisValue{Type: Null, Str: "__handled__"}
}

func (s *Server) cmdPsubscribe(c *Connection, cmd *Command) RedisValue {
	if c.subPatterns == nil {
		c.subPatterns = make(map[string]bool)
	}
	s.store.mu.Lock()
	for _, p := range cmd.Args {
		c.subPatterns[p] = true
		if s.store.patterns[p] == nil {
			s.store.patterns[p] = make(map[*Connection]bool)
		}
		s.store.patterns[p][c] = true
	}
	s.store.mu.Unlock()

	for _, p := range cmd.Args {
		count := len(c.subChannels) + len(c.subPatterns)
		msg := arrVal([]RedisValue{bulk("psubscribe"), bulk(p), intVal(int64(count))})
		c.writeMu.Lock()
		c.writeValue(msg)
		c.writer.Flush()
		c.writeMu.Unlock()
	}
	return RedisValue{Type: Null, Str: "__handled__"}
}

func (s *Server) cmdUnsubscribe(c *Connection, cmd *Command) RedisValue {
	s.store.mu.Lock()
	for ch := range c.subChannels {
		delete(s.store.channels[ch], c)
	}
	s.store.mu.Unlock()
	c.subChannels = nil
	count := len(c.subPatterns)
	msg := arrVal([]RedisValue{bulk("unsubscribe"), nullVal(), intVal(int64(count))})
	c.writeMu.Lock()
	c.writeValue(msg)
	c.writer.Flush()
	c.writeMu.Unlock()
	return RedisValue{Type: Null, Str: "__handled__"}
}

func (s *Server) cmdPublish(c *Connection, cmd *Command) RedisValue {
	if len(cmd.Args) != 2 {
		return errVal("ERR wrong number of arguments for 'publish' command")
	}
	channel, payload := cmd.Args[0], cmd.Args[1]

	s.store.mu.Lock()
	receivers := make([]*Connection, 0)
	for conn := range s.store.channels[channel] {
		receivers = append(receivers, conn)
	}
	type patMatch struct {
		conn    *Connection
		pattern string
	}
	var patMatches []patMatch
	for pattern, conns := range s.store.patterns {
		if globMatch(pattern, channel) {
			for conn := range conns {
				patMatches = append(patMatches, patMatch{conn, pattern})
			}
		}
	}
	s.store.mu.Unlock()

	for _, conn := range receivers {
		msg := arrVal([]RedisValue{bulk("message"), bulk(channel), bulk(payload)})
		conn.writeMu.Lock()
		conn.writeValue(msg)
		conn.writer.Flush()
		conn.writeMu.Unlock()
	}
	for _, m := range patMatches {
		msg := arrVal([]RedisValue{bulk("pmessage"), bulk(m.pattern), bulk(channel), bulk(payload)})
		m.conn.writeMu.Lock()
		m.conn.writeValue(msg)
		m.conn.writer.Flush()
		m.conn.writeMu.Unlock()
	}
	return intVal(int64(len(receivers) + len(patMatches)))
}

// globMatch implements the small subset of Redis's glob-style pattern
// matching ('*', '?') needed to resolve PSUBSCRIBE patterns against a
// published channel name.
func globMatch(pattern, s string) bool {
	if pattern == s {
		return true
	}
	var match func(p, s string) bool
	match = func(p, s string) bool {
		for len(p) > 0 {
			switch p[0] {
			case '*':
				if len(p) == 1 {
					return true
				}
				for i := 0; i <= len(s); i++ {
					if match(p[1:], s[i:]) {
						return true
					}
				}
				return false
			case '?':
				if len(s) == 0 {
					return false
				}
				p, s = p[1:], s[1:]
			default:
				if len(s) == 0 || p[0] != s[0] {
					return false
				}
				p, s = p[1:], s[1:]
			}
		}
		return len(s) == 0
	}
	return match(pattern, s)
}

// --- scripting ---

func (s *Server) cmdScript(c *Connection, cmd *Command) RedisValue {
	if len(cmd.Args) < 1 {
		return errVal("ERR wrong number of arguments for 'script' command")
	}
	switch strings.ToUpper(cmd.Args[0]) {
	case "LOAD":
		if len(cmd.Args) != 2 {
			return errVal("ERR wrong number of arguments")
		}
		sum := sha1.Sum([]byte(cmd.Args[1]))
		sha := hex.EncodeToString(sum[:])
		s.store.mu.Lock()
		s.store.scripts[sha] = cmd.Args[1]
		s.store.mu.Unlock()
		return bulk(sha)
	case "FLUSH":
		s.store.mu.Lock()
		s.store.scripts = make(map[string]string)
		s.store.mu.Unlock()
		return ok()
	case "EXISTS":
		s.store.mu.Lock()
		defer s.store.mu.Unlock()
		out := make([]RedisValue, len(cmd.Args)-1)
		for i, sha := range cmd.Args[1:] {
			if _, ok := s.store.scripts[sha]; ok {
				out[i] = intVal(1)
			} else {
				out[i] = intVal(0)
			}
		}
		return arrVal(out)
	default:
		return errVal("ERR unknown SCRIPT subcommand")
	}
}

// cmdEval is a toy evaluator: it does not run Lua. It recognizes exactly
// the forms txredis's own tests issue ("return KEYS[1]" / "return ARGV[1]"
// / "return 1") so EVAL/EVALSHA hash-caching can be exercised end to end
// without embedding a Lua VM.
func (s *Server) cmdEval(c *Connection, cmd *Command) RedisValue {
	if len(cmd.Args) < 2 {
		return errVal("ERR wrong number of arguments for 'eval' command")
	}
	script := cmd.Args[0]
	numKeys, err := strconv.Atoi(cmd.Args[1])
	if err != nil {
		return errVal("ERR value is not an integer or out of range")
	}
	keys := cmd.Args[2 : 2+numKeys]
	argv := cmd.Args[2+numKeys:]

	sum := sha1.Sum([]byte(script))
	sha := hex.EncodeToString(sum[:])
	s.store.mu.Lock()
	s.store.scripts[sha] = script
	s.store.mu.Unlock()

	return evalToy(script, keys, argv)
}

func (s *Server) cmdEvalsha(c *Connection, cmd *Command) RedisValue {
	if len(cmd.Args) < 2 {
		return errVal("ERR wrong number of arguments for 'evalsha' command")
	}
	sha := cmd.Args[0]
	s.store.mu.Lock()
	script, ok := s.store.scripts[sha]
	s.store.mu.Unlock()
	if !ok {
		return errVal("NOSCRIPT No matching script")
	}
	numKeys, err := strconv.Atoi(cmd.Args[1])
	if err != nil {
		return errVal("ERR value is not an integer or out of range")
	}
	keys := cmd.Args[2 : 2+numKeys]
	argv := cmd.Args[2+numKeys:]
	return evalToy(script, keys, argv)
}

func evalToy(script string, keys, argv []string) RedisValue {
	script = strings.TrimSpace(script)
	switch {
	case script == "return KEYS[1]" && len(keys) > 0:
		return bulk(keys[0])
	case script == "return ARGV[1]" && len(argv) > 0:
		return bulk(argv[0])
	default:
		if n, err := strconv.ParseInt(script, 10, 64); err == nil {
			return intVal(n)
		}
		if strings.HasPrefix(script, "return ") {
			rest := strings.TrimPrefix(script, "return ")
			if n, err := strconv.ParseInt(rest, 10, 64); err == nil {
				return intVal(n)
			}
			return bulk(strings.Trim(rest, "'\""))
		}
		return nullVal()
	}
}

// --- sentinel simulation ---

func (s *Server) cmdSentinel(c *Connection, cmd *Command) RedisValue {
	if len(cmd.Args) < 1 {
		return errVal("ERR wrong number of arguments for 'sentinel' command")
	}
	switch strings.ToUpper(cmd.Args[0]) {
	case "MASTERS":
		s.store.mu.Lock()
		defer s.store.mu.Unlock()
		out := make([]RedisValue, 0, len(s.store.masters))
		for _, m := range s.store.masters {
			out = append(out, sentinelEntry(m, []string{"master"}))
		}
		return arrVal(out)
	case "SLAVES":
		if len(cmd.Args) != 2 {
			return errVal("ERR wrong number of arguments")
		}
		s.store.mu.Lock()
		defer s.store.mu.Unlock()
		out := make([]RedisValue, 0, len(s.store.slaves))
		for _, sl := range s.store.slaves {
			if sl.name != cmd.Args[1] {
				continue
			}
			out = append(out, sentinelEntry(sl, []string{"slave"}))
		}
		return arrVal(out)
	default:
		return errVal(fmt.Sprintf("ERR unknown SENTINEL subcommand '%s'", cmd.Args[0]))
	}
}

func sentinelEntry(e sentinelEndpoint, flags []string) RedisValue {
	fields := []RedisValue{
		bulk("name"), bulk(e.name),
		bulk("ip"), bulk(e.ip),
		bulk("port"), bulk(e.port),
		bulk("flags"), bulk(strings.Join(flags, ",")),
		bulk("num-other-sentinels"), bulk("2"),
	}
	return arrVal(fields)
}
