package redis

import (
	"context"
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"
)

// singleKeyCommands is the fixed list of operations meaningful on a
// sharded handler; everything else raises ErrNotSupported per §4.7.
var singleKeyCommands = map[string]bool{
	"GET": true, "SET": true, "DEL": true, "EXISTS": true,
	"INCR": true, "DECR": true, "INCRBY": true, "DECRBY": true,
	"APPEND": true, "STRLEN": true, "EXPIRE": true, "TTL": true, "PERSIST": true,
	"HGET": true, "HSET": true, "HDEL": true, "HGETALL": true, "HMSET": true, "HMGET": true,
	"LPUSH": true, "RPUSH": true, "LPOP": true, "RPOP": true, "LRANGE": true, "LLEN": true,
	"SADD": true, "SREM": true, "SMEMBERS": true, "SISMEMBER": true,
	"ZADD": true, "ZSCORE": true, "ZRANGE": true, "ZREM": true,
	"TYPE": true, "PTTL": true,
}

// ringEntry is one virtual-node position on the hash ring.
type ringEntry struct {
	hash uint32
	node string
}

// Sharder is a client-side consistent-hash ring over a fixed set of
// named nodes, each backed by its own Handler (§4.7). Construction
// builds the ring once; AddNode/RemoveNode rebuild it under the Sharder's
// own lock.
type Sharder struct {
	mu       sync.RWMutex
	replicas int
	ring     []ringEntry
	handlers map[string]*Handler
}

// NewSharder builds a ring over the given node-name → Handler map, with
// replicas virtual nodes per real node (default 160 when replicas <= 0).
func NewSharder(handlers map[string]*Handler, replicas int) *Sharder {
	if replicas <= 0 {
		replicas = 160
	}
	s := &Sharder{replicas: replicas, handlers: make(map[string]*Handler)}
	for name, h := range handlers {
		s.handlers[name] = h
	}
	s.rebuild()
	return s
}

func (s *Sharder) rebuild() {
	ring := make([]ringEntry, 0, len(s.handlers)*s.replicas)
	for name := range s.handlers {
		for i := 0; i < s.replicas; i++ {
			h := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s:%d", name, i)))
			ring = append(ring, ringEntry{hash: h, node: name})
		}
	}
	sort.Slice(ring, func(i, j int) bool {
		if ring[i].hash != ring[j].hash {
			return ring[i].hash < ring[j].hash
		}
		return ring[i].node < ring[j].node
	})
	s.ring = ring
}

// AddNode inserts node into the ring with the Sharder's configured
// replica count.
func (s *Sharder) AddNode(name string, h *Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
	s.rebuild()
}

// RemoveNode drops node from the ring.
func (s *Sharder) RemoveNode(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, name)
	s.rebuild()
}

// shardKey extracts the {tag} substring when present, per §4.7/GLOSSARY;
// otherwise the whole key is the hash input.
func shardKey(key string) string {
	start := strings.IndexByte(key, '{')
	if start < 0 {
		return key
	}
	end := strings.IndexByte(key[start+1:], '}')
	if end < 0 {
		return key
	}
	tag := key[start+1 : start+1+end]
	if tag == "" {
		return key
	}
	return tag
}

// nodeForHash binary-searches the ring for the smallest entry whose hash
// is >= h, wrapping to the first entry.
func (s *Sharder) nodeForHash(h uint32) string {
	i := sort.Search(len(s.ring), func(i int) bool { return s.ring[i].hash >= h })
	if i == len(s.ring) {
		i = 0
	}
	return s.ring[i].node
}

// GetNode returns the node name owning key.
func (s *Sharder) GetNode(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.ring) == 0 {
		return "", newErr(KindInvalidData, "sharder has no nodes")
	}
	h := crc32.ChecksumIEEE([]byte(shardKey(key)))
	return s.nodeForHash(h), nil
}

// handlerFor resolves key to its owning Handler.
func (s *Sharder) handlerFor(key string) (*Handler, error) {
	name, err := s.GetNode(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	h := s.handlers[name]
	s.mu.RUnlock()
	return h, nil
}

// Execute routes a single-key command to the node owning its first
// argument. args[0] must be the key.
func (s *Sharder) Execute(ctx context.Context, name string, args ...interface{}) (*Reply, error) {
	if name == "MGET" {
		return s.mget(ctx, args)
	}
	if !singleKeyCommands[name] {
		return nil, ErrNotSupported
	}
	if len(args) == 0 {
		return nil, newErr(KindInvalidData, "sharded command requires a key argument")
	}
	key, ok := args[0].(string)
	if !ok {
		return nil, newErr(KindInvalidData, "sharding key must be a string")
	}
	h, err := s.handlerFor(key)
	if err != nil {
		return nil, err
	}
	return h.Execute(ctx, name, args...)
}

// Pipeline always raises ErrNotSupported on a sharded handler (§4.7):
// pipelining has no cross-shard meaning.
func (s *Sharder) Pipeline() (*Pipeline, error) {
	return nil, ErrNotSupported
}

// mget scatters keys across their owning nodes and gathers results back
// in input order, a required property per §4.7/§8 scenario 4 since
// callers rely on positional mapping between keys and values.
func (s *Sharder) mget(ctx context.Context, args []interface{}) (*Reply, error) {
	keys := make([]string, len(args))
	for i, a := range args {
		k, ok := a.(string)
		if !ok {
			return nil, newErr(KindInvalidData, "MGET keys must be strings")
		}
		keys[i] = k
	}

	perNode := make(map[string][]int) // node -> positions in keys
	nodeOf := make([]string, len(keys))
	for i, k := range keys {
		node, err := s.GetNode(k)
		if err != nil {
			return nil, err
		}
		nodeOf[i] = node
		perNode[node] = append(perNode[node], i)
	}

	results := make([]*Reply, len(keys))
	errs := make([]error, len(keys))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for node, positions := range perNode {
		node, positions := node, positions
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.mu.RLock()
			h := s.handlers[node]
			s.mu.RUnlock()

			nodeArgs := make([]interface{}, len(positions))
			for i, pos := range positions {
				nodeArgs[i] = keys[pos]
			}
			reply, err := h.Execute(ctx, "MGET", nodeArgs...)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				for _, pos := range positions {
					errs[pos] = err
				}
				return
			}
			for i, pos := range positions {
				if i < len(reply.Array) {
					results[pos] = reply.Array[i]
				} else {
					results[pos] = &Reply{Type: NilReply}
				}
			}
		}()
	}
	wg.Wait()

	for _, e := range errs {
		if e != nil {
			return nil, e
		}
	}
	return &Reply{Type: ArrayReply, Array: results}, nil
}

// String formats the Sharder per §6's sharded repr contract.
func (s *Sharder) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s/%s", s.handlers[name].factory.Addr(), name)
	}
	return "<Redis Sharded Connection: " + strings.Join(parts, ", ") + ">"
}
