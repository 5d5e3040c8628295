package mockredis

import (
	"fmt"

	redis "github.com/l00pss/txredis"
)

// readCommand decodes the next RESP value off the wire (via the shared
// Codec) and reshapes it into a Command. Clients always send commands as
// a multi-bulk array of bulk strings; anything else is a protocol
// violation.
func (c *Connection) readCommand() (*Command, error) {
	value, err := c.readValue()
	if err != nil {
		return nil, err
	}

	if value.Type != redis.ArrayReply {
		return nil, fmt.Errorf("expected array, got %v", value.Type)
	}
	if len(value.Array) == 0 {
		return nil, fmt.Errorf("empty command array")
	}

	cmd := &Command{Raw: make([]RedisValue, len(value.Array))}
	for i, item := range value.Array {
		cmd.Raw[i] = fromReply(item)
	}

	name, err := bulkText(value.Array[0])
	if err != nil {
		return nil, fmt.Errorf("invalid command name type")
	}
	cmd.Name = name

	cmd.Args = make([]string, len(value.Array)-1)
	for i := 1; i < len(value.Array); i++ {
		arg, err := bulkText(value.Array[i])
		if err != nil {
			return nil, fmt.Errorf("invalid argument type at index %d", i)
		}
		cmd.Args[i-1] = arg
	}
	return cmd, nil
}

// readValue pulls one fully-decoded top-level Reply off the connection,
// feeding the shared Codec raw bytes until it produces one. A single
// read can surface several pipelined commands at once (a client
// Pipeline sends all of its commands in one write);
// pending holds whatever the Codec decoded beyond the one this call
// returns, so the next readCommand serves it without touching the wire.
func (c *Connection) readValue() (*redis.Reply, error) {
	for len(c.pending) == 0 {
		if c.readBuf == nil {
			c.readBuf = make([]byte, 16*1024)
		}
		n, err := c.reader.Read(c.readBuf)
		if n > 0 {
			if feedErr := c.codec.Feed(c.readBuf[:n], func(r *redis.Reply) error {
				c.pending = append(c.pending, r)
				return nil
			}); feedErr != nil {
				return nil, feedErr
			}
		}
		if err != nil && len(c.pending) == 0 {
			return nil, err
		}
	}
	r := c.pending[0]
	c.pending = c.pending[1:]
	return r, nil
}

// writeValue converts value to the shared package's Reply tree and
// writes its RESP encoding into the buffered writer; callers flush it
// themselves, and every current caller flushes right after each write.
func (c *Connection) writeValue(value RedisValue) error {
	_, err := c.writer.Write(redis.EncodeReply(toReply(value)))
	return err
}

// toReply maps this package's RedisValue onto the shared Reply tree
// EncodeReply knows how to serialize.
func toReply(v RedisValue) *redis.Reply {
	switch v.Type {
	case SimpleString:
		return redis.NewStatusReply(v.Str)
	case ErrorReply:
		return redis.NewErrorReply(v.Str)
	case Integer:
		return redis.NewIntegerReply(v.Int)
	case BulkString:
		return redis.NewBulkReply(v.Bulk)
	case Array:
		items := make([]*redis.Reply, len(v.Array))
		for i, item := range v.Array {
			items[i] = toReply(item)
		}
		return redis.NewArrayReply(items)
	default:
		return redis.NewNilReply()
	}
}

// fromReply is toReply's inverse, used only to populate Command.Raw for
// handlers that want the original parsed values rather than just Args.
func fromReply(r *redis.Reply) RedisValue {
	if r == nil || r.Type == redis.NilReply {
		return RedisValue{Type: Null}
	}
	switch r.Type {
	case redis.StatusReply:
		return RedisValue{Type: SimpleString, Str: r.Status}
	case redis.ErrReply:
		msg := ""
		if r.Err != nil {
			msg = r.Err.Error()
		}
		return RedisValue{Type: ErrorReply, Str: msg}
	case redis.IntegerReply:
		return RedisValue{Type: Integer, Int: r.Integer}
	case redis.BulkReply:
		return RedisValue{Type: BulkString, Bulk: bulkBytes(r.Value)}
	case redis.ArrayReply:
		items := make([]RedisValue, len(r.Array))
		for i, item := range r.Array {
			items[i] = fromReply(item)
		}
		return RedisValue{Type: Array, Array: items}
	default:
		return RedisValue{Type: Null}
	}
}

// bulkText extracts a bulk or simple-string reply as text for command
// name/argument use. The command codec always decodes with conversion
// disabled, so a BulkReply's Value is []byte, never a number.
func bulkText(r *redis.Reply) (string, error) {
	if r == nil {
		return "", fmt.Errorf("nil value")
	}
	switch r.Type {
	case redis.BulkReply:
		return string(bulkBytes(r.Value)), nil
	case redis.StatusReply:
		return r.Status, nil
	default:
		return "", fmt.Errorf("unexpected reply type %v", r.Type)
	}
}

func bulkBytes(v interface{}) []byte {
	switch x := v.(type) {
	case []byte:
		return x
	case string:
		return []byte(x)
	default:
		return nil
	}
}
