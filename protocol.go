package redis

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// ReplyType classifies a decoded Reply by its RESP wire type.
type ReplyType int

const (
	StatusReply ReplyType = iota
	ErrReply
	IntegerReply
	BulkReply
	ArrayReply
	NilReply
)

func (t ReplyType) String() string {
	switch t {
	case StatusReply:
		return "status"
	case ErrReply:
		return "error"
	case IntegerReply:
		return "integer"
	case BulkReply:
		return "bulk"
	case ArrayReply:
		return "array"
	default:
		return "nil"
	}
}

// Reply is a fully decoded RESP value. Exactly one of Status/Err/Integer/
// Value/Array is meaningful, selected by Type.
type Reply struct {
	Type ReplyType

	Status string      // StatusReply
	Err    *RedisError // ErrReply
	Integer int64       // IntegerReply

	// Value holds a BulkReply's payload. When number conversion is
	// enabled (the default, §4.2) it is an int64, a float64, or a
	// string; with conversion disabled, or when the bytes don't satisfy
	// the charset, it is []byte.
	Value interface{}

	Array []*Reply // ArrayReply; nil when Type == NilReply at the array position
}

// IsNil reports whether this reply is RESP's null bulk or null array.
func (r *Reply) IsNil() bool { return r != nil && r.Type == NilReply }

// codecFrame tracks one in-progress multi-bulk while its children are
// being collected; frames are pushed/popped on a stack so that nested
// arrays (EXEC, SENTINEL MASTERS) assemble bottom-up per §4.2/§9.
type codecFrame struct {
	remaining int
	items     []*Reply
}

// pendingBulk remembers the declared length of a bulk string header while
// the Framer gathers its raw-mode payload.
type pendingBulk struct {
	length int
}

// Codec turns wire bytes into Reply values and Reply-shaped commands into
// wire bytes. One Codec is owned by exactly one Connection; like the
// Framer beneath it, it is not safe for concurrent use.
type Codec struct {
	framer  *Framer
	charset string
	convert bool

	stack   []*codecFrame
	pending *pendingBulk
}

// NewCodec returns a Codec. charset == "" means binary passthrough for
// outbound string arguments (no validation, no inbound text decoding);
// convert selects the §4.2 "convert numbers" bulk-decoding policy.
func NewCodec(charset string, convert bool) *Codec {
	return &Codec{
		framer:  NewFramer(),
		charset: charset,
		convert: convert,
	}
}

// Feed parses as many complete top-level replies as chunk (plus whatever
// the Codec already had buffered) makes available, invoking onReply once
// per completed reply in wire order. A parse error (bad length header,
// unknown type byte, or a Framer-level framing violation) is terminal:
// the caller must close the underlying transport.
func (c *Codec) Feed(chunk []byte, onReply func(*Reply) error) error {
	return c.framer.Feed(chunk, func(ev frameEvent) error {
		if ev.Line != nil {
			return c.onLine(ev.Line, onReply)
		}
		return c.onRaw(ev.Raw, onReply)
	})
}

func (c *Codec) onLine(line []byte, onReply func(*Reply) error) error {
	if len(line) == 0 {
		return fmt.Errorf("redis: invalid-response: empty reply line")
	}
	switch line[0] {
	case '+':
		return c.deliver(&Reply{Type: StatusReply, Status: string(line[1:])}, onReply)
	case '-':
		return c.deliver(&Reply{Type: ErrReply, Err: responseError(stripErrPrefix(string(line[1:])))}, onReply)
	case ':':
		n, err := strconv.ParseInt(string(line[1:]), 10, 64)
		if err != nil {
			return fmt.Errorf("redis: invalid-response: bad integer %q: %w", line[1:], err)
		}
		return c.deliver(&Reply{Type: IntegerReply, Integer: n}, onReply)
	case '$':
		n, err := strconv.Atoi(string(line[1:]))
		if err != nil {
			return fmt.Errorf("redis: invalid-response: bad bulk length %q: %w", line[1:], err)
		}
		if n == -1 {
			return c.deliver(&Reply{Type: NilReply}, onReply)
		}
		if n < 0 {
			return fmt.Errorf("redis: invalid-response: negative bulk length %d", n)
		}
		c.pending = &pendingBulk{length: n}
		c.framer.SetRawMode(n + 2)
		return nil
	case '*':
		n, err := strconv.Atoi(string(line[1:]))
		if err != nil {
			return fmt.Errorf("redis: invalid-response: bad array count %q: %w", line[1:], err)
		}
		if n == -1 {
			return c.deliver(&Reply{Type: NilReply}, onReply)
		}
		if n == 0 {
			return c.deliver(&Reply{Type: ArrayReply, Array: []*Reply{}}, onReply)
		}
		if n < 0 {
			return fmt.Errorf("redis: invalid-response: negative array count %d", n)
		}
		c.stack = append(c.stack, &codecFrame{remaining: n, items: make([]*Reply, 0, n)})
		return nil
	default:
		return fmt.Errorf("redis: invalid-response: unknown type byte %q", line[0])
	}
}

func (c *Codec) onRaw(raw []byte, onReply func(*Reply) error) error {
	if c.pending == nil {
		return fmt.Errorf("redis: invalid-response: raw payload with no pending bulk header")
	}
	payload := raw[:c.pending.length]
	c.pending = nil
	return c.deliver(&Reply{Type: BulkReply, Value: c.decodeBulk(payload)}, onReply)
}

// deliver completes a reply at whatever nesting depth the stack has it:
// either as a top-level reply handed to onReply, or as the next item of
// the enclosing array, recursively popping completed arrays upward.
func (c *Codec) deliver(r *Reply, onReply func(*Reply) error) error {
	for {
		if len(c.stack) == 0 {
			return onReply(r)
		}
		top := c.stack[len(c.stack)-1]
		top.items = append(top.items, r)
		top.remaining--
		if top.remaining > 0 {
			return nil
		}
		c.stack = c.stack[:len(c.stack)-1]
		r = &Reply{Type: ArrayReply, Array: top.items}
	}
}

// decodeBulk applies the §4.2 bulk-decoding policy: with conversion
// disabled, raw bytes; otherwise int64/float64 when the bytes parse as
// one, the literal tokens +inf/-inf/NaN preserved as text, else a string
// decoded under the configured charset (falling back to raw bytes when
// the charset can't represent it or is binary/"").
func (c *Codec) decodeBulk(payload []byte) interface{} {
	if !c.convert {
		return append([]byte(nil), payload...)
	}
	s := string(payload)
	switch s {
	case "+inf", "-inf", "NaN", "nan", "inf":
		return decodeText(payload, c.charset)
	}
	if looksInteger(s) {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	if looksFloat(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return f
		}
	}
	return decodeText(payload, c.charset)
}

func looksInteger(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[0] == '-' || s[0] == '+' {
		i = 1
	}
	if i == len(s) {
		return false
	}
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func looksFloat(s string) bool {
	dot := false
	digits := false
	i := 0
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}
	for ; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
			digits = true
		case s[i] == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return dot && digits
}

// decodeText returns the text form of payload under charset, falling
// back to the raw bytes when charset is "" (binary passthrough) or the
// bytes are not valid text for it.
func decodeText(payload []byte, charset string) interface{} {
	if charset == "" {
		return append([]byte(nil), payload...)
	}
	if !utf8.Valid(payload) {
		return append([]byte(nil), payload...)
	}
	return string(payload)
}

func stripErrPrefix(msg string) string {
	if len(msg) > 4 && msg[:4] == "ERR " {
		return msg[4:]
	}
	return msg
}

// NewStatusReply, NewErrorReply, NewIntegerReply, NewBulkReply,
// NewArrayReply, and NewNilReply build a *Reply tree from scratch rather
// than decoding one off the wire. internal/mockredis uses these plus
// EncodeReply to serialize the values its command handlers produce,
// sharing this package's RESP grammar instead of carrying its own
// second encoder.
func NewStatusReply(s string) *Reply { return &Reply{Type: StatusReply, Status: s} }

func NewErrorReply(msg string) *Reply { return &Reply{Type: ErrReply, Err: newErr(KindRedisError, msg)} }

func NewIntegerReply(n int64) *Reply { return &Reply{Type: IntegerReply, Integer: n} }

func NewBulkReply(v interface{}) *Reply { return &Reply{Type: BulkReply, Value: v} }

func NewArrayReply(items []*Reply) *Reply { return &Reply{Type: ArrayReply, Array: items} }

func NewNilReply() *Reply { return &Reply{Type: NilReply} }

// EncodeReply serializes a Reply tree to RESP wire bytes. It is
// Codec.Feed's inverse at the value-tree level rather than the
// command-argument level EncodeCommand covers, letting a RESP server
// (internal/mockredis) reuse this package's grammar for outbound
// replies instead of hand-rolling a second serializer.
func EncodeReply(r *Reply) []byte {
	return appendReply(nil, r)
}

func appendReply(buf []byte, r *Reply) []byte {
	if r == nil || r.Type == NilReply {
		return append(buf, '$', '-', '1', '\r', '\n')
	}
	switch r.Type {
	case StatusReply:
		buf = append(buf, '+')
		buf = append(buf, r.Status...)
		return append(buf, '\r', '\n')
	case ErrReply:
		buf = append(buf, '-')
		if r.Err != nil {
			buf = append(buf, r.Err.message...)
		}
		return append(buf, '\r', '\n')
	case IntegerReply:
		buf = append(buf, ':')
		buf = appendInt(buf, r.Integer)
		return append(buf, '\r', '\n')
	case BulkReply:
		data := replyBulkBytes(r.Value)
		buf = append(buf, '$')
		buf = appendInt(buf, int64(len(data)))
		buf = append(buf, '\r', '\n')
		buf = append(buf, data...)
		return append(buf, '\r', '\n')
	case ArrayReply:
		buf = append(buf, '*')
		buf = appendInt(buf, int64(len(r.Array)))
		buf = append(buf, '\r', '\n')
		for _, item := range r.Array {
			buf = appendReply(buf, item)
		}
		return buf
	default:
		return append(buf, '$', '-', '1', '\r', '\n')
	}
}

// replyBulkBytes coerces a BulkReply's Value field (set either by
// decodeBulk's number-conversion policy or directly via NewBulkReply) to
// its wire bytes.
func replyBulkBytes(v interface{}) []byte {
	switch x := v.(type) {
	case []byte:
		return x
	case string:
		return []byte(x)
	case int64:
		return []byte(strconv.FormatInt(x, 10))
	case float64:
		return []byte(strconv.FormatFloat(x, 'f', -1, 64))
	case nil:
		return nil
	default:
		return nil
	}
}

// EncodeCommand serializes a command name and its arguments as a RESP
// multi-bulk, per §4.2's outbound encoding rules. Each argument is
// encoded according to its Go type; a string argument that can't be
// represented in charset fails with a KindInvalidData error.
func EncodeCommand(charset string, name string, args ...interface{}) ([]byte, error) {
	all := make([]interface{}, 0, len(args)+1)
	all = append(all, name)
	all = append(all, args...)

	buf := make([]byte, 0, 64)
	buf = append(buf, '*')
	buf = appendInt(buf, int64(len(all)))
	buf = append(buf, '\r', '\n')

	for _, a := range all {
		enc, err := encodeArg(a, charset)
		if err != nil {
			return nil, err
		}
		buf = append(buf, '$')
		buf = appendInt(buf, int64(len(enc)))
		buf = append(buf, '\r', '\n')
		buf = append(buf, enc...)
		buf = append(buf, '\r', '\n')
	}
	return buf, nil
}

func appendInt(buf []byte, n int64) []byte {
	return append(buf, []byte(strconv.FormatInt(n, 10))...)
}

// encodeArg converts one command argument to its wire bytes.
func encodeArg(a interface{}, charset string) ([]byte, error) {
	switch v := a.(type) {
	case []byte:
		return v, nil
	case string:
		return encodeString(v, charset)
	case int:
		return []byte(strconv.Itoa(v)), nil
	case int64:
		return []byte(strconv.FormatInt(v, 10)), nil
	case uint64:
		return []byte(strconv.FormatUint(v, 10)), nil
	case float64:
		return []byte(strconv.FormatFloat(v, 'f', -1, 64)), nil
	case bool:
		if v {
			return []byte("1"), nil
		}
		return []byte("0"), nil
	case fmt.Stringer:
		return encodeString(v.String(), charset)
	default:
		return nil, newErr(KindInvalidData, fmt.Sprintf("argument of type %T cannot be encoded", a))
	}
}

func encodeString(s string, charset string) ([]byte, error) {
	if charset == "" {
		return []byte(s), nil
	}
	if !utf8.ValidString(s) {
		return nil, newErr(KindInvalidData, fmt.Sprintf("argument is not valid %s text", charset))
	}
	return []byte(s), nil
}
