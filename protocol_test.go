package redis

import (
	"strconv"
	"testing"
)

func decodeOne(t *testing.T, charset string, convert bool, wire string) *Reply {
	t.Helper()
	c := NewCodec(charset, convert)
	var got *Reply
	err := c.Feed([]byte(wire), func(r *Reply) error {
		got = r
		return nil
	})
	if err != nil {
		t.Fatalf("Feed(%q): %v", wire, err)
	}
	if got == nil {
		t.Fatalf("Feed(%q): no reply produced", wire)
	}
	return got
}

func TestCodecStatusAndError(t *testing.T) {
	r := decodeOne(t, "utf-8", true, "+OK\r\n")
	if r.Type != StatusReply || r.Status != "OK" {
		t.Fatalf("got %+v", r)
	}

	r = decodeOne(t, "utf-8", true, "-ERR something broke\r\n")
	if r.Type != ErrReply || r.Err == nil || r.Err.Kind() != KindResponseError {
		t.Fatalf("got %+v", r)
	}
	if r.Err.Error() == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestCodecNoScriptUpgradesKind(t *testing.T) {
	r := decodeOne(t, "utf-8", true, "-NOSCRIPT No matching script\r\n")
	if r.Err.Kind() != KindScriptDoesNotExist {
		t.Fatalf("got kind %v", r.Err.Kind())
	}
}

func TestCodecInteger(t *testing.T) {
	r := decodeOne(t, "utf-8", true, ":42\r\n")
	if r.Type != IntegerReply || r.Integer != 42 {
		t.Fatalf("got %+v", r)
	}
}

func TestCodecBulkNumberConversion(t *testing.T) {
	r := decodeOne(t, "utf-8", true, "$2\r\n42\r\n")
	n, ok := r.Value.(int64)
	if !ok || n != 42 {
		t.Fatalf("got %#v, want int64(42)", r.Value)
	}

	r = decodeOne(t, "utf-8", true, "$4\r\n3.25\r\n")
	f, ok := r.Value.(float64)
	if !ok || f != 3.25 {
		t.Fatalf("got %#v, want float64(3.25)", r.Value)
	}
}

func TestCodecBulkConversionDisabled(t *testing.T) {
	r := decodeOne(t, "utf-8", false, "$2\r\n42\r\n")
	b, ok := r.Value.([]byte)
	if !ok || string(b) != "42" {
		t.Fatalf("got %#v, want []byte(\"42\")", r.Value)
	}
}

func TestCodecBulkSpecialFloatTokensPreservedAsText(t *testing.T) {
	for _, tok := range []string{"+inf", "-inf", "NaN", "nan", "inf"} {
		wire := "$" + strconv.Itoa(len(tok)) + "\r\n" + tok + "\r\n"
		r := decodeOne(t, "utf-8", true, wire)
		s, ok := r.Value.(string)
		if !ok || s != tok {
			t.Errorf("token %q: got %#v", tok, r.Value)
		}
	}
}

func TestCodecNilBulkAndArray(t *testing.T) {
	r := decodeOne(t, "utf-8", true, "$-1\r\n")
	if !r.IsNil() {
		t.Fatalf("got %+v, want nil bulk", r)
	}
	r = decodeOne(t, "utf-8", true, "*-1\r\n")
	if !r.IsNil() {
		t.Fatalf("got %+v, want nil array", r)
	}
}

func TestCodecEmptyArray(t *testing.T) {
	r := decodeOne(t, "utf-8", true, "*0\r\n")
	if r.Type != ArrayReply || len(r.Array) != 0 {
		t.Fatalf("got %+v", r)
	}
}

func TestCodecNestedArray(t *testing.T) {
	// Shape EXEC/SENTINEL MASTERS produce: an array of arrays.
	wire := "*2\r\n" +
		"*2\r\n+OK\r\n:1\r\n" +
		"*1\r\n$3\r\nfoo\r\n"
	r := decodeOne(t, "utf-8", true, wire)
	if r.Type != ArrayReply || len(r.Array) != 2 {
		t.Fatalf("got %+v", r)
	}
	inner0 := r.Array[0]
	if inner0.Type != ArrayReply || len(inner0.Array) != 2 {
		t.Fatalf("inner0 = %+v", inner0)
	}
	if inner0.Array[0].Status != "OK" || inner0.Array[1].Integer != 1 {
		t.Fatalf("inner0 contents = %+v", inner0.Array)
	}
	inner1 := r.Array[1]
	if len(inner1.Array) != 1 {
		t.Fatalf("inner1 = %+v", inner1)
	}
}

func TestCodecMultipleTopLevelRepliesInOneFeed(t *testing.T) {
	c := NewCodec("utf-8", true)
	var replies []*Reply
	err := c.Feed([]byte("+OK\r\n:7\r\n$-1\r\n"), func(r *Reply) error {
		replies = append(replies, r)
		return nil
	})
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(replies) != 3 {
		t.Fatalf("got %d replies, want 3", len(replies))
	}
	if replies[0].Status != "OK" || replies[1].Integer != 7 || !replies[2].IsNil() {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestCodecBadTypeByteIsFatal(t *testing.T) {
	c := NewCodec("utf-8", true)
	err := c.Feed([]byte("!nope\r\n"), func(*Reply) error { return nil })
	if err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestEncodeCommandBasicTypes(t *testing.T) {
	buf, err := EncodeCommand("utf-8", "SET", "key", 42, 3.5, []byte("raw"), true)
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	want := "*6\r\n" +
		"$3\r\nSET\r\n" +
		"$3\r\nkey\r\n" +
		"$2\r\n42\r\n" +
		"$3\r\n3.5\r\n" +
		"$3\r\nraw\r\n" +
		"$1\r\n1\r\n"
	if string(buf) != want {
		t.Fatalf("got %q,\nwant %q", buf, want)
	}
}

func TestEncodeCommandRejectsUnencodableType(t *testing.T) {
	_, err := EncodeCommand("utf-8", "SET", "key", struct{}{})
	if !IsKind(err, KindInvalidData) {
		t.Fatalf("got %v, want KindInvalidData", err)
	}
}

func TestEncodeCommandRejectsNonUTF8UnderCharset(t *testing.T) {
	_, err := EncodeCommand("utf-8", "SET", "key", string([]byte{0xff, 0xfe}))
	if !IsKind(err, KindInvalidData) {
		t.Fatalf("got %v, want KindInvalidData", err)
	}
}

func TestEncodeCommandBinaryPassthroughAllowsAnyBytes(t *testing.T) {
	_, err := EncodeCommand("", "SET", "key", string([]byte{0xff, 0xfe}))
	if err != nil {
		t.Fatalf("binary passthrough should accept arbitrary bytes: %v", err)
	}
}
