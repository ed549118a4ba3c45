package frame

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/edgerpc/internal/testutil/testlog"
)

type recorder struct {
	values []any
	raw    []byte
	err    error
	errs   int
}

func (r *recorder) decoder(limits Limits) *Decoder {
	return NewDecoder(limits, func(v any) {
		r.values = append(r.values, v)
	}, func(raw []byte, err error) {
		r.raw = raw
		r.err = err
		r.errs++
	})
}

func TestFeedSplitsConcatenatedValues(t *testing.T) {
	testlog.Start(t)
	var rec recorder
	d := rec.decoder(DefaultLimits())
	d.Feed([]byte(`{"a":1}{"b":2} [3]`))
	if len(rec.values) != 3 {
		t.Fatalf("expected 3 values, got %d: %#v", len(rec.values), rec.values)
	}
	obj, ok := rec.values[0].(map[string]any)
	if !ok || obj["a"] != json.Number("1") {
		t.Fatalf("unexpected first value: %#v", rec.values[0])
	}
	if _, ok := rec.values[2].([]any); !ok {
		t.Fatalf("expected array as third value, got %#v", rec.values[2])
	}
	if d.Buffered() != 0 {
		t.Fatalf("expected empty buffer, got %d bytes", d.Buffered())
	}
}

func TestFeedReassemblesPartialValue(t *testing.T) {
	testlog.Start(t)
	var rec recorder
	d := rec.decoder(DefaultLimits())
	msg := `{"jsonrpc":"2.0","method":"subtract","params":[42,23],"id":"1"}`
	for i := 0; i < len(msg); i++ {
		d.Feed([]byte{msg[i]})
		if i < len(msg)-1 && len(rec.values) != 0 {
			t.Fatalf("value delivered early at byte %d", i)
		}
	}
	if len(rec.values) != 1 {
		t.Fatalf("expected one value, got %d", len(rec.values))
	}
	if rec.errs != 0 {
		t.Fatalf("unexpected parse error: %v", rec.err)
	}
}

func TestFeedMalformedJSONSwitchesToIgnoring(t *testing.T) {
	testlog.Start(t)
	var rec recorder
	d := rec.decoder(DefaultLimits())
	chunk := []byte(`{"jsonrpc": "2.0", "method": "foobar, "params": "bar", "baz]`)
	d.Feed(chunk)
	if rec.errs != 1 || !errors.Is(rec.err, ErrSyntax) {
		t.Fatalf("expected one syntax error, got errs=%d err=%v", rec.errs, rec.err)
	}
	if string(rec.raw) != string(chunk) {
		t.Fatalf("unexpected raw chunk: %q", rec.raw)
	}
	if d.State() != StateIgnoring {
		t.Fatalf("expected ignoring state, got %s", d.State())
	}

	d.Feed([]byte(`{"a":1}`))
	if len(rec.values) != 0 || rec.errs != 1 {
		t.Fatalf("ignoring decoder must discard input, values=%d errs=%d", len(rec.values), rec.errs)
	}
}

func TestFeedDeliversValuesBeforeSyntaxError(t *testing.T) {
	testlog.Start(t)
	var rec recorder
	d := rec.decoder(DefaultLimits())
	d.Feed([]byte(`{"a":1} }`))
	if len(rec.values) != 1 {
		t.Fatalf("expected the leading value, got %d", len(rec.values))
	}
	if rec.errs != 1 {
		t.Fatalf("expected trailing garbage to fail, errs=%d", rec.errs)
	}
}

func TestIgnoreFromValueCallbackStopsDelivery(t *testing.T) {
	testlog.Start(t)
	var values int
	var d *Decoder
	d = NewDecoder(DefaultLimits(), func(v any) {
		values++
		if _, ok := v.([]any); ok {
			d.Ignore()
		}
	}, nil)
	d.Feed([]byte(`{"a":1}[1,2]{"b":2}`))
	if values != 2 {
		t.Fatalf("expected delivery to stop after the array, got %d values", values)
	}
	if d.State() != StateIgnoring {
		t.Fatalf("expected ignoring state, got %s", d.State())
	}
}

func TestFeedEnforcesValueLimit(t *testing.T) {
	testlog.Start(t)
	var rec recorder
	d := rec.decoder(Limits{MaxValueBytes: 16})
	d.Feed([]byte(`{"payload":"0123456789abcdef`))
	if rec.errs != 1 || !errors.Is(rec.err, ErrValueTooLarge) {
		t.Fatalf("expected ErrValueTooLarge, got errs=%d err=%v", rec.errs, rec.err)
	}
}

func TestFeedWhitespaceOnly(t *testing.T) {
	testlog.Start(t)
	var rec recorder
	d := rec.decoder(DefaultLimits())
	d.Feed([]byte("  \r\n\t "))
	if len(rec.values) != 0 || rec.errs != 0 || d.Buffered() != 0 {
		t.Fatalf("whitespace must be consumed silently: values=%d errs=%d buffered=%d", len(rec.values), rec.errs, d.Buffered())
	}
}

func TestFeedLargeValueInSmallChunksIsLinear(t *testing.T) {
	testlog.Start(t)
	var rec recorder
	d := rec.decoder(DefaultLimits())
	msg := []byte(`{"jsonrpc":"2.0","id":"1","method":"echo","params":["` + strings.Repeat("a", 4<<20) + `"]}`)

	start := time.Now()
	for len(msg) > 0 {
		n := min(1024, len(msg))
		d.Feed(msg[:n])
		msg = msg[n:]
	}
	elapsed := time.Since(start)

	if rec.errs != 0 || len(rec.values) != 1 {
		t.Fatalf("expected one value, got values=%d errs=%d err=%v", len(rec.values), rec.errs, rec.err)
	}
	if elapsed > 3*time.Second {
		t.Fatalf("4 MiB value in 1 KiB chunks took %v", elapsed)
	}
}

func TestFeedTopLevelNumberSplitAcrossReads(t *testing.T) {
	testlog.Start(t)
	var rec recorder
	d := rec.decoder(DefaultLimits())
	d.Feed([]byte("12"))
	if len(rec.values) != 0 || d.Buffered() != 2 {
		t.Fatalf("number at end of input must stay pending: values=%v buffered=%d", rec.values, d.Buffered())
	}
	d.Feed([]byte("34 "))
	if len(rec.values) != 1 || rec.values[0] != json.Number("1234") {
		t.Fatalf("expected a single 1234, got %#v", rec.values)
	}

	d.Feed([]byte(`-1.5e`))
	d.Feed([]byte(`3{"a":1}`))
	if len(rec.values) != 3 || rec.values[1] != json.Number("-1.5e3") {
		t.Fatalf("expected -1.5e3 then an object, got %#v", rec.values)
	}
	if rec.errs != 0 {
		t.Fatalf("unexpected error: %v", rec.err)
	}
}

func TestFeedScalarsAndNesting(t *testing.T) {
	testlog.Start(t)
	var rec recorder
	d := rec.decoder(DefaultLimits())
	d.Feed([]byte(`true null "s\"}]" {"a":[{"b":{}},[]],"c":"\u00e9"} 0 `))
	if rec.errs != 0 {
		t.Fatalf("unexpected error: %v", rec.err)
	}
	if len(rec.values) != 5 {
		t.Fatalf("expected 5 values, got %d: %#v", len(rec.values), rec.values)
	}
	if rec.values[0] != true || rec.values[1] != nil || rec.values[2] != `s"}]` {
		t.Fatalf("unexpected scalars: %#v", rec.values[:3])
	}
	obj, ok := rec.values[3].(map[string]any)
	if !ok || obj["c"] != "é" {
		t.Fatalf("unexpected object: %#v", rec.values[3])
	}
}

func TestFeedRejectsMalformedInputEarly(t *testing.T) {
	testlog.Start(t)
	cases := []string{
		`{oops`,
		`{"a" 1`,
		`{"a":1,}`,
		`[1,,2`,
		`[1}`,
		`tru x`,
		`[01]`,
		`-x`,
		`"\q"`,
		"\"line\nbreak",
		`}`,
	}
	for _, in := range cases {
		var rec recorder
		d := rec.decoder(DefaultLimits())
		d.Feed([]byte(in))
		if rec.errs != 1 || !errors.Is(rec.err, ErrSyntax) {
			t.Fatalf("%q: expected a syntax error, got errs=%d err=%v values=%#v", in, rec.errs, rec.err, rec.values)
		}
		if d.State() != StateIgnoring {
			t.Fatalf("%q: expected ignoring state", in)
		}
	}
}

func TestFeedRejectsInvalidUTF8(t *testing.T) {
	testlog.Start(t)
	var rec recorder
	d := rec.decoder(DefaultLimits())
	d.Feed([]byte("{\"method\":\"a\xff\"}"))
	if rec.errs != 1 || !errors.Is(rec.err, ErrSyntax) {
		t.Fatalf("expected invalid UTF-8 to fail, got errs=%d err=%v values=%#v", rec.errs, rec.err, rec.values)
	}
	if len(rec.values) != 0 {
		t.Fatalf("no value may be delivered, got %#v", rec.values)
	}
}
