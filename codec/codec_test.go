package codec

import (
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type meta struct {
	W    int       `json:"w" msgpack:"w" cbor:"w"`
	H    int       `json:"h" msgpack:"h" cbor:"h"`
	Seen time.Time `json:"seen" msgpack:"seen" cbor:"seen"`
}

func roundTrip[V any](t *testing.T, c Codec[V], v V) V {
	t.Helper()
	b, err := c.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return out
}

func TestStructCodecsPreserveFields(t *testing.T) {
	in := meta{W: 100, H: 50, Seen: time.Unix(1700000000, 0).UTC()}
	codecs := map[string]Codec[meta]{
		"json":     JSON[meta]{},
		"msgpack":  Msgpack[meta]{},
		"cbor":     MustCBOR[meta](CBOROptions{}),
		"cbor-det": MustCBOR[meta](CBOROptions{Deterministic: true}),
	}
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			out := roundTrip(t, c, in)
			if out.W != in.W || out.H != in.H || !out.Seen.Equal(in.Seen) {
				t.Fatalf("got %+v want %+v", out, in)
			}
		})
	}
}

func TestDeterministicCBORIsStable(t *testing.T) {
	c := MustCBOR[map[string]int](CBOROptions{Deterministic: true})
	a, err := c.Encode(map[string]int{"b": 2, "a": 1, "c": 3})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encode(map[string]int{"c": 3, "a": 1, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Fatalf("deterministic encoding differs: %x vs %x", a, b)
	}
}

func TestCBORArrayCap(t *testing.T) {
	c := MustCBOR[[]string](CBOROptions{MaxArrayElements: 16})
	b, err := MustCBOR[[]string](CBOROptions{}).Encode(make([]string, 17))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Decode(b); err == nil {
		t.Fatalf("expected error for an array over the cap")
	}
	b, _ = c.Encode(make([]string, 16))
	if _, err := c.Decode(b); err != nil {
		t.Fatalf("array at the cap: %v", err)
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxDecode: 4}
	if _, err := c.Decode([]byte("12345")); err == nil {
		t.Fatalf("expected error for oversized payload")
	}
	got, err := c.Decode([]byte("1234"))
	if err != nil || got != "1234" {
		t.Fatalf("got %q err=%v", got, err)
	}

	off := Limit[string]{Inner: String{}}
	if _, err := off.Decode([]byte(strings.Repeat("x", 1<<16))); err != nil {
		t.Fatalf("MaxDecode=0 should disable the limit: %v", err)
	}
}

func TestBytesDecodeCopies(t *testing.T) {
	buf := []byte("abc")
	out, _ := Bytes{}.Decode(buf)
	buf[0] = 'X'
	if string(out) != "abc" {
		t.Fatalf("decode aliased the input: %q", out)
	}
}

func TestProtobuf(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	in := wrapperspb.String("https://example.com/a.png")
	out := roundTrip[*wrapperspb.StringValue](t, c, in)
	if !proto.Equal(in, out) {
		t.Fatalf("got %v want %v", out, in)
	}
}
