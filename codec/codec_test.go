package codec

import (
	"errors"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type student struct {
	Name    string    `json:"name" msgpack:"name" cbor:"name"`
	Age     int       `json:"age" msgpack:"age" cbor:"age"`
	Tags    []string  `json:"tags" msgpack:"tags" cbor:"tags"`
	Created time.Time `json:"created" msgpack:"created" cbor:"created"`
}

func TestStructCodecsRoundTrip(t *testing.T) {
	in := student{
		Name:    "Kadir",
		Age:     12,
		Tags:    []string{"admin", "user"},
		Created: time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
	}

	codecs := map[string]Codec[student]{
		"json":    JSON[student]{},
		"msgpack": Msgpack[student]{},
		"cbor":    MustCBOR[student](true),
	}
	for name, cd := range codecs {
		t.Run(name, func(t *testing.T) {
			b, err := cd.Encode(in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			out, err := cd.Decode(b)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out.Name != in.Name || out.Age != in.Age || len(out.Tags) != 2 || !out.Created.Equal(in.Created) {
				t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
			}
		})
	}
}

func TestJSONIsText(t *testing.T) {
	b, err := JSON[student]{}.Encode(student{Name: "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"name":"Ada"`) {
		t.Fatalf("unexpected payload %s", b)
	}
}

func TestProtobufRoundTrip(t *testing.T) {
	cd := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	b, err := cd.Encode(wrapperspb.String("hello"))
	if err != nil {
		t.Fatal(err)
	}
	out, err := cd.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if !proto.Equal(out, wrapperspb.String("hello")) {
		t.Fatalf("got %v", out)
	}
}

func TestLimitRejectsOversizedDecode(t *testing.T) {
	cd := Limit[string]{Inner: String{}, MaxDecode: 4}
	if _, err := cd.Decode([]byte("12345")); err == nil {
		t.Fatalf("expected error for payload over limit")
	}
	got, err := cd.Decode([]byte("1234"))
	if err != nil || got != "1234" {
		t.Fatalf("got %q err=%v", got, err)
	}

	unlimited := Limit[string]{Inner: String{}}
	if _, err := unlimited.Decode([]byte(strings.Repeat("x", 1<<16))); err != nil {
		t.Fatalf("MaxDecode=0 must not limit: %v", err)
	}
}

func TestDecodeErrorSurfaces(t *testing.T) {
	if _, err := (JSON[student]{}).Decode([]byte("{not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestByName(t *testing.T) {
	for _, name := range append(Names(), "") {
		cd, err := ByName[student](name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		want := name
		if want == "" {
			want = NameJSON
		}
		if got := cd.(Named).Name(); got != want {
			t.Fatalf("ByName(%q) built %q", name, got)
		}
	}
	if _, err := ByName[student]("xml"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("want ErrUnknown, got %v", err)
	}
}

func TestLimitErrorIsTooLarge(t *testing.T) {
	_, err := Limit[[]byte]{Inner: Bytes{}, MaxDecode: 1}.Decode([]byte("ab"))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("want ErrTooLarge, got %v", err)
	}
}
