package content

import (
    "errors"
    "testing"

    "google.golang.org/protobuf/types/known/structpb"

    "github.com/eclipse/thingweb.node-wot/pkg/td"
    "github.com/eclipse/thingweb.node-wot/pkg/wot"
)

func TestJSONRoundTrip(t *testing.T) {
    r := NewRegistry()
    cases := []struct {
        name string
        in   any
        want any
    }{
        {"number", 42, float64(42)},
        {"string", "XYZ", "XYZ"},
        {"bool", true, true},
        {"nil", nil, nil},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            c, err := r.Encode(TypeJSON, tc.in)
            if err != nil { t.Fatalf("encode: %v", err) }
            out, err := r.Decode(c)
            if err != nil { t.Fatalf("decode: %v", err) }
            if out != tc.want { t.Fatalf("roundtrip mismatch: got %#v want %#v", out, tc.want) }
        })
    }
}

func TestJSONStructured(t *testing.T) {
    r := NewRegistry()
    c, err := r.Encode(TypeJSON, map[string]any{"a": 1, "b": []any{"x", 2}})
    if err != nil { t.Fatalf("encode: %v", err) }
    out, err := r.Decode(c)
    if err != nil { t.Fatalf("decode: %v", err) }
    m, ok := out.(map[string]any)
    if !ok { t.Fatalf("expected map, got %T", out) }
    if m["a"].(float64) != 1 { t.Fatalf("a mismatch: %#v", m) }
    if l := m["b"].([]any); len(l) != 2 || l[0] != "x" { t.Fatalf("b mismatch: %#v", m) }
}

func TestJSONPlainStringFallback(t *testing.T) {
    r := NewRegistry()
    out, err := r.Decode(Content{Type: TypeJSON, Body: []byte("triggered")})
    if err != nil { t.Fatalf("decode: %v", err) }
    if out != "triggered" { t.Fatalf("got %#v", out) }

    out, err = r.Decode(Content{Type: TypeJSON, Body: nil})
    if err != nil || out != nil { t.Fatalf("empty body: %#v %v", out, err) }

    _, err = r.Decode(Content{Type: TypeJSON, Body: []byte{0xff, 0xfe, '{'}})
    if !errors.Is(err, wot.ErrDecode) { t.Fatalf("expected ErrDecode, got %v", err) }
}

func TestUnsupportedMediaType(t *testing.T) {
    r := NewRegistry()
    if _, err := r.Encode("application/x-unknown", 1); !errors.Is(err, wot.ErrUnsupportedMediaType) {
        t.Fatalf("expected ErrUnsupportedMediaType, got %v", err)
    }
}

func TestUnknownMediaTypeDecodesAsText(t *testing.T) {
    r := NewRegistry()
    out, err := r.Decode(Content{Type: "application/x-unknown", Body: []byte("hello")})
    if err != nil || out != "hello" { t.Fatalf("got %#v %v", out, err) }

    _, err = r.Decode(Content{Type: "application/x-unknown", Body: []byte{0xc3, 0x28}})
    if !errors.Is(err, wot.ErrDecode) { t.Fatalf("expected ErrDecode, got %v", err) }
}

func TestMediaTypeParametersIgnored(t *testing.T) {
    r := NewRegistry()
    out, err := r.Decode(Content{Type: "Application/JSON; charset=utf-8", Body: []byte("7")})
    if err != nil || out != float64(7) { t.Fatalf("got %#v %v", out, err) }
}

func TestTDDecodesToThing(t *testing.T) {
    r := NewRegistry()
    out, err := r.Decode(Content{Type: TypeTD, Body: []byte(`{"title":"aThing","properties":{"p":{"type":"integer"}}}`)})
    if err != nil { t.Fatalf("decode: %v", err) }
    thing, ok := out.(*td.Thing)
    if !ok { t.Fatalf("expected *td.Thing, got %T", out) }
    if thing.Title != "aThing" { t.Fatalf("title: %q", thing.Title) }
    if _, ok := thing.Properties["p"]; !ok { t.Fatalf("missing property p") }
}

func TestCBORRoundTrip(t *testing.T) {
    r := NewRegistry()
    c, err := r.Encode(TypeCBOR, map[string]any{"n": 42, "s": "x"})
    if err != nil { t.Fatalf("encode: %v", err) }
    out, err := r.Decode(c)
    if err != nil { t.Fatalf("decode: %v", err) }
    m, ok := out.(map[string]any)
    if !ok { t.Fatalf("expected map[string]any, got %T", out) }
    if m["n"] != uint64(42) || m["s"] != "x" { t.Fatalf("roundtrip mismatch: %#v", m) }
}

func TestProtoRoundTrip(t *testing.T) {
    r := NewRegistry()
    c, err := r.Encode(TypeProto, map[string]any{"k": "v", "n": 3})
    if err != nil { t.Fatalf("encode: %v", err) }
    out, err := r.Decode(c)
    if err != nil { t.Fatalf("decode: %v", err) }
    m := out.(map[string]any)
    if m["k"] != "v" || m["n"] != float64(3) { t.Fatalf("roundtrip mismatch: %#v", m) }

    s, _ := structpb.NewStruct(map[string]any{"k": "v"})
    c, err = r.Encode(TypeProto, s)
    if err != nil { t.Fatalf("encode message: %v", err) }
    var back structpb.Struct
    if err := r.DecodeInto(c, &back); err != nil { t.Fatalf("decode message: %v", err) }
    if back.Fields["k"].GetStringValue() != "v" { t.Fatalf("message roundtrip mismatch") }
}

func TestTextCodec(t *testing.T) {
    r := NewRegistry()
    c, err := r.Encode(TypeText, 12)
    if err != nil || string(c.Body) != "12" { t.Fatalf("encode: %q %v", c.Body, err) }
    out, err := r.Decode(c)
    if err != nil || out != "12" { t.Fatalf("decode: %#v %v", out, err) }
}

type upperCodec struct{ textCodec }

func (upperCodec) ContentType() string { return TypeText }
func (upperCodec) Marshal(v any) ([]byte, error) { return []byte("UPPER"), nil }

func TestRegisterOverwrites(t *testing.T) {
    r := NewRegistry()
    r.Register(upperCodec{})
    c, err := r.Encode("text/plain", "x")
    if err != nil || string(c.Body) != "UPPER" { t.Fatalf("expected overriding codec, got %q %v", c.Body, err) }
    if got := r.SupportedMediaTypes(); len(got) != 5 { t.Fatalf("supported: %v", got) }
}
