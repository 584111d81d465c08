package content

import (
    "fmt"
    "sort"
    "strings"
    "sync"

    "github.com/eclipse/thingweb.node-wot/pkg/wot"
)

// Codec defines a simple interface for marshaling values of one media type.
// Unmarshal into a *any yields the codec's natural Go representation.
type Codec interface {
    ContentType() string
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Registry maps media types to codecs.
type Registry struct {
    mu     sync.RWMutex
    byType map[string]Codec
}

// NewRegistry constructs a registry preloaded with the built-in codecs:
// JSON, TD, plain text, CBOR and Protobuf.
func NewRegistry() *Registry {
    r := &Registry{byType: make(map[string]Codec)}
    r.Register(JSON())
    r.Register(TD())
    r.Register(Text())
    r.Register(Proto())
    if c, err := CBOR(); err == nil { r.Register(c) }
    return r
}

// Register adds a codec; an existing codec for the same media type is replaced.
func (r *Registry) Register(c Codec) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.byType[Normalize(c.ContentType())] = c
}

// Get returns a codec by media type, or nil.
func (r *Registry) Get(mediaType string) Codec {
    r.mu.RLock()
    defer r.mu.RUnlock()
    return r.byType[Normalize(mediaType)]
}

// IsSupported reports whether a codec is registered for mediaType.
func (r *Registry) IsSupported(mediaType string) bool { return r.Get(mediaType) != nil }

// SupportedMediaTypes lists registered media types, sorted.
func (r *Registry) SupportedMediaTypes() []string {
    r.mu.RLock()
    defer r.mu.RUnlock()
    out := make([]string, 0, len(r.byType))
    for k := range r.byType { out = append(out, k) }
    sort.Strings(out)
    return out
}

// Encode serializes v with the codec registered for mediaType.
func (r *Registry) Encode(mediaType string, v any) (Content, error) {
    c := r.Get(mediaType)
    if c == nil { return Content{}, fmt.Errorf("%w: %q", wot.ErrUnsupportedMediaType, mediaType) }
    b, err := c.Marshal(v)
    if err != nil { return Content{}, fmt.Errorf("encode %s: %w", c.ContentType(), err) }
    return Content{Type: mediaType, Body: b}, nil
}

// Decode turns a payload into a value. TD payloads always decode to *td.Thing.
// Payloads of an unknown media type come back as a string when the body is
// valid UTF-8.
func (r *Registry) Decode(ct Content) (any, error) {
    c := r.Get(ct.Type)
    if c == nil {
        if s, ok := textOf(ct.Body); ok { return s, nil }
        return nil, fmt.Errorf("%w: %q payload is not text", wot.ErrDecode, ct.Type)
    }
    var v any
    if err := c.Unmarshal(ct.Body, &v); err != nil {
        return nil, fmt.Errorf("%w: %s: %v", wot.ErrDecode, c.ContentType(), err)
    }
    return v, nil
}

// DecodeInto unmarshals a payload into a typed target.
func (r *Registry) DecodeInto(ct Content, v any) error {
    c := r.Get(ct.Type)
    if c == nil { return fmt.Errorf("%w: %q", wot.ErrUnsupportedMediaType, ct.Type) }
    if err := c.Unmarshal(ct.Body, v); err != nil {
        return fmt.Errorf("%w: %s: %v", wot.ErrDecode, c.ContentType(), err)
    }
    return nil
}

// Normalize strips parameters and case from a media type:
// "Application/JSON; charset=utf-8" -> "application/json".
func Normalize(mediaType string) string {
    if i := strings.IndexByte(mediaType, ';'); i >= 0 { mediaType = mediaType[:i] }
    return strings.ToLower(strings.TrimSpace(mediaType))
}
