package consumed

import (
    "sync"
    "sync/atomic"

    "github.com/eclipse/thingweb.node-wot/pkg/content"
    "github.com/eclipse/thingweb.node-wot/pkg/td"
)

// InteractionOutput wraps a returned payload. The value is decoded on first
// access, so callers can inspect the raw content without paying for it.
type InteractionOutput struct {
    raw    content.Content
    schema *td.DataSchema
    codecs *content.Registry

    once    sync.Once
    decoded atomic.Bool
    v       any
    err     error
}

func newOutput(raw content.Content, schema *td.DataSchema, codecs *content.Registry) *InteractionOutput {
    return &InteractionOutput{raw: raw, schema: schema, codecs: codecs}
}

func (o *InteractionOutput) ContentType() string { return o.raw.Type }

// Bytes returns the raw payload.
func (o *InteractionOutput) Bytes() []byte { return o.raw.Body }

// Schema returns the data schema declared for the value, or nil.
func (o *InteractionOutput) Schema() *td.DataSchema { return o.schema }

// Decoded reports whether the payload has been decoded yet.
func (o *InteractionOutput) Decoded() bool { return o.decoded.Load() }

// Value decodes the payload. The result is cached.
func (o *InteractionOutput) Value() (any, error) {
    o.once.Do(func() {
        o.v, o.err = o.decode()
        o.decoded.Store(true)
    })
    return o.v, o.err
}

// DecodeInto unmarshals the payload into a typed target.
func (o *InteractionOutput) DecodeInto(v any) error { return o.codecs.DecodeInto(o.raw, v) }

func (o *InteractionOutput) decode() (any, error) {
    if len(o.raw.Body) == 0 { return nil, nil }
    return o.codecs.Decode(o.raw)
}
