package content

import (
    "bytes"
    "encoding/json"
    "errors"
)

type jsonCodec struct{}

// JSON returns a JSON codec (RFC 8259). Content-Type: application/json
//
// Decoding into *any is lenient: an empty body yields nil and a body that is
// not JSON but is valid UTF-8 yields the plain string.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) ContentType() string { return TypeJSON }
func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error {
    out, lenient := v.(*any)
    if lenient && len(bytes.TrimSpace(data)) == 0 {
        *out = nil
        return nil
    }
    err := json.Unmarshal(data, v)
    var syn *json.SyntaxError
    if err != nil && lenient && errors.As(err, &syn) {
        if s, ok := textOf(data); ok {
            *out = s
            return nil
        }
    }
    return err
}
