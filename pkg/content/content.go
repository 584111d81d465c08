// Package content holds the payload unit exchanged with transports and the
// media-type keyed codec registry that converts it to and from Go values.
package content

import "unicode/utf8"

// Well-known media types.
const (
    TypeJSON  = "application/json"
    TypeTD    = "application/td+json"
    TypeText  = "text/plain"
    TypeCBOR  = "application/cbor"
    TypeProto = "application/x-protobuf"
)

// Content is the only payload shape that crosses a transport boundary.
type Content struct {
    Type string
    Body []byte
}

// String renders the body as text for logs.
func (c Content) String() string {
    if s, ok := textOf(c.Body); ok { return c.Type + ": " + s }
    return c.Type + ": <binary>"
}

func textOf(b []byte) (string, bool) {
    if !utf8.Valid(b) { return "", false }
    return string(b), true
}
