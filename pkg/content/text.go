package content

import (
    "fmt"
)

type textCodec struct{}

// Text returns a text/plain codec. Values are rendered with fmt when they
// are not already strings or bytes.
func Text() Codec { return textCodec{} }

func (textCodec) ContentType() string { return TypeText }

func (textCodec) Marshal(v any) ([]byte, error) {
    switch x := v.(type) {
    case nil:
        return []byte{}, nil
    case string:
        return []byte(x), nil
    case []byte:
        return append([]byte(nil), x...), nil
    default:
        return []byte(fmt.Sprint(x)), nil
    }
}

func (textCodec) Unmarshal(data []byte, v any) error {
    s, ok := textOf(data)
    if !ok { return fmt.Errorf("text: body is not valid utf-8") }
    switch out := v.(type) {
    case *any:
        *out = s
    case *string:
        *out = s
    case *[]byte:
        *out = append([]byte(nil), data...)
    default:
        return fmt.Errorf("text: unsupported target %T", v)
    }
    return nil
}
