package content

import (
    "fmt"

    "google.golang.org/protobuf/proto"
    "google.golang.org/protobuf/types/known/structpb"
)

type protoCodec struct {
    mo proto.MarshalOptions
    uo proto.UnmarshalOptions
}

// Proto returns a Protocol Buffers codec with deterministic marshaling.
// Content-Type: application/x-protobuf
//
// proto.Message values are marshaled as-is; any other value travels as a
// google.protobuf.Value, which is also what decoding into *any unwraps.
func Proto() Codec {
    return protoCodec{
        mo: proto.MarshalOptions{Deterministic: true},
        uo: proto.UnmarshalOptions{},
    }
}

func (p protoCodec) ContentType() string { return TypeProto }

func (p protoCodec) Marshal(v any) ([]byte, error) {
    if msg, ok := v.(proto.Message); ok { return p.mo.Marshal(msg) }
    sv, err := structpb.NewValue(v)
    if err != nil { return nil, fmt.Errorf("protobuf: %w", err) }
    return p.mo.Marshal(sv)
}

func (p protoCodec) Unmarshal(data []byte, v any) error {
    switch out := v.(type) {
    case proto.Message:
        return p.uo.Unmarshal(data, out)
    case *any:
        var sv structpb.Value
        if err := p.uo.Unmarshal(data, &sv); err != nil { return err }
        *out = sv.AsInterface()
        return nil
    default:
        return fmt.Errorf("protobuf: target does not implement proto.Message: %T", v)
    }
}
