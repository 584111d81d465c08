package content

import (
    "encoding/json"
    "fmt"

    "github.com/eclipse/thingweb.node-wot/pkg/td"
)

type tdCodec struct{}

// TD returns the codec for Thing Description payloads. Decoding always
// produces a *td.Thing, never a generic map.
func TD() Codec { return tdCodec{} }

func (tdCodec) ContentType() string { return TypeTD }
func (tdCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (tdCodec) Unmarshal(data []byte, v any) error {
    thing, err := td.Parse(data)
    if err != nil { return err }
    switch out := v.(type) {
    case *any:
        *out = thing
    case **td.Thing:
        *out = thing
    case *td.Thing:
        *out = *thing
    default:
        return fmt.Errorf("td: unsupported target %T", v)
    }
    return nil
}
