package td

import (
    "bytes"
    "encoding/json"
    "fmt"
)

// Ops is a set of operation tags. In JSON it may be a single string or an array.
type Ops []string

func (o *Ops) UnmarshalJSON(b []byte) error {
    var one string
    if err := json.Unmarshal(b, &one); err == nil {
        *o = Ops{one}
        return nil
    }
    var many []string
    if err := json.Unmarshal(b, &many); err != nil { return fmt.Errorf("op: %w", err) }
    *o = many
    return nil
}

// UnmarshalJSON accepts the legacy "mediaType" key as an alias of "contentType".
func (f *Form) UnmarshalJSON(b []byte) error {
    type plain Form
    var aux struct {
        plain
        MediaType string `json:"mediaType"`
    }
    if err := json.Unmarshal(b, &aux); err != nil { return err }
    *f = Form(aux.plain)
    if f.ContentType == "" { f.ContentType = aux.MediaType }
    return nil
}

// UnmarshalJSON keeps the raw scheme fields in Extra.
func (s *SecurityScheme) UnmarshalJSON(b []byte) error {
    type plain SecurityScheme
    var p plain
    if err := json.Unmarshal(b, &p); err != nil { return err }
    var extra map[string]any
    if err := json.Unmarshal(b, &extra); err != nil { return err }
    delete(extra, "scheme"); delete(extra, "in"); delete(extra, "name")
    if len(extra) > 0 { p.Extra = extra }
    *s = SecurityScheme(p)
    return nil
}

func (s SecurityScheme) MarshalJSON() ([]byte, error) {
    m := make(map[string]any, len(s.Extra)+3)
    for k, v := range s.Extra { m[k] = v }
    m["scheme"] = s.Scheme
    if s.In != "" { m["in"] = s.In }
    if s.Name != "" { m["name"] = s.Name }
    return json.Marshal(m)
}

// securityRef is one entry of "security": a definition name or an inline scheme.
type securityRef struct {
    name   string
    inline *SecurityScheme
}

// securityRefs decodes "security" leniently. It may be a string, an object,
// or an array mixing both; entries of any other shape are skipped.
type securityRefs []securityRef

func (s *securityRefs) UnmarshalJSON(b []byte) error {
    var raws []json.RawMessage
    if err := json.Unmarshal(b, &raws); err != nil { raws = []json.RawMessage{b} }
    out := make(securityRefs, 0, len(raws))
    for _, raw := range raws {
        var name string
        if err := json.Unmarshal(raw, &name); err == nil {
            if name != "" { out = append(out, securityRef{name: name}) }
            continue
        }
        var sc SecurityScheme
        if err := json.Unmarshal(raw, &sc); err == nil && sc.Scheme != "" {
            out = append(out, securityRef{inline: &sc})
        }
    }
    *s = out
    return nil
}

func (s securityRefs) MarshalJSON() ([]byte, error) {
    names := make([]string, 0, len(s))
    for _, r := range s { names = append(names, r.name) }
    if len(names) == 1 { return json.Marshal(names[0]) }
    return json.Marshal(names)
}

func refsOf(names []string) securityRefs {
    out := make(securityRefs, 0, len(names))
    for _, n := range names { out = append(out, securityRef{name: n}) }
    return out
}

// resolveSecurity turns refs into definition names. Inline schemes are stored
// under "<scheme>_sc", suffixed with an index when that name is taken.
func (t *Thing) resolveSecurity(refs securityRefs) {
    for _, r := range refs {
        if r.inline == nil {
            t.Security = append(t.Security, r.name)
            continue
        }
        if t.SecurityDefinitions == nil { t.SecurityDefinitions = make(map[string]SecurityScheme) }
        base := r.inline.Scheme + "_sc"
        name := base
        for i := 1; ; i++ {
            if _, taken := t.SecurityDefinitions[name]; !taken { break }
            name = fmt.Sprintf("%s%d", base, i)
        }
        t.SecurityDefinitions[name] = *r.inline
        t.Security = append(t.Security, name)
    }
}

type thingDoc struct {
    Context             any                        `json:"@context,omitempty"`
    Type                any                        `json:"@type,omitempty"`
    ID                  string                     `json:"id,omitempty"`
    Title               string                     `json:"title,omitempty"`
    Name                string                     `json:"name,omitempty"`
    Description         string                     `json:"description,omitempty"`
    Base                string                     `json:"base,omitempty"`
    SecurityDefinitions map[string]SecurityScheme  `json:"securityDefinitions,omitempty"`
    Security            securityRefs               `json:"security,omitempty"`
    Properties          json.RawMessage            `json:"properties,omitempty"`
    Actions             json.RawMessage            `json:"actions,omitempty"`
    Events              json.RawMessage            `json:"events,omitempty"`
}

// Parse decodes a TD document. A legacy "name" is used when "title" is missing.
func Parse(b []byte) (*Thing, error) {
    var t Thing
    if err := json.Unmarshal(b, &t); err != nil { return nil, fmt.Errorf("parse thing description: %w", err) }
    t.FillDefaults()
    return &t, nil
}

func (t *Thing) UnmarshalJSON(b []byte) error {
    var doc thingDoc
    if err := json.Unmarshal(b, &doc); err != nil { return err }
    *t = Thing{
        Context:             doc.Context,
        Type:                doc.Type,
        ID:                  doc.ID,
        Title:               doc.Title,
        Description:         doc.Description,
        Base:                doc.Base,
        SecurityDefinitions: doc.SecurityDefinitions,
    }
    t.resolveSecurity(doc.Security)
    if t.Title == "" { t.Title = doc.Name }
    t.ensureMaps()
    if err := decodeOrdered(doc.Properties, func(name string, raw json.RawMessage) error {
        var p PropertyAffordance
        if err := json.Unmarshal(raw, &p); err != nil { return err }
        t.SetProperty(name, &p)
        return nil
    }); err != nil {
        return fmt.Errorf("properties: %w", err)
    }
    if err := decodeOrdered(doc.Actions, func(name string, raw json.RawMessage) error {
        var a ActionAffordance
        if err := json.Unmarshal(raw, &a); err != nil { return err }
        t.SetAction(name, &a)
        return nil
    }); err != nil {
        return fmt.Errorf("actions: %w", err)
    }
    if err := decodeOrdered(doc.Events, func(name string, raw json.RawMessage) error {
        var e EventAffordance
        if err := json.Unmarshal(raw, &e); err != nil { return err }
        t.SetEvent(name, &e)
        return nil
    }); err != nil {
        return fmt.Errorf("events: %w", err)
    }
    return nil
}

// decodeOrdered walks a JSON object member by member, preserving document order.
func decodeOrdered(raw json.RawMessage, fn func(string, json.RawMessage) error) error {
    if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) { return nil }
    dec := json.NewDecoder(bytes.NewReader(raw))
    tok, err := dec.Token()
    if err != nil { return err }
    if d, ok := tok.(json.Delim); !ok || d != '{' { return fmt.Errorf("expected object") }
    for dec.More() {
        tok, err := dec.Token()
        if err != nil { return err }
        name, _ := tok.(string)
        var member json.RawMessage
        if err := dec.Decode(&member); err != nil { return err }
        if err := fn(name, member); err != nil { return fmt.Errorf("%s: %w", name, err) }
    }
    return nil
}

func (t Thing) MarshalJSON() ([]byte, error) {
    doc := thingDoc{
        Context:             t.Context,
        Type:                t.Type,
        ID:                  t.ID,
        Title:               t.Title,
        Description:         t.Description,
        Base:                t.Base,
        SecurityDefinitions: t.SecurityDefinitions,
        Security:            refsOf(t.Security),
    }
    var err error
    if doc.Properties, err = encodeOrdered(t.PropertyNames(), func(n string) any { return t.Properties[n] }); err != nil { return nil, err }
    if doc.Actions, err = encodeOrdered(t.ActionNames(), func(n string) any { return t.Actions[n] }); err != nil { return nil, err }
    if doc.Events, err = encodeOrdered(t.EventNames(), func(n string) any { return t.Events[n] }); err != nil { return nil, err }
    return json.Marshal(doc)
}

func encodeOrdered(names []string, get func(string) any) (json.RawMessage, error) {
    if len(names) == 0 { return nil, nil }
    var buf bytes.Buffer
    buf.WriteByte('{')
    for i, n := range names {
        if i > 0 { buf.WriteByte(',') }
        k, _ := json.Marshal(n)
        buf.Write(k)
        buf.WriteByte(':')
        v, err := json.Marshal(get(n))
        if err != nil { return nil, fmt.Errorf("%s: %w", n, err) }
        buf.Write(v)
    }
    buf.WriteByte('}')
    return buf.Bytes(), nil
}
