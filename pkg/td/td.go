// Package td models the parts of a W3C Thing Description that the servient
// needs at runtime: affordances, their forms and security metadata.
//
// It is deliberately not a validator; documents are parsed leniently and the
// few defaults the interaction layer relies on (form operations, content type)
// are filled in by FillDefaults.
package td

import (
    "net/url"
    "sort"
    "strings"
)

// Operation tags carried by Form.Op.
const (
    OpReadProperty            = "readproperty"
    OpWriteProperty           = "writeproperty"
    OpObserveProperty         = "observeproperty"
    OpUnobserveProperty       = "unobserveproperty"
    OpInvokeAction            = "invokeaction"
    OpSubscribeEvent          = "subscribeevent"
    OpUnsubscribeEvent        = "unsubscribeevent"
    OpReadAllProperties       = "readallproperties"
    OpWriteAllProperties      = "writeallproperties"
    OpReadMultipleProperties  = "readmultipleproperties"
    OpWriteMultipleProperties = "writemultipleproperties"
)

// DefaultContentType is assumed for forms that do not declare one.
const DefaultContentType = "application/json"

// Form binds an affordance operation to a transport endpoint.
type Form struct {
    Href        string `json:"href"`
    ContentType string `json:"contentType,omitempty"`
    Op          Ops    `json:"op,omitempty"`
    Subprotocol string `json:"subprotocol,omitempty"`
}

// HasOp reports whether the form declares op.
func (f Form) HasOp(op string) bool {
    for _, o := range f.Op {
        if o == op { return true }
    }
    return false
}

// Scheme returns the lower-cased URI scheme of Href, or "" when Href has none.
func (f Form) Scheme() string {
    u, err := url.Parse(f.Href)
    if err != nil { return "" }
    return strings.ToLower(u.Scheme)
}

// DataSchema is the subset of a TD data schema kept as type hints.
type DataSchema struct {
    Type        string   `json:"type,omitempty"`
    Title       string   `json:"title,omitempty"`
    Description string   `json:"description,omitempty"`
    Unit        string   `json:"unit,omitempty"`
    Enum        []any    `json:"enum,omitempty"`
    Const       any      `json:"const,omitempty"`
    Minimum     *float64 `json:"minimum,omitempty"`
    Maximum     *float64 `json:"maximum,omitempty"`
    ReadOnly    bool     `json:"readOnly,omitempty"`
    WriteOnly   bool     `json:"writeOnly,omitempty"`
}

// PropertyAffordance describes a readable/writable state item of a Thing.
type PropertyAffordance struct {
    DataSchema
    Observable bool   `json:"observable,omitempty"`
    Forms      []Form `json:"forms,omitempty"`
}

// ActionAffordance describes a function that can be invoked on a Thing.
type ActionAffordance struct {
    Title       string      `json:"title,omitempty"`
    Description string      `json:"description,omitempty"`
    Input       *DataSchema `json:"input,omitempty"`
    Output      *DataSchema `json:"output,omitempty"`
    Safe        bool        `json:"safe,omitempty"`
    Idempotent  bool        `json:"idempotent,omitempty"`
    Forms       []Form      `json:"forms,omitempty"`
}

// EventAffordance describes an event source of a Thing.
type EventAffordance struct {
    Title       string      `json:"title,omitempty"`
    Description string      `json:"description,omitempty"`
    Data        *DataSchema `json:"data,omitempty"`
    Forms       []Form      `json:"forms,omitempty"`
}

// SecurityScheme is a named entry of securityDefinitions.
type SecurityScheme struct {
    Scheme string         `json:"scheme"`
    In     string         `json:"in,omitempty"`
    Name   string         `json:"name,omitempty"`
    Extra  map[string]any `json:"-"`
}

// Thing is a parsed Thing Description. Affordance maps are keyed by name;
// declaration order is tracked separately so iteration is deterministic.
type Thing struct {
    Context             any
    Type                any
    ID                  string
    Title               string
    Description         string
    Base                string
    SecurityDefinitions map[string]SecurityScheme
    Security            []string

    Properties map[string]*PropertyAffordance
    Actions    map[string]*ActionAffordance
    Events     map[string]*EventAffordance

    propOrder   []string
    actionOrder []string
    eventOrder  []string
}

// New returns an empty Thing with the given title.
func New(title string) *Thing {
    return &Thing{
        Context:    "https://www.w3.org/2019/wot/td/v1",
        Title:      title,
        Properties: make(map[string]*PropertyAffordance),
        Actions:    make(map[string]*ActionAffordance),
        Events:     make(map[string]*EventAffordance),
    }
}

func (t *Thing) ensureMaps() {
    if t.Properties == nil { t.Properties = make(map[string]*PropertyAffordance) }
    if t.Actions == nil { t.Actions = make(map[string]*ActionAffordance) }
    if t.Events == nil { t.Events = make(map[string]*EventAffordance) }
}

// SetProperty adds or replaces a property; a new name is appended to the
// declaration order.
func (t *Thing) SetProperty(name string, p *PropertyAffordance) {
    t.ensureMaps()
    if _, ok := t.Properties[name]; !ok { t.propOrder = append(t.propOrder, name) }
    t.Properties[name] = p
}

// SetAction adds or replaces an action.
func (t *Thing) SetAction(name string, a *ActionAffordance) {
    t.ensureMaps()
    if _, ok := t.Actions[name]; !ok { t.actionOrder = append(t.actionOrder, name) }
    t.Actions[name] = a
}

// SetEvent adds or replaces an event.
func (t *Thing) SetEvent(name string, e *EventAffordance) {
    t.ensureMaps()
    if _, ok := t.Events[name]; !ok { t.eventOrder = append(t.eventOrder, name) }
    t.Events[name] = e
}

func (t *Thing) DeleteProperty(name string) {
    delete(t.Properties, name)
    t.propOrder = without(t.propOrder, name)
}

func (t *Thing) DeleteAction(name string) {
    delete(t.Actions, name)
    t.actionOrder = without(t.actionOrder, name)
}

func (t *Thing) DeleteEvent(name string) {
    delete(t.Events, name)
    t.eventOrder = without(t.eventOrder, name)
}

// PropertyNames returns property names in declaration order.
func (t *Thing) PropertyNames() []string { return ordered(t.propOrder, t.Properties) }

// ActionNames returns action names in declaration order.
func (t *Thing) ActionNames() []string { return ordered(t.actionOrder, t.Actions) }

// EventNames returns event names in declaration order.
func (t *Thing) EventNames() []string { return ordered(t.eventOrder, t.Events) }

// FillDefaults applies the implicit TD defaults to every form: content type
// and the operations an op-less form stands for.
func (t *Thing) FillDefaults() {
    t.ensureMaps()
    for _, p := range t.Properties {
        ops := Ops{OpReadProperty, OpWriteProperty}
        switch {
        case p.ReadOnly:
            ops = Ops{OpReadProperty}
        case p.WriteOnly:
            ops = Ops{OpWriteProperty}
        }
        fillForms(p.Forms, ops)
    }
    for _, a := range t.Actions {
        fillForms(a.Forms, Ops{OpInvokeAction})
    }
    for _, e := range t.Events {
        fillForms(e.Forms, Ops{OpSubscribeEvent})
    }
}

func fillForms(forms []Form, ops Ops) {
    for i := range forms {
        if forms[i].ContentType == "" { forms[i].ContentType = DefaultContentType }
        if len(forms[i].Op) == 0 { forms[i].Op = append(Ops(nil), ops...) }
    }
}

// ResolveHref resolves a possibly relative form href against the Thing base.
func (t *Thing) ResolveHref(href string) (string, error) {
    u, err := url.Parse(href)
    if err != nil { return "", err }
    if u.IsAbs() || t.Base == "" { return href, nil }
    base, err := url.Parse(t.Base)
    if err != nil { return "", err }
    return base.ResolveReference(u).String(), nil
}

// Clone returns a deep copy of the Thing.
func (t *Thing) Clone() *Thing {
    if t == nil { return nil }
    out := &Thing{
        Context:     t.Context,
        Type:        t.Type,
        ID:          t.ID,
        Title:       t.Title,
        Description: t.Description,
        Base:        t.Base,
        Security:    append([]string(nil), t.Security...),
    }
    if t.SecurityDefinitions != nil {
        out.SecurityDefinitions = make(map[string]SecurityScheme, len(t.SecurityDefinitions))
        for k, v := range t.SecurityDefinitions { out.SecurityDefinitions[k] = v }
    }
    out.ensureMaps()
    for _, n := range t.PropertyNames() {
        p := *t.Properties[n]
        p.Forms = cloneForms(p.Forms)
        out.SetProperty(n, &p)
    }
    for _, n := range t.ActionNames() {
        a := *t.Actions[n]
        a.Forms = cloneForms(a.Forms)
        out.SetAction(n, &a)
    }
    for _, n := range t.EventNames() {
        e := *t.Events[n]
        e.Forms = cloneForms(e.Forms)
        out.SetEvent(n, &e)
    }
    return out
}

func cloneForms(in []Form) []Form {
    if in == nil { return nil }
    out := make([]Form, len(in))
    for i, f := range in {
        f.Op = append(Ops(nil), f.Op...)
        out[i] = f
    }
    return out
}

// SecuritySchemes returns the definitions referenced by Security, in order.
func (t *Thing) SecuritySchemes() []SecurityScheme {
    out := make([]SecurityScheme, 0, len(t.Security))
    for _, name := range t.Security {
        if s, ok := t.SecurityDefinitions[name]; ok { out = append(out, s) }
    }
    return out
}

func ordered[V any](order []string, m map[string]V) []string {
    out := make([]string, 0, len(m))
    seen := make(map[string]struct{}, len(m))
    for _, n := range order {
        if _, ok := m[n]; ok {
            if _, dup := seen[n]; !dup {
                out = append(out, n)
                seen[n] = struct{}{}
            }
        }
    }
    if len(out) == len(m) { return out }
    // names inserted directly into the map go last, sorted
    var rest []string
    for n := range m {
        if _, ok := seen[n]; !ok { rest = append(rest, n) }
    }
    sort.Strings(rest)
    return append(out, rest...)
}

func without(in []string, name string) []string {
    out := in[:0]
    for _, n := range in {
        if n != name { out = append(out, n) }
    }
    return out
}
