package exposed

import (
    "context"
    "errors"
    "fmt"
    "strings"

    "go.uber.org/multierr"
    "go.uber.org/zap"

    "github.com/eclipse/thingweb.node-wot/pkg/td"
    "github.com/eclipse/thingweb.node-wot/pkg/transport"
)

type affordanceKind int

const (
    kindThing affordanceKind = iota
    kindProperty
    kindAction
    kindEvent
)

var errDestroyed = errors.New("thing destroyed")

// Slug turns a Thing title into the path segment its resources live under.
func Slug(title string) string {
    s := strings.ToLower(strings.TrimSpace(title))
    s = strings.Map(func(r rune) rune {
        switch {
        case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
            return r
        default:
            return '-'
        }
    }, s)
    if s == "" { return "thing" }
    return s
}

func affordancePath(title string, kind affordanceKind, name string) string {
    base := Slug(title)
    switch kind {
    case kindProperty:
        return base + "/properties/" + name
    case kindAction:
        return base + "/actions/" + name
    case kindEvent:
        return base + "/events/" + name
    default:
        return base
    }
}

// Expose binds the Thing and each of its affordances into every registered
// server and adds the matching forms to the TD. Affordances added later are
// bound as they are added.
func (t *Thing) Expose(ctx context.Context) error {
    if err := ctx.Err(); err != nil { return err }
    t.mu.Lock()
    if t.destroyed {
        t.mu.Unlock()
        return errDestroyed
    }
    if t.exposed {
        t.mu.Unlock()
        return nil
    }
    t.exposed = true
    props, actions, events := t.desc.PropertyNames(), t.desc.ActionNames(), t.desc.EventNames()
    t.mu.Unlock()

    var err error
    err = multierr.Append(err, t.bindAffordance(kindThing, ""))
    for _, n := range props { err = multierr.Append(err, t.bindAffordance(kindProperty, n)) }
    for _, n := range actions { err = multierr.Append(err, t.bindAffordance(kindAction, n)) }
    for _, n := range events { err = multierr.Append(err, t.bindAffordance(kindEvent, n)) }

    t.mu.RLock()
    n := len(t.bound)
    t.mu.RUnlock()
    t.log.Info("thing exposed", zap.Int("resources", n), zap.Error(err))
    return err
}

func (t *Thing) bindAffordance(kind affordanceKind, name string) error {
    var err error
    title := t.Title()
    path := affordancePath(title, kind, name)
    for _, s := range t.opts.servers() {
        if t.isBound(s, path) {
            t.mu.Lock()
            t.addForm(kind, name, formFor(s, path, t.opts.contentType))
            t.mu.Unlock()
            continue
        }
        l := &resourceListener{thing: t, kind: kind, name: name}
        if !s.AddResource(path, l) {
            err = multierr.Append(err, fmt.Errorf("%s: path %q already bound", s.Scheme(), path))
            continue
        }
        t.mu.Lock()
        t.bound = append(t.bound, boundResource{server: s, path: path})
        t.addForm(kind, name, formFor(s, path, t.opts.contentType))
        t.mu.Unlock()
        t.log.Debug("resource bound", zap.String("scheme", s.Scheme()), zap.String("path", path))
    }
    return err
}

func (t *Thing) isBound(s transport.Server, path string) bool {
    t.mu.RLock(); defer t.mu.RUnlock()
    for _, b := range t.bound {
        if b.server == s && b.path == path { return true }
    }
    return false
}

func (t *Thing) unbindPath(path string) {
    t.mu.Lock()
    var keep []boundResource
    var drop []boundResource
    for _, b := range t.bound {
        if b.path == path {
            drop = append(drop, b)
        } else {
            keep = append(keep, b)
        }
    }
    t.bound = keep
    t.mu.Unlock()
    for _, b := range drop { b.server.RemoveResource(b.path) }
}

func formFor(s transport.Server, path, contentType string) td.Form {
    return td.Form{
        Href:        strings.TrimRight(s.BaseURI(), "/") + "/" + path,
        ContentType: contentType,
    }
}

// addForm must be called with t.mu held.
func (t *Thing) addForm(kind affordanceKind, name string, f td.Form) {
    switch kind {
    case kindProperty:
        p, ok := t.desc.Properties[name]
        if !ok { return }
        switch {
        case p.ReadOnly:
            f.Op = td.Ops{td.OpReadProperty}
        case p.WriteOnly:
            f.Op = td.Ops{td.OpWriteProperty}
        default:
            f.Op = td.Ops{td.OpReadProperty, td.OpWriteProperty}
        }
        if p.Observable { f.Op = append(f.Op, td.OpObserveProperty, td.OpUnobserveProperty) }
        p.Forms = appendForm(p.Forms, f)
    case kindAction:
        if a, ok := t.desc.Actions[name]; ok {
            f.Op = td.Ops{td.OpInvokeAction}
            a.Forms = appendForm(a.Forms, f)
        }
    case kindEvent:
        if e, ok := t.desc.Events[name]; ok {
            f.Op = td.Ops{td.OpSubscribeEvent, td.OpUnsubscribeEvent}
            e.Forms = appendForm(e.Forms, f)
        }
    }
}

func appendForm(forms []td.Form, f td.Form) []td.Form {
    for i := range forms {
        if forms[i].Href == f.Href {
            forms[i] = f
            return forms
        }
    }
    return append(forms, f)
}
