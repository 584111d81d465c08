package servient

import (
    "context"

    "github.com/eclipse/thingweb.node-wot/pkg/consumed"
    "github.com/eclipse/thingweb.node-wot/pkg/exposed"
    "github.com/eclipse/thingweb.node-wot/pkg/td"
)

// Runtime is the application facing handle returned by Start.
type Runtime struct {
    s *Servient
}

func (r *Runtime) Servient() *Servient { return r.s }

func (r *Runtime) Produce(tmpl *td.Thing) (*exposed.Thing, error) { return r.s.Produce(tmpl) }

func (r *Runtime) Consume(desc *td.Thing) *consumed.Thing { return r.s.Consume(desc) }

// FetchAndConsume fetches the TD at uri and consumes it.
func (r *Runtime) FetchAndConsume(ctx context.Context, uri string) (*consumed.Thing, error) {
    desc, err := r.s.Fetch(ctx, uri)
    if err != nil { return nil, err }
    return r.s.Consume(desc), nil
}

func (r *Runtime) Fetch(ctx context.Context, uri string) (*td.Thing, error) { return r.s.Fetch(ctx, uri) }
