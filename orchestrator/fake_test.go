package orchestrator

import (
	"context"
	"fmt"

	"github.com/yairfalse/vigil/providers"
	"github.com/yairfalse/vigil/types"
)

// commandRemote is an in-memory remote that only knows commands
type commandRemote struct {
	pollers   map[string]bool
	commands  map[string]map[string]string
	mutations []string
	publishes []string
}

func newCommandRemote() *commandRemote {
	return &commandRemote{
		pollers:  map[string]bool{"Central": true},
		commands: make(map[string]map[string]string),
	}
}

func (r *commandRemote) ResolvePoller(_ context.Context, instance string) (*providers.Poller, error) {
	if !r.pollers[instance] {
		return nil, providers.ErrNotFound
	}
	return &providers.Poller{ID: "1", Name: instance}, nil
}

func (r *commandRemote) PublishConfig(_ context.Context, instance string) error {
	r.publishes = append(r.publishes, instance)
	return nil
}

func (r *commandRemote) Entities(kind types.Kind) (providers.EntityAPI, error) {
	if kind != types.KindCommand {
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}
	return commandAPI{r}, nil
}

type commandAPI struct {
	r *commandRemote
}

func (a commandAPI) Get(_ context.Context, id types.Identity) (*providers.Entity, bool, error) {
	attrs, ok := a.r.commands[id.Name]
	if !ok {
		return nil, false, nil
	}
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	return &providers.Entity{Identity: id, Activate: 1, Attributes: copied}, true, nil
}

func (a commandAPI) Create(_ context.Context, req providers.CreateRequest) error {
	a.r.mutations = append(a.r.mutations, "create "+req.Identity.Name)
	attrs := make(map[string]string, len(req.Attributes))
	for k, v := range req.Attributes {
		attrs[k] = v
	}
	a.r.commands[req.Identity.Name] = attrs
	return nil
}

func (a commandAPI) Delete(_ context.Context, id types.Identity) error {
	a.r.mutations = append(a.r.mutations, "delete "+id.Name)
	delete(a.r.commands, id.Name)
	return nil
}

func (a commandAPI) SetAttribute(_ context.Context, id types.Identity, name, value string) error {
	a.r.mutations = append(a.r.mutations, "set "+id.Name+" "+name)
	a.r.commands[id.Name][name] = value
	return nil
}

func (a commandAPI) Enable(context.Context, types.Identity) error  { return nil }
func (a commandAPI) Disable(context.Context, types.Identity) error { return nil }

func (a commandAPI) Associations(context.Context, types.Identity, types.AssociationKind) (map[string]types.Item, error) {
	return map[string]types.Item{}, nil
}

func (a commandAPI) AddAssociation(context.Context, types.Identity, types.AssociationKind, []string) error {
	return nil
}

func (a commandAPI) RemoveAssociation(context.Context, types.Identity, types.AssociationKind, []string) error {
	return nil
}

func (a commandAPI) Macros(context.Context, types.Identity) (map[string]types.Item, error) {
	return map[string]types.Item{}, nil
}

func (a commandAPI) SetMacro(context.Context, types.Identity, types.Item) error { return nil }
func (a commandAPI) DeleteMacro(context.Context, types.Identity, string) error  { return nil }

func (a commandAPI) Params(_ context.Context, id types.Identity, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, n := range names {
		out[n] = a.r.commands[id.Name][n]
	}
	return out, nil
}

func (a commandAPI) ApplyTemplates(context.Context, types.Identity) error { return nil }
