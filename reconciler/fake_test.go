package reconciler

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/yairfalse/vigil/providers"
	"github.com/yairfalse/vigil/types"
)

// call is one mutating operation seen by the fake remote
type call struct {
	Op     string
	Target string
	Arg    string
}

// fakeEntity is the remote state of one entity
type fakeEntity struct {
	activate int
	attrs    map[string]string
	assoc    map[types.AssociationKind]map[string]bool
	macros   map[string]types.Item
}

func newFakeEntity() *fakeEntity {
	return &fakeEntity{
		activate: 1,
		attrs:    make(map[string]string),
		assoc:    make(map[types.AssociationKind]map[string]bool),
		macros:   make(map[string]types.Item),
	}
}

// fakeClient is an in-memory remote that applies every call to its state
type fakeClient struct {
	pollers  map[string]bool
	entities map[types.Kind]map[string]*fakeEntity
	calls    []call
	reads    int

	// failOn makes the named op fail
	failOn map[string]error
	// vanishOnCreate drops created entities so the re-fetch misses
	vanishOnCreate bool
	// createDisabled makes newly created entities inactive
	createDisabled bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pollers:  map[string]bool{"Central": true},
		entities: make(map[types.Kind]map[string]*fakeEntity),
		failOn:   make(map[string]error),
	}
}

func (c *fakeClient) seed(kind types.Kind, id types.Identity) *fakeEntity {
	if c.entities[kind] == nil {
		c.entities[kind] = make(map[string]*fakeEntity)
	}
	e := newFakeEntity()
	c.entities[kind][id.String()] = e
	return e
}

func (c *fakeClient) lookup(kind types.Kind, id types.Identity) *fakeEntity {
	return c.entities[kind][id.String()]
}

func (c *fakeClient) mutate(op, target, arg string) error {
	c.calls = append(c.calls, call{Op: op, Target: target, Arg: arg})
	if err, ok := c.failOn[op]; ok {
		return err
	}
	return nil
}

func (c *fakeClient) ops() []string {
	out := make([]string, 0, len(c.calls))
	for _, cl := range c.calls {
		if cl.Arg == "" {
			out = append(out, cl.Op)
		} else {
			out = append(out, cl.Op+"("+cl.Arg+")")
		}
	}
	return out
}

func (c *fakeClient) reset() {
	c.calls = nil
	c.reads = 0
}

func (c *fakeClient) ResolvePoller(ctx context.Context, instance string) (*providers.Poller, error) {
	c.reads++
	if err, ok := c.failOn["resolve"]; ok {
		return nil, err
	}
	if !c.pollers[instance] {
		return nil, providers.ErrNotFound
	}
	return &providers.Poller{ID: "1", Name: instance}, nil
}

func (c *fakeClient) PublishConfig(ctx context.Context, instance string) error {
	return c.mutate("publish", instance, "")
}

func (c *fakeClient) Entities(kind types.Kind) (providers.EntityAPI, error) {
	if !kind.Valid() {
		return nil, errors.New("unsupported kind")
	}
	return &fakeAPI{client: c, kind: kind}, nil
}

type fakeAPI struct {
	client *fakeClient
	kind   types.Kind
}

func (a *fakeAPI) Get(ctx context.Context, id types.Identity) (*providers.Entity, bool, error) {
	a.client.reads++
	if err, ok := a.client.failOn["get"]; ok {
		return nil, false, err
	}
	e := a.client.lookup(a.kind, id)
	if e == nil {
		return nil, false, nil
	}
	attrs := make(map[string]string, len(e.attrs))
	for k, v := range e.attrs {
		attrs[k] = v
	}
	return &providers.Entity{Identity: id, Activate: e.activate, Attributes: attrs}, true, nil
}

func (a *fakeAPI) Create(ctx context.Context, req providers.CreateRequest) error {
	if err := a.client.mutate("create", req.Identity.String(), ""); err != nil {
		return err
	}
	if a.client.vanishOnCreate {
		return nil
	}
	e := a.client.seed(a.kind, req.Identity)
	if a.client.createDisabled {
		e.activate = 0
	}
	for k, v := range req.Attributes {
		e.attrs[k] = v
	}
	for _, name := range req.HostGroups {
		a.addAssoc(e, types.AssocHostGroups, name)
	}
	for _, name := range req.Templates {
		a.addAssoc(e, types.AssocTemplates, name)
	}
	return nil
}

func (a *fakeAPI) addAssoc(e *fakeEntity, kind types.AssociationKind, name string) {
	if e.assoc[kind] == nil {
		e.assoc[kind] = make(map[string]bool)
	}
	e.assoc[kind][name] = true
}

func (a *fakeAPI) Delete(ctx context.Context, id types.Identity) error {
	if err := a.client.mutate("delete", id.String(), ""); err != nil {
		return err
	}
	delete(a.client.entities[a.kind], id.String())
	return nil
}

func (a *fakeAPI) SetAttribute(ctx context.Context, id types.Identity, name, value string) error {
	if err := a.client.mutate("set", id.String(), name+"="+value); err != nil {
		return err
	}
	a.client.lookup(a.kind, id).attrs[name] = value
	return nil
}

func (a *fakeAPI) Enable(ctx context.Context, id types.Identity) error {
	if err := a.client.mutate("enable", id.String(), ""); err != nil {
		return err
	}
	a.client.lookup(a.kind, id).activate = 1
	return nil
}

func (a *fakeAPI) Disable(ctx context.Context, id types.Identity) error {
	if err := a.client.mutate("disable", id.String(), ""); err != nil {
		return err
	}
	a.client.lookup(a.kind, id).activate = 0
	return nil
}

func (a *fakeAPI) Associations(ctx context.Context, id types.Identity, kind types.AssociationKind) (map[string]types.Item, error) {
	a.client.reads++
	out := make(map[string]types.Item)
	for name := range a.client.lookup(a.kind, id).assoc[kind] {
		out[name] = types.Item{Name: name}
	}
	return out, nil
}

func (a *fakeAPI) AddAssociation(ctx context.Context, id types.Identity, kind types.AssociationKind, names []string) error {
	if err := a.client.mutate("add_"+string(kind), id.String(), strings.Join(names, "|")); err != nil {
		return err
	}
	e := a.client.lookup(a.kind, id)
	for _, name := range names {
		a.addAssoc(e, kind, name)
	}
	return nil
}

func (a *fakeAPI) RemoveAssociation(ctx context.Context, id types.Identity, kind types.AssociationKind, names []string) error {
	if err := a.client.mutate("del_"+string(kind), id.String(), strings.Join(names, "|")); err != nil {
		return err
	}
	for _, name := range names {
		delete(a.client.lookup(a.kind, id).assoc[kind], name)
	}
	return nil
}

func (a *fakeAPI) Macros(ctx context.Context, id types.Identity) (map[string]types.Item, error) {
	a.client.reads++
	out := make(map[string]types.Item)
	for k, v := range a.client.lookup(a.kind, id).macros {
		out[k] = v
	}
	return out, nil
}

func (a *fakeAPI) SetMacro(ctx context.Context, id types.Identity, macro types.Item) error {
	if err := a.client.mutate("setmacro", id.String(), macro.Name); err != nil {
		return err
	}
	key := NormalizeMacroName(MacroPrefix(a.kind), macro.Name)
	a.client.lookup(a.kind, id).macros[key] = types.Item{
		Name:        key,
		Value:       macro.Value,
		IsPassword:  macro.IsPassword,
		Description: macro.Description,
	}
	return nil
}

func (a *fakeAPI) DeleteMacro(ctx context.Context, id types.Identity, name string) error {
	if err := a.client.mutate("delmacro", id.String(), name); err != nil {
		return err
	}
	delete(a.client.lookup(a.kind, id).macros, NormalizeMacroName(MacroPrefix(a.kind), name))
	return nil
}

func (a *fakeAPI) Params(ctx context.Context, id types.Identity, names []string) (map[string]string, error) {
	a.client.reads++
	e := a.client.lookup(a.kind, id)
	out := make(map[string]string)
	for _, name := range names {
		if v, ok := e.attrs[name]; ok {
			out[name] = v
		}
	}
	return out, nil
}

func (a *fakeAPI) ApplyTemplates(ctx context.Context, id types.Identity) error {
	return a.client.mutate("applytpl", id.String(), "")
}

// sortedKeys is a test helper for deterministic map assertions
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
