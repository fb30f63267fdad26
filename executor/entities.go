package executor

import (
	"context"

	"github.com/yairfalse/vigil/providers"
	"github.com/yairfalse/vigil/types"
)

// journaledAPI routes every mutating call of one kind through the engine
type journaledAPI struct {
	engine *Engine
	kind   types.Kind
	api    providers.EntityAPI
}

var _ providers.EntityAPI = (*journaledAPI)(nil)

func (j *journaledAPI) op(action string, id types.Identity) types.Operation {
	return types.Operation{Action: action, Kind: j.kind, Target: id.String()}
}

// Get returns the remote entity. During a dry run an entity whose creation
// was skipped is reported as it would have been created.
func (j *journaledAPI) Get(ctx context.Context, id types.Identity) (*providers.Entity, bool, error) {
	if req, ok := j.engine.plannedEntity(j.kind, id); ok {
		attrs := make(map[string]string, len(req.Attributes))
		for k, v := range req.Attributes {
			attrs[k] = v
		}
		return &providers.Entity{Identity: id, Activate: 1, Attributes: attrs}, true, nil
	}
	return j.api.Get(ctx, id)
}

func (j *journaledAPI) Create(ctx context.Context, req providers.CreateRequest) error {
	op := j.op(types.ActionCreate, req.Identity)
	op.Names = append(append([]string{}, req.Templates...), req.HostGroups...)
	err := j.engine.execute(ctx, op, func() error {
		return j.api.Create(ctx, req)
	})
	if err == nil && j.engine.DryRun() {
		j.engine.plan(j.kind, req)
	}
	return err
}

func (j *journaledAPI) Delete(ctx context.Context, id types.Identity) error {
	return j.engine.execute(ctx, j.op(types.ActionDelete, id), func() error {
		return j.api.Delete(ctx, id)
	})
}

func (j *journaledAPI) SetAttribute(ctx context.Context, id types.Identity, name, value string) error {
	op := j.op(types.ActionSetAttribute, id)
	op.Object = name
	op.Value = value
	return j.engine.execute(ctx, op, func() error {
		return j.api.SetAttribute(ctx, id, name, value)
	})
}

func (j *journaledAPI) Enable(ctx context.Context, id types.Identity) error {
	return j.engine.execute(ctx, j.op(types.ActionEnable, id), func() error {
		return j.api.Enable(ctx, id)
	})
}

func (j *journaledAPI) Disable(ctx context.Context, id types.Identity) error {
	return j.engine.execute(ctx, j.op(types.ActionDisable, id), func() error {
		return j.api.Disable(ctx, id)
	})
}

func (j *journaledAPI) Associations(ctx context.Context, id types.Identity, kind types.AssociationKind) (map[string]types.Item, error) {
	if req, ok := j.engine.plannedEntity(j.kind, id); ok {
		var names []string
		switch kind {
		case types.AssocHostGroups:
			names = req.HostGroups
		case types.AssocTemplates:
			names = req.Templates
		}
		current := make(map[string]types.Item, len(names))
		for _, name := range names {
			current[name] = types.Item{Name: name}
		}
		return current, nil
	}
	return j.api.Associations(ctx, id, kind)
}

func (j *journaledAPI) AddAssociation(ctx context.Context, id types.Identity, kind types.AssociationKind, names []string) error {
	op := j.op(types.ActionAddMember, id)
	op.Object = string(kind)
	op.Names = names
	return j.engine.execute(ctx, op, func() error {
		return j.api.AddAssociation(ctx, id, kind, names)
	})
}

func (j *journaledAPI) RemoveAssociation(ctx context.Context, id types.Identity, kind types.AssociationKind, names []string) error {
	op := j.op(types.ActionRemoveMember, id)
	op.Object = string(kind)
	op.Names = names
	return j.engine.execute(ctx, op, func() error {
		return j.api.RemoveAssociation(ctx, id, kind, names)
	})
}

func (j *journaledAPI) Macros(ctx context.Context, id types.Identity) (map[string]types.Item, error) {
	if j.isPlanned(id) {
		return map[string]types.Item{}, nil
	}
	return j.api.Macros(ctx, id)
}

// SetMacro journals the macro name only; values may be secrets
func (j *journaledAPI) SetMacro(ctx context.Context, id types.Identity, macro types.Item) error {
	op := j.op(types.ActionSetMacro, id)
	op.Object = macro.Name
	return j.engine.execute(ctx, op, func() error {
		return j.api.SetMacro(ctx, id, macro)
	})
}

func (j *journaledAPI) DeleteMacro(ctx context.Context, id types.Identity, name string) error {
	op := j.op(types.ActionDeleteMacro, id)
	op.Object = name
	return j.engine.execute(ctx, op, func() error {
		return j.api.DeleteMacro(ctx, id, name)
	})
}

func (j *journaledAPI) Params(ctx context.Context, id types.Identity, names []string) (map[string]string, error) {
	if req, ok := j.engine.plannedEntity(j.kind, id); ok {
		current := make(map[string]string)
		for _, name := range names {
			if v, ok := req.Attributes[name]; ok {
				current[name] = v
			}
		}
		return current, nil
	}
	return j.api.Params(ctx, id, names)
}

func (j *journaledAPI) ApplyTemplates(ctx context.Context, id types.Identity) error {
	return j.engine.execute(ctx, j.op(types.ActionApplyTemplates, id), func() error {
		return j.api.ApplyTemplates(ctx, id)
	})
}

func (j *journaledAPI) isPlanned(id types.Identity) bool {
	_, ok := j.engine.plannedEntity(j.kind, id)
	return ok
}
