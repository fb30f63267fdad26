package centreon

import (
	"context"
	"fmt"
	"strings"

	"github.com/yairfalse/vigil/providers"
	"github.com/yairfalse/vigil/types"
)

type activationStyle int

const (
	activationNone   activationStyle = iota // no activation flag
	activationToggle                        // enable / disable actions
	activationParam                         // setparam activate 0|1
)

// objectSpec describes how one entity kind maps onto a CLAPI object
type objectSpec struct {
	object       string
	nameField    string   // show column holding the entity name
	showAttrs    []string // attributes read from the show row
	paramAttrs   []string // attributes only readable through getparam
	activation   activationStyle
	associations []types.AssociationKind
	macros       bool
	templates    bool // supports applytpl
	createValues func(req providers.CreateRequest) string
}

var objectSpecs = map[types.Kind]objectSpec{
	types.KindHost: {
		object:     "HOST",
		nameField:  "name",
		showAttrs:  []string{"alias", "address"},
		activation: activationToggle,
		associations: []types.AssociationKind{
			types.AssocHostGroups, types.AssocTemplates, types.AssocContacts, types.AssocContactGroups,
		},
		macros:    true,
		templates: true,
		createValues: func(req providers.CreateRequest) string {
			return joinValues(req.Identity.Name, req.Attributes["alias"], req.Attributes["address"],
				joinList(req.Templates), req.Instance, joinList(req.HostGroups))
		},
	},
	types.KindService: {
		object:     "SERVICE",
		nameField:  "description",
		paramAttrs: []string{"template"},
		activation: activationParam,
		macros:     true,
		createValues: func(req providers.CreateRequest) string {
			return joinValues(req.Identity.Host, req.Identity.Name, req.Attributes["template"])
		},
	},
	types.KindServiceTemplate: {
		object:       "STPL",
		nameField:    "description",
		showAttrs:    []string{"alias"},
		paramAttrs:   []string{"template"},
		activation:   activationParam,
		associations: []types.AssociationKind{types.AssocContacts, types.AssocContactGroups},
		macros:       true,
		createValues: func(req providers.CreateRequest) string {
			return joinValues(req.Identity.Name, req.Attributes["alias"], req.Attributes["template"])
		},
	},
	types.KindCommand: {
		object:     "CMD",
		nameField:  "name",
		showAttrs:  []string{"type", "line"},
		paramAttrs: []string{"graph", "example", "comment"},
		activation: activationNone,
		createValues: func(req providers.CreateRequest) string {
			return joinValues(req.Identity.Name, req.Attributes["type"], req.Attributes["line"])
		},
	},
}

// entityAPI binds a client to one CLAPI object
type entityAPI struct {
	client *Client
	spec   objectSpec
}

// key renders the identity the way CLAPI addresses the object
func (e *entityAPI) key(id types.Identity) string {
	if e.spec.object == "SERVICE" {
		return joinValues(id.Host, id.Name)
	}
	return id.Name
}

func (e *entityAPI) matches(row map[string]any, id types.Identity) bool {
	if field(row, e.spec.nameField) != id.Name {
		return false
	}
	if e.spec.object == "SERVICE" {
		return field(row, "host name") == id.Host
	}
	return true
}

// Get fetches the entity fresh from the remote
func (e *entityAPI) Get(ctx context.Context, id types.Identity) (*providers.Entity, bool, error) {
	var rows []map[string]any
	if err := e.client.callInto(ctx, "show", e.spec.object, id.Name, &rows); err != nil {
		return nil, false, err
	}

	var row map[string]any
	for _, candidate := range rows {
		if e.matches(candidate, id) {
			row = candidate
			break
		}
	}
	if row == nil {
		return nil, false, nil
	}

	entity := &providers.Entity{
		Identity:   id,
		Activate:   1,
		Attributes: make(map[string]string),
	}

	if e.spec.activation != activationNone {
		activate, err := parseFlag(field(row, "activate"))
		if err != nil {
			return nil, false, &providers.APIError{Action: "show", Object: e.spec.object, Detail: fmt.Sprintf("malformed activate column for %s: %v", id, err)}
		}
		entity.Activate = activate
	}

	for _, attr := range e.spec.showAttrs {
		entity.Attributes[attr] = field(row, attr)
	}

	if len(e.spec.paramAttrs) > 0 {
		params, err := e.Params(ctx, id, e.spec.paramAttrs)
		if err != nil {
			return nil, false, err
		}
		for k, v := range params {
			entity.Attributes[k] = v
		}
	}

	return entity, true, nil
}

// Create adds the entity with its minimal creation fields
func (e *entityAPI) Create(ctx context.Context, req providers.CreateRequest) error {
	_, err := e.client.call(ctx, "add", e.spec.object, e.spec.createValues(req))
	return err
}

// Delete removes the entity
func (e *entityAPI) Delete(ctx context.Context, id types.Identity) error {
	_, err := e.client.call(ctx, "del", e.spec.object, e.key(id))
	return err
}

// SetAttribute sets one parameter of the entity
func (e *entityAPI) SetAttribute(ctx context.Context, id types.Identity, name, value string) error {
	_, err := e.client.call(ctx, "setparam", e.spec.object, joinValues(e.key(id), name, value))
	return err
}

// Enable activates the entity
func (e *entityAPI) Enable(ctx context.Context, id types.Identity) error {
	return e.setActivation(ctx, id, true)
}

// Disable deactivates the entity
func (e *entityAPI) Disable(ctx context.Context, id types.Identity) error {
	return e.setActivation(ctx, id, false)
}

func (e *entityAPI) setActivation(ctx context.Context, id types.Identity, enabled bool) error {
	switch e.spec.activation {
	case activationToggle:
		action := "disable"
		if enabled {
			action = "enable"
		}
		_, err := e.client.call(ctx, action, e.spec.object, e.key(id))
		return err
	case activationParam:
		flag := "0"
		if enabled {
			flag = "1"
		}
		return e.SetAttribute(ctx, id, "activate", flag)
	default:
		return fmt.Errorf("%s has no activation flag", e.spec.object)
	}
}

func (e *entityAPI) supports(kind types.AssociationKind) bool {
	for _, k := range e.spec.associations {
		if k == kind {
			return true
		}
	}
	return false
}

// Associations lists the current members of an association
func (e *entityAPI) Associations(ctx context.Context, id types.Identity, kind types.AssociationKind) (map[string]types.Item, error) {
	if !e.supports(kind) {
		return nil, fmt.Errorf("%s does not support %s associations", e.spec.object, kind)
	}

	var rows []map[string]any
	if err := e.client.callInto(ctx, "get"+string(kind), e.spec.object, e.key(id), &rows); err != nil {
		return nil, err
	}

	current := make(map[string]types.Item, len(rows))
	for _, row := range rows {
		name := field(row, "name")
		if name == "" {
			continue
		}
		current[name] = types.Item{Name: name}
	}
	return current, nil
}

// AddAssociation adds members to an association
func (e *entityAPI) AddAssociation(ctx context.Context, id types.Identity, kind types.AssociationKind, names []string) error {
	return e.changeAssociation(ctx, "add", id, kind, names)
}

// RemoveAssociation removes members from an association
func (e *entityAPI) RemoveAssociation(ctx context.Context, id types.Identity, kind types.AssociationKind, names []string) error {
	return e.changeAssociation(ctx, "del", id, kind, names)
}

func (e *entityAPI) changeAssociation(ctx context.Context, verb string, id types.Identity, kind types.AssociationKind, names []string) error {
	if !e.supports(kind) {
		return fmt.Errorf("%s does not support %s associations", e.spec.object, kind)
	}
	_, err := e.client.call(ctx, verb+string(kind), e.spec.object, joinValues(e.key(id), joinList(names)))
	return err
}

// Macros lists the custom macros of the entity keyed by their full name
func (e *entityAPI) Macros(ctx context.Context, id types.Identity) (map[string]types.Item, error) {
	if !e.spec.macros {
		return nil, fmt.Errorf("%s has no macros", e.spec.object)
	}

	var rows []map[string]any
	if err := e.client.callInto(ctx, "getmacro", e.spec.object, e.key(id), &rows); err != nil {
		return nil, err
	}

	current := make(map[string]types.Item, len(rows))
	for _, row := range rows {
		name := field(row, "macro name")
		if name == "" {
			continue
		}
		password, err := parseFlag(field(row, "is_password"))
		if err != nil {
			return nil, &providers.APIError{Action: "getmacro", Object: e.spec.object, Detail: fmt.Sprintf("malformed is_password for %s: %v", name, err)}
		}
		current[name] = types.Item{
			Name:        name,
			Value:       field(row, "macro value"),
			IsPassword:  password == 1,
			Description: field(row, "description"),
		}
	}
	return current, nil
}

// SetMacro creates or overwrites a macro
func (e *entityAPI) SetMacro(ctx context.Context, id types.Identity, macro types.Item) error {
	values := joinValues(e.key(id), macro.Name, macro.Value, fmt.Sprint(macro.PasswordFlag()), macro.Description)
	_, err := e.client.call(ctx, "setmacro", e.spec.object, values)
	return err
}

// DeleteMacro removes a macro
func (e *entityAPI) DeleteMacro(ctx context.Context, id types.Identity, name string) error {
	_, err := e.client.call(ctx, "delmacro", e.spec.object, joinValues(e.key(id), name))
	return err
}

// Params reads the named parameters of the entity. Unknown names are
// absent from the result.
func (e *entityAPI) Params(ctx context.Context, id types.Identity, names []string) (map[string]string, error) {
	params := make(map[string]string, len(names))
	if len(names) == 0 {
		return params, nil
	}

	var result any
	if err := e.client.callInto(ctx, "getparam", e.spec.object, joinValues(e.key(id), joinList(names)), &result); err != nil {
		return nil, err
	}

	switch r := result.(type) {
	case []any:
		for i, elem := range r {
			switch v := elem.(type) {
			case map[string]any:
				for k := range v {
					params[k] = field(v, k)
				}
			case string:
				if i < len(names) {
					params[names[i]] = v
				}
			}
		}
	case map[string]any:
		for k := range r {
			params[k] = field(r, k)
		}
	case string:
		if len(names) == 1 {
			params[names[0]] = r
		}
	}
	return params, nil
}

// ApplyTemplates deploys the services of the entity's templates
func (e *entityAPI) ApplyTemplates(ctx context.Context, id types.Identity) error {
	if !e.spec.templates {
		return fmt.Errorf("%s does not support template application", e.spec.object)
	}
	_, err := e.client.call(ctx, "applytpl", e.spec.object, e.key(id))
	return err
}

func parseFlag(s string) (int, error) {
	switch strings.TrimSpace(s) {
	case "1":
		return 1, nil
	case "0", "":
		return 0, nil
	}
	return 0, fmt.Errorf("expected 0 or 1, got %q", s)
}
