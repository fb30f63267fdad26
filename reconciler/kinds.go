package reconciler

import (
	"fmt"

	"github.com/yairfalse/vigil/providers"
	"github.com/yairfalse/vigil/types"
)

// attribute is one directly writable field of an entity
type attribute struct {
	name  string
	value func(spec types.EntitySpec) string
}

var (
	attrAlias    = attribute{"alias", func(s types.EntitySpec) string { return s.Alias }}
	attrAddress  = attribute{"address", func(s types.EntitySpec) string { return s.Address }}
	attrTemplate = attribute{"template", func(s types.EntitySpec) string { return s.Template }}
	attrType     = attribute{"type", func(s types.EntitySpec) string { return s.Type }}
	attrLine     = attribute{"line", func(s types.EntitySpec) string { return s.Line }}
	attrGraph    = attribute{"graph", func(s types.EntitySpec) string { return s.Graph }}
	attrExample  = attribute{"example", func(s types.EntitySpec) string { return s.Example }}
	attrComment  = attribute{"comment", func(s types.EntitySpec) string { return s.Comment }}

	allAttributes = []attribute{attrAlias, attrAddress, attrTemplate, attrType, attrLine, attrGraph, attrExample, attrComment}
)

// associationOrder is the fixed order associations are reconciled in
var associationOrder = []types.AssociationKind{
	types.AssocHostGroups,
	types.AssocTemplates,
	types.AssocContacts,
	types.AssocContactGroups,
}

// kindProfile captures everything that differs between entity kinds
type kindProfile struct {
	kind         types.Kind
	attributes   []attribute
	associations []types.AssociationKind
	macros       bool
	activation   bool

	// requiredOnCreate lists attributes the remote needs to create the entity
	requiredOnCreate []string
	// applyTemplatesOnCreate deploys template services right after creation
	applyTemplatesOnCreate bool
	// defaults fills creation fields the spec left empty
	defaults map[string]string
}

var profiles = map[types.Kind]kindProfile{
	types.KindHost: {
		kind:                   types.KindHost,
		attributes:             []attribute{attrAddress, attrAlias},
		associations:           []types.AssociationKind{types.AssocHostGroups, types.AssocTemplates, types.AssocContacts, types.AssocContactGroups},
		macros:                 true,
		activation:             true,
		requiredOnCreate:       []string{"address"},
		applyTemplatesOnCreate: true,
	},
	types.KindService: {
		kind:             types.KindService,
		attributes:       []attribute{attrTemplate},
		macros:           true,
		activation:       true,
		requiredOnCreate: []string{"template"},
	},
	types.KindServiceTemplate: {
		kind:         types.KindServiceTemplate,
		attributes:   []attribute{attrAlias, attrTemplate},
		associations: []types.AssociationKind{types.AssocContacts, types.AssocContactGroups},
		macros:       true,
		activation:   true,
	},
	types.KindCommand: {
		kind:             types.KindCommand,
		attributes:       []attribute{attrType, attrLine, attrGraph, attrExample, attrComment},
		requiredOnCreate: []string{"line"},
		defaults:         map[string]string{"type": "check"},
	},
}

func profileFor(kind types.Kind) (kindProfile, error) {
	p, ok := profiles[kind]
	if !ok {
		return kindProfile{}, fmt.Errorf("unsupported kind %q", kind)
	}
	return p, nil
}

func (p kindProfile) supportsAttribute(name string) bool {
	for _, a := range p.attributes {
		if a.name == name {
			return true
		}
	}
	return false
}

func (p kindProfile) supportsAssociation(kind types.AssociationKind) bool {
	for _, a := range p.associations {
		if a == kind {
			return true
		}
	}
	return false
}

// validate rejects fields the kind cannot carry
func (p kindProfile) validate(spec types.EntitySpec) error {
	for _, a := range allAttributes {
		if a.value(spec) != "" && !p.supportsAttribute(a.name) {
			return fmt.Errorf("%s does not support attribute %q", p.kind.Label(), a.name)
		}
	}
	for _, kind := range associationOrder {
		if len(spec.Associations(kind)) > 0 && !p.supportsAssociation(kind) {
			return fmt.Errorf("%s does not support %s associations", p.kind.Label(), kind)
		}
	}
	if len(spec.Macros) > 0 && !p.macros {
		return fmt.Errorf("%s does not support macros", p.kind.Label())
	}
	if spec.Status != "" && !p.activation {
		return fmt.Errorf("%s has no activation status", p.kind.Label())
	}
	return ValidateParams(spec.Params)
}

// desiredAttributes returns the attributes the spec supplies, in profile order
func (p kindProfile) desiredAttributes(spec types.EntitySpec) map[string]string {
	attrs := make(map[string]string, len(p.attributes))
	for _, a := range p.attributes {
		if v := a.value(spec); v != "" {
			attrs[a.name] = v
		}
	}
	return attrs
}

// createRequest builds the minimal creation call for spec
func (p kindProfile) createRequest(spec types.EntitySpec) (providers.CreateRequest, error) {
	attrs := p.desiredAttributes(spec)
	for k, v := range p.defaults {
		if attrs[k] == "" {
			attrs[k] = v
		}
	}
	for _, name := range p.requiredOnCreate {
		if attrs[name] == "" {
			return providers.CreateRequest{}, fmt.Errorf("%s %s cannot be created without %q", p.kind.Label(), spec.Identity, name)
		}
	}

	req := providers.CreateRequest{
		Identity:   spec.Identity,
		Instance:   spec.TargetInstance(),
		Attributes: attrs,
	}
	if p.supportsAssociation(types.AssocHostGroups) {
		req.HostGroups = types.Names(spec.HostGroups)
	}
	if p.supportsAssociation(types.AssocTemplates) {
		req.Templates = types.Names(spec.Templates)
	}
	return req, nil
}

// phaseFor maps an association kind to its phase name
func phaseFor(kind types.AssociationKind) types.Phase {
	switch kind {
	case types.AssocHostGroups:
		return types.PhaseHostGroups
	case types.AssocTemplates:
		return types.PhaseTemplates
	case types.AssocContacts:
		return types.PhaseContacts
	default:
		return types.PhaseContactGroups
	}
}
