package types

import (
	"fmt"
	"strings"
)

// Kind identifies a type of managed monitoring entity
type Kind string

// Entity kinds
const (
	KindHost            Kind = "host"
	KindService         Kind = "service"
	KindServiceTemplate Kind = "servicetemplate"
	KindCommand         Kind = "command"
)

// Kinds lists every supported entity kind in a stable order
var Kinds = []Kind{KindHost, KindService, KindServiceTemplate, KindCommand}

// Label returns the human-readable name used in change logs
func (k Kind) Label() string {
	switch k {
	case KindServiceTemplate:
		return "service template"
	default:
		return string(k)
	}
}

// Valid reports whether k is a supported kind
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// State is the desired existence of an entity or item.
// The zero value means present.
type State string

// Desired existence states
const (
	StatePresent State = "present"
	StateAbsent  State = "absent"
)

// IsAbsent reports whether the state asks for removal
func (s State) IsAbsent() bool {
	return s == StateAbsent
}

// Validate rejects anything other than present, absent or unset
func (s State) Validate() error {
	switch s {
	case "", StatePresent, StateAbsent:
		return nil
	}
	return fmt.Errorf("invalid state %q (must be present or absent)", s)
}

// Activation is the desired enabled/disabled status of an entity.
// The zero value means enabled.
type Activation string

// Desired activation values
const (
	ActivationEnabled  Activation = "enabled"
	ActivationDisabled Activation = "disabled"
)

// IsDisabled reports whether the entity should be disabled
func (a Activation) IsDisabled() bool {
	return a == ActivationDisabled
}

// Validate rejects anything other than enabled, disabled or unset
func (a Activation) Validate() error {
	switch a {
	case "", ActivationEnabled, ActivationDisabled:
		return nil
	}
	return fmt.Errorf("invalid status %q (must be enabled or disabled)", a)
}

// Identity is the key of an entity on the remote side.
// Services are scoped by their host; every other kind uses Name alone.
type Identity struct {
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
	Name string `yaml:"name" json:"name"`
}

// String renders the identity as "name" or "host/name"
func (i Identity) String() string {
	if i.Host == "" {
		return i.Name
	}
	return i.Host + "/" + i.Name
}

// Validate checks that the identity is complete for the given kind
func (i Identity) Validate(kind Kind) error {
	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("%s name cannot be empty", kind.Label())
	}
	if kind == KindService && strings.TrimSpace(i.Host) == "" {
		return fmt.Errorf("service %q requires a host", i.Name)
	}
	if kind != KindService && i.Host != "" {
		return fmt.Errorf("%s %q cannot have a host", kind.Label(), i.Name)
	}
	return nil
}
