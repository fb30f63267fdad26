package types

import (
	"fmt"
	"strings"
)

// DefaultInstance is the poller targeted when a spec names none
const DefaultInstance = "Central"

// Command types accepted by the remote
var CommandTypes = []string{"check", "notif", "misc", "discovery"}

// EntitySpec is the desired state of one entity and its sub-resources
type EntitySpec struct {
	Kind     Kind `yaml:"kind" json:"kind"`
	Identity `yaml:",inline" json:",inline"`

	Instance    string     `yaml:"instance,omitempty" json:"instance,omitempty"`
	State       State      `yaml:"state,omitempty" json:"state,omitempty"`
	Status      Activation `yaml:"status,omitempty" json:"status,omitempty"`
	ApplyConfig *bool      `yaml:"apply_config,omitempty" json:"apply_config,omitempty"`

	// Direct attributes. Only the ones a kind supports may be set.
	Alias    string `yaml:"alias,omitempty" json:"alias,omitempty"`
	Address  string `yaml:"address,omitempty" json:"address,omitempty"`
	Template string `yaml:"template,omitempty" json:"template,omitempty"`
	Type     string `yaml:"type,omitempty" json:"type,omitempty"`
	Line     string `yaml:"line,omitempty" json:"line,omitempty"`
	Graph    string `yaml:"graph,omitempty" json:"graph,omitempty"`
	Example  string `yaml:"example,omitempty" json:"example,omitempty"`
	Comment  string `yaml:"comment,omitempty" json:"comment,omitempty"`

	HostGroups    []Item  `yaml:"hostgroups,omitempty" json:"hostgroups,omitempty"`
	Templates     []Item  `yaml:"templates,omitempty" json:"templates,omitempty"`
	Contacts      []Item  `yaml:"contacts,omitempty" json:"contacts,omitempty"`
	ContactGroups []Item  `yaml:"contactgroups,omitempty" json:"contactgroups,omitempty"`
	Macros        []Item  `yaml:"macros,omitempty" json:"macros,omitempty"`
	Params        []Param `yaml:"params,omitempty" json:"params,omitempty"`

	// Labels select specs from a manifest; they are never sent remotely.
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// TargetInstance returns the poller name, defaulting to Central
func (s EntitySpec) TargetInstance() string {
	if s.Instance == "" {
		return DefaultInstance
	}
	return s.Instance
}

// Publish reports whether config should be published on change
func (s EntitySpec) Publish() bool {
	return s.ApplyConfig == nil || *s.ApplyConfig
}

// Associations returns the desired items of an association kind
func (s EntitySpec) Associations(kind AssociationKind) []Item {
	switch kind {
	case AssocHostGroups:
		return s.HostGroups
	case AssocTemplates:
		return s.Templates
	case AssocContacts:
		return s.Contacts
	case AssocContactGroups:
		return s.ContactGroups
	}
	return nil
}

// Validate checks the fields every kind requires. Kind-specific rules
// (supported attributes and associations) are enforced by the reconciler.
func (s EntitySpec) Validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	if err := s.Identity.Validate(s.Kind); err != nil {
		return err
	}
	if err := s.State.Validate(); err != nil {
		return err
	}
	if err := s.Status.Validate(); err != nil {
		return err
	}
	if s.Type != "" && !containsString(CommandTypes, s.Type) {
		return fmt.Errorf("invalid command type %q (must be one of %s)", s.Type, strings.Join(CommandTypes, ", "))
	}
	for _, list := range [][]Item{s.HostGroups, s.Templates, s.Contacts, s.ContactGroups, s.Macros} {
		for _, item := range list {
			if strings.TrimSpace(item.Name) == "" {
				return fmt.Errorf("item with empty name")
			}
			if err := item.State.Validate(); err != nil {
				return fmt.Errorf("item %q: %w", item.Name, err)
			}
		}
	}
	return nil
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
