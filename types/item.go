package types

// Item is one element of an identity-keyed sub-resource collection:
// a macro, or a member of a hostgroup/template/contact/contact-group list.
// Fields that do not apply to a collection are left empty.
type Item struct {
	Name        string `yaml:"name" json:"name"`
	Value       string `yaml:"value,omitempty" json:"value,omitempty"`
	State       State  `yaml:"state,omitempty" json:"state,omitempty"`
	IsPassword  bool   `yaml:"is_password,omitempty" json:"is_password,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Present reports whether the item should exist
func (i Item) Present() bool {
	return !i.State.IsAbsent()
}

// PasswordFlag returns the is_password flag as the remote stores it
func (i Item) PasswordFlag() int {
	if i.IsPassword {
		return 1
	}
	return 0
}

// Param is a flat key/value attribute of an entity
type Param struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// AssociationKind names a list-shaped relationship of an entity
type AssociationKind string

// Association kinds, in the order they are reconciled
const (
	AssocHostGroups    AssociationKind = "hostgroup"
	AssocTemplates     AssociationKind = "template"
	AssocContacts      AssociationKind = "contact"
	AssocContactGroups AssociationKind = "contactgroup"
)

// NeedsTemplateApply reports whether membership changes of this kind only
// become durable after templates are re-applied to the entity
func (a AssociationKind) NeedsTemplateApply() bool {
	return a == AssocTemplates || a == AssocHostGroups
}

// Names returns the names of the items that should be present
func Names(items []Item) []string {
	var names []string
	for _, item := range items {
		if item.Present() {
			names = append(names, item.Name)
		}
	}
	return names
}
