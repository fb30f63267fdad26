package types

import (
	"fmt"
	"time"
)

// Operation actions issued against the remote
const (
	ActionCreate         = "create"
	ActionUpdate         = "update"
	ActionDelete         = "delete"
	ActionEnable         = "enable"
	ActionDisable        = "disable"
	ActionSetAttribute   = "set_attribute"
	ActionAddMember      = "add_member"
	ActionRemoveMember   = "remove_member"
	ActionSetMacro       = "set_macro"
	ActionDeleteMacro    = "delete_macro"
	ActionApplyTemplates = "apply_templates"
	ActionPublish        = "publish"
)

// Operation describes one mutating remote call, as journaled
type Operation struct {
	Action   string    `json:"action"`
	Kind     Kind      `json:"kind,omitempty"`
	Target   string    `json:"target"`
	Object   string    `json:"object,omitempty"`
	Names    []string  `json:"names,omitempty"`
	Value    string    `json:"value,omitempty"`
	IssuedAt time.Time `json:"issued_at"`
}

// Validate ensures the operation has required fields
func (o *Operation) Validate() error {
	if o.Action == "" {
		return fmt.Errorf("operation action cannot be empty")
	}
	if o.Target == "" {
		return fmt.Errorf("operation target cannot be empty")
	}
	return nil
}

// IsDestructive checks if the operation removes something remotely
func (o *Operation) IsDestructive() bool {
	switch o.Action {
	case ActionDelete, ActionRemoveMember, ActionDeleteMacro:
		return true
	}
	return false
}
