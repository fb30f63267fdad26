package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a terminal reconciliation failure
type ErrorKind string

// Error kinds
const (
	ErrorConnection      ErrorKind = "connection"
	ErrorResolution      ErrorKind = "resolution"
	ErrorValidation      ErrorKind = "validation"
	ErrorRemoteOperation ErrorKind = "remote_operation"
	ErrorPublish         ErrorKind = "publish"
)

// Sentinels for errors.Is matching on the kind alone
var (
	ErrConnection      = &Error{Kind: ErrorConnection}
	ErrResolution      = &Error{Kind: ErrorResolution}
	ErrValidation      = &Error{Kind: ErrorValidation}
	ErrRemoteOperation = &Error{Kind: ErrorRemoteOperation}
	ErrPublish         = &Error{Kind: ErrorPublish}
)

// Phase names a step of entity reconciliation
type Phase string

// Reconciliation phases, in execution order
const (
	PhaseValidate      Phase = "validate"
	PhaseResolve       Phase = "resolve"
	PhaseFetch         Phase = "fetch"
	PhaseCreate        Phase = "create"
	PhaseDelete        Phase = "delete"
	PhaseActivation    Phase = "activation"
	PhaseAttributes    Phase = "attributes"
	PhaseHostGroups    Phase = "hostgroups"
	PhaseTemplates     Phase = "templates"
	PhaseContacts      Phase = "contacts"
	PhaseContactGroups Phase = "contactgroups"
	PhaseMacros        Phase = "macros"
	PhaseParams        Phase = "params"
	PhasePublish       Phase = "publish"
)

// Error is a typed reconciliation failure. It always names the phase and
// the entity it happened on so a failed run can be diagnosed from the
// message alone.
type Error struct {
	Kind     ErrorKind
	Phase    Phase
	Identity string
	Object   string // sub-resource kind, e.g. "macro"
	Name     string // sub-resource name
	Op       string // failing operation, e.g. "create"
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Phase != "" {
		fmt.Fprintf(&b, " in %s", e.Phase)
	}
	if e.Identity != "" {
		fmt.Fprintf(&b, " for %s", e.Identity)
	}
	if e.Op != "" || e.Object != "" {
		b.WriteString(":")
		if e.Op != "" {
			fmt.Fprintf(&b, " %s", e.Op)
		}
		if e.Object != "" {
			fmt.Fprintf(&b, " %s", e.Object)
		}
		if e.Name != "" {
			fmt.Fprintf(&b, " %s", e.Name)
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Phase == "" && t.Identity == "" && t.Err == nil
}

// NewValidationError creates a validation error
func NewValidationError(identity string, err error) *Error {
	return &Error{Kind: ErrorValidation, Phase: PhaseValidate, Identity: identity, Err: err}
}

// NewRemoteError creates a remote operation error for a sub-resource op.
// A lost session stays a connection error.
func NewRemoteError(object, name, op string, err error) *Error {
	kind := ErrorRemoteOperation
	if KindOf(err) == ErrorConnection {
		kind = ErrorConnection
	}
	return &Error{Kind: kind, Object: object, Name: name, Op: op, Err: err}
}

// WithPhase tags err with a phase and identity. Typed errors keep their
// kind; anything else becomes a remote operation error.
func WithPhase(err error, phase Phase, identity string) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		tagged := *typed
		if tagged.Phase == "" {
			tagged.Phase = phase
		}
		if tagged.Identity == "" {
			tagged.Identity = identity
		}
		return &tagged
	}
	return &Error{Kind: ErrorRemoteOperation, Phase: phase, Identity: identity, Err: err}
}

// KindOf returns the kind of a typed error, or "" for anything else
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}

// PhaseOf returns the phase of a typed error, or "" for anything else
func PhaseOf(err error) Phase {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Phase
	}
	return ""
}
