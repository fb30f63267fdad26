package reconciler

import (
	"strings"

	"github.com/yairfalse/vigil/types"
)

// Custom macro naming on the remote
const (
	HostMacroPrefix    = "$_HOST"
	ServiceMacroPrefix = "$_SERVICE"
	MacroSuffix        = "$"
)

// MacroPrefix returns the reserved macro prefix for an entity kind.
// Services and service templates use $_SERVICE, not $_HOST: CLAPI lists
// their macros under that prefix, so anything else would never converge.
func MacroPrefix(kind types.Kind) string {
	if kind == types.KindHost {
		return HostMacroPrefix
	}
	return ServiceMacroPrefix
}

// NormalizeMacroName returns the remote key of a macro: the name itself
// when it already carries the prefix, otherwise prefix + UPPER(name) + "$".
func NormalizeMacroName(prefix, name string) string {
	if strings.HasPrefix(name, prefix) {
		return name
	}
	return prefix + strings.ToUpper(name) + MacroSuffix
}

// MacroKey returns a KeyFunc normalizing names with prefix
func MacroKey(prefix string) KeyFunc {
	return func(name string) string {
		return NormalizeMacroName(prefix, name)
	}
}
