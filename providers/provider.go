package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/yairfalse/vigil/types"
)

// ErrNotFound is returned when a lookup names something the remote does not have
var ErrNotFound = errors.New("not found")

// APIError is a failure reported by the remote API itself
type APIError struct {
	Action string
	Object string
	Detail string
}

func (e *APIError) Error() string {
	if e.Action == "" {
		return e.Detail
	}
	return fmt.Sprintf("%s %s: %s", e.Action, e.Object, e.Detail)
}

// Poller is a monitoring engine instance that receives published config
type Poller struct {
	ID   string
	Name string
}

// Entity is the remote snapshot of a managed entity
type Entity struct {
	Identity   types.Identity
	Activate   int
	Attributes map[string]string
}

// Enabled reports whether the remote has the entity activated
func (e *Entity) Enabled() bool {
	return e.Activate == 1
}

// CreateRequest carries the fields the remote requires at creation time
type CreateRequest struct {
	Identity   types.Identity
	Instance   string
	Attributes map[string]string
	HostGroups []string
	Templates  []string
}

// EntityAPI is the remote surface for one entity kind
type EntityAPI interface {
	// Get returns the entity, or false when it does not exist
	Get(ctx context.Context, id types.Identity) (*Entity, bool, error)
	Create(ctx context.Context, req CreateRequest) error
	Delete(ctx context.Context, id types.Identity) error

	SetAttribute(ctx context.Context, id types.Identity, name, value string) error
	Enable(ctx context.Context, id types.Identity) error
	Disable(ctx context.Context, id types.Identity) error

	Associations(ctx context.Context, id types.Identity, kind types.AssociationKind) (map[string]types.Item, error)
	AddAssociation(ctx context.Context, id types.Identity, kind types.AssociationKind, names []string) error
	RemoveAssociation(ctx context.Context, id types.Identity, kind types.AssociationKind, names []string) error

	Macros(ctx context.Context, id types.Identity) (map[string]types.Item, error)
	SetMacro(ctx context.Context, id types.Identity, macro types.Item) error
	DeleteMacro(ctx context.Context, id types.Identity, name string) error

	// Params returns the current values of the named parameters
	Params(ctx context.Context, id types.Identity, names []string) (map[string]string, error)
	ApplyTemplates(ctx context.Context, id types.Identity) error
}

// Client is an authenticated session against a monitoring configuration API
type Client interface {
	// ResolvePoller returns ErrNotFound when no poller has the given name
	ResolvePoller(ctx context.Context, instance string) (*Poller, error)
	PublishConfig(ctx context.Context, instance string) error
	Entities(kind types.Kind) (EntityAPI, error)
}

// ProviderConfig holds connection settings
type ProviderConfig struct {
	URL           string
	Username      string
	Password      string
	ValidateCerts bool
	Timeout       time.Duration
	RateLimit     float64 // requests per second, 0 means unlimited
}

// ProviderFactory creates an authenticated client
type ProviderFactory func(ctx context.Context, config ProviderConfig) (Client, error)

// Registry of available providers
var providers = make(map[string]ProviderFactory)

// RegisterProvider registers a new provider factory
func RegisterProvider(name string, factory ProviderFactory) {
	providers[name] = factory
}

// GetProvider creates a client by provider name
func GetProvider(ctx context.Context, name string, config ProviderConfig) (Client, error) {
	factory, exists := providers[name]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", name)
	}
	return factory(ctx, config)
}

// ListProviders returns available provider names
func ListProviders() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
