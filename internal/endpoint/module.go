package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// Route is one dispatch entry contributed by a module
type Route struct {
	Method  string
	Path    string
	Handler http.Handler
}

// Contribution is everything a module adds to a generation
type Contribution struct {
	Routes      []Route
	Descriptors []Descriptor
}

//go:generate mockgen -destination=mocks/mock_module.go -package=mocks -source=module.go Module

// Module is a discoverable unit contributing routes and descriptors.
// Handler logic is opaque to the gateway.
type Module interface {
	// Name identifies the module in logs, failures and descriptor sources
	Name() string

	// Load builds the module's contribution. It is called once per discovery pass.
	Load(ctx context.Context) (*Contribution, error)
}

// Factory builds an http.Handler for a handler kind from its raw manifest config
type Factory func(config json.RawMessage) (http.Handler, error)

var (
	kindsMu sync.RWMutex
	kinds   = map[string]Factory{}
)

// RegisterKind makes a handler kind available to manifests.
// Registering the same kind twice panics.
func RegisterKind(kind string, factory Factory) {
	kindsMu.Lock()
	defer kindsMu.Unlock()

	if factory == nil {
		panic(fmt.Sprintf("endpoint: nil factory for kind %q", kind))
	}
	if _, exists := kinds[kind]; exists {
		panic(fmt.Sprintf("endpoint: kind %q registered twice", kind))
	}
	kinds[kind] = factory
}

// LookupKind returns the factory registered for kind
func LookupKind(kind string) (Factory, bool) {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	f, ok := kinds[kind]
	return f, ok
}

// Kinds lists the registered handler kinds in sorted order
func Kinds() []string {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ModuleFunc adapts a function into a Module
type ModuleFunc struct {
	ModuleName string
	LoadFunc   func(ctx context.Context) (*Contribution, error)
}

// Name implements Module
func (m ModuleFunc) Name() string { return m.ModuleName }

// Load implements Module
func (m ModuleFunc) Load(ctx context.Context) (*Contribution, error) {
	return m.LoadFunc(ctx)
}
