// Package loader discovers endpoint modules and materializes a candidate dispatch
// table with its descriptors, isolating per-module failures.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/stacklok/toolhive-gateway/internal/endpoint"
)

// ModuleLoadError records a module excluded from a discovery pass
type ModuleLoadError struct {
	Module string `json:"module"`
	Err    error  `json:"-"`
	// Message mirrors Err for JSON rendering
	Message string `json:"error"`
}

func (e *ModuleLoadError) Error() string {
	return fmt.Sprintf("module %s: %s", e.Module, e.Message)
}

func (e *ModuleLoadError) Unwrap() error {
	return e.Err
}

func newModuleLoadError(module string, err error) *ModuleLoadError {
	return &ModuleLoadError{Module: module, Err: err, Message: err.Error()}
}

// Candidate is the output of one discovery pass
type Candidate struct {
	Routes      []endpoint.Route
	Descriptors []endpoint.Descriptor
	Failures    []*ModuleLoadError
	Modules     int
}

// Loader runs discovery passes against a Source
type Loader struct {
	source Source
}

// New creates a Loader reading from source
func New(source Source) *Loader {
	return &Loader{source: source}
}

// Source returns the loader's source
func (l *Loader) Source() Source {
	return l.source
}

// Load discovers all modules and assembles a candidate. Module errors and panics
// are recorded as failures and the module is excluded. An invalid route, including
// one whose path is not literal, is recorded and dropped on its own. When two modules register
// the same (path, method) the first one wins; a route for ALL conflicts with every
// method on its path. Only a source listing error fails the pass.
func (l *Loader) Load(ctx context.Context) (*Candidate, error) {
	start := time.Now()
	modules, err := l.source.Modules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}

	candidate := &Candidate{Modules: len(modules)}
	routes := newRouteTable()
	descriptors := make(map[endpoint.Key]struct{})

	for _, mod := range modules {
		name := mod.Name()
		contribution, err := safeLoad(ctx, mod)
		if err != nil {
			slog.WarnContext(ctx, "Excluding endpoint module", "module", name, "error", err)
			candidate.Failures = append(candidate.Failures, newModuleLoadError(name, err))
			continue
		}
		if contribution == nil {
			continue
		}

		for _, route := range contribution.Routes {
			if err := validateRoute(route); err != nil {
				candidate.Failures = append(candidate.Failures, newModuleLoadError(name, err))
				continue
			}
			method := strings.ToUpper(strings.TrimSpace(route.Method))
			if owner, taken := routes.claim(route.Path, method, name); taken {
				err := fmt.Errorf("route %s %s already registered by module %s", method, route.Path, owner)
				slog.WarnContext(ctx, "Route collision, keeping first registration",
					"module", name, "path", route.Path, "method", method, "owner", owner)
				candidate.Failures = append(candidate.Failures, newModuleLoadError(name, err))
				continue
			}
			route.Method = method
			candidate.Routes = append(candidate.Routes, route)
		}

		for _, d := range contribution.Descriptors {
			if !endpoint.LiteralPath(d.Path) {
				slog.WarnContext(ctx, "Dropping descriptor with non-literal path", "module", name, "path", d.Path)
				continue
			}
			if d.Source == "" {
				d.Source = name
			}
			fresh := false
			for _, key := range d.Keys() {
				if _, dup := descriptors[key]; !dup {
					descriptors[key] = struct{}{}
					fresh = true
				}
			}
			if fresh {
				candidate.Descriptors = append(candidate.Descriptors, d)
			}
		}
	}

	slog.DebugContext(ctx, "Discovery pass finished",
		"source", l.source.Name(),
		"modules", candidate.Modules,
		"routes", len(candidate.Routes),
		"descriptors", len(candidate.Descriptors),
		"failures", len(candidate.Failures),
		"duration", time.Since(start))
	return candidate, nil
}

func safeLoad(ctx context.Context, mod endpoint.Module) (c *endpoint.Contribution, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Endpoint module panicked", "module", mod.Name(), "panic", r,
				"stack", string(debug.Stack()))
			c, err = nil, fmt.Errorf("panic during load: %v", r)
		}
	}()
	return mod.Load(ctx)
}

func validateRoute(r endpoint.Route) error {
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("route path %q must begin with /", r.Path)
	}
	if !endpoint.LiteralPath(r.Path) {
		return fmt.Errorf("route path %q must be literal, pattern segments are not allowed", r.Path)
	}
	if r.Handler == nil {
		return fmt.Errorf("route %s has no handler", r.Path)
	}
	if !endpoint.SupportedMethod(r.Method) {
		return fmt.Errorf("route %s must declare exactly one supported method, got %q", r.Path, r.Method)
	}
	return nil
}

type routeTable map[string]map[string]string

func newRouteTable() routeTable {
	return routeTable{}
}

// claim registers path+method for module and reports the existing owner on conflict
func (t routeTable) claim(path, method, module string) (string, bool) {
	methods, ok := t[path]
	if !ok {
		t[path] = map[string]string{method: module}
		return "", false
	}
	if owner, ok := methods[endpoint.MethodAll]; ok {
		return owner, true
	}
	if method == endpoint.MethodAll {
		for _, owner := range methods {
			return owner, true
		}
	}
	if owner, ok := methods[method]; ok {
		return owner, true
	}
	methods[method] = module
	return "", false
}
