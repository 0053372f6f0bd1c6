// Package admin provides the operator API: reload and sync control, catalog
// record management, access cache invalidation and user role changes.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stacklok/toolhive-gateway/internal/api/common"
	"github.com/stacklok/toolhive-gateway/internal/catalog"
	"github.com/stacklok/toolhive-gateway/internal/events"
	"github.com/stacklok/toolhive-gateway/internal/registry"
	"github.com/stacklok/toolhive-gateway/internal/store"
)

// MaxBulkIDs bounds a bulk status change
const MaxBulkIDs = 500

// Reloader publishes a new endpoint generation
type Reloader interface {
	Reload(ctx context.Context) (*registry.Result, error)
	Status() registry.Status
}

// Syncer reconciles the catalog store with discovered endpoints
type Syncer interface {
	Sync(ctx context.Context) (*catalog.Result, error)
	Status() catalog.Status
	Stats(ctx context.Context) (*store.Stats, error)
}

// Invalidator drops cached access data
type Invalidator interface {
	Invalidate()
}

// PrincipalCache drops a cached principal after its user changed
type PrincipalCache interface {
	Forget(userID string)
}

// Routes handles the admin API
type Routes struct {
	reloader     Reloader
	syncer       Syncer
	catalog      store.CatalogStore
	users        store.UserStore
	access       Invalidator
	principals   PrincipalCache
	publisher    events.Publisher
	storeTimeout time.Duration
}

// Dependencies wires the admin API to the gateway components
type Dependencies struct {
	Reloader     Reloader
	Syncer       Syncer
	Catalog      store.CatalogStore
	Users        store.UserStore
	Access       Invalidator
	Principals   PrincipalCache
	Publisher    events.Publisher
	StoreTimeout time.Duration
}

// NewRoutes creates the admin handlers
func NewRoutes(deps Dependencies) *Routes {
	timeout := deps.StoreTimeout
	if timeout <= 0 {
		timeout = catalog.DefaultStoreTimeout
	}
	return &Routes{
		reloader:     deps.Reloader,
		syncer:       deps.Syncer,
		catalog:      deps.Catalog,
		users:        deps.Users,
		access:       deps.Access,
		principals:   deps.Principals,
		publisher:    deps.Publisher,
		storeTimeout: timeout,
	}
}

// Router creates the admin router. Authorization and rate limiting are applied
// by the caller when mounting it.
func Router(deps Dependencies) http.Handler {
	routes := NewRoutes(deps)

	r := chi.NewRouter()

	r.Post("/reload", routes.reload)
	r.Get("/reload/status", routes.reloadStatus)

	r.Post("/sync", routes.sync)
	r.Get("/sync/status", routes.syncStatus)

	r.Route("/endpoints", func(r chi.Router) {
		r.Get("/", routes.listEndpoints)
		r.Put("/", routes.upsertEndpoint)
		r.Patch("/status", routes.setEndpointStatus)
		r.Get("/stats", routes.endpointStats)
		r.Get("/{id}", routes.getEndpoint)
	})

	r.Post("/access/invalidate", routes.invalidateAccess)

	r.Get("/users", routes.listUsers)
	r.Put("/users/{id}/role", routes.setUserRole)

	return r
}

// storeContext bounds a single store call
func (routes *Routes) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, routes.storeTimeout)
}

func (routes *Routes) publish(ev events.Event) {
	if routes.publisher != nil {
		routes.publisher.Publish(ev)
	}
}

func (routes *Routes) invalidate() {
	if routes.access != nil {
		routes.access.Invalidate()
	}
}

// writeStoreError maps store failures to responses. Driver details are logged,
// not returned.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		common.WriteErrorResponse(w, action+": not found", http.StatusNotFound)
	case errors.Is(err, store.ErrInvalidInput):
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.DeadlineExceeded):
		slog.ErrorContext(r.Context(), "Store call timed out", "action", action, "error", err)
		common.WriteErrorResponse(w, action+": store timeout", http.StatusGatewayTimeout)
	default:
		slog.ErrorContext(r.Context(), "Store call failed", "action", action, "error", err)
		common.WriteErrorResponse(w, action+": internal error", http.StatusInternalServerError)
	}
}

// parseIDs validates the ids of a bulk request
func parseIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, errors.New("ids must not be empty")
	}
	if len(raw) > MaxBulkIDs {
		return nil, errors.New("too many ids in one request")
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, errors.New("ids must be UUIDs: " + s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
