package admin

import (
	"errors"
	"net/http"

	"github.com/stacklok/toolhive-gateway/internal/api/common"
	"github.com/stacklok/toolhive-gateway/internal/catalog"
	"github.com/stacklok/toolhive-gateway/internal/registry"
)

// reload handles POST /admin/reload. It bypasses the file watcher debounce. A
// reload already in flight is reported as skipped, not as an error.
func (routes *Routes) reload(w http.ResponseWriter, r *http.Request) {
	res, err := routes.reloader.Reload(r.Context())
	switch {
	case errors.Is(err, registry.ErrReloadInProgress):
		common.WriteJSONResponse(w, res, http.StatusOK)
	case err != nil:
		common.WriteJSONResponse(w, res, http.StatusInternalServerError)
	default:
		common.WriteJSONResponse(w, res, http.StatusOK)
	}
}

// reloadStatus handles GET /admin/reload/status
func (routes *Routes) reloadStatus(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, routes.reloader.Status(), http.StatusOK)
}

// sync handles POST /admin/sync
func (routes *Routes) sync(w http.ResponseWriter, r *http.Request) {
	res, err := routes.syncer.Sync(r.Context())
	switch {
	case errors.Is(err, catalog.ErrSyncInProgress):
		common.WriteJSONResponse(w, res, http.StatusOK)
	case err != nil:
		common.WriteJSONResponse(w, res, http.StatusInternalServerError)
	default:
		// re-activated records may change access decisions
		routes.invalidate()
		common.WriteJSONResponse(w, res, http.StatusOK)
	}
}

// syncStatus handles GET /admin/sync/status
func (routes *Routes) syncStatus(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, routes.syncer.Status(), http.StatusOK)
}

// invalidateAccess handles POST /admin/access/invalidate
func (routes *Routes) invalidateAccess(w http.ResponseWriter, _ *http.Request) {
	routes.invalidate()
	common.WriteJSONResponse(w, map[string]any{
		"success": true,
		"message": "access cache invalidated",
	}, http.StatusOK)
}
