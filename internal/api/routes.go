package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/toolhive-gateway/internal/access"
	"github.com/stacklok/toolhive-gateway/internal/api/common"
	"github.com/stacklok/toolhive-gateway/internal/auth"
	"github.com/stacklok/toolhive-gateway/internal/endpoint"
	"github.com/stacklok/toolhive-gateway/internal/registry"
	"github.com/stacklok/toolhive-gateway/internal/store"
	"github.com/stacklok/toolhive-gateway/internal/versions"
)

const (
	docsCacheControl      = "private, max-age=60"
	sanitizedDescription  = "Premium endpoint - VIP access required"
	readinessCheckTimeout = 3 * time.Second
)

type publicRoutes struct {
	registry  *registry.Registry
	access    *access.Cache
	readiness []ReadinessCheck
	clock     clock.PassiveClock
	startedAt time.Time
}

// health handles GET /health. It reports liveness and the reload state; a failed
// last reload still counts as healthy because the previous generation serves.
func (routes *publicRoutes) health(w http.ResponseWriter, _ *http.Request) {
	status := routes.registry.Status()
	total := 0
	if gen := routes.registry.Active(); gen != nil {
		total = gen.Routes
	}
	common.WriteJSONResponse(w, HealthResponse{
		Status:         "healthy",
		UptimeSeconds:  int64(routes.clock.Since(routes.startedAt).Seconds()),
		Timestamp:      routes.clock.Now().UTC(),
		TotalEndpoints: total,
		Reload:         status,
	}, http.StatusOK)
}

// ready handles GET /readiness. The gateway is ready once a generation has been
// published and every configured dependency check passes.
func (routes *publicRoutes) ready(w http.ResponseWriter, r *http.Request) {
	if routes.registry.Active() == nil {
		common.WriteJSONResponse(w, ReadinessResponse{
			Status: "not ready",
			Error:  "no endpoint generation published yet",
		}, http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessCheckTimeout)
	defer cancel()
	for _, check := range routes.readiness {
		if err := check(ctx); err != nil {
			common.WriteJSONResponse(w, ReadinessResponse{
				Status: "not ready",
				Error:  err.Error(),
			}, http.StatusServiceUnavailable)
			return
		}
	}
	common.WriteJSONResponse(w, ReadinessResponse{Status: "ready"}, http.StatusOK)
}

// versionHandler handles GET /version
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}

// whoAmI handles GET /auth/me
func whoAmI(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if p == nil {
		common.WriteErrorResponse(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	common.WriteJSONResponse(w, map[string]any{"success": true, "user": p}, http.StatusOK)
}

// catalog handles GET /catalog: the endpoints of the published generation
func (routes *publicRoutes) catalog(w http.ResponseWriter, _ *http.Request) {
	gen := routes.registry.Active()
	if gen == nil {
		common.WriteErrorResponse(w, "no endpoint generation published yet", http.StatusServiceUnavailable)
		return
	}

	entries := make([]CatalogEntry, 0, len(gen.Descriptors))
	for _, d := range gen.Descriptors {
		entries = append(entries, CatalogEntry{
			Name:     d.Name,
			Path:     d.Path,
			Method:   d.Method,
			Category: d.CategoryOrDefault(),
		})
	}
	common.WriteJSONResponse(w, CatalogResponse{
		Success:    true,
		Generation: gen.Number,
		Total:      len(entries),
		Endpoints:  entries,
	}, http.StatusOK)
}

// docs handles GET /catalog/docs. Elevated endpoints keep their name and
// category for everyone, but their description, parameters and examples are
// only shown to entitled callers. When protection data is unavailable no
// endpoint is flagged, and details are withheld from every caller who is not
// entitled to elevated endpoints.
func (routes *publicRoutes) docs(w http.ResponseWriter, r *http.Request) {
	gen := routes.registry.Active()
	if gen == nil {
		common.WriteErrorResponse(w, "no endpoint generation published yet", http.StatusServiceUnavailable)
		return
	}

	protected, known := routes.access.Lookup(r.Context())
	entitled := access.Entitled(auth.FromContext(r.Context()), store.StatusVIP, routes.clock.Now())

	entries := make([]DocsEntry, 0, len(gen.Descriptors))
	for _, d := range gen.Descriptors {
		requiresVIP := requiresVIP(protected, d)
		entry := DocsEntry{
			Path:           d.Path,
			Method:         d.Method,
			Name:           d.Name,
			Description:    d.Description,
			Category:       d.CategoryOrDefault(),
			RequiresVIP:    requiresVIP,
			Parameters:     d.Parameters,
			Examples:       d.Examples,
			ResponseBinary: d.ResponseBinary,
		}
		switch {
		case entitled:
		case requiresVIP:
			entry.Description = sanitizedDescription
			entry.Parameters = nil
			entry.Examples = nil
			entry.ResponseBinary = false
		case !known:
			entry.Parameters = nil
			entry.Examples = nil
		}
		if entry.Description == "" {
			entry.Description = d.Name
		}
		if entry.Parameters == nil {
			entry.Parameters = []endpoint.Parameter{}
		}
		entries = append(entries, entry)
	}

	body, err := json.Marshal(DocsResponse{Success: true, Total: len(entries), Endpoints: entries})
	if err != nil {
		common.WriteErrorResponse(w, "failed to render documentation", http.StatusInternalServerError)
		return
	}

	sum := sha256.Sum256(body)
	etag := `"` + hex.EncodeToString(sum[:8]) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", docsCacheControl)
	w.Header().Set("Vary", "Authorization, Cookie")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// requiresVIP reports whether any method of d is an elevated protected endpoint.
// Documentation matches records exactly by path rather than by prefix.
func requiresVIP(protected []store.ProtectedEndpoint, d endpoint.Descriptor) bool {
	methods := d.Methods()
	return slices.ContainsFunc(protected, func(ep store.ProtectedEndpoint) bool {
		if ep.Path != d.Path || !ep.Status.Elevated() {
			return false
		}
		return slices.ContainsFunc(methods, func(m string) bool {
			return endpoint.MethodMatches(ep.Method, m) || endpoint.MethodMatches(m, ep.Method)
		})
	})
}
