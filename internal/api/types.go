// Package api provides the HTTP surface of the gateway: health and version
// probes, the endpoint catalog, change event streams, the admin API and the
// access-checked dispatch of dynamic endpoints.
package api

import (
	"encoding/json"
	"time"

	"github.com/stacklok/toolhive-gateway/internal/endpoint"
	"github.com/stacklok/toolhive-gateway/internal/registry"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status         string          `json:"status" example:"healthy"`
	UptimeSeconds  int64           `json:"uptime"`
	Timestamp      time.Time       `json:"timestamp"`
	TotalEndpoints int             `json:"totalEndpoints"`
	Reload         registry.Status `json:"reload"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string `json:"status" example:"ready"`
	Error  string `json:"error,omitempty"`
}

// CatalogEntry is one endpoint of the live catalog listing
type CatalogEntry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Method   string `json:"method"`
	Category string `json:"category"`
}

// CatalogResponse lists the endpoints of the published generation
type CatalogResponse struct {
	Success    bool           `json:"success"`
	Generation uint64         `json:"generation"`
	Total      int            `json:"total"`
	Endpoints  []CatalogEntry `json:"endpoints"`
}

// DocsEntry is the documentation of one endpoint. Details of elevated endpoints
// are withheld from callers who are not entitled to them.
type DocsEntry struct {
	Path           string               `json:"path"`
	Method         string               `json:"method"`
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	Category       string               `json:"category"`
	RequiresVIP    bool                 `json:"requiresVIP"`
	Parameters     []endpoint.Parameter `json:"parameters"`
	Examples       json.RawMessage      `json:"examples,omitempty"`
	ResponseBinary bool                 `json:"responseBinary"`
}

// DocsResponse lists endpoint documentation
type DocsResponse struct {
	Success   bool        `json:"success"`
	Total     int         `json:"total"`
	Endpoints []DocsEntry `json:"endpoints"`
}
