package admin

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stacklok/toolhive-gateway/internal/api/common"
	"github.com/stacklok/toolhive-gateway/internal/endpoint"
	"github.com/stacklok/toolhive-gateway/internal/events"
	"github.com/stacklok/toolhive-gateway/internal/store"
)

// BulkStatusRequest changes the status of many records at once
type BulkStatusRequest struct {
	IDs    []string     `json:"ids"`
	Status store.Status `json:"status"`
}

// BulkStatusResponse reports a bulk status change
type BulkStatusResponse struct {
	Success bool         `json:"success"`
	Updated int          `json:"updated"`
	Status  store.Status `json:"status"`
}

// UpsertResponse reports an operator create-or-update
type UpsertResponse struct {
	Success bool          `json:"success"`
	Created bool          `json:"created"`
	Record  *store.Record `json:"record"`
}

// listEndpoints handles GET /admin/endpoints
//
// Query parameters: status, category, search, active, page, limit.
func (routes *Routes) listEndpoints(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := routes.storeContext(r.Context())
	defer cancel()
	result, err := routes.catalog.List(ctx, filter)
	if err != nil {
		writeStoreError(w, r, err, "list endpoints")
		return
	}
	common.WriteJSONResponse(w, result, http.StatusOK)
}

func parseListFilter(r *http.Request) (store.ListFilter, error) {
	query := r.URL.Query()
	filter := store.ListFilter{
		Status:   store.Status(query.Get("status")),
		Category: query.Get("category"),
		Search:   query.Get("search"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, fmt.Errorf("invalid status parameter: %q", filter.Status)
	}

	var err error
	if filter.Active, err = common.QueryBool(r, "active"); err != nil {
		return filter, err
	}
	if filter.Page, err = common.QueryInt(r, "page"); err != nil {
		return filter, err
	}
	if filter.Limit, err = common.QueryInt(r, "limit"); err != nil {
		return filter, err
	}
	if filter.Page < 0 || filter.Limit < 0 {
		return filter, errors.New("page and limit must not be negative")
	}
	filter.Normalize()
	return filter, nil
}

// getEndpoint handles GET /admin/endpoints/{id}
func (routes *Routes) getEndpoint(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetUUIDURLParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := routes.storeContext(r.Context())
	defer cancel()
	rec, err := routes.catalog.Get(ctx, id)
	if err != nil {
		writeStoreError(w, r, err, "get endpoint")
		return
	}
	common.WriteJSONResponse(w, rec, http.StatusOK)
}

// upsertEndpoint handles PUT /admin/endpoints. The record is keyed by path and
// method; omitted fields keep their stored values.
func (routes *Routes) upsertEndpoint(w http.ResponseWriter, r *http.Request) {
	var update store.RecordUpdate
	if err := common.DecodeJSONBody(w, r, &update); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateRecordUpdate(&update); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := routes.storeContext(r.Context())
	defer cancel()
	rec, created, err := routes.catalog.Upsert(ctx, update)
	if err != nil {
		writeStoreError(w, r, err, "upsert endpoint")
		return
	}

	action := events.ActionUpdated
	status := http.StatusOK
	if created {
		action = events.ActionCreated
		status = http.StatusCreated
	}
	routes.invalidate()
	routes.publish(events.EndpointChange(action, rec))

	common.WriteJSONResponse(w, UpsertResponse{Success: true, Created: created, Record: rec}, status)
}

// validateRecordUpdate checks and normalizes an operator update in place
func validateRecordUpdate(u *store.RecordUpdate) error {
	u.Path = strings.TrimSpace(u.Path)
	if u.Path == "" {
		return errors.New("path is required")
	}
	if !strings.HasPrefix(u.Path, "/") {
		return errors.New("path must begin with /")
	}
	if strings.ContainsAny(u.Path, " \t\n\r?#") {
		return errors.New("path must not contain whitespace, query or fragment")
	}

	if strings.TrimSpace(u.Method) == "" {
		u.Method = "GET"
	}
	if !endpoint.SupportedMethod(u.Method) {
		return fmt.Errorf("method must be a single HTTP verb or %s, got %q", endpoint.MethodAll, u.Method)
	}
	u.Method = strings.ToUpper(strings.TrimSpace(u.Method))

	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("invalid status %q", *u.Status)
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return errors.New("name must not be blank")
	}
	return nil
}

// setEndpointStatus handles PATCH /admin/endpoints/status
func (routes *Routes) setEndpointStatus(w http.ResponseWriter, r *http.Request) {
	var req BulkStatusRequest
	if err := common.DecodeJSONBody(w, r, &req); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.Status.Valid() {
		common.WriteErrorResponse(w, fmt.Sprintf("invalid status %q", req.Status), http.StatusBadRequest)
		return
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := routes.storeContext(r.Context())
	defer cancel()
	updated, err := routes.catalog.SetStatus(ctx, ids, req.Status)
	if err != nil {
		writeStoreError(w, r, err, "set endpoint status")
		return
	}

	if updated > 0 {
		routes.invalidate()
		routes.publish(events.EndpointBulkChange(events.ActionStatusChanged, updated))
	}
	common.WriteJSONResponse(w, BulkStatusResponse{Success: true, Updated: updated, Status: req.Status}, http.StatusOK)
}

// endpointStats handles GET /admin/endpoints/stats
func (routes *Routes) endpointStats(w http.ResponseWriter, r *http.Request) {
	stats, err := routes.syncer.Stats(r.Context())
	if err != nil {
		writeStoreError(w, r, err, "endpoint stats")
		return
	}
	common.WriteJSONResponse(w, stats, http.StatusOK)
}
