package admin

import (
	"fmt"
	"net/http"
	"time"

	"github.com/stacklok/toolhive-gateway/internal/api/common"
	"github.com/stacklok/toolhive-gateway/internal/store"
)

// RoleRequest changes a user's role. VIPExpiresAt only applies to the vip role;
// omitted means no expiry.
type RoleRequest struct {
	Role         store.Role `json:"role"`
	VIPExpiresAt *time.Time `json:"vipExpiresAt,omitempty"`
}

// UsersResponse lists users
type UsersResponse struct {
	Success bool         `json:"success"`
	Total   int          `json:"total"`
	Users   []store.User `json:"users"`
}

// UserResponse returns one user
type UserResponse struct {
	Success bool        `json:"success"`
	User    *store.User `json:"user"`
}

// listUsers handles GET /admin/users
func (routes *Routes) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := routes.storeContext(r.Context())
	defer cancel()
	users, err := routes.users.ListUsers(ctx)
	if err != nil {
		writeStoreError(w, r, err, "list users")
		return
	}
	if users == nil {
		users = []store.User{}
	}
	common.WriteJSONResponse(w, UsersResponse{Success: true, Total: len(users), Users: users}, http.StatusOK)
}

// setUserRole handles PUT /admin/users/{id}/role. The user's cached principal is
// dropped so the change applies to their next request.
func (routes *Routes) setUserRole(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetAndValidateURLParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req RoleRequest
	if err := common.DecodeJSONBody(w, r, &req); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.Role.Valid() {
		common.WriteErrorResponse(w,
			fmt.Sprintf("invalid role %q: must be user, vip, or admin", req.Role), http.StatusBadRequest)
		return
	}
	if req.Role != store.RoleVIP {
		req.VIPExpiresAt = nil
	}

	ctx, cancel := routes.storeContext(r.Context())
	defer cancel()
	user, err := routes.users.SetRole(ctx, id, req.Role, req.VIPExpiresAt)
	if err != nil {
		writeStoreError(w, r, err, "set user role")
		return
	}

	if routes.principals != nil {
		routes.principals.Forget(id)
	}
	common.WriteJSONResponse(w, UserResponse{Success: true, User: user}, http.StatusOK)
}
