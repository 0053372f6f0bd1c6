package access

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/toolhive-gateway/internal/api/common"
	"github.com/stacklok/toolhive-gateway/internal/auth"
	"github.com/stacklok/toolhive-gateway/internal/store"
)

// Reason explains a denial to the client
type Reason string

// Denial reasons
const (
	ReasonLoginRequired   Reason = "login_required"
	ReasonUpgradeRequired Reason = "upgrade_required"
	ReasonExpired         Reason = "expired"
	ReasonDisabled        Reason = "disabled"
)

// Decision is the outcome of an access check
type Decision struct {
	Allowed  bool
	Reason   Reason
	Endpoint *store.ProtectedEndpoint
}

// Decide applies the access rules to a caller and the protected endpoint its
// request matched, if any. A nil principal is an anonymous caller.
func Decide(p *auth.Principal, ep *store.ProtectedEndpoint, now time.Time) Decision {
	if ep == nil {
		return Decision{Allowed: true}
	}
	deny := func(r Reason) Decision { return Decision{Reason: r, Endpoint: ep} }

	if p == nil {
		return deny(ReasonLoginRequired)
	}
	if p.IsAdmin() {
		return Decision{Allowed: true, Endpoint: ep}
	}
	if ep.Status == store.StatusDisabled || !ep.IsActive {
		return deny(ReasonDisabled)
	}
	if !ep.Status.Elevated() {
		return Decision{Allowed: true, Endpoint: ep}
	}
	if p.Role != store.RoleVIP {
		return deny(ReasonUpgradeRequired)
	}
	if p.VIPExpiresAt != nil && !p.VIPExpiresAt.After(now) {
		return deny(ReasonExpired)
	}
	return Decision{Allowed: true, Endpoint: ep}
}

// Decide matches the request against the snapshot and applies the access rules
func (c *Cache) Decide(ctx context.Context, p *auth.Principal, path, method string) Decision {
	var d Decision
	if ep, ok := c.Match(ctx, path, method); ok {
		d = Decide(p, &ep, c.clock.Now())
	} else {
		d = Decide(p, nil, c.clock.Now())
	}
	if d.Endpoint != nil {
		c.metrics.RecordDecision(ctx, d.Allowed, string(d.Reason))
	}
	return d
}

// Entitled reports whether p may see the details of an endpoint with status
func Entitled(p *auth.Principal, status store.Status, now time.Time) bool {
	return Decide(p, &store.ProtectedEndpoint{Status: status, IsActive: true}, now).Allowed
}

// Denial is the body of a denied request
type Denial struct {
	Success     bool   `json:"success"`
	Error       string `json:"error"`
	Reason      Reason `json:"reason"`
	VIPRequired bool   `json:"vipRequired,omitempty"`
}

var denialMessages = map[Reason]string{
	ReasonLoginRequired:   "This endpoint requires authentication. Please login.",
	ReasonUpgradeRequired: "This endpoint requires VIP membership",
	ReasonExpired:         "Your VIP membership has expired",
	ReasonDisabled:        "This endpoint is currently disabled",
}

// StatusCode maps a denial reason to its HTTP status
func (r Reason) StatusCode() int {
	if r == ReasonLoginRequired {
		return http.StatusUnauthorized
	}
	return http.StatusForbidden
}

// Middleware enforces decisions before next handles the request. The principal
// is read from the request context, see auth.Authenticator.Middleware.
func Middleware(c *Cache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.FromContext(r.Context())
			d := c.Decide(r.Context(), p, r.URL.Path, r.Method)
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			attrs := []any{"path", r.URL.Path, "method", r.Method, "reason", d.Reason}
			if p != nil {
				attrs = append(attrs, "user_id", p.UserID)
			}
			slog.InfoContext(r.Context(), "Request denied", attrs...)

			common.WriteJSONResponse(w, Denial{
				Error:       denialMessages[d.Reason],
				Reason:      d.Reason,
				VIPRequired: d.Endpoint != nil && d.Endpoint.Status.Elevated(),
			}, d.Reason.StatusCode())
		})
	}
}
