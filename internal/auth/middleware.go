package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/stacklok/toolhive-gateway/internal/api/common"
	"github.com/stacklok/toolhive-gateway/internal/store"
)

// Defaults for the principal cache and user lookups
const (
	DefaultPrincipalTTL  = 30 * time.Second
	DefaultLookupTimeout = 5 * time.Second
)

// Authenticator attaches the caller's principal to each request
type Authenticator struct {
	secret        []byte
	users         store.UserStore
	anonymous     bool
	lookupTimeout time.Duration
	principalTTL  time.Duration
	cache         *ttlcache.Cache[string, *Principal]
	stopOnce      sync.Once
}

// Option configures an Authenticator
type Option func(*Authenticator)

// WithSecret sets the HS256 signing secret. Without a secret every request is anonymous.
func WithSecret(secret []byte) Option {
	return func(a *Authenticator) { a.secret = secret }
}

// WithAnonymousMode disables the admin role guard for local development
func WithAnonymousMode(enabled bool) Option {
	return func(a *Authenticator) { a.anonymous = enabled }
}

// WithPrincipalTTL sets how long a resolved user is reused before it is read again
func WithPrincipalTTL(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.principalTTL = d
		}
	}
}

// WithLookupTimeout bounds each user lookup
func WithLookupTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.lookupTimeout = d
		}
	}
}

// NewAuthenticator creates an Authenticator resolving token subjects through users.
// Stop must be called to release the cache's expiry loop.
func NewAuthenticator(users store.UserStore, opts ...Option) *Authenticator {
	a := &Authenticator{
		users:         users,
		lookupTimeout: DefaultLookupTimeout,
		principalTTL:  DefaultPrincipalTTL,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.cache = ttlcache.New[string, *Principal](
		ttlcache.WithTTL[string, *Principal](a.principalTTL),
		ttlcache.WithDisableTouchOnHit[string, *Principal](),
	)
	go a.cache.Start()
	return a
}

// Stop ends the cache expiry loop. Later calls do nothing.
func (a *Authenticator) Stop() {
	a.stopOnce.Do(a.cache.Stop)
}

// AnonymousMode reports whether the admin guard is disabled
func (a *Authenticator) AnonymousMode() bool {
	return a.anonymous
}

// Authenticate returns the principal of r, or nil when the caller is anonymous
func (a *Authenticator) Authenticate(r *http.Request) *Principal {
	if len(a.secret) == 0 {
		return nil
	}
	raw, err := ExtractToken(r)
	if err != nil {
		if !errors.Is(err, ErrNoToken) {
			slog.DebugContext(r.Context(), "Ignoring malformed credentials", "error", err)
		}
		return nil
	}
	userID, err := ParseSubject(a.secret, raw)
	if err != nil {
		slog.DebugContext(r.Context(), "Ignoring invalid token", "error", err, "remote_addr", r.RemoteAddr)
		return nil
	}
	p, err := a.lookup(r.Context(), userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(r.Context(), "Failed to resolve user, treating request as anonymous",
				"user_id", userID, "error", err)
		}
		return nil
	}
	return p
}

func (a *Authenticator) lookup(ctx context.Context, userID string) (*Principal, error) {
	if item := a.cache.Get(userID); item != nil {
		return item.Value(), nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
	defer cancel()
	u, err := a.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := principalFromUser(u)
	a.cache.Set(userID, p, ttlcache.DefaultTTL)
	return p, nil
}

// Forget drops the cached principal of userID so the next request reads it again
func (a *Authenticator) Forget(userID string) {
	a.cache.Delete(userID)
}

// Middleware attaches the principal, if any, to the request context
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := a.Authenticate(r); p != nil {
			r = r.WithContext(WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests whose principal has none of roles: 401 for
// anonymous callers, 403 otherwise. In anonymous mode every request passes.
func (a *Authenticator) RequireRole(roles ...store.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if a.anonymous {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := FromContext(r.Context())
			if p == nil {
				common.WriteErrorResponse(w, "authentication required", http.StatusUnauthorized)
				return
			}
			if !p.HasRole(roles...) {
				slog.WarnContext(r.Context(), "Access denied by role",
					"user_id", p.UserID, "role", p.Role, "path", r.URL.Path)
				common.WriteErrorResponse(w, "insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
