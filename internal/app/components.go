package app

import (
	"context"
	"log/slog"

	"github.com/stacklok/toolhive-gateway/internal/access"
	"github.com/stacklok/toolhive-gateway/internal/auth"
	"github.com/stacklok/toolhive-gateway/internal/catalog"
	"github.com/stacklok/toolhive-gateway/internal/events"
	"github.com/stacklok/toolhive-gateway/internal/registry"
	"github.com/stacklok/toolhive-gateway/internal/store"
)

// GatewayComponents groups all application components
//
//nolint:revive // This name is fine
type GatewayComponents struct {
	// Registry publishes endpoint generations and dispatches dynamic requests
	Registry *registry.Registry

	// Syncer reconciles discovered endpoints into the catalog
	Syncer *catalog.Syncer

	// Access caches the protected endpoint list for access decisions
	Access *access.Cache

	// Authenticator resolves request principals
	Authenticator *auth.Authenticator

	// Hub fans change events out to subscribers
	Hub *events.Hub

	// Store is the durable catalog and user store
	Store store.Store

	// watchDir is the manifest directory watched for changes, empty when watching is off
	watchDir string
}

// sync runs one catalog pass and drops cached access decisions on success.
// Outcomes are logged by the syncer.
func (c *GatewayComponents) sync(ctx context.Context, trigger string) {
	slog.DebugContext(ctx, "Running catalog sync", "trigger", trigger)
	if _, err := c.Syncer.Sync(ctx); err != nil {
		return
	}
	c.Access.Invalidate()
}

func (c *GatewayComponents) close() {
	c.Hub.Close()
	c.Authenticator.Stop()
	c.Store.Close()
}
