package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/toolhive-gateway/internal/endpoint"
)

var (
	// ErrNotFound is returned when a record or user does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for malformed store arguments
	ErrInvalidInput = errors.New("invalid input")
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go CatalogStore,UserStore

// CatalogStore persists catalog records
type CatalogStore interface {
	// UpsertDiscovered creates the record for a discovered endpoint with status free and
	// isActive true, or refreshes only its descriptive fields. A tombstoned record is
	// re-activated; operator-owned fields are never touched.
	UpsertDiscovered(ctx context.Context, d DiscoveredEndpoint, syncedAt time.Time) (UpsertOutcome, error)

	// ListSyncedActiveKeys returns the keys of active records that were created by sync
	ListSyncedActiveKeys(ctx context.Context) ([]endpoint.Key, error)

	// Tombstone deactivates the given records as no longer discovered and returns how many changed
	Tombstone(ctx context.Context, keys []endpoint.Key, at time.Time) (int, error)

	// ListProtected returns every record that needs access enforcement
	ListProtected(ctx context.Context) ([]ProtectedEndpoint, error)

	// List returns one page of records matching filter
	List(ctx context.Context, filter ListFilter) (*ListResult, error)

	// Get returns the record with id
	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// Upsert applies an operator create-or-update and reports whether a record was created
	Upsert(ctx context.Context, update RecordUpdate) (*Record, bool, error)

	// SetStatus applies status to the records with ids and returns how many exist
	SetStatus(ctx context.Context, ids []uuid.UUID, status Status) (int, error)

	// Stats summarizes the catalog
	Stats(ctx context.Context) (*Stats, error)
}

// UserStore reads and updates the authorization data of users
type UserStore interface {
	// GetUser returns the user with id
	GetUser(ctx context.Context, id string) (*User, error)

	// ListUsers returns all users ordered by creation time
	ListUsers(ctx context.Context) ([]User, error)

	// SetRole changes a user's role and vip expiry
	SetRole(ctx context.Context, id string, role Role, vipExpiresAt *time.Time) (*User, error)
}

// Store bundles both repositories
type Store interface {
	CatalogStore
	UserStore
	Close()
}
