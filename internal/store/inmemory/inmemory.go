// Package inmemory provides a mutex-guarded, map-backed implementation of store.Store
package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/toolhive-gateway/internal/endpoint"
	"github.com/stacklok/toolhive-gateway/internal/store"
)

// Store keeps records and users in memory
type Store struct {
	mu      sync.RWMutex // Protects records, byID, users
	records map[endpoint.Key]*store.Record
	byID    map[uuid.UUID]endpoint.Key
	users   map[string]*store.User

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Option is a functional option for configuring the Store
type Option func(*Store)

// WithNow overrides the time source used for timestamps
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[endpoint.Key]*store.Record),
		byID:    make(map[uuid.UUID]endpoint.Key),
		users:   make(map[string]*store.User),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PutUser inserts or replaces a user
func (s *Store) PutUser(u store.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.users[u.ID] = &u
}

// Close is a no-op
func (*Store) Close() {}

// UpsertDiscovered implements store.CatalogStore
func (s *Store) UpsertDiscovered(
	_ context.Context, d store.DiscoveredEndpoint, syncedAt time.Time,
) (store.UpsertOutcome, error) {
	if d.Path == "" || d.Method == "" {
		return store.UpsertOutcome{}, fmt.Errorf("%w: path and method are required", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := endpoint.Key{Path: d.Path, Method: d.Method}
	synced := syncedAt
	rec, ok := s.records[key]
	if !ok {
		rec = &store.Record{
			ID:        uuid.New(),
			Path:      d.Path,
			Method:    d.Method,
			Status:    store.StatusFree,
			IsActive:  true,
			CreatedAt: syncedAt,
		}
		if d.Category != "" {
			rec.Tags = []string{d.Category}
		}
		applyDiscovered(rec, d)
		rec.LastSyncedAt = &synced
		rec.UpdatedAt = syncedAt
		s.records[key] = rec
		s.byID[rec.ID] = key
		return store.UpsertOutcome{Created: true}, nil
	}

	var out store.UpsertOutcome
	applyDiscovered(rec, d)
	if rec.Tombstoned {
		rec.Tombstoned = false
		rec.IsActive = true
		out.Reactivated = true
	}
	rec.LastSyncedAt = &synced
	rec.UpdatedAt = syncedAt
	return out, nil
}

// applyDiscovered copies a descriptor onto rec. An empty description, category
// or examples keeps the stored value.
func applyDiscovered(rec *store.Record, d store.DiscoveredEndpoint) {
	rec.Name = d.Name
	if d.Description != "" {
		rec.Description = d.Description
	}
	if d.Category != "" {
		rec.Category = d.Category
	}
	rec.Parameters = slices.Clone(d.Parameters)
	if len(d.Examples) > 0 {
		rec.Examples = slices.Clone(d.Examples)
	}
	rec.ResponseBinary = d.ResponseBinary
	rec.Source = d.Source
}

// ListSyncedActiveKeys implements store.CatalogStore
func (s *Store) ListSyncedActiveKeys(context.Context) ([]endpoint.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]endpoint.Key, 0, len(s.records))
	for key, rec := range s.records {
		if rec.IsActive && rec.Source != "" {
			keys = append(keys, key)
		}
	}
	sortKeys(keys)
	return keys, nil
}

// Tombstone implements store.CatalogStore
func (s *Store) Tombstone(_ context.Context, keys []endpoint.Key, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, key := range keys {
		rec, ok := s.records[key]
		if !ok || !rec.IsActive {
			continue
		}
		rec.IsActive = false
		rec.Tombstoned = true
		rec.UpdatedAt = at
		changed++
	}
	return changed, nil
}

// ListProtected implements store.CatalogStore
func (s *Store) ListProtected(context.Context) ([]store.ProtectedEndpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.ProtectedEndpoint, 0)
	for _, rec := range s.sortedLocked() {
		if p, protected := rec.Protection(); protected {
			out = append(out, p)
		}
	}
	return out, nil
}

// List implements store.CatalogStore
func (s *Store) List(_ context.Context, filter store.ListFilter) (*store.ListResult, error) {
	filter.Normalize()
	search := strings.ToLower(filter.Search)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []store.Record
	for _, rec := range s.sortedLocked() {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.Category != "" && rec.Category != filter.Category {
			continue
		}
		if filter.Active != nil && rec.IsActive != *filter.Active {
			continue
		}
		if search != "" && !matchesSearch(rec, search) {
			continue
		}
		matched = append(matched, copyRecord(rec))
	}

	total := len(matched)
	start := min(filter.Offset(), total)
	end := min(start+filter.Limit, total)
	return store.NewListResult(filter, total, matched[start:end]), nil
}

func matchesSearch(rec *store.Record, search string) bool {
	return strings.Contains(strings.ToLower(rec.Path), search) ||
		strings.Contains(strings.ToLower(rec.Name), search) ||
		strings.Contains(strings.ToLower(rec.Description), search)
}

// Get implements store.CatalogStore
func (s *Store) Get(_ context.Context, id uuid.UUID) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, store.ErrNotFound)
	}
	rec := copyRecord(s.records[key])
	return &rec, nil
}

// Upsert implements store.CatalogStore
func (s *Store) Upsert(_ context.Context, u store.RecordUpdate) (*store.Record, bool, error) {
	if u.Path == "" || u.Method == "" {
		return nil, false, fmt.Errorf("%w: path and method are required", store.ErrInvalidInput)
	}
	if u.Status != nil && !u.Status.Valid() {
		return nil, false, fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, *u.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := endpoint.Key{Path: u.Path, Method: u.Method}
	rec, ok := s.records[key]
	created := !ok
	if created {
		rec = &store.Record{
			ID:        uuid.New(),
			Path:      u.Path,
			Method:    u.Method,
			Name:      u.Path,
			Status:    store.StatusFree,
			IsActive:  true,
			CreatedAt: now,
		}
		s.records[key] = rec
		s.byID[rec.ID] = key
	}

	if u.Name != nil {
		rec.Name = *u.Name
	}
	if u.Description != nil {
		rec.Description = *u.Description
	}
	if u.Category != nil {
		rec.Category = *u.Category
	}
	if u.Status != nil {
		rec.Status = *u.Status
	}
	if u.IsActive != nil {
		rec.IsActive = *u.IsActive
		rec.Tombstoned = false
	}
	if u.Tags != nil {
		rec.Tags = slices.Clone(u.Tags)
	}
	rec.UpdatedAt = now

	out := copyRecord(rec)
	return &out, created, nil
}

// SetStatus implements store.CatalogStore
func (s *Store) SetStatus(_ context.Context, ids []uuid.UUID, status store.Status) (int, error) {
	if !status.Valid() {
		return 0, fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, id := range ids {
		key, ok := s.byID[id]
		if !ok {
			continue
		}
		rec := s.records[key]
		rec.Status = status
		rec.UpdatedAt = now
		n++
	}
	return n, nil
}

// Stats implements store.CatalogStore
func (s *Store) Stats(context.Context) (*store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &store.Stats{
		ByStatus:   make(map[store.Status]int),
		ByCategory: make(map[string]int),
	}
	for _, rec := range s.records {
		stats.Total++
		if rec.IsActive {
			stats.Active++
		} else {
			stats.Inactive++
		}
		if rec.Tombstoned {
			stats.Tombstoned++
		}
		stats.ByStatus[rec.Status]++
		category := rec.Category
		if category == "" {
			category = endpoint.CategoryOther
		}
		stats.ByCategory[category]++
	}
	return stats, nil
}

// GetUser implements store.UserStore
func (s *Store) GetUser(_ context.Context, id string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	out := copyUser(u)
	return &out, nil
}

// ListUsers implements store.UserStore
func (s *Store) ListUsers(context.Context) ([]store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SetRole implements store.UserStore
func (s *Store) SetRole(_ context.Context, id string, role store.Role, vipExpiresAt *time.Time) (*store.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", store.ErrInvalidInput, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	u.Role = role
	u.VIPExpiresAt = nil
	if vipExpiresAt != nil {
		t := *vipExpiresAt
		u.VIPExpiresAt = &t
	}
	out := copyUser(u)
	return &out, nil
}

// sortedLocked returns the records ordered by path then method.
// Caller must hold s.mu.
func (s *Store) sortedLocked() []*store.Record {
	out := make([]*store.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

func sortKeys(keys []endpoint.Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Method < keys[j].Method
	})
}

func copyRecord(rec *store.Record) store.Record {
	out := *rec
	out.Parameters = slices.Clone(rec.Parameters)
	out.Examples = slices.Clone(rec.Examples)
	out.Tags = slices.Clone(rec.Tags)
	if rec.LastSyncedAt != nil {
		t := *rec.LastSyncedAt
		out.LastSyncedAt = &t
	}
	return out
}

func copyUser(u *store.User) store.User {
	out := *u
	if u.VIPExpiresAt != nil {
		t := *u.VIPExpiresAt
		out.VIPExpiresAt = &t
	}
	return out
}
