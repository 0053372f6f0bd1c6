// Package store defines the durable repository contracts of the gateway: catalog
// records with their operator-owned fields, and the users whose roles drive access
// decisions.
package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/toolhive-gateway/internal/endpoint"
)

// Status is the operator-assigned protection tier of a catalog record
type Status string

const (
	// StatusFree is open to everyone
	StatusFree Status = "free"
	// StatusVIP requires an active vip role
	StatusVIP Status = "vip"
	// StatusPremium requires an active vip role
	StatusPremium Status = "premium"
	// StatusDisabled is closed to everyone except admins
	StatusDisabled Status = "disabled"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusFree, StatusVIP, StatusPremium, StatusDisabled:
		return true
	}
	return false
}

// Elevated reports whether s requires an elevated role
func (s Status) Elevated() bool {
	return s == StatusVIP || s == StatusPremium
}

// Role is a user's authorization role
type Role string

const (
	// RoleUser is a regular account
	RoleUser Role = "user"
	// RoleVIP grants elevated endpoints until VIPExpiresAt
	RoleVIP Role = "vip"
	// RoleAdmin is always granted and may use the admin API
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleVIP, RoleAdmin:
		return true
	}
	return false
}

// Record is a durable catalog entry. Descriptive fields are refreshed by sync;
// Status, IsActive and Tags belong to operators.
type Record struct {
	ID             uuid.UUID            `json:"id"`
	Path           string               `json:"path"`
	Method         string               `json:"method"`
	Name           string               `json:"name"`
	Description    string               `json:"description,omitempty"`
	Category       string               `json:"category,omitempty"`
	Parameters     []endpoint.Parameter `json:"parameters,omitempty"`
	Examples       json.RawMessage      `json:"examples,omitempty"`
	ResponseBinary bool                 `json:"responseBinary"`
	Source         string               `json:"source,omitempty"`
	Status         Status               `json:"status"`
	IsActive       bool                 `json:"isActive"`
	Tags           []string             `json:"tags,omitempty"`
	Tombstoned     bool                 `json:"tombstoned"`
	LastSyncedAt   *time.Time           `json:"lastSyncedAt,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

// Key returns the record identity
func (r Record) Key() endpoint.Key {
	return endpoint.Key{Path: r.Path, Method: r.Method}
}

// ProtectedEndpoint is the projection of a record the access cache works with
type ProtectedEndpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Status      Status `json:"status"`
	IsActive    bool   `json:"isActive"`
}

// Protection derives the protected projection of a record and reports whether the
// record needs any enforcement: a non-free tier, or an operator deactivation.
func (r Record) Protection() (ProtectedEndpoint, bool) {
	p := ProtectedEndpoint{
		Path:        r.Path,
		Method:      r.Method,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Status:      r.Status,
		IsActive:    r.IsActive,
	}
	return p, r.Status != StatusFree || (!r.IsActive && !r.Tombstoned)
}

// DiscoveredEndpoint is one (path, method) of a descriptor found by a sync pass
type DiscoveredEndpoint struct {
	Path           string
	Method         string
	Name           string
	Description    string
	Category       string
	Parameters     []endpoint.Parameter
	Examples       json.RawMessage
	ResponseBinary bool
	Source         string
}

// UpsertOutcome reports what UpsertDiscovered did
type UpsertOutcome struct {
	Created     bool
	Reactivated bool
}

// RecordUpdate is an operator create-or-update keyed by (Path, Method).
// Nil fields are left unchanged on update.
type RecordUpdate struct {
	Path        string   `json:"path"`
	Method      string   `json:"method"`
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Status      *Status  `json:"status,omitempty"`
	IsActive    *bool    `json:"isActive,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Default listing bounds
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ListFilter selects catalog records
type ListFilter struct {
	Status   Status
	Category string
	Search   string
	Active   *bool
	Page     int
	Limit    int
}

// Normalize applies paging defaults and bounds
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	f.Search = strings.TrimSpace(f.Search)
}

// Offset returns the number of records skipped before the current page
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// ListResult is one page of records
type ListResult struct {
	Total   int      `json:"total"`
	Page    int      `json:"page"`
	Limit   int      `json:"limit"`
	Pages   int      `json:"pages"`
	Records []Record `json:"records"`
}

// NewListResult assembles a page, computing the page count
func NewListResult(f ListFilter, total int, records []Record) *ListResult {
	pages := 0
	if f.Limit > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	if records == nil {
		records = []Record{}
	}
	return &ListResult{Total: total, Page: f.Page, Limit: f.Limit, Pages: pages, Records: records}
}

// Stats summarizes the catalog
type Stats struct {
	Total      int            `json:"total"`
	Active     int            `json:"active"`
	Inactive   int            `json:"inactive"`
	Tombstoned int            `json:"tombstoned"`
	ByStatus   map[Status]int `json:"byStatus"`
	ByCategory map[string]int `json:"byCategory"`
}

// User is the authorization view of an account
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Role         Role       `json:"role"`
	VIPExpiresAt *time.Time `json:"vipExpiresAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}
