// Package events fans out structured change events to connected subscribers.
// Delivery is best-effort and at-most-once: there is no replay, and a subscriber
// that cannot keep up is dropped.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type tags an Event
type Type string

const (
	// TypeConnected is the first event every subscriber receives
	TypeConnected Type = "connected"
	// TypeEndpointChange reports a change to a single catalog record
	TypeEndpointChange Type = "endpoint_change"
	// TypeEndpointBulkChange reports a change affecting many endpoints at once
	TypeEndpointBulkChange Type = "endpoint_bulk_change"
	// TypeEndpointSyncComplete reports the outcome of a catalog sync pass
	TypeEndpointSyncComplete Type = "endpoint_sync_complete"
)

// Actions carried by change events
const (
	ActionCreated       = "created"
	ActionUpdated       = "updated"
	ActionStatusChanged = "status_changed"
	ActionReloaded      = "reloaded"
)

// Event is one change notification. Fields beyond ID, Type and Timestamp are
// populated according to Type.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action,omitempty"`
	Data      any       `json:"data,omitempty"`
	Count     *int      `json:"count,omitempty"`
	Stats     any       `json:"stats,omitempty"`
	Message   string    `json:"message,omitempty"`
}

func newEvent(t Type) Event {
	return Event{ID: uuid.NewString(), Type: t, Timestamp: time.Now().UTC()}
}

// Connected builds the acknowledgement sent to a new subscriber
func Connected() Event {
	ev := newEvent(TypeConnected)
	ev.Message = "subscribed to endpoint changes"
	return ev
}

// EndpointChange builds an event for a single record change
func EndpointChange(action string, data any) Event {
	ev := newEvent(TypeEndpointChange)
	ev.Action = action
	ev.Data = data
	return ev
}

// EndpointBulkChange builds an event for a change affecting count endpoints
func EndpointBulkChange(action string, count int) Event {
	ev := newEvent(TypeEndpointBulkChange)
	ev.Action = action
	ev.Count = &count
	return ev
}

// EndpointSyncComplete builds an event carrying sync statistics
func EndpointSyncComplete(stats any) Event {
	ev := newEvent(TypeEndpointSyncComplete)
	ev.Stats = stats
	return ev
}
