package registry

import "time"

// State is the reload lifecycle state
type State string

const (
	// StateIdle means no reload has been attempted yet
	StateIdle State = "Idle"
	// StateReloading means a reload is in flight
	StateReloading State = "Reloading"
	// StateReady means the last reload published a generation
	StateReady State = "Ready"
	// StateFailed means the last reload failed; the previous generation still serves
	StateFailed State = "Failed"
)

// Status is a snapshot of the reload lifecycle. Values handed to callers are copies.
type Status struct {
	State          State      `json:"state"`
	Generation     uint64     `json:"generation"`
	LastReloadAt   *time.Time `json:"lastReloadAt,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	TotalReloads   int64      `json:"totalReloads"`
	Successes      int64      `json:"successes"`
	Failures       int64      `json:"failures"`
	LastDurationMs int64      `json:"lastDurationMs"`
	Endpoints      int        `json:"endpoints"`
	ModuleFailures int        `json:"moduleFailures"`
}

func (s Status) clone() Status {
	if s.LastReloadAt != nil {
		t := *s.LastReloadAt
		s.LastReloadAt = &t
	}
	return s
}
