package model

import "fmt"

// ReportFlags carries the four independent tracking booleans a sorter
// reports for a barcode. Each report fully describes the sorter's current
// belief; flags are not cumulative across reports.
type ReportFlags struct {
	Active   bool `json:"active"`
	Good     bool `json:"good"`
	Diverted bool `json:"diverted"`
	Lost     bool `json:"lost"`
}

// Event maps the flag combination to the human-readable activity-log string.
func (f ReportFlags) Event() string {
	switch {
	case f.Lost:
		return "Lost"
	case f.Good && f.Diverted:
		return "Good & Diverted"
	case f.Diverted:
		return "Diverted"
	case f.Active:
		return "Active"
	default:
		return "Not Diverted"
	}
}

// ReconciledState is the engine's single authoritative belief about a cart's
// circulation status.
type ReconciledState int

const (
	StateUnknown ReconciledState = iota
	StateGood
	StateDiverted
	StateLost
	StateRemoved
)

func (s ReconciledState) String() string {
	switch s {
	case StateGood:
		return "in_circulation_good"
	case StateDiverted:
		return "in_circulation_diverted"
	case StateLost:
		return "lost"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ParseReconciledState resolves a state name as used in configuration.
func ParseReconciledState(s string) (ReconciledState, error) {
	for _, st := range []ReconciledState{StateUnknown, StateGood, StateDiverted, StateLost, StateRemoved} {
		if st.String() == s {
			return st, nil
		}
	}
	return StateUnknown, fmt.Errorf("unknown reconciled state %q", s)
}

// DisplayStatus is the lossy three-valued projection consumed by monitoring.
type DisplayStatus int

const (
	StatusInactive DisplayStatus = iota
	StatusIdle
	StatusActive
)

func (s DisplayStatus) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusIdle:
		return "Idle"
	default:
		return "Inactive"
	}
}
