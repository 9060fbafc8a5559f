// Package status derives the three-valued display status consumed by
// monitoring surfaces. The projection is lossy and read-only; it is never
// the system of record.
package status

import (
	"sort"

	"github.com/prtline/sortation/core/model"
	"github.com/prtline/sortation/core/registry"
)

// Projector maps reconciled states to display statuses. States listed in the
// idle set project to Idle, for lines where carts parked at a station should
// not count as circulating.
type Projector struct {
	idle map[model.ReconciledState]bool
}

// NewProjector creates a Projector. idleStates may be empty.
func NewProjector(idleStates ...model.ReconciledState) *Projector {
	idle := make(map[model.ReconciledState]bool, len(idleStates))
	for _, s := range idleStates {
		idle[s] = true
	}
	return &Projector{idle: idle}
}

// Project maps one reconciled state to its display status.
func (p *Projector) Project(s model.ReconciledState) model.DisplayStatus {
	if p.idle[s] {
		return model.StatusIdle
	}
	switch s {
	case model.StateGood, model.StateDiverted:
		return model.StatusActive
	default:
		return model.StatusInactive
	}
}

// StateSource exposes reconciled state lookups.
type StateSource interface {
	State(barcode string) model.ReconciledState
}

// Monitor is the read-only facade exposed to the monitoring/UI collaborator.
type Monitor struct {
	states    StateSource
	assigns   *registry.Registry
	projector *Projector
}

// NewMonitor creates a Monitor over the given sources.
func NewMonitor(states StateSource, assigns *registry.Registry, projector *Projector) *Monitor {
	return &Monitor{states: states, assigns: assigns, projector: projector}
}

// GetStatus projects the display status for one barcode.
func (m *Monitor) GetStatus(barcode string) model.DisplayStatus {
	return m.projector.Project(m.states.State(barcode))
}

// GetAssignment returns the destination assigned to barcode.
func (m *Monitor) GetAssignment(barcode string) (model.Destination, error) {
	return m.assigns.Resolve(barcode)
}

// CartView is one row of the monitoring list.
type CartView struct {
	Barcode     string            `json:"barcode"`
	Destination model.Destination `json:"destination"`
	State       string            `json:"state"`
	Status      string            `json:"status"`
}

// List returns a view of every registered cart, ordered by barcode.
func (m *Monitor) List() []CartView {
	carts := m.assigns.Snapshot()
	res := make([]CartView, 0, len(carts))
	for _, c := range carts {
		st := m.states.State(c.Barcode)
		res = append(res, CartView{
			Barcode:     c.Barcode,
			Destination: c.Destination,
			State:       st.String(),
			Status:      m.projector.Project(st).String(),
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Barcode < res[j].Barcode })
	return res
}
