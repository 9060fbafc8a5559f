// Package registry holds the authoritative barcode to destination mapping
// consulted by dispatch. Assignment is idempotent and never touches the
// reconciled state of a cart.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prtline/sortation/core/model"
)

// ErrUnknownCart is returned when a barcode has no destination assignment.
var ErrUnknownCart = errors.New("registry: unknown cart")

type entry struct {
	mu        sync.RWMutex
	dest      model.Destination
	updatedAt time.Time
}

// Registry maps barcodes to their assigned physical destination. The outer
// lock only guards map structure; each entry carries its own lock so a read
// never waits behind an assignment to a different barcode.
type Registry struct {
	mu    sync.RWMutex
	carts map[string]*entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{carts: make(map[string]*entry)}
}

// Resolve returns the physical destination assigned to barcode.
func (r *Registry) Resolve(barcode string) (model.Destination, error) {
	r.mu.RLock()
	e := r.carts[barcode]
	r.mu.RUnlock()
	if e == nil {
		return 0, ErrUnknownCart
	}
	e.mu.RLock()
	dest := e.dest
	e.mu.RUnlock()
	return dest, nil
}

// Assign upserts the destination for barcode and bumps its update time.
// Re-assigning the same destination is a no-op apart from the timestamp.
func (r *Registry) Assign(barcode string, dest model.Destination) {
	r.mu.RLock()
	e := r.carts[barcode]
	r.mu.RUnlock()
	if e == nil {
		r.mu.Lock()
		e = r.carts[barcode]
		if e == nil {
			e = &entry{}
			r.carts[barcode] = e
		}
		r.mu.Unlock()
	}
	e.mu.Lock()
	e.dest = dest
	e.updatedAt = time.Now()
	e.mu.Unlock()
}

// Snapshot returns a copy of all assignments for display and persistence.
func (r *Registry) Snapshot() []model.Cart {
	r.mu.RLock()
	res := make([]model.Cart, 0, len(r.carts))
	for code, e := range r.carts {
		e.mu.RLock()
		res = append(res, model.Cart{Barcode: code, Destination: e.dest, UpdatedAt: e.updatedAt})
		e.mu.RUnlock()
	}
	r.mu.RUnlock()
	return res
}

// Load seeds the registry from a persisted assignment table.
func (r *Registry) Load(assignments map[string]model.Destination) {
	for code, dest := range assignments {
		r.Assign(code, dest)
	}
}

// Removal is a pending operator-initiated extraction command.
type Removal struct {
	ID      int64
	Barcode string
	Area    int
	At      time.Time
}

// Repository is the persistence port for assignments and pending removal
// commands. Implementations live under infra/store.
type Repository interface {
	LoadAssignments(ctx context.Context) (map[string]model.Destination, error)
	SaveAssignment(ctx context.Context, barcode string, dest model.Destination) error
	SaveRemoval(ctx context.Context, barcode string, area int) error
	PendingRemovals(ctx context.Context) ([]Removal, error)
	DeleteRemoval(ctx context.Context, id int64) error
	Close() error
}
