package registry

import "github.com/prtline/sortation/core/model"

// RouteTable translates a physical destination into the gate each sorter
// must answer with. The line has two sorters in series; which way a cart
// turns at each one depends on where it is ultimately headed.
type RouteTable map[model.Destination]map[int]model.Destination

// DefaultRoutes mirrors the physical track layout: stations 1 and 2 sit past
// sorter 2, stations 3 and 4 divert at sorter 1.
func DefaultRoutes() RouteTable {
	return RouteTable{
		1: {1: 3, 2: 2},
		2: {1: 3, 2: 1},
		3: {1: 1, 2: 3},
		4: {1: 2, 2: 3},
	}
}

// Gate returns the gate the given sorter should open for a cart headed to
// dest. Destinations without a route (including the straight-through
// fallback) answer gate 0.
func (t RouteTable) Gate(sorterID int, dest model.Destination) model.Destination {
	route, ok := t[dest]
	if !ok {
		return model.DestStraightThrough
	}
	gate, ok := route[sorterID]
	if !ok {
		return model.DestStraightThrough
	}
	return gate
}
