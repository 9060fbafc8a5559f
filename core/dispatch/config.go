package dispatch

import (
	"fmt"
	"time"

	"github.com/prtline/sortation/core/model"
	"github.com/prtline/sortation/core/registry"
)

// Config holds the dispatch tuning knobs. Timeout and fallback destination
// are injectable rather than constants; both may differ per deployment.
type Config struct {
	// TimeoutSeconds is the window a transaction may stay open without a
	// response before it expires.
	TimeoutSeconds float64 `json:"timeout_seconds"`
	// SorterTimeoutSeconds overrides the window for individual sorters.
	SorterTimeoutSeconds map[int]float64 `json:"sorter_timeout_seconds"`
	// FallbackDestination answers requests for unassigned or unreadable
	// barcodes. Zero sends the cart straight through.
	FallbackDestination model.Destination `json:"fallback_destination"`
	// SweepIntervalSeconds is the period of the background timeout sweep.
	SweepIntervalSeconds float64 `json:"sweep_interval_seconds"`
	// Routes maps physical destinations to per-sorter gates. Empty uses the
	// default track layout.
	Routes map[model.Destination]map[int]model.Destination `json:"routes"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 5
	}
	if c.SweepIntervalSeconds <= 0 {
		c.SweepIntervalSeconds = 1
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	for id, s := range c.SorterTimeoutSeconds {
		if s <= 0 {
			return fmt.Errorf("sorter %d timeout must be positive", id)
		}
	}
	if c.FallbackDestination < 0 {
		return fmt.Errorf("fallback_destination must not be negative")
	}
	return nil
}

// TimeoutFor returns the window for the given sorter.
func (c Config) TimeoutFor(sorterID int) time.Duration {
	if s, ok := c.SorterTimeoutSeconds[sorterID]; ok {
		return time.Duration(s * float64(time.Second))
	}
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// RouteTable returns the configured routes, or the default layout when none
// are configured.
func (c Config) RouteTable() registry.RouteTable {
	if len(c.Routes) == 0 {
		return registry.DefaultRoutes()
	}
	return registry.RouteTable(c.Routes)
}
