package config

import (
	"fmt"

	"github.com/prtline/sortation/core/model"
)

// AuditConfig defines settings for audit record storage.
type AuditConfig struct {
	// Backend selects the store type: "jsonl", "sqlite" or "none".
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *AuditConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		c.Path = "sortation-audit.log"
	}
}

// Validate checks mandatory fields.
func (c AuditConfig) Validate() error {
	switch c.Backend {
	case "jsonl", "sqlite", "none":
	default:
		return fmt.Errorf("unknown audit backend %s", c.Backend)
	}
	if c.Backend != "none" && c.Path == "" {
		return fmt.Errorf("audit path is required")
	}
	return nil
}

// StoreConfig selects the registry repository.
type StoreConfig struct {
	// Backend is "none" (config-seeded, memory only) or "postgres".
	Backend string `json:"backend"`
	// DSN is the database connection string.
	DSN string `json:"dsn"`
	// PollSeconds is the interval for picking up operator writes
	// (assignments and removal commands) from the database.
	PollSeconds int `json:"poll_seconds"`
}

// SetDefaults applies sane defaults.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "none"
	}
	if c.PollSeconds <= 0 {
		c.PollSeconds = 1
	}
}

// Validate checks mandatory fields.
func (c StoreConfig) Validate() error {
	switch c.Backend {
	case "none":
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("store dsn is required for postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %s", c.Backend)
	}
	return nil
}

// MetricsConfig enables the observability sinks.
type MetricsConfig struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// APIConfig configures the operator HTTP surface.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	// Token, when non-empty, is required as a bearer token on every request.
	Token string `json:"token"`
}

// DisplayConfig tunes the status projection.
type DisplayConfig struct {
	// IdleStates lists reconciled states that project to Idle instead of
	// their default display status.
	IdleStates []string `json:"idle_states"`
}

// Validate checks the idle state names.
func (c DisplayConfig) Validate() error {
	for _, s := range c.IdleStates {
		if _, err := model.ParseReconciledState(s); err != nil {
			return err
		}
	}
	return nil
}

// States resolves the configured idle state names.
func (c DisplayConfig) States() []model.ReconciledState {
	res := make([]model.ReconciledState, 0, len(c.IdleStates))
	for _, s := range c.IdleStates {
		st, err := model.ParseReconciledState(s)
		if err != nil {
			continue
		}
		res = append(res, st)
	}
	return res
}
