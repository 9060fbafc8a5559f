// Package config loads the service configuration from yaml or json with
// environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/prtline/sortation/core/dispatch"
	"github.com/prtline/sortation/core/model"
	"github.com/prtline/sortation/infra/mqtt"
)

type Config struct {
	MQTT     mqtt.Config     `json:"mqtt"`
	Dispatch dispatch.Config `json:"dispatch"`
	Audit    AuditConfig     `json:"audit"`
	Store    StoreConfig     `json:"store"`
	Metrics  MetricsConfig   `json:"metrics"`
	API      APIConfig       `json:"api"`
	Display  DisplayConfig   `json:"display"`
	// Assignments seeds the registry when no SQL store is configured.
	Assignments map[string]model.Destination `json:"assignments"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("SORT_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "sort_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.MQTT.SetDefaults()
	cfg.Dispatch.SetDefaults()
	cfg.Audit.SetDefaults()
	cfg.Store.SetDefaults()
	if err := cfg.Dispatch.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Audit.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Display.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
