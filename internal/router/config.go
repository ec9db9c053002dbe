package router

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/config"
	"github.com/josedcape/codestorm-preeliminar/internal/observability"
)

// FromConfig loads the keyword tables named by cfg and applies its
// thresholds over DefaultOptions. Zero values keep the defaults.
func FromConfig(cfg config.RouterConfig, logger *zap.Logger, metrics *observability.Metrics) (*Router, error) {
	tables, err := LoadTables(cfg.TablesPath)
	if err != nil {
		return nil, fmt.Errorf("load router tables: %w", err)
	}
	if cfg.FallbackAgent != "" {
		tables.DefaultAgent = cfg.FallbackAgent
		if err := tables.Validate(); err != nil {
			return nil, fmt.Errorf("router.fallback_agent: %w", err)
		}
	}

	opts := DefaultOptions()
	if cfg.SwitchThreshold > 0 {
		opts.SwitchThreshold = cfg.SwitchThreshold
	}
	if cfg.Floor > 0 {
		opts.Floor = cfg.Floor
	}
	if cfg.FallbackConfidence > 0 {
		opts.FallbackConfidence = cfg.FallbackConfidence
	}
	if cfg.FileBoost > 0 {
		opts.FileBoost = cfg.FileBoost
	}
	if cfg.BoostAgent != "" {
		opts.BoostAgent = cfg.BoostAgent
	}
	return New(NewRegistry(tables), opts, logger, metrics), nil
}
