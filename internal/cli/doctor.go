package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josedcape/codestorm-preeliminar/internal/llm/configbuilder"
	"github.com/josedcape/codestorm-preeliminar/internal/router"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if _, err := configbuilder.BuildRegistryFromConfig(cfg); err != nil {
				return fmt.Errorf("models: %w", err)
			}
			rt, err := router.FromConfig(cfg.Router, nil, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d, agents: %d\n",
				len(cfg.Providers), len(cfg.Models), len(rt.Registry().IDs()))
			fmt.Fprintf(out, "Sandbox enabled: %v, metrics: %v, transport: %s\n",
				cfg.Sandbox.Enabled, cfg.Server.MetricsEnabled, cfg.Server.Transport)
			fmt.Fprintf(out, "Builder store: %s, cache: %s\n", cfg.Builder.Store.Driver, cfg.Cache.Driver)
			return nil
		},
	}
}
