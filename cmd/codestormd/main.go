package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/config"
	"github.com/josedcape/codestorm-preeliminar/internal/daemon"
	"github.com/josedcape/codestorm-preeliminar/internal/logging"
	"github.com/josedcape/codestorm-preeliminar/internal/version"
)

func main() {
	var cfgPath string
	var envFile string

	root := &cobra.Command{
		Use:     "codestormd",
		Short:   "Codestorm daemon: agent router, workspace and project builder",
		Version: version.Full(),
		RunE: func(cmd *cobra.Command, args []string) error {
			envErr := godotenv.Load(envFile)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort
			if envErr != nil {
				logger.Debug("no env file loaded", zap.String("path", envFile), zap.Error(envErr))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server, err := daemon.NewServer(ctx, cfg, logger)
			if err != nil {
				return err
			}
			return server.Run(ctx)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "Path to config file (default: configs/config.yaml)")
	root.Flags().StringVar(&envFile, "env-file", ".env", "Env file loaded before the config")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
