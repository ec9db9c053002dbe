package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/josedcape/codestorm-preeliminar/internal/config"
	"github.com/josedcape/codestorm-preeliminar/internal/version"
)

// Options holds global CLI options.
type Options struct {
	ConfigPath string
	Daemon     string
	Transport  string
}

// NewRootCmd constructs the base CLI command tree.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:           "codestorm",
		Short:         "Codestorm CLI: agent chat, routing and project builds",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to config file (default: configs/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Daemon, "daemon", "", "Daemon address; overrides server.addr from the config")
	cmd.PersistentFlags().StringVar(&opts.Transport, "transport", "", "Chat transport: connect or ndjson (default: server.transport)")

	cmd.AddCommand(NewDoctorCmd(opts))
	cmd.AddCommand(NewVersionCmd())
	cmd.AddCommand(NewChatCmd(opts))
	cmd.AddCommand(NewRouteCmd(opts))
	cmd.AddCommand(NewAgentsCmd(opts))
	cmd.AddCommand(NewBuildCmd(opts))
	cmd.AddCommand(NewExecCmd(opts))

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

// loadConfig wraps config loading with shared options.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// daemonTarget resolves the daemon base URL and chat transport. The config
// is only read when --daemon is not given.
func daemonTarget(opts *Options) (string, string, error) {
	if opts.Daemon != "" {
		return daemonURL(opts.Daemon), opts.Transport, nil
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return "", "", err
	}
	transport := opts.Transport
	if transport == "" {
		transport = cfg.Server.Transport
	}
	return daemonURL(cfg.Server.Addr), transport, nil
}

func daemonURL(addr string) string {
	addr = strings.TrimRight(addr, "/")
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
