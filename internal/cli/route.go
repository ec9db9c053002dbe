package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/josedcape/codestorm-preeliminar/internal/router"
)

type routeReport struct {
	AgentID         string              `json:"agent_id" yaml:"agent_id"`
	Agent           string              `json:"agent" yaml:"agent"`
	Confidence      int                 `json:"confidence" yaml:"confidence"`
	Fallback        bool                `json:"fallback" yaml:"fallback"`
	Message         string              `json:"message,omitempty" yaml:"message,omitempty"`
	Scores          []router.AgentScore `json:"scores" yaml:"scores"`
	Recommendations []recommendation    `json:"recommendations" yaml:"recommendations"`
}

type recommendation struct {
	AgentID    string `json:"agent_id" yaml:"agent_id"`
	Name       string `json:"name" yaml:"name"`
	Confidence int    `json:"confidence" yaml:"confidence"`
}

// NewRouteCmd scores a message locally with the configured keyword tables.
func NewRouteCmd(opts *Options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "route \"<message>\"",
		Short: "Show which agent would handle a message and why",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(args[0]) == "" {
				return fmt.Errorf("message cannot be empty")
			}
			rt, err := localRouter(opts)
			if err != nil {
				return err
			}
			report := buildRouteReport(rt, args[0])
			return writeReport(cmd.OutOrStdout(), output, report, func(w io.Writer) {
				renderRoute(w, report)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")
	return cmd
}

// NewAgentsCmd lists the registered agents.
func NewAgentsCmd(opts *Options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List the specialized agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := localRouter(opts)
			if err != nil {
				return err
			}
			reg := rt.Registry()
			agents := reg.Agents()
			return writeReport(cmd.OutOrStdout(), output, agents, func(w io.Writer) {
				for _, a := range agents {
					marker := " "
					if a.ID == reg.DefaultAgent() {
						marker = "*"
					}
					fmt.Fprintf(w, "%s %s %s\n", marker, agentStyle.Render(fmt.Sprintf("%-10s", a.ID)), a.Name)
					fmt.Fprintf(w, "  %s\n", mutedStyle.Render(a.Description))
				}
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")
	return cmd
}

// localRouter builds a router from the config when one loads, and from the
// built-in tables otherwise.
func localRouter(opts *Options) (*router.Router, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		if opts.ConfigPath != "" {
			return nil, err
		}
		tables, terr := router.DefaultTables()
		if terr != nil {
			return nil, terr
		}
		return router.New(router.NewRegistry(tables), router.DefaultOptions(), nil, nil), nil
	}
	return router.FromConfig(cfg.Router, nil, nil)
}

func buildRouteReport(rt *router.Router, message string) routeReport {
	sel := rt.Select(message)
	report := routeReport{
		AgentID:         sel.AgentID,
		Agent:           rt.Registry().Name(sel.AgentID),
		Confidence:      sel.Confidence,
		Fallback:        sel.Fallback,
		Message:         sel.Message,
		Scores:          sel.Scores,
		Recommendations: []recommendation{},
	}
	for _, rec := range rt.Recommendations(message, sel.AgentID) {
		report.Recommendations = append(report.Recommendations, recommendation{
			AgentID: rec.AgentID, Name: rec.Name, Confidence: rec.Confidence,
		})
	}
	return report
}

func renderRoute(w io.Writer, r routeReport) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Agente:"), agentStyle.Render(fmt.Sprintf("%s (%d%%)", r.Agent, r.Confidence)))
	if r.Fallback {
		fmt.Fprintln(w, warningStyle.Render(r.Message))
	}
	for _, sc := range r.Scores {
		fmt.Fprintf(w, "  %-10s %3d %s\n", sc.AgentID, sc.Score, progressBar(sc.Score))
	}
	for _, rec := range r.Recommendations {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  también: %s (%d%%)", rec.Name, rec.Confidence)))
	}
}

// writeReport encodes v as json or yaml, or calls text for the default format.
func writeReport(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		text(w)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
