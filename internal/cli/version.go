package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josedcape/codestorm-preeliminar/internal/version"
)

// NewVersionCmd prints the build identity of the CLI.
func NewVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show codestorm version",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(version.Get())
			}
			_, err := fmt.Fprintln(out, headerStyle.Render("codestorm")+" "+version.Full())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print version info as JSON")
	return cmd
}
