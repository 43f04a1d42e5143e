package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/quiver/pkg/buildinfo"
)

// versionCommand creates the "version" command.
func (c *CLI) versionCommand() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOut {
				return json.NewEncoder(out).Encode(buildinfo.Get())
			}
			fmt.Fprintln(out, buildinfo.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "print build information as JSON")
	return cmd
}
