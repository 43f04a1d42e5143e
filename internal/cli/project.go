package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/manifest"
)

// initCommand creates the "init" command.
func (c *CLI) initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [name]",
		Short: "Create a quiver.toml in the project directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			path, err := manifest.Init(c.dir, name)
			if err != nil {
				return err
			}
			printSuccess("Created %s", path)
			printNextStep("Add a dependency", appName+" add <package> [constraint]")
			return nil
		},
	}
}

// addCommand creates the "add" command.
func (c *CLI) addCommand() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "add <package> [constraint]",
		Short: "Add a dependency to quiver.toml",
		Long: `Add a dependency to quiver.toml, replacing any existing entry for the
same package. Without a constraint any version is accepted.`,
		Example: `  quiver add requests ^2.31
  quiver add pytest ">=7,<9" --dev`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.loadManifest()
			if err != nil {
				return err
			}
			var constraint string
			if len(args) == 2 {
				constraint = args[1]
			}
			req, err := m.Add(args[0], constraint, dev)
			if err != nil {
				return err
			}
			if err := m.Save(c.manifestPath()); err != nil {
				return err
			}
			table := "dependencies"
			if dev {
				table = "dev-dependencies"
			}
			printSuccess("Added %s to %s", StyleHighlight.Render(req.String()), table)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dev, "dev", false, "add to dev-dependencies")
	return cmd
}

// removeCommand creates the "remove" command.
func (c *CLI) removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <package>...",
		Aliases: []string{"rm"},
		Short:   "Remove dependencies from quiver.toml",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.loadManifest()
			if err != nil {
				return err
			}
			var missing []string
			for _, name := range args {
				if !m.Remove(name) {
					missing = append(missing, name)
				}
			}
			if len(missing) == len(args) {
				return qerrors.New(qerrors.ErrCodeNotFound, "%v not declared in %s", missing, manifest.FileName)
			}
			if err := m.Save(c.manifestPath()); err != nil {
				return err
			}
			for _, name := range missing {
				printWarning("%s is not a dependency", name)
			}
			printSuccess("Removed %d %s", len(args)-len(missing), plural(len(args)-len(missing), "dependency", "dependencies"))
			printNextStep("Uninstall unused packages", appName+" check")
			return nil
		},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// formatCount renders "n noun" with the right plural.
func formatCount(n int, one, many string) string {
	return fmt.Sprintf("%d %s", n, plural(n, one, many))
}
