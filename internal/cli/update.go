package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/quiver/pkg/deps"
	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/installer"
	"github.com/matzehuels/quiver/pkg/resolver"
)

// versionChange is one package whose selected version differs from the
// installed one. From is empty for packages not installed yet.
type versionChange struct {
	Name, From, To string
}

// pendingChanges lists the plan entries the registry does not record at
// the planned version, in plan order.
func pendingChanges(reg *installer.Registry, plan resolver.Plan) []versionChange {
	var changes []versionChange
	for _, n := range plan {
		to := n.Version.String()
		rec, ok := reg.Get(n.Name)
		if ok && rec.Version == to {
			continue
		}
		changes = append(changes, versionChange{Name: n.Name, From: rec.Version, To: to})
	}
	return changes
}

// subtree returns the plan entries reachable from root, keeping plan order.
func subtree(plan resolver.Plan, root string) resolver.Plan {
	byName := make(map[string]*resolver.Node, len(plan))
	for _, n := range plan {
		byName[n.Name] = n
	}
	keep := make(map[string]bool)
	var walk func(string)
	walk = func(name string) {
		n, ok := byName[name]
		if !ok || keep[name] {
			return
		}
		keep[name] = true
		for _, dep := range n.Dependencies {
			walk(dep)
		}
	}
	walk(root)

	out := make(resolver.Plan, 0, len(keep))
	for _, n := range plan {
		if keep[n.Name] {
			out = append(out, n)
		}
	}
	return out
}

// updateCommand creates the "update" command.
func (c *CLI) updateCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "update [package]",
		Short: "Re-resolve and install newer versions",
		Long: `Resolve quiver.toml again and install every package whose selected version
differs from the installed one. With a package argument only that dependency
and the packages it pulls in are touched; it must be declared in quiver.toml.
Use --no-cache to see releases published since metadata was last cached.`,
		Example: `  quiver update
  quiver update requests --no-cache`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var target string
			if len(args) == 1 {
				m, err := c.loadManifest()
				if err != nil {
					return err
				}
				target = deps.NormalizeName(args[0])
				if !slices.Contains(m.Names(true), target) {
					return qerrors.New(qerrors.ErrCodePackageNotFound, "%s is not a dependency of this project", target)
				}
				if !slices.Contains(m.Names(false), target) {
					flags.dev = true
				}
			}

			r, res, err := c.resolveProject(ctx, flags)
			if err != nil {
				return err
			}
			defer r.Close()
			plan := res.Plan
			if target != "" {
				plan = subtree(plan, target)
			}

			reg, err := r.Registry()
			if err != nil {
				return err
			}
			changes := pendingChanges(reg, plan)
			if len(changes) == 0 {
				printSuccess("All %s up to date", formatCount(len(plan), "package", "packages"))
				return nil
			}

			spin := newSpinner(ctx, errOut, fmt.Sprintf("Updating %s...", formatCount(len(changes), "package", "packages")))
			spin.Start()
			report, err := r.Install(ctx, plan)
			spin.Stop()
			if report == nil {
				return err
			}

			status := make(map[string]installer.Outcome, len(report.Outcomes))
			for _, o := range report.Outcomes {
				status[o.Name] = o
			}
			for _, ch := range changes {
				o := status[ch.Name]
				switch {
				case o.Status != installer.StatusInstalled:
					printOutcome(o)
				case ch.From == "":
					printSuccess("Installed %s %s", ch.Name, ch.To)
				default:
					printSuccess("Updated %s %s -> %s", ch.Name, ch.From, ch.To)
				}
			}
			printStats(
				formatCount(report.Count(installer.StatusInstalled), "updated", "updated"),
				formatCount(len(report.Failed()), "failed", "failed"),
				report.Duration.Round(time.Millisecond).String(),
			)
			if err != nil {
				return err
			}
			if err := report.Err(); err != nil {
				return qerrors.Wrap(qerrors.GetCode(err), err, "%s failed to update", formatCount(len(report.Failed()), "package", "packages"))
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&flags.jobs, "jobs", "j", 0, "parallel downloads (default from quiver.toml)")
	return cmd
}
