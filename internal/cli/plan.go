package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/quiver/pkg/pipeline"
	"github.com/matzehuels/quiver/pkg/render"
	"github.com/matzehuels/quiver/pkg/resolver"
)

// resolveProject loads the manifest, builds a runner and resolves the
// declared dependencies. The caller must close the returned runner.
func (c *CLI) resolveProject(ctx context.Context, f runFlags) (*pipeline.Runner, *resolver.Result, error) {
	m, err := c.loadManifest()
	if err != nil {
		return nil, nil, err
	}
	roots, err := m.Roots(f.dev)
	if err != nil {
		if len(roots) == 0 {
			return nil, nil, err
		}
		loggerFromContext(ctx).Warn("skipping invalid requirements", "err", err)
	}
	r, err := c.newRunner(ctx, m, f)
	if err != nil {
		return nil, nil, err
	}

	spin := newSpinner(ctx, errOut, fmt.Sprintf("Resolving %s...", formatCount(len(roots), "dependency", "dependencies")))
	spin.Start()
	res, err := r.Resolve(ctx, roots)
	spin.Stop()
	if err != nil {
		r.Close()
		return nil, nil, err
	}
	return r, res, nil
}

// planEntry is the JSON form of one plan step.
type planEntry struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Digest       string   `json:"digest,omitempty"`
	Root         bool     `json:"root,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

type planOutput struct {
	Plan       []planEntry `json:"plan"`
	Steps      int         `json:"steps"`
	Backtracks int         `json:"backtracks"`
	Fetched    int         `json:"fetched"`
}

func newPlanOutput(res *resolver.Result) planOutput {
	po := planOutput{
		Plan:       make([]planEntry, 0, len(res.Plan)),
		Steps:      res.Steps,
		Backtracks: res.Backtracks,
		Fetched:    res.Fetched,
	}
	for _, n := range res.Plan {
		po.Plan = append(po.Plan, planEntry{
			Name:         n.Name,
			Version:      n.Version.String(),
			Digest:       n.Digest.String(),
			Root:         n.Root,
			Dependencies: n.Dependencies,
		})
	}
	return po
}

// planCommand creates the "plan" command.
func (c *CLI) planCommand() *cobra.Command {
	var (
		flags   runFlags
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Resolve dependencies and print the install order",
		Long: `Resolve the dependencies declared in quiver.toml and print the install
plan: every package appears after all of its dependencies.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			prog := newProgress(loggerFromContext(ctx))
			r, res, err := c.resolveProject(ctx, flags)
			if err != nil {
				return err
			}
			defer r.Close()

			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(newPlanOutput(res))
			}

			printPlan(res.Plan)
			printStats(
				formatCount(len(res.Plan), "package", "packages"),
				formatCount(res.Steps, "step", "steps"),
				formatCount(res.Backtracks, "backtrack", "backtracks"),
			)
			prog.done("Resolved " + formatCount(len(res.Plan), "package", "packages"))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the plan as JSON")
	return cmd
}

// graphCommand creates the "graph" command.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		flags       runFlags
		output      string
		constraints bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the resolved dependency graph",
		Long: `Render the resolved dependency graph with Graphviz. The format follows
the output extension: .dot/.gv, .png, otherwise SVG. Without -o the DOT
source is printed.`,
		Example: `  quiver graph -o deps.svg
  quiver graph --constraints | dot -Tpdf > deps.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, res, err := c.resolveProject(ctx, flags)
			if err != nil {
				return err
			}
			defer r.Close()

			opts := render.Options{Constraints: constraints, Ranks: true}
			if output == "" {
				fmt.Fprint(out, render.ToDOT(res.Graph, opts))
				return nil
			}
			data, err := render.Render(ctx, res.Graph, render.FormatFromPath(output), opts)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			printSuccess("Rendered %s", formatCount(res.Graph.Len(), "package", "packages"))
			printFile(output)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (.svg, .png, .dot)")
	cmd.Flags().BoolVar(&constraints, "constraints", false, "label edges with version constraints")
	return cmd
}
