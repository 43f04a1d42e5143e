package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/installer"
)

// installCommand creates the "install" command.
func (c *CLI) installCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Resolve and install all dependencies",
		Long: `Resolve the dependencies declared in quiver.toml and install them into the
install directory. Packages are fetched in parallel and installed only after
all of their dependencies; a failed package fails its dependents but not
unrelated packages.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			prog := newProgress(loggerFromContext(ctx))
			r, res, err := c.resolveProject(ctx, flags)
			if err != nil {
				return err
			}
			defer r.Close()
			printInfo("Resolved %s in %s", formatCount(len(res.Plan), "package", "packages"), res.Duration.Round(time.Millisecond))

			spin := newSpinner(ctx, errOut, fmt.Sprintf("Installing %s...", formatCount(len(res.Plan), "package", "packages")))
			spin.Start()
			report, err := r.Install(ctx, res.Plan)
			spin.Stop()
			if report == nil {
				return err
			}

			for _, o := range report.Outcomes {
				printOutcome(o)
			}
			stats := r.Stats()
			printStats(
				formatCount(report.Count(installer.StatusInstalled), "installed", "installed"),
				formatCount(report.Count(installer.StatusSkipped), "up to date", "up to date"),
				formatCount(len(report.Failed()), "failed", "failed"),
				fmt.Sprintf("%d cached lookups", stats.CacheAnswers),
				fmt.Sprintf("%d registry calls", stats.UpstreamCalls),
			)
			if err != nil {
				return err
			}
			if err := report.Err(); err != nil {
				return qerrors.Wrap(qerrors.GetCode(err), err, "%s failed to install", formatCount(len(report.Failed()), "package", "packages"))
			}
			prog.done("Installed " + formatCount(len(res.Plan), "package", "packages"))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&flags.jobs, "jobs", "j", 0, "parallel downloads (default from quiver.toml)")
	cmd.Flags().BoolVar(&flags.force, "force", false, "reinstall packages that are already up to date")
	return cmd
}

// listCommand creates the "list" command.
func (c *CLI) listCommand() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed packages",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := c.openRegistry()
			if err != nil {
				return err
			}
			records := reg.List()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			if len(records) == 0 {
				printInfo("No packages installed")
				return nil
			}
			for _, rec := range records {
				printKeyValue(rec.Name, rec.Version)
			}
			printStats(formatCount(len(records), "package", "packages"), reg.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "print records as JSON")
	return cmd
}

// checkCommand creates the "check" command.
func (c *CLI) checkCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare installed packages with the manifest",
		Long: `Resolve the manifest and report packages that are missing, installed at
the wrong version, installed without files, or installed but no longer
required. Exits non-zero when any issue is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, res, err := c.resolveProject(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer r.Close()
			reg, err := r.Registry()
			if err != nil {
				return err
			}

			issues := installer.Check(reg, res.Plan, pathExists)
			if len(issues) == 0 {
				printSuccess("All %s installed and up to date", formatCount(len(res.Plan), "package", "packages"))
				return nil
			}
			for _, issue := range issues {
				if issue.Kind == installer.IssueExtra {
					printWarning("%s", issue)
				} else {
					printError("%s", issue)
				}
			}
			printNextStep("Fix with", appName+" install")
			return qerrors.New(qerrors.ErrCodeInvalidPackage, "%s found", formatCount(len(issues), "issue", "issues"))
		},
	}

	flags.register(cmd)
	return cmd
}

// uninstallCommand creates the "uninstall" command.
func (c *CLI) uninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <package>...",
		Short: "Remove installed packages",
		Long: `Remove packages from the install directory. The manifest is left alone;
use "quiver remove" to drop a dependency.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.loadManifest()
			if err != nil {
				return err
			}
			r, err := c.newRunner(cmd.Context(), m, runFlags{noCache: true})
			if err != nil {
				return err
			}
			defer r.Close()
			in, err := r.Installer()
			if err != nil {
				return err
			}
			if err := in.Uninstall(cmd.Context(), args...); err != nil {
				return err
			}
			printSuccess("Uninstalled %s", formatCount(len(args), "package", "packages"))
			return nil
		},
	}
}

// openRegistry opens the install registry of the current project.
func (c *CLI) openRegistry() (*installer.Registry, error) {
	m, err := c.loadManifest()
	if err != nil {
		return nil, err
	}
	opts := c.options(m, runFlags{}).WithDefaults()
	return installer.OpenRegistry(opts.InstallDir)
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
