// Package cli implements the quiver command-line interface.
package cli

import (
	"context"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/quiver/pkg/buildinfo"
	"github.com/matzehuels/quiver/pkg/manifest"
	"github.com/matzehuels/quiver/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "quiver"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// dir is the project directory holding quiver.toml.
	dir string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level), dir: "."}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Quiver resolves and installs package dependencies",
		Long:          `Quiver is a package manager front end: it resolves the dependencies declared in quiver.toml against a registry, caches metadata and artifacts across runs, and installs the result in dependency order.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		return nil
	}
	root.PersistentFlags().StringVarP(&c.dir, "project", "C", ".", "project directory containing "+manifest.FileName)

	root.AddCommand(c.initCommand())
	root.AddCommand(c.addCommand())
	root.AddCommand(c.removeCommand())
	root.AddCommand(c.planCommand())
	root.AddCommand(c.installCommand())
	root.AddCommand(c.updateCommand())
	root.AddCommand(c.showCommand())
	root.AddCommand(c.listCommand())
	root.AddCommand(c.checkCommand())
	root.AddCommand(c.uninstallCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Project Helpers
// =============================================================================

// manifestPath returns the manifest location of the current project.
func (c *CLI) manifestPath() string {
	return filepath.Join(c.dir, manifest.FileName)
}

// loadManifest reads the project manifest.
func (c *CLI) loadManifest() (*manifest.Manifest, error) {
	return manifest.Load(c.manifestPath())
}

// =============================================================================
// Runner Factory
// =============================================================================

// runFlags are the flags shared by every command that resolves.
type runFlags struct {
	dev      bool
	noCache  bool
	jobs     int
	force    bool
	index    string
	registry string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.dev, "dev", false, "include dev-dependencies")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable the metadata and artifact cache")
	cmd.Flags().StringVar(&f.index, "index", "", "resolve against an offline index file (TOML or JSON)")
	cmd.Flags().StringVar(&f.registry, "registry", "", "registry base URL (overrides quiver.toml)")
}

// options derives pipeline options from the manifest, environment and flags.
func (c *CLI) options(m *manifest.Manifest, f runFlags) pipeline.Options {
	opts := pipeline.FromManifest(m, c.dir).ApplyEnv()
	opts.Logger = c.Logger
	opts.IncludeDev = f.dev
	opts.Force = f.force
	opts.IndexFile = f.index
	if f.registry != "" {
		opts.Registry = f.registry
	}
	if f.noCache {
		opts.CacheEnabled = false
	}
	if f.jobs > 0 {
		opts.Parallelism = f.jobs
	}
	return opts
}

// newRunner creates a pipeline runner for the current project. The caller
// must Close it.
func (c *CLI) newRunner(ctx context.Context, m *manifest.Manifest, f runFlags) (*pipeline.Runner, error) {
	return pipeline.NewRunner(ctx, c.options(m, f))
}
