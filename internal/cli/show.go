package cli

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/quiver/pkg/deps"
	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/installer"
	"github.com/matzehuels/quiver/pkg/manifest"
	"github.com/matzehuels/quiver/pkg/semver"
)

// packageInfo is what "show" reports about one package.
type packageInfo struct {
	Name            string         `json:"name"`
	Latest          string         `json:"latest"`
	Releases        int            `json:"releases"`
	Digest          string         `json:"digest,omitempty"`
	Required        string         `json:"required,omitempty"`
	Installed       *installedInfo `json:"installed,omitempty"`
	UpdateAvailable bool           `json:"update_available"`
	Dependencies    []string       `json:"dependencies,omitempty"`
}

type installedInfo struct {
	Version     string    `json:"version"`
	Path        string    `json:"path"`
	InstalledAt time.Time `json:"installed_at"`
}

// latestRelease picks the newest stable release, falling back to the newest
// pre-release. releases must be sorted newest first.
func latestRelease(releases []deps.Release) deps.Release {
	for _, r := range releases {
		if r.Version.Prerelease() == "" {
			return r
		}
	}
	return releases[0]
}

func newPackageInfo(name string, releases []deps.Release, m *manifest.Manifest, reg *installer.Registry) packageInfo {
	latest := latestRelease(releases)
	info := packageInfo{
		Name:     name,
		Latest:   latest.Version.String(),
		Releases: len(releases),
		Digest:   latest.Digest.String(),
	}
	if c, ok := m.Dependencies[name]; ok {
		info.Required = c
	} else if c, ok := m.DevDependencies[name]; ok {
		info.Required = c + " (dev)"
	}
	for _, req := range latest.Requirements {
		info.Dependencies = append(info.Dependencies, req.String())
	}
	if rec, ok := reg.Get(name); ok {
		info.Installed = &installedInfo{Version: rec.Version, Path: rec.Path, InstalledAt: rec.InstalledAt}
		if v, err := semver.Parse(rec.Version); err == nil {
			info.UpdateAvailable = v.LessThan(latest.Version)
		} else {
			info.UpdateAvailable = rec.Version != info.Latest
		}
	}
	return info
}

// showCommand creates the "show" command.
func (c *CLI) showCommand() *cobra.Command {
	var (
		flags   runFlags
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "show <package>",
		Short: "Show registry and install details for a package",
		Long: `Look up a package in the registry and print its newest release, the
dependencies that release declares, and whether the package is installed in
this project. An installed version older than the newest release is flagged.`,
		Example: `  quiver show requests
  quiver show requests --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := c.loadManifest()
			if err != nil {
				return err
			}
			r, err := c.newRunner(ctx, m, flags)
			if err != nil {
				return err
			}
			defer r.Close()

			name := deps.NormalizeName(args[0])
			releases, err := r.Provider().FetchVersions(ctx, name)
			if err != nil {
				return err
			}
			if len(releases) == 0 {
				return qerrors.New(qerrors.ErrCodePackageNotFound, "%s has no releases", name)
			}
			deps.SortReleases(releases)
			reg, err := r.Registry()
			if err != nil {
				return err
			}
			info := newPackageInfo(name, releases, m, reg)

			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			printPackageInfo(info)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print details as JSON")
	return cmd
}

func printPackageInfo(info packageInfo) {
	printKeyValue("Name", info.Name)
	printKeyValue("Latest", info.Latest)
	printKeyValue("Releases", formatCount(info.Releases, "release", "releases"))
	if info.Digest != "" {
		printKeyValue("Digest", info.Digest)
	}
	if info.Required != "" {
		printKeyValue("Required", info.Required)
	}

	if info.Installed == nil {
		printKeyValue("Status", "not installed")
	} else {
		printKeyValue("Status", "installed "+info.Installed.Version)
		printKeyValue("Path", info.Installed.Path)
		printKeyValue("Installed at", info.Installed.InstalledAt.Local().Format(time.DateTime))
		if info.UpdateAvailable {
			printWarning("Update available: %s -> %s", info.Installed.Version, info.Latest)
		}
	}

	if len(info.Dependencies) > 0 {
		printKeyValue("Dependencies", strings.Join(info.Dependencies, ", "))
	}
	if info.Installed == nil && info.Required == "" {
		printNextStep("Add it with", appName+" add "+info.Name)
	}
}
