package cli

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/quiver/pkg/cache"
	"github.com/matzehuels/quiver/pkg/cache/badgerstore"
	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/manifest"
	"github.com/matzehuels/quiver/pkg/pipeline"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the metadata and artifact cache",
	}

	cmd.AddCommand(c.cachePathCommand())
	cmd.AddCommand(c.cacheStatsCommand())
	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cacheGCCommand())

	return cmd
}

// cacheRunner opens the cache configured for the current project, falling
// back to defaults outside a project.
func (c *CLI) cacheRunner(ctx context.Context) (*pipeline.Runner, error) {
	m, err := c.loadManifest()
	if qerrors.Is(err, qerrors.ErrCodeFileNotFound) {
		m, err = manifest.New(appName), nil
	}
	if err != nil {
		return nil, err
	}
	opts := c.options(m, runFlags{})
	opts.CacheEnabled = true
	return pipeline.NewRunner(ctx, opts)
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(out, pipeline.DefaultCacheDir())
			return nil
		},
	}
}

// cacheStatsCommand creates the "cache stats" subcommand.
func (c *CLI) cacheStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the cache configuration and disk usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.loadManifest()
			if qerrors.Is(err, qerrors.ErrCodeFileNotFound) {
				m, err = manifest.New(appName), nil
			}
			if err != nil {
				return err
			}
			opts := c.options(m, runFlags{}).WithDefaults()
			cfg := cache.Config{
				MemoryEntries: opts.MemoryEntries,
				MetadataTTL:   opts.MetadataTTL,
				NegativeTTL:   opts.NegativeTTL,
			}.WithDefaults()

			printKeyValue("backend", opts.CacheBackend)
			printKeyValue("enabled", fmt.Sprint(opts.CacheEnabled))
			printKeyValue("directory", opts.CacheDir)
			printKeyValue("memory entries", fmt.Sprint(cfg.MemoryEntries))
			printKeyValue("metadata ttl", cfg.MetadataTTL.String())
			printKeyValue("negative ttl", cfg.NegativeTTL.String())

			switch opts.CacheBackend {
			case pipeline.BackendBadger, pipeline.BackendFile:
				files, size := diskUsage(opts.CacheDir)
				printKeyValue("files", fmt.Sprint(files))
				printKeyValue("size", formatBytes(size))
			case pipeline.BackendRedis:
				printKeyValue("redis", opts.RedisAddr)
			case pipeline.BackendMongo:
				printKeyValue("mongo", opts.MongoURI)
			}
			return nil
		},
	}
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.cacheRunner(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()
			if err := r.Cache().Clear(cmd.Context()); err != nil {
				return err
			}
			printSuccess("Cleared the %s cache", r.Options().CacheBackend)
			printDetail("Directory: %s", r.Options().CacheDir)
			return nil
		},
	}
}

// cacheGCCommand creates the "cache gc" subcommand.
func (c *CLI) cacheGCCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Reclaim disk space held by deleted badger entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.cacheRunner(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()
			store, ok := r.Cache().Backend().(*badgerstore.Store)
			if !ok {
				printInfo("Nothing to collect for the %s backend", r.Options().CacheBackend)
				return nil
			}
			if err := store.GC(); err != nil {
				return err
			}
			printSuccess("Garbage collection complete")
			return nil
		},
	}
}

// diskUsage counts regular files under dir and their total size.
func diskUsage(dir string) (files int, size int64) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				files++
				size += info.Size()
			}
		}
		return nil
	})
	return files, size
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

