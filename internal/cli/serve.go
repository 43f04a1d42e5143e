package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/matzehuels/quiver/pkg/manifest"
	"github.com/matzehuels/quiver/pkg/mirror"
	"github.com/matzehuels/quiver/pkg/observability"
	"github.com/matzehuels/quiver/pkg/observability/prom"
	"github.com/matzehuels/quiver/pkg/pipeline"
	"github.com/matzehuels/quiver/pkg/provider"
)

const shutdownTimeout = 10 * time.Second

// serveCommand creates the "serve" command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		index     string
		addr      string
		artifacts string
		memory    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an index file as a registry mirror",
		Long: `Serve the packages of an index file over HTTP using the index registry
protocol, so that "registry-kind = index" projects can resolve and install
from it. Artifacts are held in the configured cache; --artifacts preloads
them from a directory of "<name>-<version>*" files. Prometheus metrics are
exposed on /metrics.`,
		Example: `  quiver serve --index index.toml --artifacts ./dist --addr :8080`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			snap, skipped, err := provider.LoadIndexFile(index)
			if err != nil {
				return err
			}
			if skipped > 0 {
				printWarning("Skipped %s that failed to parse", formatCount(skipped, "release", "releases"))
			}

			m, err := c.loadManifest()
			if err != nil {
				m = manifest.New(appName)
			}
			opts := c.options(m, runFlags{})
			opts.Provider = snap
			opts.CacheEnabled = true
			if memory {
				opts.CacheBackend = pipeline.BackendMemory
			}
			r, err := pipeline.NewRunner(ctx, opts)
			if err != nil {
				return err
			}
			defer r.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			prom.New(reg).Install()
			defer observability.Reset()

			srv := mirror.New(snap, r.Cache(),
				mirror.WithLogger(logger),
				mirror.WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
			)
			if artifacts != "" {
				n, err := srv.Import(ctx, artifacts)
				if err != nil {
					printWarning("%s", err)
				}
				printInfo("Imported %s from %s", formatCount(n, "artifact", "artifacts"), artifacts)
			}

			printSuccess("Serving %s on %s", formatCount(len(snap.Names()), "package", "packages"), StyleLink.Render("http://"+displayAddr(addr)))
			return listenAndServe(ctx, &http.Server{
				Addr:              addr,
				Handler:           srv,
				ReadHeaderTimeout: 10 * time.Second,
			})
		},
	}

	cmd.Flags().StringVar(&index, "index", "", "index file to serve (TOML or JSON)")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&artifacts, "artifacts", "", "directory of artifact files to preload")
	cmd.Flags().BoolVar(&memory, "memory", false, "keep artifacts in memory only")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}

// listenAndServe runs srv until ctx ends, then shuts it down gracefully.
// A shutdown caused by ctx is reported as ctx's error.
func listenAndServe(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
