// Package mirror serves the quiver index protocol over HTTP.
//
// A mirror answers metadata from a [provider.Snapshot] (usually loaded from
// an index file) and artifact bytes from a [cache.Cache] keyed by digest, so
// several mirrors sharing a redis or mongo cache serve the same blobs.
//
// Routes:
//
//	GET  /packages                   package names
//	GET  /packages/{name}            index document
//	GET  /artifacts/{name}/{version} artifact bytes
//	PUT  /artifacts/{name}/{version} upload bytes, verified against the
//	                                 published digest
//	GET  /healthz                    liveness
//	GET  /metrics                    prometheus metrics
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opencontainers/go-digest"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/quiver/pkg/cache"
	"github.com/matzehuels/quiver/pkg/deps"
	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/provider"
	"github.com/matzehuels/quiver/pkg/semver"
)

// MaxUploadSize bounds the body of an artifact upload.
const MaxUploadSize = 512 << 20

// DigestHeader carries the digest of served artifact bytes.
const DigestHeader = "X-Quiver-Digest"

// Server is an http.Handler serving one snapshot.
type Server struct {
	router  chi.Router
	snap    *provider.Snapshot
	cache   *cache.Cache
	logger  *log.Logger
	metrics http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics replaces the /metrics handler. The default serves the
// default prometheus registry.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		if h != nil {
			s.metrics = h
		}
	}
}

// New creates a Server. A nil cache serves only the bytes held by snap.
func New(snap *provider.Snapshot, c *cache.Cache, opts ...Option) *Server {
	if c == nil {
		c = cache.New(cache.Config{}, nil)
	}
	s := &Server{
		snap:    snap,
		cache:   c,
		logger:  log.New(io.Discard),
		metrics: promhttp.Handler(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics)
	r.Route("/packages", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/{name}", s.handlePackage)
	})
	r.Route("/artifacts/{name}/{version}", func(r chi.Router) {
		r.Get("/", s.handleArtifact)
		r.Put("/", s.handleUpload)
	})
	s.router = r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"packages": len(s.snap.Names()),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"packages": s.snap.Names()})
}

func (s *Server) handlePackage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	doc, ok := s.snap.Doc(name)
	if !ok {
		writeError(w, http.StatusNotFound, "package %s not found", deps.NormalizeName(name))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// lookup resolves the route parameters to a package, version and published
// digest. It writes the error response itself and returns ok=false.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (name string, v semver.Version, d digest.Digest, ok bool) {
	name = deps.NormalizeName(chi.URLParam(r, "name"))
	v, err := semver.Parse(chi.URLParam(r, "version"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid version %q", chi.URLParam(r, "version"))
		return "", v, "", false
	}
	doc, found := s.snap.Doc(name)
	if !found {
		writeError(w, http.StatusNotFound, "package %s not found", name)
		return "", v, "", false
	}
	vd, found := doc.Find(v)
	if !found {
		writeError(w, http.StatusNotFound, "%s has no version %s", name, v)
		return "", v, "", false
	}
	d, err = vd.ParsedDigest()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "malformed digest for %s", deps.Key(name, v))
		return "", v, "", false
	}
	return name, v, d, true
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	name, v, d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if d != "" {
		status, err := s.cache.ViewArtifact(r.Context(), d, func(data []byte) error {
			writeBlob(w, d, data)
			return nil
		})
		if status == cache.Hit {
			if err != nil {
				s.logger.Warn("serve cached artifact", "digest", d, "err", err)
			}
			return
		}
	}

	art, err := s.snap.FetchArtifact(r.Context(), name, v)
	if err != nil {
		writeError(w, http.StatusNotFound, "artifact %s not available", deps.Key(name, v))
		return
	}
	if d == "" {
		d = art.Digest
	}
	if err := s.cache.PutArtifact(r.Context(), d, art.Data); err != nil {
		s.logger.Error("snapshot artifact failed verification", "package", deps.Key(name, v), "err", err)
		writeError(w, http.StatusInternalServerError, "artifact %s failed verification", deps.Key(name, v))
		return
	}
	writeBlob(w, d, art.Data)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name, v, published, ok := s.lookup(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "read upload: %v", err)
		return
	}
	d, err := s.Store(r.Context(), name, v, published, data)
	if err != nil {
		if cache.IsIntegrityError(err) {
			writeError(w, http.StatusUnprocessableEntity, "%s", qerrors.UserMessage(err))
			return
		}
		writeError(w, http.StatusInternalServerError, "store artifact: %v", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"digest": d.String()})
}

// Store verifies data against the published digest and caches it. When the
// snapshot publishes no digest for the release, the digest of data is
// recorded as the published one.
func (s *Server) Store(ctx context.Context, name string, v semver.Version, published digest.Digest, data []byte) (digest.Digest, error) {
	d := published
	if d == "" {
		d = digest.FromBytes(data)
	}
	if err := s.cache.PutArtifact(ctx, d, data); err != nil {
		if cache.IsIntegrityError(err) {
			return "", qerrors.Wrap(qerrors.ErrCodeIntegrity, err, "upload of %s does not match %s", deps.Key(name, v), d)
		}
		return "", err
	}
	if published == "" {
		s.snap.SetDigest(name, v, d)
	}
	s.logger.Info("stored artifact", "package", deps.Key(name, v), "digest", d, "size", len(data))
	return d, nil
}

// Import loads artifact files from dir into the cache. A file belongs to a
// release when its name starts with "<name>-<version>" (for example
// "flask-3.0.0.tar.gz"). It returns the number of artifacts stored; files
// that fail verification are reported in the joined error.
func (s *Server) Import(ctx context.Context, dir string) (int, error) {
	stored := 0
	var errs []error
	for _, doc := range s.snap.Docs() {
		for _, vd := range doc.Versions {
			if err := ctx.Err(); err != nil {
				return stored, err
			}
			matches, _ := filepath.Glob(filepath.Join(dir, fmt.Sprintf("%s-%s*", doc.Name, vd.Version)))
			if len(matches) == 0 {
				continue
			}
			v, err := semver.Parse(vd.Version)
			if err != nil {
				continue
			}
			published, err := vd.ParsedDigest()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", deps.Key(doc.Name, v), err))
				continue
			}
			data, err := os.ReadFile(matches[0])
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if _, err := s.Store(ctx, doc.Name, v, published, data); err != nil {
				errs = append(errs, err)
				continue
			}
			stored++
		}
	}
	return stored, errors.Join(errs...)
}

func writeBlob(w http.ResponseWriter, d digest.Digest, data []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set(DigestHeader, d.String())
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
