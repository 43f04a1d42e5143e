package pypi

import (
	"context"
	"errors"
	"io"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/quiver/pkg/deps"
	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/integrations"
	"github.com/matzehuels/quiver/pkg/semver"
)

const (
	// DefaultBaseURL is the public PyPI JSON API.
	DefaultBaseURL = "https://pypi.org/pypi"

	// DefaultMaxVersions is how many of the newest releases are offered to
	// the resolver.
	DefaultMaxVersions = 20

	fetchConcurrency = 8
)

var (
	markerRE = regexp.MustCompile(`;\s*(.+)`)
	skipRE   = regexp.MustCompile(`extra|dev|test`)
)

// Client provides access to the PyPI JSON API.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL string
	logger  *log.Logger

	// MaxVersions limits FetchVersions to the newest releases, since each
	// one costs a request for its requires_dist. Zero means all releases.
	MaxVersions int
}

// NewClient creates a PyPI client. An empty baseURL means [DefaultBaseURL].
func NewClient(baseURL string, logger *log.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{
		Client:      integrations.NewClient(map[string]string{"Accept": "application/json"}),
		baseURL:     baseURL,
		logger:      logger,
		MaxVersions: DefaultMaxVersions,
	}
}

// FetchVersions implements [deps.Provider].
//
// Release keys are normalized from PEP 440 ("1.0rc1" becomes 1.0.0-rc.1).
// Releases without files, fully yanked releases and releases whose version or
// requirements cannot be parsed are skipped.
func (c *Client) FetchVersions(ctx context.Context, name string) ([]deps.Release, error) {
	name = deps.NormalizeName(name)
	doc, err := c.fetchProject(ctx, name)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		key     string
		version semver.Version
		digest  digest.Digest
	}
	var candidates []candidate
	for key, files := range doc.Releases {
		if !installable(files) {
			continue
		}
		v, err := semver.Parse(key)
		if err != nil {
			c.logger.Debug("skipping version", "package", name, "version", key, "err", err)
			continue
		}
		cand := candidate{key: key, version: v}
		if f, ok := pickFile(files); ok && f.Digests.SHA256 != "" {
			cand.digest = digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(f.Digests.SHA256))
		}
		candidates = append(candidates, cand)
	}
	// Newest first; equal normalized versions keep a stable order by key.
	sortCandidates := func(a, b candidate) int {
		if cmp := semver.Compare(b.version, a.version); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.key, b.key)
	}
	slices.SortFunc(candidates, sortCandidates)
	if c.MaxVersions > 0 && len(candidates) > c.MaxVersions {
		candidates = candidates[:c.MaxVersions]
	}

	var (
		mu       sync.Mutex
		releases []deps.Release
		skipped  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, cand := range candidates {
		g.Go(func() error {
			requires := doc.Info.RequiresDist
			if cand.key != doc.Info.Version {
				info, err := c.fetchVersionInfo(gctx, name, cand.key)
				if errors.Is(err, integrations.ErrNotFound) {
					return nil
				}
				if err != nil {
					return err
				}
				requires = info.RequiresDist
			}
			reqs, err := parseRequires(requires)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.Debug("skipping version", "package", name, "version", cand.key, "err", err)
				skipped++
				return nil
			}
			releases = append(releases, deps.Release{Version: cand.version, Requirements: reqs, Digest: cand.digest})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if skipped > 0 {
		c.logger.Debug("pypi metadata had unparsable requirements", "package", name, "skipped", skipped)
	}
	deps.SortReleases(releases)
	return releases, nil
}

// FetchArtifact implements [deps.ArtifactSource]. A pure-Python wheel is
// preferred over any other wheel, and any wheel over an sdist.
func (c *Client) FetchArtifact(ctx context.Context, name string, version semver.Version) (*deps.Artifact, error) {
	name = deps.NormalizeName(name)
	doc, err := c.fetchProject(ctx, name)
	if err != nil {
		return nil, err
	}

	var files []apiFile
	for key, fs := range doc.Releases {
		if v, err := semver.Parse(key); err == nil && v.Equal(version) && installable(fs) {
			files = fs
			break
		}
	}
	file, ok := pickFile(files)
	if !ok {
		return nil, qerrors.New(qerrors.ErrCodePackageNotFound, "%s has no downloadable file", deps.Key(name, version))
	}
	if file.Digests.SHA256 == "" {
		return nil, qerrors.New(qerrors.ErrCodeIntegrity, "%s publishes no sha256", file.Filename)
	}
	d := digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(file.Digests.SHA256))
	if err := d.Validate(); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeParse, err, "digest of %s", file.Filename)
	}

	data, err := c.GetBytes(ctx, file.URL)
	if err != nil {
		return nil, err
	}
	return &deps.Artifact{
		Name:     name,
		Version:  version,
		Filename: file.Filename,
		Data:     data,
		Digest:   d,
	}, nil
}

func (c *Client) fetchProject(ctx context.Context, name string) (*projectResponse, error) {
	var doc projectResponse
	if err := c.Get(ctx, integrations.JoinURL(c.baseURL, name, "json"), &doc); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, qerrors.Wrap(qerrors.ErrCodePackageNotFound, err, "pypi package %s", name)
		}
		return nil, err
	}
	return &doc, nil
}

func (c *Client) fetchVersionInfo(ctx context.Context, name, version string) (*apiInfo, error) {
	var doc versionResponse
	if err := c.Get(ctx, integrations.JoinURL(c.baseURL, name, version, "json"), &doc); err != nil {
		return nil, err
	}
	return &doc.Info, nil
}

// parseRequires converts requires_dist entries. Entries guarded by an extra,
// dev or test marker are dropped; other markers are not evaluated and the
// requirement is kept. Duplicate names keep their first occurrence.
func parseRequires(requires []string) ([]deps.Requirement, error) {
	seen := make(map[string]bool)
	var reqs []deps.Requirement
	for _, line := range requires {
		if m := markerRE.FindStringSubmatch(line); len(m) > 1 && skipRE.MatchString(m[1]) {
			continue
		}
		r, err := deps.ParseRequirement(line)
		if err != nil {
			return nil, err
		}
		if seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		reqs = append(reqs, r)
	}
	return reqs, nil
}

func installable(files []apiFile) bool {
	for _, f := range files {
		if !f.Yanked {
			return true
		}
	}
	return false
}

func pickFile(files []apiFile) (apiFile, bool) {
	best, rank := apiFile{}, 0
	for _, f := range files {
		if f.Yanked {
			continue
		}
		r := 1
		switch {
		case f.PackageType == "bdist_wheel" && strings.HasSuffix(f.Filename, "py3-none-any.whl"):
			r = 3
		case f.PackageType == "bdist_wheel":
			r = 2
		}
		if r > rank {
			best, rank = f, r
		}
	}
	return best, rank > 0
}

type projectResponse struct {
	Info     apiInfo              `json:"info"`
	Releases map[string][]apiFile `json:"releases"`
}

type versionResponse struct {
	Info apiInfo   `json:"info"`
	URLs []apiFile `json:"urls"`
}

type apiInfo struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Summary      string   `json:"summary"`
	RequiresDist []string `json:"requires_dist"`
}

type apiFile struct {
	Filename    string `json:"filename"`
	PackageType string `json:"packagetype"`
	URL         string `json:"url"`
	Yanked      bool   `json:"yanked"`
	Digests     struct {
		SHA256 string `json:"sha256"`
	} `json:"digests"`
}

var (
	_ deps.Provider       = (*Client)(nil)
	_ deps.ArtifactSource = (*Client)(nil)
)
