package rubygems

import (
	"context"
	"errors"
	"fmt"
	"io"
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
	// DefaultBaseURL is the public RubyGems.org host.
	DefaultBaseURL = "https://rubygems.org"

	// DefaultMaxVersions is how many of the newest releases are offered to
	// the resolver.
	DefaultMaxVersions = 20

	// platformRuby marks pure-Ruby gems; native builds are skipped.
	platformRuby = "ruby"

	fetchConcurrency = 8
)

// Client provides access to the RubyGems.org API.
//
// Gem names are case sensitive on RubyGems and may contain underscores,
// while the resolver works with normalized names ("mini_portile2" becomes
// "mini-portile2"). The client tries the normalized name first and then
// its underscore spelling, remembering whichever one exists.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL string
	logger  *log.Logger

	// MaxVersions limits FetchVersions to the newest releases, since each
	// one costs a request for its dependencies. Zero means all releases.
	MaxVersions int

	mu    sync.Mutex
	names map[string]string // normalized → RubyGems spelling
}

// NewClient creates a RubyGems client. An empty baseURL means
// [DefaultBaseURL].
func NewClient(baseURL string, logger *log.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{
		Client:      integrations.NewClient(map[string]string{"Accept": "application/json"}),
		baseURL:     strings.TrimRight(baseURL, "/"),
		logger:      logger,
		MaxVersions: DefaultMaxVersions,
		names:       make(map[string]string),
	}
}

// FetchVersions implements [deps.Provider].
//
// Only platform "ruby" releases are offered. Releases whose version or
// runtime requirements cannot be parsed are skipped; development
// dependencies are ignored.
func (c *Client) FetchVersions(ctx context.Context, name string) ([]deps.Release, error) {
	gem, versions, err := c.fetchVersionList(ctx, name)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		number  string
		version semver.Version
		digest  digest.Digest
	}
	var candidates []candidate
	for _, v := range versions {
		if v.Platform != "" && v.Platform != platformRuby {
			continue
		}
		parsed, err := semver.Parse(v.Number)
		if err != nil {
			c.logger.Debug("skipping version", "gem", gem, "version", v.Number, "err", err)
			continue
		}
		candidates = append(candidates, candidate{number: v.Number, version: parsed, digest: shaDigest(v.SHA)})
	}
	slices.SortFunc(candidates, func(a, b candidate) int {
		if cmp := semver.Compare(b.version, a.version); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.number, b.number)
	})
	if c.MaxVersions > 0 && len(candidates) > c.MaxVersions {
		candidates = candidates[:c.MaxVersions]
	}

	var (
		mu       sync.Mutex
		releases []deps.Release
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, cand := range candidates {
		g.Go(func() error {
			var info versionInfo
			url := integrations.JoinURL(c.baseURL, "api", "v2", "rubygems", gem, "versions", cand.number+".json")
			if err := c.Get(gctx, url, &info); err != nil {
				if errors.Is(err, integrations.ErrNotFound) {
					return nil
				}
				return err
			}
			reqs, err := runtimeRequirements(info.Dependencies.Runtime)
			if err != nil {
				c.logger.Debug("skipping version", "gem", gem, "version", cand.number, "err", err)
				return nil
			}
			d := cand.digest
			if d == "" {
				d = shaDigest(info.SHA)
			}
			mu.Lock()
			releases = append(releases, deps.Release{Version: cand.version, Requirements: reqs, Digest: d})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	deps.SortReleases(releases)
	return releases, nil
}

// FetchArtifact implements [deps.ArtifactSource] by downloading the .gem
// file of the release.
func (c *Client) FetchArtifact(ctx context.Context, name string, version semver.Version) (*deps.Artifact, error) {
	gem, versions, err := c.fetchVersionList(ctx, name)
	if err != nil {
		return nil, err
	}
	idx := slices.IndexFunc(versions, func(v apiVersion) bool {
		if v.Platform != "" && v.Platform != platformRuby {
			return false
		}
		parsed, err := semver.Parse(v.Number)
		return err == nil && parsed.Equal(version)
	})
	if idx < 0 {
		return nil, qerrors.New(qerrors.ErrCodePackageNotFound, "%s has no ruby platform gem", deps.Key(name, version))
	}
	v := versions[idx]
	d := shaDigest(v.SHA)
	if d == "" {
		return nil, qerrors.New(qerrors.ErrCodeIntegrity, "%s-%s.gem publishes no sha256", gem, v.Number)
	}

	filename := fmt.Sprintf("%s-%s.gem", gem, v.Number)
	data, err := c.GetBytes(ctx, integrations.JoinURL(c.baseURL, "downloads", filename))
	if err != nil {
		return nil, err
	}
	return &deps.Artifact{
		Name:     deps.NormalizeName(name),
		Version:  version,
		Filename: filename,
		Data:     data,
		Digest:   d,
	}, nil
}

// fetchVersionList returns the RubyGems spelling of name and its releases.
func (c *Client) fetchVersionList(ctx context.Context, name string) (string, []apiVersion, error) {
	norm := deps.NormalizeName(name)
	c.mu.Lock()
	known, ok := c.names[norm]
	c.mu.Unlock()

	spellings := []string{norm}
	if ok {
		spellings = []string{known}
	} else if alt := strings.ReplaceAll(norm, "-", "_"); alt != norm {
		spellings = append(spellings, alt)
	}

	var lastErr error
	for _, gem := range spellings {
		var versions []apiVersion
		err := c.Get(ctx, integrations.JoinURL(c.baseURL, "api", "v1", "versions", gem+".json"), &versions)
		if errors.Is(err, integrations.ErrNotFound) {
			lastErr = err
			continue
		}
		if err != nil {
			return "", nil, err
		}
		c.mu.Lock()
		c.names[norm] = gem
		c.mu.Unlock()
		return gem, versions, nil
	}
	return "", nil, qerrors.Wrap(qerrors.ErrCodePackageNotFound, lastErr, "gem %s", norm)
}

// runtimeRequirements converts RubyGems requirement strings. "~>" is the
// pessimistic operator, which matches the compatible-release operator "~=".
func runtimeRequirements(runtime []apiDependency) ([]deps.Requirement, error) {
	seen := make(map[string]bool)
	var reqs []deps.Requirement
	for _, d := range runtime {
		r, err := deps.NewRequirement(d.Name, convertConstraint(d.Requirements))
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

// convertConstraint rewrites a RubyGems requirement list such as
// "~> 1.2, >= 1.2.3" into constraint syntax. ">= 0" means any version.
func convertConstraint(req string) string {
	var parts []string
	for _, p := range strings.Split(req, ",") {
		p = strings.TrimSpace(p)
		switch {
		case p == "", p == ">= 0":
			continue
		case strings.HasPrefix(p, "~>"):
			v := strings.TrimSpace(strings.TrimPrefix(p, "~>"))
			if !strings.Contains(v, ".") {
				// "~> 2" allows any 2.x.
				parts = append(parts, ">="+v, "<"+bumpMajor(v))
				continue
			}
			parts = append(parts, "~="+v)
		case strings.HasPrefix(p, "= "):
			parts = append(parts, "=="+strings.TrimSpace(p[1:]))
		default:
			parts = append(parts, strings.ReplaceAll(p, " ", ""))
		}
	}
	return strings.Join(parts, ", ")
}

func bumpMajor(v string) string {
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return v
	}
	return fmt.Sprint(n + 1)
}

func shaDigest(sha string) digest.Digest {
	if len(sha) != 64 {
		return ""
	}
	d := digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(sha))
	if d.Validate() != nil {
		return ""
	}
	return d
}

type apiVersion struct {
	Number     string `json:"number"`
	Platform   string `json:"platform"`
	SHA        string `json:"sha"`
	Prerelease bool   `json:"prerelease"`
}

type versionInfo struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	SHA          string `json:"sha"`
	Dependencies struct {
		Runtime     []apiDependency `json:"runtime"`
		Development []apiDependency `json:"development"`
	} `json:"dependencies"`
}

type apiDependency struct {
	Name         string `json:"name"`
	Requirements string `json:"requirements"`
}

var (
	_ deps.Provider       = (*Client)(nil)
	_ deps.ArtifactSource = (*Client)(nil)
)
