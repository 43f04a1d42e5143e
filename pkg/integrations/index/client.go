package index

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/quiver/pkg/deps"
	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/integrations"
	"github.com/matzehuels/quiver/pkg/semver"
)

// Client talks to a quiver index server.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL string
	logger  *log.Logger
}

// NewClient creates an index client for baseURL (e.g. "http://localhost:8080").
func NewClient(baseURL string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{
		Client:  integrations.NewClient(map[string]string{"Accept": "application/json"}),
		baseURL: baseURL,
		logger:  logger,
	}
}

// FetchPackage retrieves the raw document for a package.
//
// Returns an error with code [qerrors.ErrCodePackageNotFound] (wrapping
// [integrations.ErrNotFound]) if the index does not know the package.
func (c *Client) FetchPackage(ctx context.Context, name string) (*PackageDoc, error) {
	name = deps.NormalizeName(name)
	var doc PackageDoc
	if err := c.Get(ctx, integrations.JoinURL(c.baseURL, "packages", name), &doc); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, qerrors.Wrap(qerrors.ErrCodePackageNotFound, err, "package %s", name)
		}
		return nil, err
	}
	if doc.Name == "" {
		doc.Name = name
	}
	return &doc, nil
}

// FetchVersions implements [deps.Provider].
func (c *Client) FetchVersions(ctx context.Context, name string) ([]deps.Release, error) {
	doc, err := c.FetchPackage(ctx, name)
	if err != nil {
		return nil, err
	}
	releases, skipped := doc.Releases(c.logger)
	if skipped > 0 {
		c.logger.Debug("index metadata had unparsable versions", "package", doc.Name, "skipped", skipped)
	}
	return releases, nil
}

// FetchArtifact implements [deps.ArtifactSource]. The expected digest comes
// from the package document, not from the download response.
func (c *Client) FetchArtifact(ctx context.Context, name string, version semver.Version) (*deps.Artifact, error) {
	doc, err := c.FetchPackage(ctx, name)
	if err != nil {
		return nil, err
	}
	vd, ok := doc.Find(version)
	if !ok {
		return nil, qerrors.New(qerrors.ErrCodePackageNotFound, "%s has no version %s", doc.Name, version)
	}
	d, err := vd.ParsedDigest()
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeParse, err, "digest of %s", deps.Key(doc.Name, version))
	}
	if d == "" {
		return nil, qerrors.New(qerrors.ErrCodeIntegrity, "%s publishes no digest", deps.Key(doc.Name, version))
	}

	data, err := c.GetBytes(ctx, integrations.JoinURL(c.baseURL, "artifacts", doc.Name, vd.Version))
	if err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, qerrors.Wrap(qerrors.ErrCodePackageNotFound, err, "artifact %s", deps.Key(doc.Name, version))
		}
		return nil, err
	}
	filename := vd.Filename
	if filename == "" {
		filename = fmt.Sprintf("%s-%s.tar.gz", doc.Name, vd.Version)
	}
	return &deps.Artifact{
		Name:     doc.Name,
		Version:  version,
		Filename: filename,
		Data:     data,
		Digest:   d,
	}, nil
}

var (
	_ deps.Provider       = (*Client)(nil)
	_ deps.ArtifactSource = (*Client)(nil)
)
