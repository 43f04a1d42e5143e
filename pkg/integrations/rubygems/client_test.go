package rubygems

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/opencontainers/go-digest"

	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/semver"
)

var gemBytes = []byte("rack-3.0.8.gem contents")

func newServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var listCalls atomic.Int32
	sha := digest.FromBytes(gemBytes).Encoded()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/versions/rack.json":
			json.NewEncoder(w).Encode([]apiVersion{
				{Number: "3.0.8", Platform: "ruby", SHA: sha},
				{Number: "3.0.8", Platform: "java", SHA: strings.Repeat("0", 64)},
				{Number: "2.2.8", Platform: "ruby"},
				{Number: "not.a.version.at.all", Platform: "ruby"},
			})
		case "/api/v2/rubygems/rack/versions/3.0.8.json":
			var info versionInfo
			info.Dependencies.Runtime = []apiDependency{
				{Name: "mini_portile2", Requirements: "~> 2.8, >= 2.8.2"},
				{Name: "webrick", Requirements: ">= 0"},
			}
			info.Dependencies.Development = []apiDependency{{Name: "rspec", Requirements: "~> 3"}}
			json.NewEncoder(w).Encode(info)
		case "/api/v2/rubygems/rack/versions/2.2.8.json":
			json.NewEncoder(w).Encode(versionInfo{SHA: strings.Repeat("ab", 32)})
		case "/api/v1/versions/mini_portile2.json":
			listCalls.Add(1)
			json.NewEncoder(w).Encode([]apiVersion{{Number: "2.8.5", Platform: "ruby"}})
		case "/api/v2/rubygems/mini_portile2/versions/2.8.5.json":
			json.NewEncoder(w).Encode(versionInfo{})
		case "/downloads/rack-3.0.8.gem":
			w.Write(gemBytes)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &listCalls
}

func TestFetchVersions(t *testing.T) {
	srv, _ := newServer(t)
	c := NewClient(srv.URL, nil)

	releases, err := c.FetchVersions(context.Background(), "rack")
	if err != nil {
		t.Fatalf("FetchVersions: %v", err)
	}
	if len(releases) != 2 {
		t.Fatalf("releases = %v, want 3.0.8 and 2.2.8", releases)
	}
	latest := releases[0]
	if latest.Version.String() != "3.0.8" {
		t.Errorf("newest = %s, want 3.0.8", latest.Version)
	}
	if latest.Digest != digest.FromBytes(gemBytes) {
		t.Errorf("digest = %s", latest.Digest)
	}
	if len(latest.Requirements) != 2 {
		t.Fatalf("requirements = %v", latest.Requirements)
	}
	portile := latest.Requirements[0]
	if portile.Name != "mini-portile2" {
		t.Errorf("name = %q, want normalized mini-portile2", portile.Name)
	}
	if !portile.Constraint.Check(semver.MustParse("2.8.5")) || portile.Constraint.Check(semver.MustParse("2.8.1")) || portile.Constraint.Check(semver.MustParse("3.0.0")) {
		t.Errorf("constraint %s has wrong bounds", portile.Constraint)
	}
	if !latest.Requirements[1].Constraint.IsAny() {
		t.Errorf(">= 0 should match any version, got %s", latest.Requirements[1].Constraint)
	}

	older := releases[1]
	if older.Digest != digest.NewDigestFromEncoded(digest.SHA256, strings.Repeat("ab", 32)) {
		t.Errorf("older digest = %q, want the per-version sha", older.Digest)
	}
}

func TestFetchVersionsMaxVersions(t *testing.T) {
	srv, _ := newServer(t)
	c := NewClient(srv.URL, nil)
	c.MaxVersions = 1

	releases, err := c.FetchVersions(context.Background(), "rack")
	if err != nil {
		t.Fatal(err)
	}
	if len(releases) != 1 || releases[0].Version.String() != "3.0.8" {
		t.Errorf("releases = %v, want only 3.0.8", releases)
	}
}

func TestFetchVersionsUnderscoreName(t *testing.T) {
	srv, calls := newServer(t)
	c := NewClient(srv.URL, nil)
	ctx := context.Background()

	for range 2 {
		releases, err := c.FetchVersions(ctx, "mini-portile2")
		if err != nil {
			t.Fatalf("FetchVersions: %v", err)
		}
		if len(releases) != 1 {
			t.Fatalf("releases = %v", releases)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("version list fetches = %d, want 2", calls.Load())
	}
	if got := c.names["mini-portile2"]; got != "mini_portile2" {
		t.Errorf("remembered spelling = %q", got)
	}
}

func TestFetchVersionsNotFound(t *testing.T) {
	srv, _ := newServer(t)
	c := NewClient(srv.URL, nil)

	_, err := c.FetchVersions(context.Background(), "no-such-gem")
	if !qerrors.Is(err, qerrors.ErrCodePackageNotFound) {
		t.Errorf("err = %v, want PACKAGE_NOT_FOUND", err)
	}
}

func TestFetchArtifact(t *testing.T) {
	srv, _ := newServer(t)
	c := NewClient(srv.URL, nil)
	ctx := context.Background()

	a, err := c.FetchArtifact(ctx, "rack", semver.MustParse("3.0.8"))
	if err != nil {
		t.Fatalf("FetchArtifact: %v", err)
	}
	if a.Filename != "rack-3.0.8.gem" || string(a.Data) != string(gemBytes) {
		t.Errorf("artifact = %s %q", a.Filename, a.Data)
	}
	if a.Digest != digest.FromBytes(gemBytes) {
		t.Errorf("digest = %s", a.Digest)
	}

	if _, err := c.FetchArtifact(ctx, "rack", semver.MustParse("2.2.8")); !qerrors.Is(err, qerrors.ErrCodeIntegrity) {
		t.Errorf("missing sha err = %v, want INTEGRITY", err)
	}
	if _, err := c.FetchArtifact(ctx, "rack", semver.MustParse("9.9.9")); !qerrors.Is(err, qerrors.ErrCodePackageNotFound) {
		t.Errorf("unknown version err = %v, want PACKAGE_NOT_FOUND", err)
	}
}

func TestConvertConstraint(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"~> 1.2", "~=1.2"},
		{"~> 2", ">=2, <3"},
		{">= 0", ""},
		{"= 1.0.0", "==1.0.0"},
		{"~> 1.2, >= 1.2.3", "~=1.2, >=1.2.3"},
		{"!= 1.5", "!=1.5"},
		{"< 2, > 1", "<2, >1"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := convertConstraint(tt.in); got != tt.want {
			t.Errorf("convertConstraint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShaDigest(t *testing.T) {
	if shaDigest("") != "" || shaDigest("abc") != "" {
		t.Error("short sha should give empty digest")
	}
	if shaDigest(strings.Repeat("z", 64)) != "" {
		t.Error("non-hex sha should give empty digest")
	}
	upper := strings.Repeat("AB", 32)
	if got := shaDigest(upper); got.Encoded() != strings.Repeat("ab", 32) {
		t.Errorf("shaDigest(%s) = %s", upper, got)
	}
}
