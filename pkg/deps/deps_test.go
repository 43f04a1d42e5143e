package deps

import (
	"context"
	"testing"

	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/semver"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Requests", "requests"},
		{"zope.interface", "zope-interface"},
		{"typing_extensions", "typing-extensions"},
		{"Foo__Bar--baz", "foo-bar-baz"},
		{"  flask ", "flask"},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		spec       string
		name       string
		constraint string
		check      string
		want       bool
	}{
		{"requests", "requests", "*", "2.31.0", true},
		{"requests>=2.0,<3", "requests", ">=2.0,<3", "3.0.0", false},
		{"requests (>=2.0)", "requests", ">=2.0", "2.1.0", true},
		{"requests[socks] ~=2.31", "requests", "~=2.31", "2.32.0", true},
		{"Flask ^3.0", "flask", "^3.0", "4.0.0", false},
		{"idna>=2.5; python_version < '3.8'", "idna", ">=2.5", "3.4.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			r, err := ParseRequirement(tt.spec)
			if err != nil {
				t.Fatalf("ParseRequirement(%q) error: %v", tt.spec, err)
			}
			if r.Name != tt.name {
				t.Errorf("Name = %q, want %q", r.Name, tt.name)
			}
			if r.Constraint.String() != tt.constraint {
				t.Errorf("Constraint = %q, want %q", r.Constraint, tt.constraint)
			}
			if got := r.Constraint.Check(semver.MustParse(tt.check)); got != tt.want {
				t.Errorf("Check(%s) = %v, want %v", tt.check, got, tt.want)
			}
		})
	}
}

func TestParseRequirementErrors(t *testing.T) {
	tests := []struct {
		spec string
		code qerrors.Code
	}{
		{"requests >>2", qerrors.ErrCodeParse},
		{"", qerrors.ErrCodeParse},
		{"-bad ^1", qerrors.ErrCodeParse},
	}
	for _, tt := range tests {
		_, err := ParseRequirement(tt.spec)
		if !qerrors.Is(err, tt.code) {
			t.Errorf("ParseRequirement(%q) error = %v, want code %v", tt.spec, err, tt.code)
		}
	}
}

func TestParseRequirementsCollectsErrors(t *testing.T) {
	reqs, errs := ParseRequirements(map[string]string{
		"zlib":     "^1.2",
		"broken":   "<<<",
		"anyio":    "*",
		"Bad/Name": "1.0",
	}, true)

	if len(reqs) != 2 {
		t.Fatalf("len(reqs) = %d, want 2", len(reqs))
	}
	if reqs[0].Name != "anyio" || reqs[1].Name != "zlib" {
		t.Errorf("reqs = %v, want sorted [anyio zlib]", reqs)
	}
	if !reqs[0].Dev {
		t.Error("Dev flag not propagated")
	}
	if len(errs) != 2 {
		t.Errorf("len(errs) = %d, want 2", len(errs))
	}
}

func TestSortReleases(t *testing.T) {
	rs := []Release{
		{Version: semver.MustParse("1.0.0")},
		{Version: semver.MustParse("2.0.0")},
		{Version: semver.MustParse("1.5.0")},
	}
	SortReleases(rs)
	if rs[0].Version.String() != "2.0.0" || rs[2].Version.String() != "1.0.0" {
		t.Errorf("SortReleases = %v", rs)
	}

	if _, ok := FindRelease(rs, semver.MustParse("1.5.0")); !ok {
		t.Error("FindRelease(1.5.0) not found")
	}
	if _, ok := FindRelease(rs, semver.MustParse("1.6.0")); ok {
		t.Error("FindRelease(1.6.0) found")
	}
}

func TestProviderFunc(t *testing.T) {
	var p Provider = ProviderFunc(func(ctx context.Context, name string) ([]Release, error) {
		return []Release{{Version: semver.MustParse("0.1.0")}}, nil
	})
	rs, err := p.FetchVersions(context.Background(), "x")
	if err != nil || len(rs) != 1 {
		t.Fatalf("FetchVersions = %v, %v", rs, err)
	}
}
