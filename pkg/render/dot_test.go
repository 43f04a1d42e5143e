package render

import (
	"context"
	"strings"
	"testing"

	"github.com/matzehuels/quiver/pkg/deps"
	"github.com/matzehuels/quiver/pkg/provider"
	"github.com/matzehuels/quiver/pkg/resolver"
)

func resolved(t *testing.T) *resolver.Graph {
	t.Helper()
	snap := provider.NewSnapshot().
		MustAdd("app", "1.0.0", "lib ^1.0", "util").
		MustAdd("lib", "1.1.0", "util >=0.1").
		MustAdd("util", "0.2.0")
	root, err := deps.ParseRequirement("app")
	if err != nil {
		t.Fatal(err)
	}
	res, err := resolver.New(snap, resolver.Options{}).Resolve(context.Background(), []deps.Requirement{root})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return res.Graph
}

func TestToDOT(t *testing.T) {
	g := resolved(t)
	dot := ToDOT(g, Options{Constraints: true, Ranks: true})

	for _, want := range []string{
		`"app" [label="app\n1.0.0", penwidth=2`,
		`"lib" [label="lib\n1.1.0"];`,
		`"app" -> "lib" [label="^1.0"];`,
		`"app" -> "util";`,
		`{ rank=same; "util"; }`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %s\n%s", want, dot)
		}
	}
	if again := ToDOT(g, Options{Constraints: true, Ranks: true}); again != dot {
		t.Error("ToDOT is not deterministic")
	}
	if strings.Contains(ToDOT(g, Options{}), "rank=same") {
		t.Error("ranks emitted without Options.Ranks")
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"deps.dot": FormatDOT,
		"deps.gv":  FormatDOT,
		"deps.png": FormatPNG,
		"deps.svg": FormatSVG,
		"deps":     FormatSVG,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %s, want %s", path, got, want)
		}
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="100pt" height="50pt" viewBox="0.00 0.00 100.00 50.00" xmlns="http://www.w3.org/2000/svg"><g/></svg>`)
	out := string(normalizeViewBox(in))
	if !strings.Contains(out, `viewBox="0 0 100.00 50.00" width="100" height="50"`) {
		t.Errorf("normalizeViewBox = %s", out)
	}
	if got := normalizeViewBox([]byte("<svg>")); string(got) != "<svg>" {
		t.Errorf("no viewBox: %s", got)
	}
}
