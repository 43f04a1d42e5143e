package render

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/quiver/pkg/dag"
	"github.com/matzehuels/quiver/pkg/resolver"
)

// Options configures DOT generation.
type Options struct {
	// Constraints labels each edge with the requirement that produced it.
	Constraints bool

	// Ranks groups packages by install level.
	Ranks bool
}

// Format is an output format of [Render].
type Format string

const (
	FormatDOT Format = "dot"
	FormatSVG Format = "svg"
	FormatPNG Format = "png"
)

// FormatFromPath picks the format from a file extension, defaulting to SVG.
func FormatFromPath(path string) Format {
	switch {
	case strings.HasSuffix(path, ".dot"), strings.HasSuffix(path, ".gv"):
		return FormatDOT
	case strings.HasSuffix(path, ".png"):
		return FormatPNG
	default:
		return FormatSVG
	}
}

// ToDOT converts a resolved graph to Graphviz DOT format. Root packages are
// drawn with a bold outline. The output is deterministic.
func ToDOT(g *resolver.Graph, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=BT;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [fontsize=10, color=\"#555555\"];\n")
	buf.WriteString("\n")

	for _, n := range g.Nodes() {
		fmt.Fprintf(&buf, "  %q [%s];\n", n.Name, strings.Join(nodeAttrs(n), ", "))
	}

	if opts.Ranks {
		if levels, err := g.DAG().Levels(); err == nil {
			buf.WriteString("\n")
			for _, level := range levels {
				quoted := make([]string, len(level))
				for i, id := range level {
					quoted[i] = strconv.Quote(id)
				}
				fmt.Fprintf(&buf, "  { rank=same; %s; }\n", strings.Join(quoted, "; "))
			}
		}
	}

	buf.WriteString("\n")
	edges := g.DAG().Edges()
	slices.SortFunc(edges, func(a, b dag.Edge) int {
		return cmp.Or(strings.Compare(a.From, b.From), strings.Compare(a.To, b.To))
	})
	for _, e := range edges {
		constraint, _ := e.Meta["constraint"].(string)
		if opts.Constraints && constraint != "" && constraint != "*" {
			fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", e.From, e.To, constraint)
		} else {
			fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeAttrs(n *resolver.Node) []string {
	attrs := []string{fmt.Sprintf("label=%q", n.Name+"\n"+n.Version.String())}
	if n.Root {
		attrs = append(attrs, "penwidth=2", "fillcolor=\"#e8f0fe\"")
	}
	return attrs
}

// Render produces the graph in the given format.
func Render(ctx context.Context, g *resolver.Graph, format Format, opts Options) ([]byte, error) {
	dot := ToDOT(g, opts)
	switch format {
	case FormatDOT:
		return []byte(dot), nil
	case FormatPNG:
		return renderDOT(ctx, dot, graphviz.PNG)
	default:
		return RenderSVG(ctx, dot)
	}
}

// RenderSVG renders DOT source to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	svg, err := renderDOT(ctx, dot, graphviz.SVG)
	if err != nil {
		return nil, err
	}
	return normalizeViewBox(svg), nil
}

func renderDOT(ctx context.Context, dot string, format graphviz.Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, format, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's pt-sized root element with one that
// scales to its container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
