// Package render draws resolved dependency graphs.
//
// [ToDOT] converts a [resolver.Graph] to Graphviz DOT source with one node
// per selected package and one edge per requirement, labelled with its
// constraint. Packages that are installed together (same depth from the
// leaves) share a rank, so the picture reads bottom-up in install order.
//
//	dot := render.ToDOT(res.Graph, render.Options{Constraints: true})
//	svg, err := render.RenderSVG(ctx, dot)
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG and
// PNG rendering; no Graphviz installation is required.
package render
