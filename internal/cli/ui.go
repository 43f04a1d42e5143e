package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/installer"
	"github.com/matzehuels/quiver/pkg/resolver"
)

// User-facing output. Logs go to the CLI logger instead.
var (
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr // spinners
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorBlue   = lipgloss.Color("75")  // Light blue - links
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Public Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleHighlight for package names.
	StyleHighlight = lipgloss.NewStyle().Foreground(colorCyan)

	// StyleLink for URLs.
	StyleLink = lipgloss.NewStyle().Foreground(colorBlue).Underline(true)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleSuccess for success messages.
	StyleSuccess = lipgloss.NewStyle().Foreground(colorGreen)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleCached   = lipgloss.NewStyle().Foreground(colorGreen)
	styleUpstream = lipgloss.NewStyle().Foreground(colorGray)

	styleCommand = lipgloss.NewStyle().Foreground(colorBlue)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
	iconSkipped = "="
)

// =============================================================================
// Status Output
// =============================================================================

func printSuccess(format string, args ...any) {
	fmt.Fprintln(out, styleIconSuccess.Render(iconSuccess)+" "+fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	fmt.Fprintln(out, styleIconError.Render(iconError)+" "+fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(out, styleIconWarning.Render(iconWarning)+" "+StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(format string, args ...any) {
	fmt.Fprintln(out, styleIconInfo.Render(iconInfo)+" "+fmt.Sprintf(format, args...))
}

// printDetail prints an indented, dimmed line.
func printDetail(format string, args ...any) {
	fmt.Fprintln(out, "  "+StyleDim.Render(fmt.Sprintf(format, args...)))
}

// printFile prints a file output line.
func printFile(path string) {
	fmt.Fprintln(out, "  "+StyleDim.Render(iconArrow)+" "+StyleValue.Render(path))
}

// printKeyValue prints a labeled value.
func printKeyValue(key, value string) {
	keyStyle := lipgloss.NewStyle().Foreground(colorGray).Width(16)
	fmt.Fprintln(out, keyStyle.Render(key)+" "+StyleValue.Render(value))
}

// printNextStep prints a suggested next command.
func printNextStep(description, cmd string) {
	fmt.Fprintln(out, StyleDim.Render(description+":")+" "+styleCommand.Render(cmd))
}

// =============================================================================
// Plan & Install Output
// =============================================================================

// printPlan prints the install order, one package per line, each followed
// by the packages it depends on.
func printPlan(plan resolver.Plan) {
	width := len(fmt.Sprint(len(plan)))
	for i, n := range plan {
		line := fmt.Sprintf("%*d. %s %s", width, i+1, StyleHighlight.Render(n.Name), StyleValue.Render(n.Version.String()))
		if len(n.Dependencies) > 0 {
			line += StyleDim.Render(" ← " + strings.Join(n.Dependencies, ", "))
		}
		fmt.Fprintln(out, line)
	}
}

// printOutcome prints one install outcome.
func printOutcome(o installer.Outcome) {
	name := StyleHighlight.Render(o.Name) + " " + StyleValue.Render(o.Version)
	switch o.Status {
	case installer.StatusInstalled:
		src := styleUpstream.Render(o.Source)
		if o.Source == "cache" {
			src = styleCached.Render(o.Source)
		}
		fmt.Fprintln(out, styleIconSuccess.Render(iconSuccess)+" "+name+StyleDim.Render(" · ")+src)
	case installer.StatusSkipped:
		fmt.Fprintln(out, styleIconInfo.Render(iconSkipped)+" "+name+StyleDim.Render(" · up to date"))
	default:
		msg := string(o.Status)
		if o.Err != nil {
			msg = qerrors.UserMessage(o.Err)
		}
		fmt.Fprintln(out, styleIconError.Render(iconError)+" "+name+" "+StyleWarning.Render(msg))
	}
}

// printStats prints a one-line summary of counts, skipping zero values.
func printStats(parts ...string) {
	var kept []string
	for _, p := range parts {
		if p != "" && !strings.HasPrefix(p, "0 ") {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return
	}
	fmt.Fprintln(out, "  "+StyleDim.Render(strings.Join(kept, " · ")))
}
