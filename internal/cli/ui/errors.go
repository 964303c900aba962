package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ErrorOptions describes a failure shown to the user
type ErrorOptions struct {
	// Context is the short upper-cased heading, e.g. "INSTALL FAILED"
	Context string
	Problem string
	// Hints are printed as "→ hint" lines
	Hints   []string
	NoColor bool
}

// FormatError renders a failure:
//
//	✗ INSTALL FAILED: Failed to install urth-core.
//
//	   → Check that bower is installed: bower --version
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	header := color.New(color.FgRed, color.Bold)
	hint := color.New(color.FgCyan)
	if opts.NoColor {
		header.DisableColor()
		hint.DisableColor()
	}

	if opts.Context != "" {
		header.Fprintf(&b, "✗ %s: %s\n", strings.ToUpper(opts.Context), opts.Problem)
	} else {
		header.Fprintf(&b, "✗ %s\n", opts.Problem)
	}

	if len(opts.Hints) > 0 {
		b.WriteString("\n")
		for _, h := range opts.Hints {
			hint.Fprintf(&b, "   → %s\n", h)
		}
	}
	return b.String()
}

// WriteError writes a formatted failure to w
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess renders a success line
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// ConfigError renders an invalid configuration failure
func ConfigError(err error, noColor bool) string {
	return FormatError(ErrorOptions{
		Context: "configuration error",
		Problem: err.Error(),
		Hints: []string{
			"Write a fresh config: declwidgets init",
			"Override a key: DECLWIDGETS_SERVER_PORT=9000 declwidgets serve",
		},
		NoColor: noColor,
	})
}

// InstallError renders a failed package install
func InstallError(pkg string, err error, noColor bool) string {
	return FormatError(ErrorOptions{
		Context: "install failed",
		Problem: fmt.Sprintf("Failed to install %s: %v", pkg, err),
		Hints: []string{
			"Check that bower is installed: bower --version",
			"See earlier attempts: declwidgets jobs",
		},
		NoColor: noColor,
	})
}
