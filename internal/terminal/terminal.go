// Package terminal provides TTY detection and decides how console output is
// styled.
package terminal

import (
	"os"
	"strings"

	"github.com/pterm/pterm"
	"golang.org/x/term"
)

// Info holds the resolved terminal state for the current process.
type Info struct {
	// IsTerminal is true when stdout is connected to a TTY.
	IsTerminal bool
	// StderrIsTerminal is true when stderr is connected to a TTY.
	StderrIsTerminal bool
	// ColorEnabled is true when ANSI colours should be emitted.
	ColorEnabled bool
	// CI is true when running under a CI system. CI logs get no colour even
	// when a pseudo-TTY is attached.
	CI bool
	// Plain is true when output is consumed by a program (json or yaml
	// format) and progress lines must stay off stdout.
	Plain bool
}

// Detect inspects the environment and returns a populated Info.
//
//	noColor – true when --no-color was passed (NO_COLOR env is checked here)
//	format  – the --format value
func Detect(noColor bool, format string) Info {
	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	stderrTTY := term.IsTerminal(int(os.Stderr.Fd()))

	// Honour the NO_COLOR convention (https://no-color.org/).
	envNoColor := os.Getenv("NO_COLOR") != ""
	ci := IsCI()

	return Info{
		IsTerminal:       isTTY,
		StderrIsTerminal: stderrTTY,
		ColorEnabled:     isTTY && !noColor && !envNoColor && !ci && !IsDumb(),
		CI:               ci,
		Plain:            format == "json" || format == "yaml",
	}
}

// Apply configures pterm for the detected terminal.
func (i Info) Apply() {
	if i.ColorEnabled {
		pterm.EnableColor()
		pterm.EnableStyling()
		return
	}
	pterm.DisableColor()
	if !i.IsTerminal {
		pterm.DisableStyling()
	}
}

// IsDumb returns true when the terminal is known to have no capabilities
// (e.g. TERM=dumb or running inside Emacs).
func IsDumb() bool {
	t := strings.ToLower(os.Getenv("TERM"))
	return t == "dumb" || t == ""
}

// IsCI returns true when a well-known CI environment variable is set.
func IsCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "JENKINS_URL", "GITLAB_CI", "CIRCLECI", "TRAVIS"}
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}
