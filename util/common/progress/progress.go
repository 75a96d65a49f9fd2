// Package progress provides progress reporting functionality
package progress

import (
	"github.com/pterm/pterm"
)

// Reporter defines the interface for reporting progress.
// It provides methods to report different stages of an operation
// and its status.
type Reporter interface {
	// Start begins progress reporting with an initial message
	Start(message string)

	// Step reports a new step in the operation
	Step(message string)

	// Error reports an error condition
	Error(message string)

	// Success reports successful completion
	Success(message string)

	// End finalizes progress reporting
	End()
}

// ConsoleReporter implements Reporter with pterm prefix printers.
type ConsoleReporter struct {
	start   pterm.PrefixPrinter
	step    pterm.PrefixPrinter
	failure pterm.PrefixPrinter
	success pterm.PrefixPrinter
}

// NewConsoleReporter creates a new ConsoleReporter
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{
		start:   pterm.Info,
		step:    *pterm.Info.WithPrefix(pterm.Prefix{Text: " STEP ", Style: pterm.NewStyle(pterm.BgGray, pterm.FgWhite)}),
		failure: pterm.Error,
		success: pterm.Success,
	}
}

func (r *ConsoleReporter) Start(message string) {
	r.start.Println(message + "...")
}

func (r *ConsoleReporter) Step(message string) {
	r.step.Println(message)
}

func (r *ConsoleReporter) Error(message string) {
	r.failure.Println(message)
}

func (r *ConsoleReporter) Success(message string) {
	r.success.Println(message)
}

func (r *ConsoleReporter) End() {
	pterm.Println()
}

// NopReporter implements Reporter with no-op operations
type NopReporter struct{}

// NewNopReporter creates a new NopReporter
func NewNopReporter() *NopReporter {
	return &NopReporter{}
}

func (r *NopReporter) Start(message string)   {}
func (r *NopReporter) Step(message string)    {}
func (r *NopReporter) Error(message string)   {}
func (r *NopReporter) Success(message string) {}
func (r *NopReporter) End()                   {}
