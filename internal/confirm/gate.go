// Package confirm resolves operator decisions for optional steps.
package confirm

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Decision is the operator's answer to a step prompt.
type Decision int

// Possible decisions.
const (
	Yes Decision = iota
	No
	YesToAll
)

// Gate asks the operator about a step. Implementations must be injectable so
// the orchestrator can run non-interactively under test.
type Gate interface {
	// Ask resolves a tri-state decision. Pressing Enter means Yes, matching
	// the ergonomics of a long interactive run.
	Ask(prompt string) (Decision, error)

	// Confirm is the strict secondary gate for irreversible operations. It
	// defaults to No and never accepts "all" answers.
	Confirm(prompt string) (bool, error)
}

// TerminalGate prompts on an io.Writer and reads answers line-wise from an
// io.Reader, normally the controlling terminal.
type TerminalGate struct {
	in  *bufio.Reader
	out io.Writer
}

// New creates a gate reading answers from in and writing prompts to out.
func New(in io.Reader, out io.Writer) *TerminalGate {
	return &TerminalGate{in: bufio.NewReader(in), out: out}
}

// Ask prompts until it reads a recognized answer. Empty input is Yes.
func (g *TerminalGate) Ask(prompt string) (Decision, error) {
	for {
		fmt.Fprintf(g.out, "%s [Y/n/a]: ", prompt)

		line, err := g.in.ReadString('\n')
		if err != nil && line == "" {
			return No, fmt.Errorf("reading answer: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "", "y", "yes":
			return Yes, nil
		case "n", "no":
			return No, nil
		case "a", "all":
			return YesToAll, nil
		}

		fmt.Fprintln(g.out, "please answer y, n or a")
	}
}

// Confirm prompts for an explicit yes. Empty input is No.
func (g *TerminalGate) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(g.out, "%s [y/N]: ", prompt)

	line, err := g.in.ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("reading answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// AssumeYes is a non-interactive gate answering Yes to every step prompt and
// refusing every destructive secondary confirmation.
type AssumeYes struct{}

// Ask always answers Yes.
func (AssumeYes) Ask(string) (Decision, error) { return Yes, nil }

// Confirm always answers No: irreversible operations need a real operator.
func (AssumeYes) Confirm(string) (bool, error) { return false, nil }
