package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/codefionn/castcheck/internal/progress"
)

// progressPrinter writes one line per progress event.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

// newProgressPrinter prints to stderr, colored only when stderr is a
// terminal.
func newProgressPrinter(verbose bool) *progressPrinter {
	color.NoColor = !term.IsTerminal(int(os.Stderr.Fd()))
	return &progressPrinter{w: os.Stderr, verbose: verbose}
}

// Print implements progress.Callback.
func (p *progressPrinter) Print(ev progress.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stamp := ev.Timestamp.Format("15:04:05")
	var line string
	switch ev.Stage {
	case progress.StageStarted:
		line = color.CyanString("▶ %s", ev.Message)
	case progress.StageNode:
		line = fmt.Sprintf("%s %s", color.MagentaString("[%s]", ev.Node), ev.Message)
	case progress.StageToolStarted:
		if !p.verbose {
			return nil
		}
		line = color.YellowString("  → %s %s", ev.Tool, ev.Message)
	case progress.StageToolCompleted:
		if !p.verbose {
			return nil
		}
		line = color.YellowString("  ← %s", ev.Tool)
		if ev.Message != "" {
			line += " " + color.RedString(ev.Message)
		}
	case progress.StageIteration:
		line = color.CyanString("↻ %s", ev.Message)
	case progress.StageComplete:
		line = color.GreenString("✓ %s", ev.Message)
	case progress.StageError:
		line = color.RedString("✗ %s failed: %s", ev.Node, ev.Message)
		if ev.Traceback != "" {
			line += "\n" + strings.TrimRight(ev.Traceback, "\n")
		}
	default:
		line = ev.Message
	}
	_, err := fmt.Fprintf(p.w, "%s %s\n", stamp, line)
	return err
}

// terminalWidth returns the stdout width, or 80 when it is not a terminal.
func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}
