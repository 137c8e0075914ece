package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"facegate/internal/device"
	"facegate/internal/events"
)

// terminalSink renders session events. The dispatcher calls it from a single
// goroutine.
type terminalSink struct {
	out   io.Writer
	quiet bool

	header  *color.Color
	dim     *color.Color
	success *color.Color
	failure *color.Color
	pending *color.Color

	bar *progressbar.ProgressBar
}

var _ events.Sink = (*terminalSink)(nil)

func newTerminalSink(out io.Writer, quiet bool) *terminalSink {
	s := &terminalSink{
		out:     out,
		quiet:   quiet,
		header:  color.New(color.FgCyan, color.Bold),
		dim:     color.New(color.Faint),
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed),
		pending: color.New(color.FgYellow),
	}
	if !shouldColorize(out) {
		for _, c := range []*color.Color{s.header, s.dim, s.success, s.failure, s.pending} {
			c.DisableColor()
		}
	}
	return s
}

func (s *terminalSink) Log(text string) {
	if s.quiet {
		return
	}
	s.clearBar()
	s.dim.Fprintln(s.out, "  "+text)
}

func (s *terminalSink) Status(text string, severity events.Severity) {
	if s.quiet {
		return
	}
	s.clearBar()
	switch severity {
	case events.Success:
		s.success.Fprintln(s.out, text)
	case events.Failure:
		s.failure.Fprintln(s.out, text)
	case events.Progress:
		s.pending.Fprintln(s.out, text)
	default:
		fmt.Fprintln(s.out, text)
	}
}

func (s *terminalSink) SessionStart(title string) {
	if s.quiet {
		return
	}
	s.header.Fprintf(s.out, "== %s ==\n", strings.TrimSpace(title))
}

func (s *terminalSink) SessionEnd() {
	s.finish()
}

func (s *terminalSink) UserListChanged(identities []string) {
	if s.quiet {
		return
	}
	if len(identities) == 0 {
		s.dim.Fprintln(s.out, "  Users: (none)")
		return
	}
	s.dim.Fprintf(s.out, "  Users: %s\n", strings.Join(identities, ", "))
}

func (s *terminalSink) Progress(pose device.FacePose) {
	if s.quiet {
		return
	}
	if s.bar == nil {
		s.bar = progressbar.NewOptions(device.PoseCount,
			progressbar.OptionSetWriter(s.out),
			progressbar.OptionSetDescription("Capturing poses"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("poses"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	s.bar.Describe("Pose " + pose.String())
	_ = s.bar.Add(1)
}

func (s *terminalSink) LoopToggled(running bool) {
	if s.quiet {
		return
	}
	if running {
		s.dim.Fprintln(s.out, "  Loop running, press Ctrl+C to stop")
		return
	}
	s.dim.Fprintln(s.out, "  Loop stopped")
}

// clearBar ends an in-progress bar so the next line starts clean.
func (s *terminalSink) clearBar() {
	if s.bar == nil {
		return
	}
	_ = s.bar.Finish()
	fmt.Fprintln(s.out)
	s.bar = nil
}

func (s *terminalSink) finish() {
	s.clearBar()
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
