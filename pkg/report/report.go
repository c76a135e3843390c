// Package report renders analysis results for a terminal.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/exp/slices"
	"golang.org/x/term"

	"github.com/oisee/avrstack/pkg/result"
)

// ansi are the escape codes used when writing to a terminal.
var ansi = &term.EscapeCodes{
	Red:    []byte("\x1b[31m"),
	Green:  []byte("\x1b[32m"),
	Yellow: []byte("\x1b[33m"),
	Cyan:   []byte("\x1b[36m"),
	Reset:  []byte("\x1b[0m"),
}

// Options select what a Printer shows.
type Options struct {
	ShowPath     bool // print the witness path
	TraceSummary bool // collapse runs of fallthrough steps
	ShowStates   bool // print the abstract state of each step
	Color        bool
}

// Printer writes reports as text.
type Printer struct {
	w    io.Writer
	opts Options
}

// New creates a printer. Color is only honoured when w is a terminal.
func New(w io.Writer, opts Options) *Printer {
	if opts.Color && !IsTerminal(w) {
		opts.Color = false
	}
	return &Printer{w: w, opts: opts}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *Printer) paint(code []byte, s string) string {
	if !p.opts.Color {
		return s
	}
	return string(code) + s + string(ansi.Reset)
}

// Print renders the whole report.
func (p *Printer) Print(r *result.Report) {
	if r.Program != "" {
		fmt.Fprintf(p.w, "Stack analysis of %s\n", r.Program)
	}
	p.printStats(r)
	fmt.Fprintln(p.w)

	switch r.Outcome {
	case result.Bounded:
		fmt.Fprintf(p.w, "Maximum stack depth: %s\n",
			p.paint(ansi.Green, fmt.Sprintf("%d bytes", r.Depth)))
		if p.opts.ShowPath && len(r.Path) > 0 {
			fmt.Fprintf(p.w, "\nPath (%d edges):\n", len(r.Path))
			p.printSteps(r.Path)
		}
	case result.Unbounded:
		fmt.Fprintf(p.w, "Stack depth: %s (cycle of %d edges, %+d bytes per iteration)\n",
			p.paint(ansi.Red, "UNBOUNDED"), len(r.Cycle), r.CycleWeight())
		if p.opts.ShowPath {
			if len(r.Path) > 0 {
				fmt.Fprintf(p.w, "\nPath to cycle (%d edges):\n", len(r.Path))
				p.printSteps(r.Path)
			}
			fmt.Fprintf(p.w, "\nCycle:\n")
			p.printSteps(r.Cycle)
		}
	default:
		fmt.Fprintf(p.w, "Analysis %s: no bound computed\n", p.paint(ansi.Yellow, strings.ToLower(r.Outcome.String())))
		p.printDistribution(r.ReturnSetSizes, false)
		p.printDistribution(r.StatesPerPC, true)
	}
}

func (p *Printer) printStats(r *result.Report) {
	s := r.Stats
	fmt.Fprintf(p.w, "  States:   %-14s Edges:   %-14s Explored: %s\n",
		humanize.Comma(s.States), humanize.Comma(s.Edges), humanize.Comma(s.Explored))
	fmt.Fprintf(p.w, "  Returns:  %-14s RETI:    %-14s Cyclic regions: %d\n",
		humanize.Comma(s.Returns), humanize.Comma(s.ReturnInterrupts), s.CyclicRegions)
	if r.BuildTime > 0 || r.TraverseTime > 0 {
		fmt.Fprintf(p.w, "  Build:    %-14s Path:    %s\n", r.BuildTime.Round(time.Microsecond), r.TraverseTime.Round(time.Microsecond))
	}
}

// printSteps lists a path. With TraceSummary, consecutive fallthrough steps
// are folded into one line.
func (p *Printer) printSteps(steps []result.Step) {
	skipped := 0
	flush := func() {
		if skipped > 0 {
			fmt.Fprintf(p.w, "  %s\n", p.paint(ansi.Cyan, fmt.Sprintf("... %d instructions", skipped)))
			skipped = 0
		}
	}
	for i, st := range steps {
		last := i == len(steps)-1
		if p.opts.TraceSummary && st.Fallthrough && i > 0 && !last {
			skipped++
			continue
		}
		flush()
		p.printStep(st)
	}
	flush()
}

func (p *Printer) printStep(st result.Step) {
	kind := fmt.Sprintf("%s,%+d", st.Kind, st.Weight)
	if st.Weight > 0 {
		kind = p.paint(ansi.Yellow, kind)
	}
	fmt.Fprintf(p.w, "  %4d  [%d] %04X  %-18s --(%s)--> [%d] %04X\n",
		st.Depth, st.Source, st.PC, st.Instruction, kind, st.Target, st.TargetPC)
	if p.opts.ShowStates && st.State != "" {
		fmt.Fprintf(p.w, "        %s\n", st.State)
	}
}

// topBuckets is how many of the most populated program counters are shown.
const topBuckets = 10

func (p *Printer) printDistribution(d *result.Distribution, byCount bool) {
	if d == nil || d.Count == 0 {
		return
	}
	fmt.Fprintf(p.w, "\n%s: %s samples, min %d, max %d, mean %.2f\n",
		d.Name, humanize.Comma(d.Count), d.Min, d.Max, d.Mean())
	buckets := d.Buckets()
	if byCount {
		slices.SortStableFunc(buckets, func(a, b result.Bucket) bool { return a.Count > b.Count })
		if len(buckets) > topBuckets {
			buckets = buckets[:topBuckets]
		}
		for _, b := range buckets {
			fmt.Fprintf(p.w, "  %04X  %s\n", b.Value, humanize.Comma(b.Count))
		}
		return
	}
	for _, b := range buckets {
		fmt.Fprintf(p.w, "  %6d  %s\n", b.Value, humanize.Comma(b.Count))
	}
}

// StatsHeader is the column header for StatsLine.
func StatsHeader(w io.Writer) {
	fmt.Fprintf(w, "%12s %12s %12s %12s %10s %10s %10s %10s\n",
		"states", "frontier", "explored", "edges", "p.rets", "p.edges", "rets", "retis")
}

// StatsLine prints one progress line.
func StatsLine(w io.Writer, s result.Stats) {
	fmt.Fprintf(w, "%12s %12s %12s %12s %10s %10s %10s %10s\n",
		humanize.Comma(s.States), humanize.Comma(s.Frontier), humanize.Comma(s.Explored),
		humanize.Comma(s.Edges), humanize.Comma(s.PendingReturns), humanize.Comma(s.PendingEdges),
		humanize.Comma(s.Returns), humanize.Comma(s.ReturnInterrupts))
}

// Bytes formats a byte count for humans, e.g. for memory limits.
func Bytes(n uint64) string {
	return humanize.IBytes(n)
}
