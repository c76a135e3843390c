package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/oisee/avrstack/pkg/config"
	"github.com/oisee/avrstack/pkg/report"
	"github.com/oisee/avrstack/pkg/result"
	"github.com/oisee/avrstack/pkg/stack"
)

// headerEvery is the number of progress lines between column headers.
const headerEvery = 10

func analyzeCmd() *cobra.Command {
	var (
		opts         options
		maxStates    int
		memoryLimit  string
		vectorSize   int
		jsonOut      string
		dumpOut      string
		snapshot     string
		monitor      bool
		noPath       bool
		traceSummary bool
		showStates   bool
	)
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Compute the maximum stack depth of an assembly program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, p, log, err := opts.load(args[0])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("max-states") {
				cfg.MaxStates = maxStates
			}
			if flags.Changed("memory-limit") {
				cfg.MemoryLimit = memoryLimit
			}
			if flags.Changed("vector-size") {
				cfg.VectorSize = vectorSize
			}
			if flags.Changed("trace-summary") {
				cfg.TraceSummary = traceSummary
			}
			if noPath {
				cfg.ShowPath = false
			}
			sc, err := cfg.StackConfig(log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a := stack.New(p, sc)
			rep, err := run(ctx, a, cfg, monitor)
			if err != nil {
				return err
			}
			rep.Program = args[0]

			report.New(os.Stdout, report.Options{
				ShowPath:     cfg.ShowPath,
				TraceSummary: cfg.TraceSummary,
				ShowStates:   showStates,
				Color:        true,
			}).Print(rep)

			if jsonOut != "" {
				if err := writeFile(jsonOut, rep.WriteJSON); err != nil {
					return err
				}
				fmt.Printf("Report written to %s\n", jsonOut)
			}
			if dumpOut != "" {
				if err := writeFile(dumpOut, a.Graph().Dump); err != nil {
					return err
				}
				fmt.Printf("Graph written to %s (digest %016x)\n", dumpOut, a.Graph().Digest())
			}
			if snapshot != "" && (rep.Outcome == result.Exhausted || rep.Outcome == result.Stopped) {
				if err := result.SaveSnapshot(snapshot, rep); err != nil {
					return err
				}
				fmt.Printf("Partial results saved to %s\n", snapshot)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.AddFlagSet(opts.flags())
	f.IntVar(&maxStates, "max-states", 0, "Stop after this many states (0 = unlimited)")
	f.StringVar(&memoryLimit, "memory-limit", "", "Stop when the heap exceeds this size, e.g. 2GiB")
	f.IntVar(&vectorSize, "vector-size", 4, "Bytes per interrupt vector")
	f.StringVarP(&jsonOut, "output", "o", "", "Write the report as JSON")
	f.StringVar(&dumpOut, "dump", "", "Write the state graph (zstd-compressed if the name ends in .zst)")
	f.StringVar(&snapshot, "snapshot", "", "Save partial results here when the analysis does not finish")
	f.BoolVarP(&monitor, "monitor", "m", false, "Print progress while analyzing")
	f.BoolVar(&noPath, "no-path", false, "Do not print the witness path")
	f.BoolVar(&traceSummary, "trace-summary", false, "Fold fallthrough steps of the path")
	f.BoolVar(&showStates, "states", false, "Print the abstract state of every path step")
	return cmd
}

// run executes the analysis, with a progress monitor next to it when asked.
func run(ctx context.Context, a *stack.Analyzer, cfg *config.Config, monitor bool) (*result.Report, error) {
	if !monitor {
		return a.Run(ctx)
	}
	var rep *result.Report
	mctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(mctx)
	g.Go(func() error {
		defer cancel()
		var err error
		rep, err = a.Run(ctx)
		return err
	})
	g.Go(func() error {
		lines := 0
		a.Monitor(gctx, cfg.MonitorInterval, func(s result.Stats) {
			if lines%headerEvery == 0 {
				report.StatsHeader(os.Stderr)
			}
			report.StatsLine(os.Stderr, s)
			lines++
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rep, nil
}

// writeFile creates path and hands it to write, compressing with zstd for .zst names.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var w io.Writer = f
	var zw *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		if zw, err = zstd.NewWriter(f); err != nil {
			return err
		}
		w = zw
	}
	if err := write(w); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return err
		}
	}
	return f.Close()
}

// parseIndirect parses SITE=T1,T2,...
func parseIndirect(s string) (config.IndirectSpec, error) {
	site, list, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(site) == "" {
		return config.IndirectSpec{}, fmt.Errorf("bad --indirect %q, want SITE=T1,T2", s)
	}
	spec := config.IndirectSpec{Site: strings.TrimSpace(site)}
	for _, t := range strings.Split(list, ",") {
		if t = strings.TrimSpace(t); t != "" {
			spec.Targets = append(spec.Targets, t)
		}
	}
	return spec, nil
}
