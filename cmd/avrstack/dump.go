package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oisee/avrstack/pkg/inst"
	"github.com/oisee/avrstack/pkg/stack"
)

func dumpCmd() *cobra.Command {
	var (
		opts   options
		out    string
		digest bool
	)
	cmd := &cobra.Command{
		Use:   "dump FILE",
		Short: "Build the state graph and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, p, log, err := opts.load(args[0])
			if err != nil {
				return err
			}
			sc, err := cfg.StackConfig(log)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a := stack.New(p, sc)
			rep, err := a.Run(ctx)
			if err != nil {
				return err
			}
			g := a.Graph()
			if digest {
				fmt.Printf("%016x  %d states  %d edges  %s\n", g.Digest(), g.NumStates(), g.NumEdges(), rep.Outcome)
				return nil
			}
			if out == "" {
				return g.Dump(os.Stdout)
			}
			return writeFile(out, g.Dump)
		},
	}
	f := cmd.Flags()
	f.AddFlagSet(opts.flags())
	f.StringVarP(&out, "output", "o", "", "Write to FILE instead of stdout (zstd-compressed if the name ends in .zst)")
	f.BoolVar(&digest, "digest", false, "Only print a hash of the graph")
	return cmd
}

func disasmCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "disasm FILE",
		Short: "Assemble a program and list it with addresses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, p, _, err := opts.load(args[0])
			if err != nil {
				return err
			}
			listing(os.Stdout, p)
			return nil
		},
	}
	cmd.Flags().AddFlagSet(opts.flags())
	return cmd
}

// lister is the part of *program.Program a listing needs.
type lister interface {
	Each(fn func(pc uint16, in inst.Instruction))
	LabelsAt(pc uint16) []string
	IndirectTargets(pc uint16) ([]uint16, bool)
}

func listing(w io.Writer, p lister) {
	p.Each(func(pc uint16, in inst.Instruction) {
		for _, l := range p.LabelsAt(pc) {
			fmt.Fprintf(w, "%s:\n", l)
		}
		line := fmt.Sprintf("  %04X  %s", pc, inst.Disassemble(in))
		if ts, ok := p.IndirectTargets(pc); ok {
			hex := make([]string, len(ts))
			for i, t := range ts {
				hex[i] = fmt.Sprintf("%04X", t)
			}
			line = fmt.Sprintf("%-32s; -> %s", line, strings.Join(hex, " "))
		}
		fmt.Fprintln(w, line)
	})
}
