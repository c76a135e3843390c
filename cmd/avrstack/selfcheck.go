package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/oisee/avrstack/pkg/verify"
)

// quickSamples is how many operand samples --quick keeps.
const quickSamples = 8

func selfcheckCmd() *cobra.Command {
	var (
		workers  int
		quick    bool
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "selfcheck",
		Short: "Check the abstract instruction semantics against a concrete reference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			log := logrus.New()
			log.SetOutput(os.Stderr)
			log.SetLevel(lvl)

			cfg := verify.Config{NumWorkers: workers, Logger: log}
			if quick {
				cfg.Samples = verify.DefaultSamples[:quickSamples]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			rep, err := verify.Run(ctx, cfg)
			if err != nil {
				return err
			}
			fmt.Printf("Checked %s cases (%s concrete inputs) in %s\n",
				humanize.Comma(rep.Cases), humanize.Comma(rep.Concretizations), rep.Elapsed)
			for _, c := range rep.Counterexamples {
				fmt.Println("  " + c.String())
			}
			if n := len(rep.Counterexamples); n > 0 {
				return fmt.Errorf("%d counterexamples", n)
			}
			fmt.Println("No counterexamples")
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&workers, "workers", "w", 0, "Number of workers (0 = all CPUs)")
	f.BoolVar(&quick, "quick", false, "Check a reduced operand lattice")
	f.StringVar(&logLevel, "log-level", "info", "Log level")
	return cmd
}
