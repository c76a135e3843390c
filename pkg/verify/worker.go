package verify

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/oisee/avrstack/pkg/cpu"
	"github.com/oisee/avrstack/pkg/inst"
)

// Config holds self-check configuration.
type Config struct {
	Ops        []inst.OpCode // defaults to Ops()
	Samples    []cpu.Value   // defaults to DefaultSamples
	NumWorkers int           // defaults to NumCPU
	Logger     logrus.FieldLogger
}

// Report summarizes a self-check run.
type Report struct {
	Cases           int64
	Concretizations int64
	Counterexamples []Counterexample
	Elapsed         time.Duration
}

// pool checks cases in parallel.
type pool struct {
	mu      sync.Mutex
	found   []Counterexample
	checked atomic.Int64
	concr   atomic.Int64
}

// Run checks every case built from cfg. Only ctx cancellation is an error;
// soundness failures are reported as counterexamples.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if len(cfg.Ops) == 0 {
		cfg.Ops = Ops()
	}
	if len(cfg.Samples) == 0 {
		cfg.Samples = DefaultSamples
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = runtime.NumCPU()
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	start := time.Now()
	cases := Cases(cfg.Ops, cfg.Samples)
	log.WithFields(logrus.Fields{
		"ops": len(cfg.Ops), "cases": len(cases), "workers": cfg.NumWorkers,
	}).Info("checking transfer functions")

	p := &pool{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.NumWorkers)
	for _, c := range cases {
		c := c
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cx, n := Check(c)
			p.checked.Add(1)
			p.concr.Add(n)
			if cx != nil {
				log.WithField("case", inst.Disassemble(c.In)).Warn(cx.String())
				p.mu.Lock()
				p.found = append(p.found, *cx)
				p.mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rep := &Report{
		Cases:           p.checked.Load(),
		Concretizations: p.concr.Load(),
		Counterexamples: p.found,
		Elapsed:         time.Since(start),
	}
	log.WithFields(logrus.Fields{
		"cases":           rep.Cases,
		"concretizations": rep.Concretizations,
		"counterexamples": len(rep.Counterexamples),
		"elapsed":         rep.Elapsed.Round(time.Millisecond),
	}).Info("self-check done")
	return rep, nil
}
