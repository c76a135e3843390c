package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/oisee/avrstack/pkg/config"
	"github.com/oisee/avrstack/pkg/program"
)

// options shared by the commands that load a program.
type options struct {
	configFile string
	logLevel   string
	indirect   []string
}

func (o *options) flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("program", pflag.ExitOnError)
	fs.StringVarP(&o.configFile, "config", "c", "", "YAML configuration file")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	fs.StringArrayVar(&o.indirect, "indirect", nil, "Indirect targets as SITE=T1,T2,... (repeatable)")
	return fs
}

// load reads the configuration and the program, sets up logging and applies
// the indirect-target annotations of both.
func (o *options) load(path string) (*config.Config, *program.Program, *logrus.Logger, error) {
	cfg := config.NewDefault()
	if o.configFile != "" {
		var err error
		if cfg, err = config.Load(o.configFile); err != nil {
			return nil, nil, nil, err
		}
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	lvl, err := cfg.Level()
	if err != nil {
		return nil, nil, nil, err
	}
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(lvl)

	for _, spec := range o.indirect {
		is, err := parseIndirect(spec)
		if err != nil {
			return nil, nil, nil, err
		}
		cfg.IndirectTargets = append(cfg.IndirectTargets, is)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := program.Assemble(string(src))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Annotate(p); err != nil {
		return nil, nil, nil, err
	}
	log.WithFields(logrus.Fields{
		"file":         path,
		"instructions": p.Len(),
		"end":          fmt.Sprintf("%04X", p.End()),
	}).Debug("program loaded")
	return cfg, p, log, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "avrstack",
		Short:         "Static worst-case stack depth analysis for AVR programs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(analyzeCmd(), dumpCmd(), disasmCmd(), selfcheckCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "avrstack:", err)
		os.Exit(1)
	}
}
