// Package config reads the analyzer's YAML configuration file.
//
// A configuration looks like:
//
//	log-level: info
//	max-states: 2000000
//	memory-limit: 4GiB
//	vector-size: 4
//	monitor-interval: 2s
//	show-path: true
//	indirect-targets:
//	  - site: dispatch
//	    targets: [handler_a, handler_b, 0x0200]
//
// Addresses are labels of the assembled program or numbers.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/oisee/avrstack/pkg/program"
	"github.com/oisee/avrstack/pkg/stack"
)

// DefaultMonitorInterval is how often the CLI prints progress.
const DefaultMonitorInterval = time.Second

// Config is the contents of a configuration file.
type Config struct {
	sourceFile string

	Options `yaml:",inline"`

	// IndirectTargets annotates ICALL/IJMP/EICALL/EIJMP sites.
	IndirectTargets []IndirectSpec `yaml:"indirect-targets"`
}

// Options are the scalar settings.
type Options struct {
	LogLevel        string        `yaml:"log-level"`
	MaxStates       int           `yaml:"max-states"`
	MemoryLimit     string        `yaml:"memory-limit"`
	ReserveBytes    string        `yaml:"reserve-bytes"`
	VectorSize      int           `yaml:"vector-size"`
	MonitorInterval time.Duration `yaml:"monitor-interval"`
	ShowPath        bool          `yaml:"show-path"`
	TraceSummary    bool          `yaml:"trace-summary"`
}

// IndirectSpec lists the possible destinations of one indirect transfer.
type IndirectSpec struct {
	Site    string   `yaml:"site"`
	Targets []string `yaml:"targets"`
}

// NewDefault returns the configuration used without a file.
func NewDefault() *Config {
	return &Config{
		Options: Options{
			LogLevel:        "info",
			VectorSize:      4,
			MonitorInterval: DefaultMonitorInterval,
			ShowPath:        true,
		},
	}
}

// Load reads a configuration from a file.
func Load(filename string) (*Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	cfg.sourceFile = filename
	return cfg, nil
}

// Parse decodes a configuration and applies defaults to unset fields.
func Parse(b []byte) (*Config, error) {
	cfg := NewDefault()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.VectorSize <= 0 {
		cfg.VectorSize = 4
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = DefaultMonitorInterval
	}
	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	if _, err := parseBytes(cfg.MemoryLimit); err != nil {
		return nil, fmt.Errorf("memory-limit: %w", err)
	}
	if _, err := parseBytes(cfg.ReserveBytes); err != nil {
		return nil, fmt.Errorf("reserve-bytes: %w", err)
	}
	for i, spec := range cfg.IndirectTargets {
		if spec.Site == "" {
			return nil, fmt.Errorf("indirect-targets[%d]: missing site", i)
		}
	}
	return cfg, nil
}

// SourceFile returns the file the configuration was loaded from, if any.
func (c *Config) SourceFile() string { return c.sourceFile }

// Level returns the logrus level named by log-level.
func (c *Config) Level() (logrus.Level, error) {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return 0, fmt.Errorf("log-level: %w", err)
	}
	return lvl, nil
}

// StackConfig converts the options into analyzer settings.
func (c *Config) StackConfig(log logrus.FieldLogger) (stack.Config, error) {
	mem, err := parseBytes(c.MemoryLimit)
	if err != nil {
		return stack.Config{}, fmt.Errorf("memory-limit: %w", err)
	}
	reserve, err := parseBytes(c.ReserveBytes)
	if err != nil {
		return stack.Config{}, fmt.Errorf("reserve-bytes: %w", err)
	}
	sc := stack.DefaultConfig()
	sc.VectorSize = c.VectorSize
	sc.MaxStates = c.MaxStates
	sc.MemoryLimit = mem
	if c.ReserveBytes != "" {
		sc.ReserveBytes = int(reserve)
		if reserve == 0 {
			sc.ReserveBytes = -1
		}
	}
	sc.Logger = log
	return sc, nil
}

// Annotate resolves the indirect-target annotations against p's labels and
// records them on p.
func (c *Config) Annotate(p *program.Program) error {
	for _, spec := range c.IndirectTargets {
		site, err := p.Resolve(spec.Site)
		if err != nil {
			return fmt.Errorf("indirect-targets site: %w", err)
		}
		targets := make([]uint16, 0, len(spec.Targets))
		for _, t := range spec.Targets {
			a, err := p.Resolve(t)
			if err != nil {
				return fmt.Errorf("indirect-targets of %s: %w", spec.Site, err)
			}
			targets = append(targets, a)
		}
		p.SetIndirectTargets(site, targets)
	}
	return nil
}

// parseBytes accepts sizes like "512MiB", "4GB" or a plain byte count; the
// empty string means 0.
func parseBytes(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return humanize.ParseBytes(s)
}
