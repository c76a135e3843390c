package stack

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/oisee/avrstack/pkg/cpu"
)

// Config holds analyzer configuration.
type Config struct {
	VectorSize   int    // bytes between interrupt vectors (default 4)
	MaxStates    int    // explored-state budget, 0 for unlimited
	MemoryLimit  uint64 // heap budget in bytes, 0 for unlimited
	ReserveBytes int    // buffer released when a budget runs out (default 1 MiB)
	CheckEvery   int    // explored states between budget checks (default 4096)
	Logger       logrus.FieldLogger
}

// DefaultConfig returns the configuration used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		VectorSize:   cpu.DefaultVectorSize,
		ReserveBytes: 1 << 20,
		CheckEvery:   4096,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.VectorSize <= 0 {
		c.VectorSize = d.VectorSize
	}
	if c.ReserveBytes < 0 {
		c.ReserveBytes = 0
	} else if c.ReserveBytes == 0 {
		c.ReserveBytes = d.ReserveBytes
	}
	if c.CheckEvery <= 0 {
		c.CheckEvery = d.CheckEvery
	}
	if c.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.Logger = l
	}
	return c
}
