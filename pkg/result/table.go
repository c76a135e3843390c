package result

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Distribution is a histogram of integer samples, e.g. the number of distinct
// states recorded per program counter.
type Distribution struct {
	mu     sync.Mutex
	Name   string        `json:"name"`
	Counts map[int]int64 `json:"counts"`
	Count  int64         `json:"count"`
	Total  int64         `json:"total"`
	Min    int           `json:"min"`
	Max    int           `json:"max"`
}

// Bucket is one histogram entry.
type Bucket struct {
	Value int
	Count int64
}

// NewDistribution creates an empty distribution.
func NewDistribution(name string) *Distribution {
	return &Distribution{Name: name, Counts: make(map[int]int64)}
}

// Record adds one sample.
func (d *Distribution) Record(v int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Count == 0 || v < d.Min {
		d.Min = v
	}
	if d.Count == 0 || v > d.Max {
		d.Max = v
	}
	d.Counts[v]++
	d.Count++
	d.Total += int64(v)
}

// Mean returns the average sample, or 0 for an empty distribution.
func (d *Distribution) Mean() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Count == 0 {
		return 0
	}
	return float64(d.Total) / float64(d.Count)
}

// Buckets returns the histogram sorted by value.
func (d *Distribution) Buckets() []Bucket {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := maps.Keys(d.Counts)
	slices.Sort(keys)
	out := make([]Bucket, len(keys))
	for i, k := range keys {
		out[i] = Bucket{Value: k, Count: d.Counts[k]}
	}
	return out
}

// Len returns the number of distinct sample values.
func (d *Distribution) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Counts)
}
