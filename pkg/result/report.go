// Package result holds the outcome of a stack analysis: the bound, the witness
// path, statistics and timings, plus JSON and gob encodings for them.
package result

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Outcome classifies how an analysis ended.
type Outcome uint8

const (
	Bounded   Outcome = iota // every path has finite stack use; Depth is the maximum
	Unbounded                // a reachable cycle grows the stack
	Exhausted                // state or memory budget ran out
	Stopped                  // the caller cancelled the analysis
)

var outcomeNames = [...]string{"bounded", "unbounded", "exhausted", "stopped"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", o)
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(b []byte) error {
	for i, n := range outcomeNames {
		if n == string(b) {
			*o = Outcome(i)
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}

// Stats are point-in-time analyzer counters.
type Stats struct {
	States           int64 `json:"states"`
	Frontier         int64 `json:"frontier"`
	Explored         int64 `json:"explored"`
	Edges            int64 `json:"edges"`
	PendingReturns   int64 `json:"pending_returns"`
	PendingEdges     int64 `json:"pending_edges"`
	Returns          int64 `json:"returns"`
	ReturnInterrupts int64 `json:"return_interrupts"`
	CyclicRegions    int   `json:"cyclic_regions"`
}

// Step is one edge of a witness path.
type Step struct {
	Depth       int    `json:"depth"` // stack depth before taking the edge
	Source      int    `json:"source"`
	Target      int    `json:"target"`
	PC          uint16 `json:"pc"`
	TargetPC    uint16 `json:"target_pc"`
	Kind        string `json:"kind"`
	Weight      int    `json:"weight"`
	Instruction string `json:"instruction,omitempty"`
	State       string `json:"state,omitempty"`
	Fallthrough bool   `json:"fallthrough,omitempty"` // weight 0 and target is the next instruction
}

// Report is the result of one analysis run.
type Report struct {
	Program string  `json:"program,omitempty"`
	Outcome Outcome `json:"outcome"`
	Depth   int     `json:"depth"`

	// Path is the maximal path for Bounded, or the prefix from the start state
	// to the first state of Cycle for Unbounded.
	Path  []Step `json:"path,omitempty"`
	Cycle []Step `json:"cycle,omitempty"`

	Stats          Stats         `json:"stats"`
	ReturnSetSizes *Distribution `json:"return_set_sizes,omitempty"`
	StatesPerPC    *Distribution `json:"states_per_pc,omitempty"`

	BuildTime    time.Duration `json:"build_time"`
	TraverseTime time.Duration `json:"traverse_time"`
}

// CycleWeight sums the weights of the unbounded cycle.
func (r *Report) CycleWeight() int {
	w := 0
	for _, s := range r.Cycle {
		w += s.Weight
	}
	return w
}

// WriteJSON encodes r as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// ReadJSON decodes a report written by WriteJSON.
func ReadJSON(rd io.Reader) (*Report, error) {
	var r Report
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}
