package stack

import (
	"bufio"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Dump writes every state and then every edge, both in ID order:
//
//	[id:KIND] PC=.... SREG=... registers
//	[src] --(KIND,w)--> [dst]
//
// The output depends only on the program and the start state.
func (g *Graph) Dump(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for id := StateID(0); int(id) < g.NumStates(); id++ {
		fmt.Fprintf(bw, "[%d:%s] %s\n", id, g.Kind(id), g.State(id))
	}
	for _, e := range g.edges {
		fmt.Fprintf(bw, "[%d] --(%s,%d)--> [%d]\n", e.Source, e.Kind, e.Weight, e.Target)
	}
	return bw.Flush()
}

// Digest is a hash of the Dump output, for comparing two runs.
func (g *Graph) Digest() uint64 {
	d := xxhash.New()
	_ = g.Dump(d)
	return d.Sum64()
}
