package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/oisee/avrstack/pkg/program"
)

func TestParseIndirect(t *testing.T) {
	tests := []struct {
		in      string
		site    string
		targets []string
		ok      bool
	}{
		{"dispatch=f,g", "dispatch", []string{"f", "g"}, true},
		{" 0x0004 = 0x10 , h ,", "0x0004", []string{"0x10", "h"}, true},
		{"site=", "site", nil, true},
		{"nosite", "", nil, false},
		{"=f", "", nil, false},
	}
	for _, tc := range tests {
		spec, err := parseIndirect(tc.in)
		if (err == nil) != tc.ok {
			t.Errorf("parseIndirect(%q) err = %v", tc.in, err)
			continue
		}
		if !tc.ok {
			continue
		}
		if spec.Site != tc.site || strings.Join(spec.Targets, " ") != strings.Join(tc.targets, " ") {
			t.Errorf("parseIndirect(%q) = %+v", tc.in, spec)
		}
	}
}

func TestListing(t *testing.T) {
	p, err := program.Assemble(`
main: ICALL
      RJMP main
f:    RET
`)
	if err != nil {
		t.Fatal(err)
	}
	p.SetIndirectTargets(0, []uint16{0x0004})
	var buf bytes.Buffer
	listing(&buf, p)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if lines[0] != "main:" || lines[3] != "f:" {
		t.Errorf("labels misplaced:\n%s", buf.String())
	}
	if !strings.HasPrefix(lines[1], "  0000  ICALL") || !strings.HasSuffix(lines[1], "; -> 0004") {
		t.Errorf("line 1 = %q", lines[1])
	}
	if !strings.HasPrefix(lines[4], "  0004  RET") {
		t.Errorf("line 4 = %q", lines[4])
	}
}
