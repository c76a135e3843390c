package stack

import "errors"

// ErrNoIndirectTargets is returned when an ICALL, EICALL, IJMP or EIJMP has no
// target annotation. Continuing would make the bound unsound.
var ErrNoIndirectTargets = errors.New("no indirect targets for indirect call or jump")
