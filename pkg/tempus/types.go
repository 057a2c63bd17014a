package tempus

import (
	"fmt"
	"strings"
)

// OverlapPolicy controls concurrent executions of the same entry.
type OverlapPolicy int

const (
	// OverlapAllow places no restriction on concurrent executions.
	OverlapAllow OverlapPolicy = iota
	// OverlapSkip drops a dispatch while an execution of the entry is active.
	OverlapSkip
	// OverlapWait serializes executions of the entry.
	OverlapWait
)

func (p OverlapPolicy) String() string {
	switch p {
	case OverlapAllow:
		return "allow"
	case OverlapSkip:
		return "skip"
	case OverlapWait:
		return "wait"
	default:
		return fmt.Sprintf("OverlapPolicy(%d)", int(p))
	}
}

func (p OverlapPolicy) valid() bool {
	return p == OverlapAllow || p == OverlapSkip || p == OverlapWait
}

// ParseOverlapPolicy parses "allow", "skip" or "wait" (case-insensitive).
// An empty string means OverlapAllow.
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "allow":
		return OverlapAllow, nil
	case "skip":
		return OverlapSkip, nil
	case "wait":
		return OverlapWait, nil
	default:
		return OverlapAllow, fmt.Errorf("tempus: unknown overlap policy %q (use allow, skip or wait)", s)
	}
}

// Kind is the resolved form of a pattern.
type Kind int

const (
	KindImmediate Kind = iota
	KindOnce
	KindRecurring
)

func (k Kind) String() string {
	switch k {
	case KindImmediate:
		return "immediate"
	case KindOnce:
		return "once"
	case KindRecurring:
		return "recurring"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Due is the result of Entry.NeedsExecuting.
type Due int

const (
	DueNotYet Due = iota
	DueNow
	// DueExhausted means the entry has no further occurrences.
	DueExhausted
)

func (d Due) String() string {
	switch d {
	case DueNotYet:
		return "not-yet"
	case DueNow:
		return "now"
	case DueExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("Due(%d)", int(d))
	}
}
