// Package contracts holds the types shared across the gate and the drift
// pipeline: decisions, findings, comparator results, check output, and the
// inbound event envelope. Packages lower in the dependency order exchange
// these shapes instead of importing each other.
package contracts

// Decision is the gate outcome ordering: pass < warn < block.
type Decision string

const (
	DecisionPass  Decision = "pass"
	DecisionWarn  Decision = "warn"
	DecisionBlock Decision = "block"
)

var decisionRank = map[Decision]int{
	DecisionPass:  0,
	DecisionWarn:  1,
	DecisionBlock: 2,
}

// Rank returns the severity ordering of d. Unrecognized values rank as pass.
func (d Decision) Rank() int { return decisionRank[d] }

// Valid reports whether d is one of the three decisions.
func (d Decision) Valid() bool {
	_, ok := decisionRank[d]
	return ok
}

// Worst returns the more severe of d and other.
func (d Decision) Worst(other Decision) Decision {
	if other.Rank() > d.Rank() {
		return other
	}
	return d
}

// WorstOf folds Worst over a slice; the empty slice is pass.
func WorstOf(decisions []Decision) Decision {
	out := DecisionPass
	for _, d := range decisions {
		out = out.Worst(d)
	}
	return out
}
