package contracts

// ComparatorStatus is the tri-state outcome of a comparator or condition
// obligation.
type ComparatorStatus string

const (
	StatusPass    ComparatorStatus = "pass"
	StatusFail    ComparatorStatus = "fail"
	StatusUnknown ComparatorStatus = "unknown"
)

// Evidence is one supporting snippet attached to a comparator result. The
// content is redacted before it leaves the comparator.
type Evidence struct {
	Kind    string `json:"kind"` // file, line, check_run, approval, metadata
	Ref     string `json:"ref,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// ComparatorResult is what every comparator returns. Comparators never
// return Go errors to the evaluator; failures surface as StatusUnknown with
// a reason code.
type ComparatorResult struct {
	Status     ComparatorStatus `json:"status"`
	ReasonCode string           `json:"reason_code,omitempty"`
	Message    string           `json:"message,omitempty"`
	Evidence   []Evidence       `json:"evidence,omitempty"`
}

// Reason codes shared across comparators.
const (
	ReasonSecretDetected = "SECRET_DETECTED"
	ReasonCancelled      = "CANCELLED"
	ReasonTimeout        = "TIMEOUT"
	ReasonBudget         = "BUDGET_EXCEEDED"
	ReasonNotFound       = "NOT_FOUND"
	ReasonUnknownFact    = "UNKNOWN_FACT"
	ReasonBadParams      = "BAD_PARAMS"
)

// Finding records the evaluation of one obligation within a rule.
type Finding struct {
	RuleID         string            `json:"rule_id"`
	RuleName       string            `json:"rule_name"`
	ObligationIdx  int               `json:"obligation_idx"`
	Status         ComparatorStatus  `json:"status"`
	ReasonCode     string            `json:"reason_code,omitempty"`
	Message        string            `json:"message,omitempty"`
	Decision       Decision          `json:"decision"`
	DecisionOnFail Decision          `json:"decision_on_fail"`
	Evidence       []Evidence        `json:"evidence,omitempty"`
	Severity       string            `json:"severity,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// CheckConclusion is the public conclusion vocabulary of the host's check
// API.
type CheckConclusion string

const (
	ConclusionSuccess        CheckConclusion = "success"
	ConclusionFailure        CheckConclusion = "failure"
	ConclusionNeutral        CheckConclusion = "neutral"
	ConclusionActionRequired CheckConclusion = "action_required"
)

// CheckOutput is the gate's public artifact, posted back to the host.
type CheckOutput struct {
	Name       string          `json:"name"`
	Conclusion CheckConclusion `json:"conclusion"`
	Title      string          `json:"title"`
	Summary    string          `json:"summary"`
	Text       string          `json:"text"`
}
