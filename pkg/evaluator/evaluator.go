package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vertaai/driftgate/pkg/artifact"
	"github.com/vertaai/driftgate/pkg/budget"
	"github.com/vertaai/driftgate/pkg/comparators"
	"github.com/vertaai/driftgate/pkg/condition"
	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/facts"
	"github.com/vertaai/driftgate/pkg/pack"
	"github.com/vertaai/driftgate/pkg/prcontext"
)

// Engine evaluates pack sets. It is safe for concurrent use; all mutable
// state lives in per-evaluation objects.
type Engine struct {
	registry  *comparators.Registry
	celEnv    *cel.Env
	checkName string
	clock     func() time.Time

	evalDuration metric.Float64Histogram
	decisions    metric.Int64Counter
}

// DefaultCheckName is the published check-run name.
const DefaultCheckName = "VertaAI Policy Pack"

// NewEngine builds an engine over a sealed comparator registry.
func NewEngine(registry *comparators.Registry) (*Engine, error) {
	env, err := whenEnv()
	if err != nil {
		return nil, err
	}
	meter := otel.Meter("driftgate/evaluator")
	evalDuration, err := meter.Float64Histogram("driftgate.evaluation.duration",
		metric.WithUnit("ms"), metric.WithDescription("Pack set evaluation wall clock"))
	if err != nil {
		return nil, err
	}
	decisions, err := meter.Int64Counter("driftgate.evaluation.decisions",
		metric.WithDescription("Global decisions by outcome"))
	if err != nil {
		return nil, err
	}
	return &Engine{
		registry:     registry,
		celEnv:       env,
		checkName:    DefaultCheckName,
		clock:        time.Now,
		evalDuration: evalDuration,
		decisions:    decisions,
	}, nil
}

// WithCheckName overrides the published check name.
func (e *Engine) WithCheckName(name string) *Engine {
	e.checkName = name
	return e
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Request is one evaluation's inputs. Host may be nil when no comparator in
// the selected packs needs repository access.
type Request struct {
	PR        *prcontext.PRContext
	Packs     []*pack.Pack // selection order: priority desc, packId asc
	Workspace pack.Defaults
	Budget    budget.Limits
	Fetcher   *artifact.Fetcher
	Agents    []string
}

// EvaluateAll runs every selected pack and aggregates the global decision
// plus the check output. It always returns a usable Result: total failure
// yields a neutral check explaining the error.
func (e *Engine) EvaluateAll(ctx context.Context, req Request) *Result {
	started := e.clock()
	tracer := otel.Tracer("driftgate/evaluator")
	ctx, span := tracer.Start(ctx, "EvaluateAll")
	defer span.End()

	result := &Result{
		StartedAt:        started,
		EvaluatorVersion: Version,
	}

	conflicts, suppressed := resolveConflicts(req.Packs)
	result.Conflicts = conflicts

	b := budget.New(req.Budget)
	scope, cancel := b.Scope(ctx)
	defer cancel()

	env := &comparators.Env{PR: req.PR, Fetcher: req.Fetcher, AgentLogins: req.Agents}
	resolver := facts.NewResolver(req.PR, facts.GateLookupFromPR(req.PR))
	activation := whenActivation(req.PR)

	for _, p := range req.Packs {
		pr := e.evaluatePack(scope, p, req.Workspace, b, env, resolver, activation, suppressed)
		result.PerPack = append(result.PerPack, *pr)
	}

	trueDecisions := make([]contracts.Decision, 0, len(result.PerPack))
	reported := make([]contracts.Decision, 0, len(result.PerPack))
	for _, pr := range result.PerPack {
		trueDecisions = append(trueDecisions, pr.Decision)
		reported = append(reported, pr.ReportedDecision)
	}
	for _, f := range conflictFindings(conflicts) {
		trueDecisions = append(trueDecisions, f.Decision)
		reported = append(reported, f.Decision)
	}
	result.GlobalDecision = contracts.WorstOf(trueDecisions)
	result.ReportedDecision = contracts.WorstOf(reported)
	result.Duration = e.clock().Sub(started)

	result.Check = e.renderCheck(result)

	e.evalDuration.Record(ctx, float64(result.Duration.Milliseconds()))
	e.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decision", string(result.GlobalDecision)),
	))
	return result
}

// evaluatePack walks one pack's rules in declared order.
func (e *Engine) evaluatePack(
	ctx context.Context,
	p *pack.Pack,
	workspace pack.Defaults,
	b *budget.Budget,
	env *comparators.Env,
	resolver condition.Resolver,
	activation map[string]interface{},
	suppressed map[string]string,
) *PackResult {
	hash, err := pack.Hash(p)
	if err != nil {
		hash = "unhashable"
	}
	result := &PackResult{
		PackID:   p.Metadata.ID,
		PackName: p.Metadata.Name,
		Hash:     hash,
		Mode:     p.Metadata.Mode,
		Decision: contracts.DecisionPass,
	}
	defaults := pack.MergeDefaults(workspace, p.Defaults)

	for i := range p.Rules {
		rule := &p.Rules[i]
		outcome := RuleOutcome{RuleID: rule.ID, RuleName: rule.Name, Decision: contracts.DecisionPass}

		if note, ok := suppressed[p.Metadata.ID+"/"+rule.ID]; ok {
			outcome.Skipped = true
			outcome.SkipNote = note
			result.Rules = append(result.Rules, outcome)
			continue
		}
		if !rule.IsEnabled() || !triggerMatches(rule, env.PR) {
			result.Rules = append(result.Rules, outcome)
			continue
		}
		if rule.When != "" && !e.whenFires(rule.When, activation) {
			result.Rules = append(result.Rules, outcome)
			continue
		}
		if rule.SkipIf != nil && rule.SkipIf.Evaluate(resolver) == condition.True {
			outcome.Skipped = true
			outcome.SkipNote = "skipIf matched"
			result.Rules = append(result.Rules, outcome)
			continue
		}

		outcome.Triggered = true
		result.RulesTriggered++
		for idx := range rule.Obligations {
			finding := e.evaluateObligation(ctx, rule, idx, &rule.Obligations[idx], defaults, b, env, resolver)
			outcome.Findings = append(outcome.Findings, finding)
			result.Findings = append(result.Findings, finding)
			outcome.Decision = outcome.Decision.Worst(finding.Decision)
		}
		result.Decision = result.Decision.Worst(outcome.Decision)
		result.Rules = append(result.Rules, outcome)
	}

	// Observe mode computes the true decision but reports pass.
	result.ReportedDecision = result.Decision
	if p.Metadata.Mode == pack.ModeObserve {
		result.ReportedDecision = contracts.DecisionPass
	}
	return result
}

func (e *Engine) whenFires(expr string, activation map[string]interface{}) bool {
	ast, issues := e.celEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return false
	}
	prg, err := e.celEnv.Program(ast)
	if err != nil {
		return false
	}
	return evalWhen(prg, activation)
}

// evaluateObligation runs one comparator or condition and maps the
// tri-state status to a decision. Failed obligations take decisionOnFail;
// unknown takes decisionOnUnknown, defaulting to decisionOnFail (or the
// merged defaults when the pack sets one).
func (e *Engine) evaluateObligation(
	ctx context.Context,
	rule *pack.Rule,
	idx int,
	ob *pack.Obligation,
	defaults pack.Defaults,
	b *budget.Budget,
	env *comparators.Env,
	resolver condition.Resolver,
) contracts.Finding {
	finding := contracts.Finding{
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		ObligationIdx:  idx,
		DecisionOnFail: ob.DecisionOnFail,
		Severity:       ob.Severity,
	}
	if finding.Severity == "" {
		finding.Severity = defaults.Severity
	}

	var res contracts.ComparatorResult
	switch {
	case ob.Comparator != nil:
		res = e.runComparator(ctx, ob.Comparator, b, env)
	case ob.Condition != nil:
		switch ob.Condition.Evaluate(resolver) {
		case condition.True:
			res = contracts.ComparatorResult{Status: contracts.StatusPass, Message: "condition satisfied"}
		case condition.False:
			res = contracts.ComparatorResult{Status: contracts.StatusFail, ReasonCode: "CONDITION_NOT_MET", Message: conditionMessage(ob.Condition)}
		default:
			res = contracts.ComparatorResult{Status: contracts.StatusUnknown, ReasonCode: contracts.ReasonUnknownFact, Message: conditionMessage(ob.Condition)}
		}
	default:
		res = contracts.ComparatorResult{Status: contracts.StatusUnknown, ReasonCode: contracts.ReasonBadParams, Message: "obligation has no comparator or condition"}
	}

	finding.Status = res.Status
	finding.ReasonCode = res.ReasonCode
	finding.Message = res.Message
	finding.Evidence = res.Evidence

	switch res.Status {
	case contracts.StatusPass:
		finding.Decision = contracts.DecisionPass
	case contracts.StatusFail:
		finding.Decision = ob.DecisionOnFail
	default:
		finding.Decision = decisionOnUnknown(ob, defaults)
	}
	return finding
}

func decisionOnUnknown(ob *pack.Obligation, defaults pack.Defaults) contracts.Decision {
	if ob.DecisionOnUnknown != "" {
		return ob.DecisionOnUnknown
	}
	if defaults.DecisionOnUnknown != "" {
		return defaults.DecisionOnUnknown
	}
	return ob.DecisionOnFail
}

// runComparator executes one comparator under the per-comparator timeout.
// The timeout belongs to the evaluator, not the comparator: a comparator
// that overruns is abandoned and its obligation reports unknown.
func (e *Engine) runComparator(ctx context.Context, ref *pack.ComparatorRef, b *budget.Budget, env *comparators.Env) contracts.ComparatorResult {
	fn, ok := e.registry.Lookup(ref.ID)
	if !ok {
		return contracts.ComparatorResult{
			Status:     contracts.StatusUnknown,
			ReasonCode: contracts.ReasonNotFound,
			Message:    fmt.Sprintf("comparator %q not registered", ref.ID),
		}
	}
	if err := ctx.Err(); err != nil {
		return contracts.ComparatorResult{
			Status:     contracts.StatusUnknown,
			ReasonCode: contracts.ReasonCancelled,
			Message:    "evaluation cancelled before comparator ran",
		}
	}

	compCtx, cancel := b.ComparatorScope(ctx)
	defer cancel()

	done := make(chan contracts.ComparatorResult, 1)
	go func() {
		done <- fn(compCtx, env, ref.Params)
	}()
	select {
	case res := <-done:
		return res
	case <-compCtx.Done():
		reason := contracts.ReasonTimeout
		if ctx.Err() != nil {
			reason = contracts.ReasonCancelled
		}
		return contracts.ComparatorResult{
			Status:     contracts.StatusUnknown,
			ReasonCode: reason,
			Message:    fmt.Sprintf("comparator %s did not complete", ref.ID),
		}
	}
}

func conditionMessage(c *condition.Condition) string {
	if c.IsComposite() {
		return fmt.Sprintf("composite %s condition over %d children", c.Operator, len(c.Children))
	}
	return fmt.Sprintf("%s %s %v", c.Fact, c.Operator, c.Value)
}
