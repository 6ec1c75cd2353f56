package evaluator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/vertaai/driftgate/pkg/budget"
	"github.com/vertaai/driftgate/pkg/comparators"
	"github.com/vertaai/driftgate/pkg/condition"
	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/pack"
	"github.com/vertaai/driftgate/pkg/prcontext"
)

func testRegistry() *comparators.Registry {
	r := comparators.NewRegistry()
	r.Register("test/pass", func(ctx context.Context, env *comparators.Env, params map[string]interface{}) contracts.ComparatorResult {
		return contracts.ComparatorResult{Status: contracts.StatusPass, Message: "ok"}
	})
	r.Register("test/fail", func(ctx context.Context, env *comparators.Env, params map[string]interface{}) contracts.ComparatorResult {
		return contracts.ComparatorResult{Status: contracts.StatusFail, ReasonCode: "TEST_FAILED", Message: "nope"}
	})
	r.Register("test/unknown", func(ctx context.Context, env *comparators.Env, params map[string]interface{}) contracts.ComparatorResult {
		return contracts.ComparatorResult{Status: contracts.StatusUnknown, ReasonCode: contracts.ReasonNotFound, Message: "cannot tell"}
	})
	r.Register("test/slow", func(ctx context.Context, env *comparators.Env, params map[string]interface{}) contracts.ComparatorResult {
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
		}
		return contracts.ComparatorResult{Status: contracts.StatusPass}
	})
	r.Seal()
	return r
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(testRegistry())
	require.NoError(t, err)
	return e
}

func evalPR() *prcontext.PRContext {
	return &prcontext.PRContext{
		Owner: "acme", Repo: "payments", PRNumber: 7,
		HeadSHA: "abc123", Author: "dev1",
		Title: "Tighten retry budget", Body: "",
		HeadBranch: "feature/x", BaseBranch: "main",
		EventType: "opened",
		Labels:    []string{"backend"},
		Additions: 40, Deletions: 3,
		Files: []prcontext.ChangedFile{
			{Filename: "src/charge.go", Status: prcontext.FileModified, Additions: 38},
			{Filename: "docs/runbook.md", Status: prcontext.FileModified, Additions: 2},
		},
	}
}

func onePack(id string, mode pack.Mode, rules ...pack.Rule) *pack.Pack {
	return &pack.Pack{
		WorkspaceID: "ws1",
		Metadata: pack.Metadata{
			ID: id, Name: id, Version: "1.0.0",
			Status: pack.StatusActive, Mode: mode,
		},
		Scope:    pack.Scope{Type: pack.ScopeWorkspace},
		Priority: 50,
		Merge:    pack.MergeHighestPriority,
		Rules:    rules,
	}
}

func failRule(id string, onFail contracts.Decision) pack.Rule {
	return pack.Rule{
		ID: id, Name: id,
		Trigger: pack.Trigger{Paths: []string{"src/**"}},
		Obligations: []pack.Obligation{{
			Comparator:     &pack.ComparatorRef{ID: "test/fail"},
			DecisionOnFail: onFail,
		}},
	}
}

func TestEvaluateBlocksOnFailedObligation(t *testing.T) {
	e := testEngine(t)
	res := e.EvaluateAll(context.Background(), Request{
		PR:    evalPR(),
		Packs: []*pack.Pack{onePack("baseline", pack.ModeEnforce, failRule("r1", contracts.DecisionBlock))},
	})

	require.Equal(t, contracts.DecisionBlock, res.GlobalDecision)
	require.Equal(t, contracts.DecisionBlock, res.ReportedDecision)
	require.Equal(t, Version, res.EvaluatorVersion)

	require.Len(t, res.PerPack, 1)
	pr := res.PerPack[0]
	require.Equal(t, 1, pr.RulesTriggered)
	require.Len(t, pr.Findings, 1)
	require.Equal(t, "TEST_FAILED", pr.Findings[0].ReasonCode)

	require.Equal(t, contracts.ConclusionFailure, res.Check.Conclusion)
	require.Equal(t, "Blocked by policy", res.Check.Title)
	require.Contains(t, res.Check.Text, "## Blocking")
}

func TestEvaluatePassingPack(t *testing.T) {
	e := testEngine(t)
	rule := failRule("r1", contracts.DecisionBlock)
	rule.Obligations[0].Comparator.ID = "test/pass"
	res := e.EvaluateAll(context.Background(), Request{
		PR:    evalPR(),
		Packs: []*pack.Pack{onePack("baseline", pack.ModeEnforce, rule)},
	})

	require.Equal(t, contracts.DecisionPass, res.GlobalDecision)
	require.Equal(t, contracts.ConclusionSuccess, res.Check.Conclusion)
	require.Equal(t, "All policies passed", res.Check.Title)
}

func TestObserveModeReportsPassButRecordsTrueDecision(t *testing.T) {
	e := testEngine(t)
	res := e.EvaluateAll(context.Background(), Request{
		PR:    evalPR(),
		Packs: []*pack.Pack{onePack("shadow", pack.ModeObserve, failRule("r1", contracts.DecisionBlock))},
	})

	require.Equal(t, contracts.DecisionBlock, res.GlobalDecision)
	require.Equal(t, contracts.DecisionPass, res.ReportedDecision)
	require.Equal(t, contracts.DecisionBlock, res.PerPack[0].Decision)
	require.Equal(t, contracts.DecisionPass, res.PerPack[0].ReportedDecision)

	require.Equal(t, contracts.ConclusionSuccess, res.Check.Conclusion)
	require.Equal(t, "Would BLOCK (observe-only)", res.Check.Title)
	require.Contains(t, res.Check.Summary, "observe-only")
}

func TestTriggerGates(t *testing.T) {
	e := testEngine(t)

	// Path trigger that matches nothing in the diff.
	quiet := failRule("quiet", contracts.DecisionBlock)
	quiet.Trigger = pack.Trigger{Paths: []string{"terraform/**"}}

	// Label trigger.
	labeled := failRule("labeled", contracts.DecisionWarn)
	labeled.Trigger = pack.Trigger{Labels: []string{"backend"}}

	// Change-surface trigger: the runbook edit classifies as docs.
	surface := failRule("surface", contracts.DecisionWarn)
	surface.Trigger = pack.Trigger{ChangeSurface: []string{"docs"}}

	// Path trigger whose matches are all excluded again.
	excluded := failRule("excluded", contracts.DecisionBlock)
	excluded.Trigger = pack.Trigger{Always: true}
	excluded.ExcludePaths = []string{"src/**", "docs/**"}

	res := e.EvaluateAll(context.Background(), Request{
		PR:    evalPR(),
		Packs: []*pack.Pack{onePack("p", pack.ModeEnforce, quiet, labeled, surface, excluded)},
	})

	byID := map[string]RuleOutcome{}
	for _, r := range res.PerPack[0].Rules {
		byID[r.RuleID] = r
	}
	require.False(t, byID["quiet"].Triggered)
	require.True(t, byID["labeled"].Triggered)
	require.True(t, byID["surface"].Triggered)
	require.False(t, byID["excluded"].Triggered)
	require.Equal(t, 2, res.PerPack[0].RulesTriggered)
}

func TestWhenGuard(t *testing.T) {
	e := testEngine(t)

	big := failRule("big", contracts.DecisionBlock)
	big.When = "pr.additions > 100"
	small := failRule("small", contracts.DecisionBlock)
	small.When = "pr.additions > 5"
	// A guard that errors at runtime must not fire the rule.
	broken := failRule("broken", contracts.DecisionBlock)
	broken.When = `gate["missing"].status == "pass"`

	res := e.EvaluateAll(context.Background(), Request{
		PR:    evalPR(),
		Packs: []*pack.Pack{onePack("p", pack.ModeEnforce, big, small, broken)},
	})

	byID := map[string]RuleOutcome{}
	for _, r := range res.PerPack[0].Rules {
		byID[r.RuleID] = r
	}
	require.False(t, byID["big"].Triggered)
	require.True(t, byID["small"].Triggered)
	require.False(t, byID["broken"].Triggered)
}

func TestSkipIf(t *testing.T) {
	e := testEngine(t)

	rule := failRule("r1", contracts.DecisionBlock)
	rule.SkipIf = &condition.Condition{
		Fact: "pr.labels", Operator: condition.OpContains, Value: "backend",
	}
	res := e.EvaluateAll(context.Background(), Request{
		PR:    evalPR(),
		Packs: []*pack.Pack{onePack("p", pack.ModeEnforce, rule)},
	})

	out := res.PerPack[0].Rules[0]
	require.True(t, out.Skipped)
	require.Equal(t, "skipIf matched", out.SkipNote)
	require.Equal(t, contracts.DecisionPass, res.GlobalDecision)
}

func TestDecisionOnUnknownChain(t *testing.T) {
	e := testEngine(t)

	unknownRule := func(onUnknown contracts.Decision) pack.Rule {
		r := failRule("r1", contracts.DecisionBlock)
		r.Obligations[0].Comparator.ID = "test/unknown"
		r.Obligations[0].DecisionOnUnknown = onUnknown
		return r
	}

	// Obligation-level decisionOnUnknown wins.
	res := e.EvaluateAll(context.Background(), Request{
		PR:    evalPR(),
		Packs: []*pack.Pack{onePack("p", pack.ModeEnforce, unknownRule(contracts.DecisionWarn))},
	})
	require.Equal(t, contracts.DecisionWarn, res.GlobalDecision)

	// Pack defaults next.
	p := onePack("p", pack.ModeEnforce, unknownRule(""))
	p.Defaults.DecisionOnUnknown = contracts.DecisionWarn
	res = e.EvaluateAll(context.Background(), Request{PR: evalPR(), Packs: []*pack.Pack{p}})
	require.Equal(t, contracts.DecisionWarn, res.GlobalDecision)

	// Finally decisionOnFail.
	res = e.EvaluateAll(context.Background(), Request{
		PR:    evalPR(),
		Packs: []*pack.Pack{onePack("p", pack.ModeEnforce, unknownRule(""))},
	})
	require.Equal(t, contracts.DecisionBlock, res.GlobalDecision)
}

func TestComparatorTimeoutIsUnknown(t *testing.T) {
	e := testEngine(t)

	rule := failRule("slow", contracts.DecisionBlock)
	rule.Obligations[0].Comparator.ID = "test/slow"
	rule.Obligations[0].DecisionOnUnknown = contracts.DecisionWarn

	res := e.EvaluateAll(context.Background(), Request{
		PR:     evalPR(),
		Packs:  []*pack.Pack{onePack("p", pack.ModeEnforce, rule)},
		Budget: budget.Limits{PerComparatorTimeoutMs: 20},
	})

	f := res.PerPack[0].Findings[0]
	require.Equal(t, contracts.StatusUnknown, f.Status)
	require.Equal(t, contracts.ReasonTimeout, f.ReasonCode)
	require.Equal(t, contracts.DecisionWarn, f.Decision)
	require.Contains(t, res.Check.Text, "## Unable to evaluate")
}

func TestUnregisteredComparatorIsUnknown(t *testing.T) {
	e := testEngine(t)

	rule := failRule("r1", contracts.DecisionBlock)
	rule.Obligations[0].Comparator.ID = "no/such"
	rule.Obligations[0].DecisionOnUnknown = contracts.DecisionWarn

	res := e.EvaluateAll(context.Background(), Request{
		PR:    evalPR(),
		Packs: []*pack.Pack{onePack("p", pack.ModeEnforce, rule)},
	})
	f := res.PerPack[0].Findings[0]
	require.Equal(t, contracts.StatusUnknown, f.Status)
	require.Equal(t, contracts.ReasonNotFound, f.ReasonCode)
}

func TestConditionObligation(t *testing.T) {
	e := testEngine(t)

	rule := pack.Rule{
		ID: "size", Name: "size",
		Trigger: pack.Trigger{Always: true},
		Obligations: []pack.Obligation{{
			Condition:      &condition.Condition{Fact: "pr.additions", Operator: condition.OpLte, Value: 10},
			DecisionOnFail: contracts.DecisionWarn,
		}},
	}
	res := e.EvaluateAll(context.Background(), Request{
		PR:    evalPR(), // 40 additions
		Packs: []*pack.Pack{onePack("p", pack.ModeEnforce, rule)},
	})
	require.Equal(t, contracts.DecisionWarn, res.GlobalDecision)
	require.Equal(t, "CONDITION_NOT_MET", res.PerPack[0].Findings[0].ReasonCode)
}

func TestHighestPriorityConflictSuppression(t *testing.T) {
	e := testEngine(t)

	high := onePack("high", pack.ModeEnforce, failRule("shared", contracts.DecisionWarn))
	high.Priority = 90
	low := onePack("low", pack.ModeEnforce, failRule("shared", contracts.DecisionBlock))
	low.Priority = 10

	// Selection order: priority desc.
	res := e.EvaluateAll(context.Background(), Request{
		PR:    evalPR(),
		Packs: []*pack.Pack{high, low},
	})

	require.Len(t, res.Conflicts, 1)
	require.Equal(t, "rule", res.Conflicts[0].Kind)
	require.Equal(t, "shared", res.Conflicts[0].RuleID)

	require.True(t, res.PerPack[1].Rules[0].Skipped)
	require.Contains(t, res.PerPack[1].Rules[0].SkipNote, "high")

	// The winning copy warns; the conflict finding also warns.
	require.Equal(t, contracts.DecisionWarn, res.GlobalDecision)
}

func TestMostRestrictiveConflictKeepsStrictest(t *testing.T) {
	e := testEngine(t)

	soft := onePack("soft", pack.ModeEnforce, failRule("shared", contracts.DecisionWarn))
	soft.Priority = 90
	soft.Merge = pack.MergeMostRestrictive
	hard := onePack("hard", pack.ModeEnforce, failRule("shared", contracts.DecisionBlock))
	hard.Priority = 10
	hard.Merge = pack.MergeMostRestrictive

	res := e.EvaluateAll(context.Background(), Request{
		PR:    evalPR(),
		Packs: []*pack.Pack{soft, hard},
	})

	require.True(t, res.PerPack[0].Rules[0].Skipped)
	require.False(t, res.PerPack[1].Rules[0].Skipped)
	require.Equal(t, contracts.DecisionBlock, res.GlobalDecision)
}

func TestExplicitMergeKeepsAllCopies(t *testing.T) {
	e := testEngine(t)

	a := onePack("a", pack.ModeEnforce, failRule("shared", contracts.DecisionWarn))
	a.Merge = pack.MergeExplicit
	b := onePack("b", pack.ModeEnforce, failRule("shared", contracts.DecisionBlock))
	b.Merge = pack.MergeExplicit

	res := e.EvaluateAll(context.Background(), Request{
		PR:    evalPR(),
		Packs: []*pack.Pack{a, b},
	})

	require.False(t, res.PerPack[0].Rules[0].Skipped)
	require.False(t, res.PerPack[1].Rules[0].Skipped)
	// Equal priority under EXPLICIT also surfaces a merge_strategy conflict.
	kinds := map[string]bool{}
	for _, c := range res.Conflicts {
		kinds[c.Kind] = true
	}
	require.True(t, kinds["merge_strategy"])
	require.Equal(t, contracts.DecisionBlock, res.GlobalDecision)
}

func TestDisabledRuleNeverRuns(t *testing.T) {
	e := testEngine(t)

	off := false
	rule := failRule("r1", contracts.DecisionBlock)
	rule.Enabled = &off

	res := e.EvaluateAll(context.Background(), Request{
		PR:    evalPR(),
		Packs: []*pack.Pack{onePack("p", pack.ModeEnforce, rule)},
	})
	require.Equal(t, 0, res.PerPack[0].RulesTriggered)
	require.Equal(t, contracts.DecisionPass, res.GlobalDecision)
}

func TestNoPacksYieldsCleanPass(t *testing.T) {
	e := testEngine(t)
	res := e.EvaluateAll(context.Background(), Request{PR: evalPR()})

	require.Equal(t, contracts.DecisionPass, res.GlobalDecision)
	require.Equal(t, contracts.ConclusionSuccess, res.Check.Conclusion)
	require.Equal(t, "No rules triggered for this change.\n", res.Check.Text)
}

func TestMultiPackWorstOf(t *testing.T) {
	e := testEngine(t)

	warnRule := failRule("w", contracts.DecisionWarn)
	passRule := failRule("p", contracts.DecisionBlock)
	passRule.Obligations[0].Comparator.ID = "test/pass"

	res := e.EvaluateAll(context.Background(), Request{
		PR: evalPR(),
		Packs: []*pack.Pack{
			onePack("warns", pack.ModeEnforce, warnRule),
			onePack("passes", pack.ModeEnforce, passRule),
		},
	})
	require.Equal(t, contracts.DecisionWarn, res.GlobalDecision)
	require.Equal(t, contracts.ConclusionNeutral, res.Check.Conclusion)
	require.Equal(t, "Passed with warnings", res.Check.Title)
	require.Contains(t, res.Check.Summary, "warns")
	require.Contains(t, res.Check.Summary, "passes")
}

// resultKey projects everything the gate publishes into a comparable form:
// global decision, per-pack decisions, and findings in output order.
func resultKey(t *testing.T, res *Result) string {
	t.Helper()
	type packKey struct {
		ID       string              `json:"id"`
		Decision contracts.Decision  `json:"decision"`
		Reported contracts.Decision  `json:"reported"`
		Findings []contracts.Finding `json:"findings"`
	}
	key := struct {
		Global   contracts.Decision `json:"global"`
		Reported contracts.Decision `json:"reported"`
		PerPack  []packKey          `json:"per_pack"`
	}{Global: res.GlobalDecision, Reported: res.ReportedDecision}
	for _, pr := range res.PerPack {
		key.PerPack = append(key.PerPack, packKey{
			ID: pr.PackID, Decision: pr.Decision, Reported: pr.ReportedDecision,
			Findings: pr.Findings,
		})
	}
	raw, err := json.Marshal(key)
	require.NoError(t, err)
	return string(raw)
}

func TestEvaluationDeterminismProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	props := gopter.NewProperties(params)

	e := testEngine(t)

	props.Property("same packs and context always yield the same result", prop.ForAll(
		func(onFail contracts.Decision, mode pack.Mode, withPassRule bool) bool {
			build := func() []*pack.Pack {
				rules := []pack.Rule{failRule("r-fail", onFail)}
				if withPassRule {
					passRule := failRule("r-pass", contracts.DecisionBlock)
					passRule.Obligations[0].Comparator.ID = "test/pass"
					rules = append(rules, passRule)
				}
				return []*pack.Pack{onePack("prop", mode, rules...)}
			}
			a := e.EvaluateAll(context.Background(), Request{PR: evalPR(), Packs: build()})
			b := e.EvaluateAll(context.Background(), Request{PR: evalPR(), Packs: build()})
			return resultKey(t, a) == resultKey(t, b)
		},
		gen.OneConstOf(contracts.DecisionWarn, contracts.DecisionBlock),
		gen.OneConstOf(pack.ModeObserve, pack.ModeWarn, pack.ModeEnforce),
		gen.Bool(),
	))

	props.TestingRun(t)
}

func TestUnknownNeverSoftensDecisionProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	props := gopter.NewProperties(params)

	e := testEngine(t)

	props.Property("adding an unknown obligation never lowers the pack decision", prop.ForAll(
		func(onFail, onUnknown contracts.Decision) bool {
			base := onePack("base", pack.ModeEnforce, failRule("r1", onFail))
			with := onePack("base", pack.ModeEnforce, failRule("r1", onFail))
			with.Rules[0].Obligations = append(with.Rules[0].Obligations, pack.Obligation{
				Comparator:        &pack.ComparatorRef{ID: "test/unknown"},
				DecisionOnFail:    contracts.DecisionBlock,
				DecisionOnUnknown: onUnknown,
			})

			before := e.EvaluateAll(context.Background(), Request{PR: evalPR(), Packs: []*pack.Pack{base}})
			after := e.EvaluateAll(context.Background(), Request{PR: evalPR(), Packs: []*pack.Pack{with}})
			return after.PerPack[0].Decision.Rank() >= before.PerPack[0].Decision.Rank() &&
				after.GlobalDecision.Rank() >= before.GlobalDecision.Rank()
		},
		gen.OneConstOf(contracts.DecisionWarn, contracts.DecisionBlock),
		gen.OneConstOf(contracts.DecisionPass, contracts.DecisionWarn, contracts.DecisionBlock),
	))

	props.TestingRun(t)
}
