package evaluator

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/vertaai/driftgate/pkg/facts"
	"github.com/vertaai/driftgate/pkg/prcontext"
)

// whenEnv is the compilation environment for rule `when` guards. It mirrors
// the fact namespace: pr.*, diff.*, gate.*.
func whenEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("pr", cel.DynType),
		cel.Variable("diff", cel.DynType),
		cel.Variable("gate", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	return env, nil
}

// whenActivation builds the variable bindings for one PR.
func whenActivation(pr *prcontext.PRContext) map[string]interface{} {
	labels := make([]interface{}, len(pr.Labels))
	for i, l := range pr.Labels {
		labels[i] = l
	}
	gates := map[string]interface{}{}
	seen := map[string]bool{}
	for _, cr := range pr.CheckRuns {
		if cr.Conclusion == "" || seen[cr.Name] {
			continue
		}
		latest := pr.LatestCheckRun(cr.Name)
		gates[cr.Name] = map[string]interface{}{
			"status":     facts.StatusFromConclusion(latest.Conclusion),
			"conclusion": latest.Conclusion,
		}
		seen[cr.Name] = true
	}
	return map[string]interface{}{
		"pr": map[string]interface{}{
			"author":     pr.Author,
			"title":      pr.Title,
			"body":       pr.Body,
			"number":     pr.PRNumber,
			"labels":     labels,
			"headBranch": pr.HeadBranch,
			"baseBranch": pr.BaseBranch,
			"eventType":  pr.EventType,
			"additions":  pr.Additions,
			"deletions":  pr.Deletions,
			"approvals":  map[string]interface{}{"count": pr.ApprovedCount()},
		},
		"diff": map[string]interface{}{
			"filesChanged": map[string]interface{}{"count": len(pr.Files)},
			"linesChanged": map[string]interface{}{"count": pr.Additions + pr.Deletions},
		},
		"gate": gates,
	}
}

// evalWhen evaluates a compiled guard. Runtime errors and non-boolean
// results count as "does not fire": a broken guard must not silently widen
// a rule's reach.
func evalWhen(prg cel.Program, activation map[string]interface{}) bool {
	out, _, err := prg.Eval(activation)
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
