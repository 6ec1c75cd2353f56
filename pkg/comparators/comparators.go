package comparators

import (
	"context"
	"strings"

	"github.com/gobwas/glob"

	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/fault"
	"github.com/vertaai/driftgate/pkg/secrets"
)

// ArtifactUpdated passes when some changed file matches the artifact
// locator. Params: "locator" (glob or prefix, required), "kind" (label used
// in messages).
func ArtifactUpdated(ctx context.Context, env *Env, params map[string]interface{}) contracts.ComparatorResult {
	locator, ok := paramString(params, "locator")
	if !ok {
		return unknown(contracts.ReasonBadParams, "artifactUpdated requires a locator param")
	}
	kind, _ := paramString(params, "kind")
	if kind == "" {
		kind = "artifact"
	}
	g, err := glob.Compile(locator, '/')
	if err != nil {
		return unknown(contracts.ReasonBadParams, "invalid locator glob %q: %v", locator, err)
	}
	for _, f := range env.PR.Files {
		if g.Match(f.Filename) || strings.HasPrefix(f.Filename, locator) {
			return contracts.ComparatorResult{
				Status:  contracts.StatusPass,
				Message: kind + " updated in this PR",
				Evidence: []contracts.Evidence{
					{Kind: "file", Ref: f.Filename},
				},
			}
		}
	}
	return fail("ARTIFACT_NOT_UPDATED", "no changed file matches %s locator %q", kind, locator)
}

// ArtifactPresent passes when the artifact file exists in the repo tree at
// the PR head. Params: "path" (required), "kind".
func ArtifactPresent(ctx context.Context, env *Env, params map[string]interface{}) contracts.ComparatorResult {
	path, ok := paramString(params, "path")
	if !ok {
		return unknown(contracts.ReasonBadParams, "artifactPresent requires a path param")
	}
	if env.Fetcher == nil {
		return unknown(contracts.ReasonNotFound, "no repository access configured")
	}
	_, err := env.Fetcher.FetchFile(ctx, env.PR.HeadSHA, path)
	switch {
	case err == nil:
		return pass("artifact %s present", path)
	case fault.KindOf(err) == fault.KindNotFound:
		return fail("ARTIFACT_MISSING", "artifact %s not found in repo tree", path)
	case fault.KindOf(err) == fault.KindBudgetExceeded:
		return unknown(contracts.ReasonBudget, "budget exhausted fetching %s", path)
	default:
		return unknown(contracts.ReasonTimeout, "fetch %s: %v", path, err)
	}
}

// PRTemplateFieldPresent passes when the PR body contains every required
// template field. Params: "fields" []string. A field is present when it
// appears as a markdown heading or a "field:" label with non-empty content.
func PRTemplateFieldPresent(ctx context.Context, env *Env, params map[string]interface{}) contracts.ComparatorResult {
	fields, ok := paramStringSlice(params, "fields")
	if !ok || len(fields) == 0 {
		return unknown(contracts.ReasonBadParams, "prTemplateFieldPresent requires a fields param")
	}
	body := env.PR.Body
	var missing []string
	for _, field := range fields {
		if !templateFieldPresent(body, field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fail("TEMPLATE_FIELD_MISSING", "PR body missing template field(s): %s", strings.Join(missing, ", "))
	}
	return pass("all %d template fields present", len(fields))
}

func templateFieldPresent(body, field string) bool {
	lower := strings.ToLower(body)
	f := strings.ToLower(field)
	for _, line := range strings.Split(lower, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.Contains(trimmed, f) {
			return true
		}
		if strings.HasPrefix(trimmed, f+":") && len(strings.TrimSpace(strings.TrimPrefix(trimmed, f+":"))) > 0 {
			return true
		}
	}
	return false
}

// CheckRunsPassed passes when every named check run on the head commit
// concluded successfully. Params: "checks" []string. Missing runs yield
// unknown, not fail: the check may not have reported yet.
func CheckRunsPassed(ctx context.Context, env *Env, params map[string]interface{}) contracts.ComparatorResult {
	checks, ok := paramStringSlice(params, "checks")
	if !ok || len(checks) == 0 {
		return unknown(contracts.ReasonBadParams, "checkrunsPassed requires a checks param")
	}
	var evidence []contracts.Evidence
	for _, name := range checks {
		cr := env.PR.LatestCheckRun(name)
		if cr == nil {
			return unknown(contracts.ReasonNotFound, "check run %q has not completed on %s", name, env.PR.HeadSHA)
		}
		if cr.Conclusion != string(contracts.ConclusionSuccess) {
			return contracts.ComparatorResult{
				Status:     contracts.StatusFail,
				ReasonCode: "CHECKRUN_NOT_SUCCESSFUL",
				Message:    "check run " + name + " concluded " + cr.Conclusion,
				Evidence:   []contracts.Evidence{{Kind: "check_run", Ref: cr.ID, Snippet: cr.Name + ": " + cr.Conclusion}},
			}
		}
		evidence = append(evidence, contracts.Evidence{Kind: "check_run", Ref: cr.ID, Snippet: cr.Name + ": success"})
	}
	return contracts.ComparatorResult{Status: contracts.StatusPass, Message: "all required check runs successful", Evidence: evidence}
}

// NoSecretsInDiff fails when any added line matches the secret pattern set.
// Evidence excerpts are pre-redacted.
func NoSecretsInDiff(ctx context.Context, env *Env, params map[string]interface{}) contracts.ComparatorResult {
	matches := secrets.ScanLines(env.PR.AddedLines())
	if len(matches) == 0 {
		return pass("no secret patterns in added lines")
	}
	evidence := make([]contracts.Evidence, 0, len(matches))
	for _, m := range matches {
		evidence = append(evidence, contracts.Evidence{Kind: "line", Ref: m.PatternName, Snippet: m.Excerpt})
	}
	return contracts.ComparatorResult{
		Status:     contracts.StatusFail,
		ReasonCode: contracts.ReasonSecretDetected,
		Message:    "added lines match secret pattern(s)",
		Evidence:   evidence,
	}
}

// HumanApprovalPresent passes when at least one APPROVED review comes from
// a non-bot account.
func HumanApprovalPresent(ctx context.Context, env *Env, params map[string]interface{}) contracts.ComparatorResult {
	for _, a := range env.PR.Approvals {
		if a.State == "APPROVED" && !isAgent(env, a.Login) {
			return contracts.ComparatorResult{
				Status:   contracts.StatusPass,
				Message:  "human approval by " + a.Login,
				Evidence: []contracts.Evidence{{Kind: "approval", Ref: a.Login}},
			}
		}
	}
	return fail("NO_HUMAN_APPROVAL", "no approval from a human reviewer")
}

// MinApprovals passes when distinct APPROVED reviews meet the minimum.
// Params: "minCount" int.
func MinApprovals(ctx context.Context, env *Env, params map[string]interface{}) contracts.ComparatorResult {
	min, ok := paramInt(params, "minCount")
	if !ok || min < 1 {
		return unknown(contracts.ReasonBadParams, "minApprovals requires a positive minCount param")
	}
	count := env.PR.ApprovedCount()
	if count >= min {
		return pass("%d approvals (minimum %d)", count, min)
	}
	return fail("INSUFFICIENT_APPROVALS", "%d approvals, minimum is %d", count, min)
}

// ActorIsAgent passes when the PR author is a known agent/bot account.
// Params: "agents" []string (optional, merged with env.AgentLogins).
func ActorIsAgent(ctx context.Context, env *Env, params map[string]interface{}) contracts.ComparatorResult {
	agents, _ := paramStringSlice(params, "agents")
	author := env.PR.Author
	if isAgent(env, author) || containsString(agents, author) {
		return pass("author %s is a known agent", author)
	}
	return fail("ACTOR_NOT_AGENT", "author %s is not a known agent account", author)
}

// ChangedPathMatches passes when any changed path matches the glob set.
// Params: "paths" []string.
func ChangedPathMatches(ctx context.Context, env *Env, params map[string]interface{}) contracts.ComparatorResult {
	patterns, ok := paramStringSlice(params, "paths")
	if !ok || len(patterns) == 0 {
		return unknown(contracts.ReasonBadParams, "changedPathMatches requires a paths param")
	}
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return unknown(contracts.ReasonBadParams, "invalid glob %q: %v", p, err)
		}
		globs = append(globs, g)
	}
	for _, f := range env.PR.Files {
		for _, g := range globs {
			if g.Match(f.Filename) {
				return contracts.ComparatorResult{
					Status:   contracts.StatusPass,
					Message:  "changed path matches",
					Evidence: []contracts.Evidence{{Kind: "file", Ref: f.Filename}},
				}
			}
		}
	}
	return fail("NO_PATH_MATCH", "no changed path matches %v", patterns)
}

func isAgent(env *Env, login string) bool {
	if strings.HasSuffix(login, "[bot]") || strings.HasSuffix(login, "-bot") {
		return true
	}
	return containsString(env.AgentLogins, login)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
