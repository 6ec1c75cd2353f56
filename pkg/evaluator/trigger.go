package evaluator

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/vertaai/driftgate/pkg/pack"
	"github.com/vertaai/driftgate/pkg/prcontext"
)

// changeSurfaceOf classifies a changed path into the trigger vocabulary.
func changeSurfaceOf(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.Contains(lower, "openapi") || strings.Contains(lower, "swagger") ||
		strings.HasSuffix(lower, ".proto"):
		return "api"
	case strings.HasSuffix(lower, ".tf") || strings.HasSuffix(lower, ".tfvars") ||
		strings.Contains(lower, "terraform/") || strings.Contains(lower, "cloudformation"):
		return "iac"
	case strings.HasSuffix(lower, "codeowners"):
		return "ownership"
	case strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".rst") ||
		strings.Contains(lower, "docs/"):
		return "docs"
	}
	return "code"
}

// triggerMatches decides whether a rule fires for the PR: always, path
// globs, labels, or change surfaces. A rule with an empty trigger never
// fires. ExcludePaths remove matches after the fact.
func triggerMatches(rule *pack.Rule, pr *prcontext.PRContext) bool {
	t := &rule.Trigger
	matched := false
	switch {
	case t.Always:
		matched = true
	case len(t.Paths) > 0 && anyPathMatches(t.Paths, pr):
		matched = true
	case len(t.Labels) > 0 && anyLabelMatches(t.Labels, pr.Labels):
		matched = true
	case len(t.ChangeSurface) > 0 && anySurfaceMatches(t.ChangeSurface, pr):
		matched = true
	}
	if !matched {
		return false
	}
	if len(rule.ExcludePaths) > 0 && allPathsExcluded(rule.ExcludePaths, pr) {
		return false
	}
	return true
}

func anyPathMatches(patterns []string, pr *prcontext.PRContext) bool {
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			continue
		}
		for _, f := range pr.Files {
			if g.Match(f.Filename) {
				return true
			}
		}
	}
	return false
}

// allPathsExcluded reports whether every changed file matches the exclusion
// set; a rule only stands down when nothing relevant remains.
func allPathsExcluded(patterns []string, pr *prcontext.PRContext) bool {
	if len(pr.Files) == 0 {
		return false
	}
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			continue
		}
		globs = append(globs, g)
	}
	for _, f := range pr.Files {
		excluded := false
		for _, g := range globs {
			if g.Match(f.Filename) {
				excluded = true
				break
			}
		}
		if !excluded {
			return false
		}
	}
	return true
}

func anyLabelMatches(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(w, h) {
				return true
			}
		}
	}
	return false
}

func anySurfaceMatches(surfaces []string, pr *prcontext.PRContext) bool {
	for _, f := range pr.Files {
		surface := changeSurfaceOf(f.Filename)
		for _, s := range surfaces {
			if s == surface {
				return true
			}
		}
	}
	return false
}
