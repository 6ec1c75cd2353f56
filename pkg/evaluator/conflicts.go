package evaluator

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/pack"
)

// ruleRef ties one rule to the pack that declares it.
type ruleRef struct {
	p *pack.Pack
	r *pack.Rule
}

// resolveConflicts detects cross-pack conflicts and computes which rule
// copies are suppressed. Packs arrive in selection order (priority desc,
// packId asc), so the first ref for a rule id belongs to the winning pack
// under HIGHEST_PRIORITY.
func resolveConflicts(packs []*pack.Pack) ([]Conflict, map[string]string) {
	var conflicts []Conflict
	suppressed := map[string]string{} // "packID/ruleID" -> note

	// Priority conflicts: same priority, differing merge strategies; and
	// merge-strategy conflicts: equal priority under EXPLICIT.
	byPriority := map[int][]*pack.Pack{}
	for _, p := range packs {
		byPriority[p.Priority] = append(byPriority[p.Priority], p)
	}
	priorities := make([]int, 0, len(byPriority))
	for prio := range byPriority {
		priorities = append(priorities, prio)
	}
	sort.Ints(priorities)
	for _, prio := range priorities {
		group := byPriority[prio]
		if len(group) < 2 {
			continue
		}
		strategies := map[pack.MergeStrategy]bool{}
		ids := make([]string, 0, len(group))
		explicit := false
		for _, p := range group {
			strategies[p.Merge] = true
			ids = append(ids, p.Metadata.ID)
			if p.Merge == pack.MergeExplicit {
				explicit = true
			}
		}
		sort.Strings(ids)
		if len(strategies) > 1 {
			conflicts = append(conflicts, Conflict{
				Kind:    "priority",
				PackIDs: ids,
				Detail:  fmt.Sprintf("packs at priority %d declare differing merge strategies", prio),
			})
		} else if explicit {
			conflicts = append(conflicts, Conflict{
				Kind:    "merge_strategy",
				PackIDs: ids,
				Detail:  fmt.Sprintf("packs at priority %d with EXPLICIT merge both apply", prio),
			})
		}
	}

	// Rule conflicts: same rule id in two packs with different obligations.
	byRule := map[string][]ruleRef{}
	for _, p := range packs {
		for i := range p.Rules {
			r := &p.Rules[i]
			byRule[r.ID] = append(byRule[r.ID], ruleRef{p, r})
		}
	}
	ruleIDs := make([]string, 0, len(byRule))
	for id := range byRule {
		ruleIDs = append(ruleIDs, id)
	}
	sort.Strings(ruleIDs)

	for _, ruleID := range ruleIDs {
		refs := byRule[ruleID]
		if len(refs) < 2 || !obligationsDiffer(refs) {
			continue
		}
		packIDs := make([]string, 0, len(refs))
		for _, ref := range refs {
			packIDs = append(packIDs, ref.p.Metadata.ID)
		}
		conflicts = append(conflicts, Conflict{
			Kind:    "rule",
			RuleID:  ruleID,
			PackIDs: packIDs,
			Detail:  fmt.Sprintf("rule %q defined with different obligations in %d packs", ruleID, len(refs)),
		})

		switch refs[0].p.Merge {
		case pack.MergeHighestPriority:
			for _, ref := range refs[1:] {
				suppressed[ref.p.Metadata.ID+"/"+ruleID] = "superseded by higher-priority pack " + refs[0].p.Metadata.ID
			}
		case pack.MergeMostRestrictive:
			winner := mostRestrictive(refs)
			for _, ref := range refs {
				if ref.p != winner.p {
					suppressed[ref.p.Metadata.ID+"/"+ruleID] = "less restrictive than pack " + winner.p.Metadata.ID
				}
			}
		case pack.MergeExplicit:
			// Keep all copies; the global decision becomes worst-of.
		}
	}
	return conflicts, suppressed
}

// mostRestrictive picks the copy whose strictest obligation decision ranks
// highest (block > warn > pass); ties keep selection order.
func mostRestrictive(refs []ruleRef) ruleRef {
	best := refs[0]
	bestRank := strictestRank(best.r)
	for _, ref := range refs[1:] {
		if r := strictestRank(ref.r); r > bestRank {
			best = ref
			bestRank = r
		}
	}
	return best
}

func strictestRank(r *pack.Rule) int {
	rank := 0
	for _, ob := range r.Obligations {
		if ob.DecisionOnFail.Rank() > rank {
			rank = ob.DecisionOnFail.Rank()
		}
	}
	return rank
}

func obligationsDiffer(refs []ruleRef) bool {
	base := obligationsKey(refs[0].r)
	for _, ref := range refs[1:] {
		if obligationsKey(ref.r) != base {
			return true
		}
	}
	return false
}

func obligationsKey(r *pack.Rule) string {
	b, err := json.Marshal(r.Obligations)
	if err != nil {
		return ""
	}
	return string(b)
}

// conflictFindings renders conflicts as findings attached to the aggregate
// output.
func conflictFindings(conflicts []Conflict) []contracts.Finding {
	var out []contracts.Finding
	for _, c := range conflicts {
		out = append(out, contracts.Finding{
			RuleID:     c.RuleID,
			RuleName:   "pack-conflict",
			Status:     contracts.StatusFail,
			ReasonCode: "PACK_CONFLICT",
			Message:    c.Detail,
			Decision:   contracts.DecisionWarn,
		})
	}
	return out
}
