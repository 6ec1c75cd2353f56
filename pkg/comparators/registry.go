// Package comparators implements the gate's pure predicates over PR context
// and the process-wide registry they are looked up from. The registry is
// built once at startup and never mutated afterwards; evaluations only
// read it.
package comparators

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vertaai/driftgate/pkg/artifact"
	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/prcontext"
)

// Env is the read-only environment a comparator runs against. Fetcher may
// be nil for comparators that only inspect the in-memory PR context; file
// comparators return unknown in that case.
type Env struct {
	PR      *prcontext.PRContext
	Fetcher *artifact.Fetcher

	// AgentLogins are accounts treated as agents/bots in addition to the
	// `[bot]` suffix convention.
	AgentLogins []string
}

// Func is a pure comparator: it never returns a Go error. Failures to
// evaluate surface as StatusUnknown with a reason code.
type Func func(ctx context.Context, env *Env, params map[string]interface{}) contracts.ComparatorResult

// Registry maps stable comparator identifiers to implementations.
type Registry struct {
	mu     sync.RWMutex
	sealed bool
	funcs  map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: map[string]Func{}}
}

// Register adds a comparator. Registration after Seal panics: the registry
// is startup-only by contract.
func (r *Registry) Register(id string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic(fmt.Sprintf("comparators: register %q after seal", id))
	}
	if _, dup := r.funcs[id]; dup {
		panic(fmt.Sprintf("comparators: duplicate id %q", id))
	}
	r.funcs[id] = fn
}

// Seal freezes the registry. Called once after startup registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Lookup returns the comparator for id.
func (r *Registry) Lookup(id string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[id]
	return fn, ok
}

// Has reports whether id is registered. The pack validator uses this for
// semantic checks.
func (r *Registry) Has(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

// IDs returns all registered identifiers, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for id := range r.funcs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// NewDefaultRegistry registers the full gate comparator set and seals the
// registry.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("artifact/artifactUpdated", ArtifactUpdated)
	r.Register("artifact/artifactPresent", ArtifactPresent)
	r.Register("evidence/prTemplateFieldPresent", PRTemplateFieldPresent)
	r.Register("evidence/checkrunsPassed", CheckRunsPassed)
	r.Register("safety/noSecretsInDiff", NoSecretsInDiff)
	r.Register("governance/humanApprovalPresent", HumanApprovalPresent)
	r.Register("governance/minApprovals", MinApprovals)
	r.Register("actor/actorIsAgent", ActorIsAgent)
	r.Register("trigger/changedPathMatches", ChangedPathMatches)
	r.Register("schema/openapiSchemaValid", OpenAPISchemaValid)
	r.Seal()
	return r
}

// Param helpers. Bad parameter shapes yield unknown results, never panics.

func paramString(params map[string]interface{}, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func paramStringSlice(params map[string]interface{}, key string) ([]string, bool) {
	v, ok := params[key]
	if !ok {
		return nil, false
	}
	switch t := v.(type) {
	case []string:
		return t, true
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func paramInt(params map[string]interface{}, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	}
	return 0, false
}

func unknown(reason, format string, args ...interface{}) contracts.ComparatorResult {
	return contracts.ComparatorResult{
		Status:     contracts.StatusUnknown,
		ReasonCode: reason,
		Message:    fmt.Sprintf(format, args...),
	}
}

func pass(format string, args ...interface{}) contracts.ComparatorResult {
	return contracts.ComparatorResult{Status: contracts.StatusPass, Message: fmt.Sprintf(format, args...)}
}

func fail(reason, format string, args ...interface{}) contracts.ComparatorResult {
	return contracts.ComparatorResult{
		Status:     contracts.StatusFail,
		ReasonCode: reason,
		Message:    fmt.Sprintf(format, args...),
	}
}
