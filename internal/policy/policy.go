// Package policy defines the signal-policy interface consulted once per
// (symbol, session) at the decision cutoff, and provides a Registry for
// managing multiple policy implementations.
package policy

import (
	"context"
	"sort"

	"ortrader/internal/domain"
)

// Policy turns a decision snapshot into a trade intent. Implementations
// must be pure with respect to the snapshot: the same snapshot yields the
// same intent, with no retained state between calls and no clock or data
// access beyond the snapshot itself. That contract is what lets the backtest
// evaluate sessions in any order, or in parallel, without changing results.
type Policy interface {
	// Name returns the unique identifier for this policy.
	Name() string

	// Evaluate inspects the snapshot and returns an intent. A WAIT intent
	// carries a rationale; an ENTER intent carries absolute entry, stop,
	// and target levels plus a confidence in [0, 1].
	Evaluate(ctx context.Context, snap *domain.DecisionSnapshot) (domain.TradeIntent, error)
}

// Registry holds a named collection of policies for lookup and enumeration.
type Registry struct {
	policies map[string]Policy
}

// NewRegistry creates an empty policy Registry.
func NewRegistry() *Registry {
	return &Registry{
		policies: make(map[string]Policy),
	}
}

// Register adds a policy to the registry, keyed by its Name().
func (r *Registry) Register(p Policy) {
	r.policies[p.Name()] = p
}

// Get retrieves a policy by name. The second return value indicates whether
// the policy was found.
func (r *Registry) Get(name string) (Policy, bool) {
	p, ok := r.policies[name]
	return p, ok
}

// List returns a sorted slice of all registered policy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
