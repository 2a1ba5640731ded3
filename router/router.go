// Package router decides which backend answers a query: the fast local
// model or the heavy remote one.
//
// The policy trades precision for auditability and zero latency cost. It is
// a pure function over the query text and a context size estimate, runs
// before any model is invoked, and never itself requires a model call.
package router

import (
	"strings"
)

// Decision selects a generation backend.
type Decision int

const (
	Local Decision = iota
	Remote
)

// String returns the wire name of the decision.
func (d Decision) String() string {
	if d == Remote {
		return "remote"
	}
	return "local"
}

// Rule pairs a predicate with the decision it forces. Rules are evaluated
// in order and the first match wins.
type Rule struct {
	Name    string
	Applies func(query string, contextTokens int) bool
	Match   Decision
}

// Router evaluates an ordered rule list, defaulting to Local.
type Router struct {
	rules []Rule
}

// New builds a router from the given policy. A nil policy uses defaults.
func New(policy *Policy) *Router {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Router{rules: policy.Rules()}
}

// Decide maps (query, context token estimate) to a backend selection.
// Deterministic, no side effects, no I/O.
func (r *Router) Decide(query string, contextTokens int) Decision {
	for _, rule := range r.rules {
		if rule.Applies(query, contextTokens) {
			return rule.Match
		}
	}
	return Local
}

// overrideRule matches the reserved remote-override marker anywhere in the
// lowercased query. A query that merely mentions the marker text, even
// inside a quote, still triggers Remote. That anywhere-match is documented
// behavior, preserved on purpose.
func overrideRule(marker string) Rule {
	marker = strings.ToLower(marker)
	return Rule{
		Name: "override",
		Applies: func(query string, _ int) bool {
			return strings.Contains(strings.ToLower(query), marker)
		},
		Match: Remote,
	}
}

// keywordRule matches any member of the complexity vocabulary as a
// case-insensitive substring.
func keywordRule(keywords []string) Rule {
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return Rule{
		Name: "complexity_keyword",
		Applies: func(query string, _ int) bool {
			q := strings.ToLower(query)
			for _, kw := range lowered {
				if strings.Contains(q, kw) {
					return true
				}
			}
			return false
		},
		Match: Remote,
	}
}

// budgetRule matches when the query's word count plus the context estimate
// exceeds the threshold. Exactly the threshold stays local.
func budgetRule(threshold int) Rule {
	return Rule{
		Name: "length_budget",
		Applies: func(query string, contextTokens int) bool {
			return len(strings.Fields(query))+contextTokens > threshold
		},
		Match: Remote,
	}
}
