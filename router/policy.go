package router

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the routing policy as plain data, so it can be inspected,
// tested, and tuned without touching pipeline code.
type Policy struct {
	// OverrideMarker is the reserved literal that forces Remote,
	// matched case-insensitively anywhere in the query.
	OverrideMarker string `yaml:"override_marker"`

	// Keywords is the complexity vocabulary: terms signaling analysis,
	// technical depth, or specific academic domains.
	Keywords []string `yaml:"keywords"`

	// WordThreshold is the combined query-words plus context-tokens
	// budget above which the query goes Remote.
	WordThreshold int `yaml:"word_threshold"`
}

// DefaultPolicy returns the built-in routing policy.
func DefaultPolicy() *Policy {
	return &Policy{
		OverrideMarker: "use_remote:true",
		Keywords: []string{
			"analyze", "explain in detail", "explain", "comprehensive", "research",
			"compare", "critique", "elaborate", "technical", "complex",
			"quantum", "mechanics", "physics", "mathematics", "mathematical", "algorithm",
			"economic", "implications", "detailed", "thorough", "in-depth", "foundation",
		},
		WordThreshold: 200,
	}
}

// LoadPolicy reads a YAML policy file. Omitted fields keep their defaults.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if policy.OverrideMarker == "" {
		policy.OverrideMarker = DefaultPolicy().OverrideMarker
	}
	if policy.WordThreshold <= 0 {
		policy.WordThreshold = DefaultPolicy().WordThreshold
	}
	return policy, nil
}

// Rules expands the policy into its ordered rule table:
// override marker, then complexity vocabulary, then length budget.
func (p *Policy) Rules() []Rule {
	return []Rule{
		overrideRule(p.OverrideMarker),
		keywordRule(p.Keywords),
		budgetRule(p.WordThreshold),
	}
}
