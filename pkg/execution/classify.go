package execution

import "regexp"

// Capability tags what a classification rule detects.
type Capability string

// CapabilityInvalidation marks rules that detect that the execution context
// no longer exists on the cluster.
const CapabilityInvalidation Capability = "invalidation"

// Rule maps remote error text to a capability.
type Rule struct {
	Name       string
	Capability Capability
	Pattern    *regexp.Regexp
}

// Classifier maps free-text remote errors to capabilities. Rules are
// checked in the order they were added.
type Classifier struct {
	rules []Rule
}

// The remote reports a lost context in a handful of ways, depending on
// whether the context was garbage collected, the cluster restarted, or the
// ID was never valid.
var defaultRules = []Rule{
	{
		Name:       "context-not-found",
		Capability: CapabilityInvalidation,
		Pattern:    regexp.MustCompile(`(?i)\bcontext\b(\s+\S+){0,2}\s+(was\s+)?not\s+found\b|\bcontextnotfound\b`),
	},
	{
		Name:       "context-does-not-exist",
		Capability: CapabilityInvalidation,
		Pattern:    regexp.MustCompile(`(?i)\bcontext\b[^\n]{0,60}\bdoes\s+not\s+exist\b`),
	},
	{
		Name:       "invalid-context-id",
		Capability: CapabilityInvalidation,
		Pattern:    regexp.MustCompile(`(?i)\binvalid\s+context(\s+id)?\b`),
	},
	{
		Name:       "context-is-invalid",
		Capability: CapabilityInvalidation,
		Pattern:    regexp.MustCompile(`(?i)\bcontext([_ ]id)?\s+is\s+(no\s+longer\s+)?invalid\b`),
	},
	{
		Name:       "context-expired",
		Capability: CapabilityInvalidation,
		Pattern:    regexp.MustCompile(`(?i)\bexecution\s+context\s+(has\s+)?expired\b`),
	},
}

// NewClassifier returns a classifier with the given rules.
func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: append([]Rule{}, rules...)}
}

// DefaultClassifier returns a classifier that detects the errors the remote
// returns for lost execution contexts.
func DefaultClassifier() *Classifier {
	return NewClassifier(defaultRules...)
}

// AddRule adds a rule that's checked after the existing ones.
func (c *Classifier) AddRule(rule Rule) {
	c.rules = append(c.rules, rule)
}

// Classify returns the first rule that matches `msg`.
func (c *Classifier) Classify(msg string) (Rule, bool) {
	for _, rule := range c.rules {
		if rule.Pattern.MatchString(msg) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Has returns whether any rule with the given capability matches `msg`.
func (c *Classifier) Has(msg string, capability Capability) bool {
	for _, rule := range c.rules {
		if rule.Capability == capability && rule.Pattern.MatchString(msg) {
			return true
		}
	}
	return false
}

// IsInvalidation returns whether `msg` reports a lost execution context.
func (c *Classifier) IsInvalidation(msg string) bool {
	return c.Has(msg, CapabilityInvalidation)
}
