// Package escalation implements the escalation rule engine: rule
// matching, tier promotion, SLA stamping, immediate-reassignment-or-
// requeue, and a ticker-driven background SLA-breach sweep.
package escalation

import (
	"strings"
	"time"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/tier"
)

// Priority is an escalation rule's urgency label.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rule is one escalation rule record, loaded at startup and immutable
// thereafter.
type Rule struct {
	ID                   string
	Name                 string
	Triggers             []string // case-insensitive substrings
	FromTier             tier.Tier
	ToTier               tier.Tier
	Priority             Priority
	AutoEscalate         bool
	NotificationRequired bool
	SLA                  time.Duration
}

// Validate checks a Rule's structural invariants: a
// non-empty trigger list and ToTier strictly greater than FromTier.
func (r Rule) Validate() error {
	if r.ID == "" {
		return coreerr.NewValidationError("id", "must not be empty")
	}
	if len(r.Triggers) == 0 {
		return coreerr.NewValidationError("triggers", "must be non-empty")
	}
	if r.ToTier <= r.FromTier {
		return coreerr.NewValidationError("toTier", "must be strictly greater than fromTier")
	}
	if !r.ToTier.Valid() || !r.FromTier.Valid() {
		return coreerr.NewValidationError("tier", "must be in [0,4]")
	}
	return nil
}

// RuleSet is the immutable, ordered collection of escalation rules loaded
// at startup.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet validates and freezes rules into a RuleSet. Rules are tried
// in the given order by FindRule: first rule with a matching trigger wins.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	frozen := make([]Rule, len(rules))
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		frozen[i] = r
	}
	return &RuleSet{rules: frozen}, nil
}

// FindRule returns the first rule any of whose triggers appears as a
// substring of lower(reason).
func (rs *RuleSet) FindRule(reason string) (Rule, error) {
	lowered := strings.ToLower(reason)
	for _, r := range rs.rules {
		for _, trig := range r.Triggers {
			if strings.Contains(lowered, strings.ToLower(trig)) {
				return r, nil
			}
		}
	}
	return Rule{}, coreerr.NewNoMatchingRuleError(reason)
}

// All returns every loaded rule, in load order.
func (rs *RuleSet) All() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}
