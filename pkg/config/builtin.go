package config

import (
	"time"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/escalation"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/tier"
)

// Default values for the recognized environment/config options.
const (
	DefaultStealthEnabled          = true
	DefaultStealthMaxDelayMS       = 12000
	DefaultQueueBackpressureSoft   = 50
	DefaultQAPassThreshold         = 80.0
	DefaultEscalationAutoReenqueue = true
)

// BuiltinEscalationRules returns the rule set available without any
// configuration file. Rule order matters: FindRule returns the first
// match, so narrower, higher-stakes triggers come first.
func BuiltinEscalationRules() []escalation.Rule {
	return []escalation.Rule{
		{
			ID:                   "legal_issue",
			Name:                 "Legal issue",
			Triggers:             []string{"legal", "formal complaint", "lawsuit", "attorney"},
			FromTier:             tier.TierOne,
			ToTier:               tier.TierFour,
			Priority:             escalation.PriorityCritical,
			AutoEscalate:         true,
			NotificationRequired: true,
			SLA:                  15 * time.Minute,
		},
		{
			ID:                   "crypto_theft_active",
			Name:                 "Active crypto theft",
			Triggers:             []string{"theft in progress", "funds moving", "draining"},
			FromTier:             tier.TierOne,
			ToTier:               tier.TierThree,
			Priority:             escalation.PriorityCritical,
			AutoEscalate:         true,
			NotificationRequired: true,
			SLA:                  10 * time.Minute,
		},
		{
			ID:                   "vip_dissatisfaction",
			Name:                 "VIP dissatisfaction",
			Triggers:             []string{"vip", "account manager", "cancel my account"},
			FromTier:             tier.TierOne,
			ToTier:               tier.TierThree,
			Priority:             escalation.PriorityHigh,
			NotificationRequired: true,
			SLA:                  30 * time.Minute,
		},
		{
			ID:           "technical_complexity",
			Name:         "Technical complexity",
			Triggers:     []string{"technical", "complex", "completion_threshold", "message_quota"},
			FromTier:     tier.TierOne,
			ToTier:       tier.TierTwo,
			Priority:     escalation.PriorityMedium,
			AutoEscalate: true,
			SLA:          time.Hour,
		},
	}
}
