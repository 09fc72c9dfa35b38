package session

import "github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/tier"

// ComputePriority computes a session's priority at creation: base 1,
// plus additive bumps for VIP/premium/urgency/category, clamped to
// [1,10].
func ComputePriority(d CustomerData) int {
	p := 1
	if d.VIP {
		p += 3
	}
	if d.Premium {
		p += 2
	}
	switch d.Urgency {
	case UrgencyHigh:
		p += 2
	case UrgencyCritical:
		p += 3
	}
	switch d.Category {
	case "crypto_theft":
		p += 4
	case "onboarding":
		p += 1
	}
	return tier.Clamp(p, 1, 10)
}
