// Package stealth implements the stealth response pacer: given a
// behavior Profile and a response, it schedules a human-paced sequence of
// typing_start/typing_progress/typing_end/response_ready events onto the
// event bus, cancellably per session.
package stealth

import "github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/session"

// ResponsePattern is one responseType's delay/typingDuration baseline.
type ResponsePattern struct {
	DelayMS          int
	TypingDurationMS int
}

// Personality tunes the content-enrichment pass.
type Personality struct {
	EmojiUsage float64 // [0,1] probability of appending an emoji suffix
	Formality  float64 // [0,1] probability of a formal prefix phrase
}

// Profile is a per-tier (or per-agent override) behavior profile.
type Profile struct {
	TypingSpeed        float64 // chars/sec proxy
	MinResponseDelayMS int
	MaxResponseDelayMS int
	TypingVariability  float64 // [0,1], width of the randomFactor band
	Patterns           map[session.ResponseType]ResponsePattern
	Personality        Personality
}

// DefaultProfiles returns the built-in per-tier profiles used when no
// custom profile is configured for an agent, escalating response speed
// and formality with tier.
func DefaultProfiles() map[int]Profile {
	return map[int]Profile{
		0: tierProfile(900, 300, 20000, 0.4, 0.1, 0.05),
		1: tierProfile(1200, 1500, 6000, 0.35, 0.2, 0.1),
		2: tierProfile(1500, 1200, 8000, 0.3, 0.3, 0.2),
		3: tierProfile(1800, 1000, 10000, 0.25, 0.4, 0.35),
		4: tierProfile(2000, 800, 12000, 0.2, 0.5, 0.5),
	}
}

func tierProfile(typingSpeed float64, minDelayMS, maxDelayMS int, variability, emoji, formality float64) Profile {
	return Profile{
		TypingSpeed:        typingSpeed,
		MinResponseDelayMS: minDelayMS,
		MaxResponseDelayMS: maxDelayMS,
		TypingVariability:  variability,
		Personality: Personality{
			EmojiUsage: emoji,
			Formality:  formality,
		},
		Patterns: map[session.ResponseType]ResponsePattern{
			session.ResponseGreeting:      {DelayMS: 800, TypingDurationMS: 1200},
			session.ResponseSimpleAnswer:  {DelayMS: 1500, TypingDurationMS: 2000},
			session.ResponseComplexAnswer: {DelayMS: 3000, TypingDurationMS: 5000},
			session.ResponseEscalation:    {DelayMS: 1000, TypingDurationMS: 1500},
		},
	}
}
