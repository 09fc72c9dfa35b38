// Package config loads and validates the dispatch core's configuration:
// escalation rules, QA scorecards, prompt configs, stealth profiles,
// seeded knowledge entries, and the recognized runtime options. Optional
// YAML is merged over built-in data, expanded for environment variables,
// validated fail-fast, and frozen into registries.
package config

import (
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/convo"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/escalation"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/knowledge"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/qa"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/stealth"
)

// Options are the recognized runtime options, resolved from built-in
// defaults plus any dispatch.yaml overrides.
type Options struct {
	StealthEnabled            bool
	StealthMaxResponseDelayMS int
	QueueBackpressureSoft     int // advisory
	QAPassThreshold           float64
	EscalationAutoReenqueue   bool
}

// Config is the loaded, validated configuration, ready for pkg/core to
// wire into components. All registries are immutable after Initialize.
type Config struct {
	configDir string

	Options         Options
	EscalationRules []escalation.Rule
	Scorecards      []qa.Scorecard
	Prompts         []convo.PromptConfig // extra prompts on top of the built-ins
	StealthProfiles map[int]stealth.Profile
	Knowledge       []knowledge.Entry
}

// Stats summarizes loaded configuration for logging and health endpoints.
type Stats struct {
	EscalationRules int
	Scorecards      int
	Prompts         int
	StealthProfiles int
	KnowledgeSeeds  int
}

// Stats returns counts of loaded configuration.
func (c *Config) Stats() Stats {
	return Stats{
		EscalationRules: len(c.EscalationRules),
		Scorecards:      len(c.Scorecards),
		Prompts:         len(c.Prompts),
		StealthProfiles: len(c.StealthProfiles),
		KnowledgeSeeds:  len(c.Knowledge),
	}
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// DefaultOptions returns the built-in option values.
func DefaultOptions() Options {
	return Options{
		StealthEnabled:            DefaultStealthEnabled,
		StealthMaxResponseDelayMS: DefaultStealthMaxDelayMS,
		QueueBackpressureSoft:     DefaultQueueBackpressureSoft,
		QAPassThreshold:           DefaultQAPassThreshold,
		EscalationAutoReenqueue:   DefaultEscalationAutoReenqueue,
	}
}
