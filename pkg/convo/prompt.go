// Package convo implements the prompt-driven conversation runtime:
// PromptConfig/Step data types, deterministic field extraction, step
// completion, and escalation-threshold evaluation. Extraction patterns
// are precompiled once per prompt at registration.
package convo

import (
	"regexp"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
)

// AgentPersona describes the voice a PromptConfig's agent responses use.
type AgentPersona struct {
	Name  string
	Tone  string
	Style string
}

// Scope bounds what a PromptConfig's flow is allowed to do.
type Scope struct {
	PrimaryFunction    string
	Boundaries         []string
	MaxMessages        int
	EscalationTriggers []string
}

// Step is one stage of a PromptConfig's conversation_flow: a 1-indexed
// purpose with messages to show the customer, a set of fields it wants to
// collect, and the regular expressions used to extract them from whatever
// the customer types back.
type Step struct {
	Index              int
	Purpose            string
	Messages           []string
	Collects           []string
	ExtractionPatterns map[string]string // field -> regex source

	compiled map[string]*regexp.Regexp
}

// compile precompiles every extraction pattern in the step. Called once by
// PromptConfig.Compile at registration time.
func (s *Step) compile() error {
	s.compiled = make(map[string]*regexp.Regexp, len(s.ExtractionPatterns))
	for field, pattern := range s.ExtractionPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return coreerr.NewValidationError("extraction_patterns["+field+"]", err.Error())
		}
		s.compiled[field] = re
	}
	return nil
}

// EscalationConfig is a PromptConfig's overall-completion escalation rule.
type EscalationConfig struct {
	Threshold float64
	Message   string
	NextSteps []string
}

// PromptConfig is a named, step-wise information-gathering flow.
type PromptConfig struct {
	ID           string
	AgentPersona AgentPersona
	Scope        Scope
	Flow         []Step
	Escalation   EscalationConfig
}

// Compile precompiles every step's extraction patterns in place. Must be
// called once before the PromptConfig is used by a Runtime — Registry.Register
// does this automatically.
func (p *PromptConfig) Compile() error {
	for i := range p.Flow {
		if err := p.Flow[i].compile(); err != nil {
			return err
		}
	}
	return nil
}

// totalCollectedFields is the denominator for the overall completion
// ratio used by escalation-threshold evaluation: the sum of each step.s
// collects count. Steps with zero collected fields contribute nothing to
// the denominator.
func (p *PromptConfig) totalCollectedFields() int {
	total := 0
	for _, step := range p.Flow {
		if len(step.Collects) == 0 {
			continue
		}
		total += len(step.Collects)
	}
	return total
}

// StepAt returns the step at the given 1-indexed position, or false if out
// of range.
func (p *PromptConfig) StepAt(index int) (Step, bool) {
	if index < 1 || index > len(p.Flow) {
		return Step{}, false
	}
	return p.Flow[index-1], true
}
