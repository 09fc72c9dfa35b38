package config

import (
	"fmt"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/convo"
)

// Validator performs fail-fast validation over a resolved Config. Each
// stage appends every error it finds, so a broken file reports all of its
// problems in one run rather than one per attempt.
type Validator struct {
	cfg    *Config
	errors []error
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// validate runs all stages over cfg.
func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

// ValidateAll runs every validation stage and returns the accumulated
// errors, if any.
func (v *Validator) ValidateAll() error {
	v.validateOptions()
	v.validateRules()
	v.validateScorecards()
	v.validatePrompts()
	v.validateStealthProfiles()
	v.validateKnowledge()

	if len(v.errors) == 0 {
		return nil
	}
	err := ErrValidationFailed
	for _, e := range v.errors {
		err = fmt.Errorf("%w; %v", err, e)
	}
	return err
}

func (v *Validator) addError(component, id, field string, err error) {
	v.errors = append(v.errors, NewValidationError(component, id, field, err))
}

func (v *Validator) validateOptions() {
	o := v.cfg.Options
	if o.StealthMaxResponseDelayMS < 0 {
		v.addError("option", "stealth_max_response_delay_ms", "", ErrInvalidValue)
	}
	if o.QueueBackpressureSoft < 0 {
		v.addError("option", "queue_backpressure_soft_limit", "", ErrInvalidValue)
	}
	if o.QAPassThreshold < 0 || o.QAPassThreshold > 100 {
		v.addError("option", "qa_pass_threshold", "", ErrInvalidValue)
	}
}

func (v *Validator) validateRules() {
	seen := make(map[string]bool, len(v.cfg.EscalationRules))
	for _, r := range v.cfg.EscalationRules {
		if err := r.Validate(); err != nil {
			v.addError("escalation_rule", r.ID, "", err)
			continue
		}
		if seen[r.ID] {
			v.addError("escalation_rule", r.ID, "id", fmt.Errorf("%w: duplicate", ErrInvalidValue))
		}
		seen[r.ID] = true
		if r.SLA <= 0 {
			v.addError("escalation_rule", r.ID, "sla", fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
	}
}

func (v *Validator) validateScorecards() {
	seen := make(map[string]bool, len(v.cfg.Scorecards))
	for _, sc := range v.cfg.Scorecards {
		if err := sc.Validate(); err != nil {
			v.addError("scorecard", sc.ID, "", err)
			continue
		}
		if seen[sc.ID] {
			v.addError("scorecard", sc.ID, "id", fmt.Errorf("%w: duplicate", ErrInvalidValue))
		}
		seen[sc.ID] = true
	}
}

func (v *Validator) validatePrompts() {
	for _, p := range v.cfg.Prompts {
		if p.ID == "" {
			v.addError("prompt", "(unnamed)", "id", ErrMissingRequiredField)
			continue
		}
		if p.Escalation.Threshold < 0 || p.Escalation.Threshold > 1 {
			v.addError("prompt", p.ID, "escalation.threshold", ErrInvalidValue)
		}
		// Compile verifies every extraction pattern parses; a copy is
		// compiled so validation stays side-effect free.
		cp := p
		cp.Flow = append([]convo.Step(nil), p.Flow...)
		if err := cp.Compile(); err != nil {
			v.addError("prompt", p.ID, "extraction_patterns", err)
		}
	}
}

func (v *Validator) validateStealthProfiles() {
	for t, p := range v.cfg.StealthProfiles {
		id := fmt.Sprintf("tier-%d", t)
		if p.TypingSpeed <= 0 {
			v.addError("stealth_profile", id, "typing_speed", ErrInvalidValue)
		}
		if p.MinResponseDelayMS < 0 || p.MaxResponseDelayMS < p.MinResponseDelayMS {
			v.addError("stealth_profile", id, "response_delay", ErrInvalidValue)
		}
		if p.TypingVariability < 0 || p.TypingVariability > 1 {
			v.addError("stealth_profile", id, "typing_variability", ErrInvalidValue)
		}
	}
}

func (v *Validator) validateKnowledge() {
	for _, k := range v.cfg.Knowledge {
		if k.ID == "" {
			v.addError("knowledge", "(unnamed)", "id", ErrMissingRequiredField)
		}
		if k.AccessTier < 0 || k.AccessTier > 4 {
			v.addError("knowledge", k.ID, "access_tier", ErrInvalidValue)
		}
	}
}
