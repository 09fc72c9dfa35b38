package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/convo"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/escalation"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/knowledge"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/qa"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/session"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/stealth"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/tier"
)

// dispatchYAMLName is the single configuration file the loader reads from
// configDir. A missing file is not an error — the built-in configuration
// serves alone.
const dispatchYAMLName = "dispatch.yaml"

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load dispatch.yaml from configDir (optional)
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in + user-defined configuration
//  5. Convert YAML records into domain types
//  6. Validate all configuration
//  7. Return Config ready for use
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	raw, err := loadDispatchYAML(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg, err := resolve(configDir, raw)
	if err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"escalation_rules", stats.EscalationRules,
		"scorecards", stats.Scorecards,
		"extra_prompts", stats.Prompts,
		"stealth_profiles", stats.StealthProfiles,
		"knowledge_seeds", stats.KnowledgeSeeds)

	return cfg, nil
}

func loadDispatchYAML(configDir string) (*DispatchYAMLConfig, error) {
	var raw DispatchYAMLConfig

	path := filepath.Join(configDir, dispatchYAMLName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &raw, nil
		}
		return nil, NewLoadError(dispatchYAMLName, err)
	}

	data = expandEnv(data)

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, NewLoadError(dispatchYAMLName, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return &raw, nil
}

// expandEnv expands ${VAR} / $VAR references in dispatch.yaml before
// parsing, so values like notification webhook tokens or a knowledge-base
// owner contact can live in the environment (or the .env file loaded by
// the CLI) rather than in the committed file. Missing variables expand to
// empty string; the Validator catches required fields left empty.
func expandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

// resolve merges built-in configuration with the parsed YAML and converts
// everything to domain types. User records with the same ID override their
// built-in counterpart; unknown IDs extend the set.
func resolve(configDir string, raw *DispatchYAMLConfig) (*Config, error) {
	opts := resolveOptions(raw.Options)

	rules, err := mergeRules(BuiltinEscalationRules(), raw.EscalationRules)
	if err != nil {
		return nil, err
	}

	scorecards, err := mergeScorecards(qa.BuiltinScorecards(), raw.Scorecards)
	if err != nil {
		return nil, err
	}
	// qa_pass_threshold is the default passing score; scorecards that set
	// their own keep it.
	for i := range scorecards {
		if scorecards[i].PassingScore == 0 {
			scorecards[i].PassingScore = opts.QAPassThreshold
		}
	}

	prompts := make([]convo.PromptConfig, 0, len(raw.Prompts))
	for _, p := range raw.Prompts {
		prompts = append(prompts, promptFromYAML(p))
	}

	profiles, err := mergeStealthProfiles(stealth.DefaultProfiles(), raw.StealthProfiles)
	if err != nil {
		return nil, err
	}
	// stealth_max_response_delay_ms caps every profile's delay ceiling.
	if opts.StealthMaxResponseDelayMS > 0 {
		for t, p := range profiles {
			if p.MaxResponseDelayMS > opts.StealthMaxResponseDelayMS {
				p.MaxResponseDelayMS = opts.StealthMaxResponseDelayMS
			}
			if p.MinResponseDelayMS > p.MaxResponseDelayMS {
				p.MinResponseDelayMS = p.MaxResponseDelayMS
			}
			profiles[t] = p
		}
	}

	entries := make([]knowledge.Entry, 0, len(raw.Knowledge))
	for _, k := range raw.Knowledge {
		entries = append(entries, knowledge.Entry{
			ID:          k.ID,
			Title:       k.Title,
			Content:     k.Content,
			AccessTier:  k.AccessTier,
			Tags:        k.Tags,
			Owner:       k.Owner,
			ReviewCycle: k.ReviewCycle,
			Version:     k.Version,
			LastUpdated: time.Now().UnixMilli(),
		})
	}

	return &Config{
		configDir:       configDir,
		Options:         opts,
		EscalationRules: rules,
		Scorecards:      scorecards,
		Prompts:         prompts,
		StealthProfiles: profiles,
		Knowledge:       entries,
	}, nil
}

func resolveOptions(o *OptionsYAML) Options {
	opts := DefaultOptions()
	if o == nil {
		return opts
	}
	if o.StealthEnabled != nil {
		opts.StealthEnabled = *o.StealthEnabled
	}
	if o.StealthMaxResponseDelayMS != nil {
		opts.StealthMaxResponseDelayMS = *o.StealthMaxResponseDelayMS
	}
	if o.QueueBackpressureSoft != nil {
		opts.QueueBackpressureSoft = *o.QueueBackpressureSoft
	}
	if o.QAPassThreshold != nil {
		opts.QAPassThreshold = *o.QAPassThreshold
	}
	if o.EscalationAutoReenqueue != nil {
		opts.EscalationAutoReenqueue = *o.EscalationAutoReenqueue
	}
	return opts
}

func mergeRules(builtin []escalation.Rule, user []EscalationRuleYAML) ([]escalation.Rule, error) {
	out := append([]escalation.Rule(nil), builtin...)
	for _, ry := range user {
		rule, err := ruleFromYAML(ry)
		if err != nil {
			return nil, err
		}
		replaced := false
		for i, existing := range out {
			if existing.ID == rule.ID {
				out[i] = rule
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, rule)
		}
	}
	return out, nil
}

func ruleFromYAML(ry EscalationRuleYAML) (escalation.Rule, error) {
	sla, err := time.ParseDuration(ry.SLA)
	if err != nil {
		return escalation.Rule{}, NewValidationError("escalation_rule", ry.ID, "sla",
			fmt.Errorf("%w: %v", ErrInvalidValue, err))
	}
	return escalation.Rule{
		ID:                   ry.ID,
		Name:                 ry.Name,
		Triggers:             ry.Triggers,
		FromTier:             tier.Tier(ry.FromTier),
		ToTier:               tier.Tier(ry.ToTier),
		Priority:             escalation.Priority(ry.Priority),
		AutoEscalate:         ry.AutoEscalate,
		NotificationRequired: ry.NotificationRequired,
		SLA:                  sla,
	}, nil
}

func mergeScorecards(builtin []qa.Scorecard, user []ScorecardYAML) ([]qa.Scorecard, error) {
	out := append([]qa.Scorecard(nil), builtin...)
	for _, sy := range user {
		sc := scorecardFromYAML(sy)
		replaced := false
		for i, existing := range out {
			if existing.ID == sc.ID {
				out[i] = sc
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, sc)
		}
	}
	return out, nil
}

func scorecardFromYAML(sy ScorecardYAML) qa.Scorecard {
	criteria := make([]qa.Criterion, len(sy.Criteria))
	for i, cy := range sy.Criteria {
		subs := make([]qa.SubCriterion, len(cy.SubCriteria))
		for j, sub := range cy.SubCriteria {
			subs[j] = qa.SubCriterion{Name: sub.Name, Points: sub.Points}
		}
		criteria[i] = qa.Criterion{
			ID:          cy.ID,
			Name:        cy.Name,
			Weight:      cy.Weight,
			MaxScore:    cy.MaxScore,
			Required:    cy.Required,
			AutoFail:    cy.AutoFail,
			SubCriteria: subs,
		}
	}
	return qa.Scorecard{
		ID:               sy.ID,
		Name:             sy.Name,
		Version:          sy.Version,
		PassingScore:     sy.PassingScore,
		AutoFailCriteria: sy.AutoFailCriteria,
		Criteria:         criteria,
	}
}

func promptFromYAML(py PromptYAML) convo.PromptConfig {
	flow := make([]convo.Step, len(py.Flow))
	for i, sy := range py.Flow {
		flow[i] = convo.Step{
			Index:              i + 1,
			Purpose:            sy.Purpose,
			Messages:           sy.Messages,
			Collects:           sy.Collects,
			ExtractionPatterns: sy.ExtractionPatterns,
		}
	}
	return convo.PromptConfig{
		ID: py.ID,
		AgentPersona: convo.AgentPersona{
			Name:  py.Persona.Name,
			Tone:  py.Persona.Tone,
			Style: py.Persona.Style,
		},
		Scope: convo.Scope{
			PrimaryFunction:    py.Scope.PrimaryFunction,
			Boundaries:         py.Scope.Boundaries,
			MaxMessages:        py.Scope.MaxMessages,
			EscalationTriggers: py.Scope.EscalationTriggers,
		},
		Flow: flow,
		Escalation: convo.EscalationConfig{
			Threshold: py.Escalation.Threshold,
			Message:   py.Escalation.Message,
			NextSteps: py.Escalation.NextSteps,
		},
	}
}

// mergeStealthProfiles layers per-tier YAML overrides on top of the
// built-in profiles: non-zero override fields win, unset fields keep the
// default (mergo.WithOverride).
func mergeStealthProfiles(builtin map[int]stealth.Profile, user map[int]StealthProfileYAML) (map[int]stealth.Profile, error) {
	out := make(map[int]stealth.Profile, len(builtin))
	for t, p := range builtin {
		out[t] = p
	}
	for t, oy := range user {
		base := out[t]
		override := stealthProfileFromYAML(oy)
		if err := mergo.Merge(&base, override, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge stealth profile for tier %d: %w", t, err)
		}
		out[t] = base
	}
	return out, nil
}

func stealthProfileFromYAML(oy StealthProfileYAML) stealth.Profile {
	p := stealth.Profile{
		TypingSpeed:        oy.TypingSpeed,
		MinResponseDelayMS: oy.MinResponseDelayMS,
		MaxResponseDelayMS: oy.MaxResponseDelayMS,
		TypingVariability:  oy.TypingVariability,
		Personality: stealth.Personality{
			EmojiUsage: oy.EmojiUsage,
			Formality:  oy.Formality,
		},
	}
	if len(oy.Patterns) > 0 {
		p.Patterns = make(map[session.ResponseType]stealth.ResponsePattern, len(oy.Patterns))
		for rt, pat := range oy.Patterns {
			p.Patterns[session.ResponseType(rt)] = stealth.ResponsePattern{
				DelayMS:          pat.DelayMS,
				TypingDurationMS: pat.TypingDurationMS,
			}
		}
	}
	return p
}
