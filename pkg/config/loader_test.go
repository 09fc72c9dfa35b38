package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/tier"
)

func writeDispatchYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, dispatchYAMLName), []byte(content), 0o600))
	return dir
}

func TestInitializeWithoutFileUsesBuiltins(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultOptions(), cfg.Options)
	assert.Len(t, cfg.EscalationRules, len(BuiltinEscalationRules()))
	assert.NotEmpty(t, cfg.Scorecards)
	assert.Empty(t, cfg.Prompts)
	assert.Len(t, cfg.StealthProfiles, 5)
}

func TestInitializeMergesUserRules(t *testing.T) {
	dir := writeDispatchYAML(t, `
options:
  stealth_enabled: false
  qa_pass_threshold: 85
escalation_rules:
  - id: legal_issue
    name: Legal issue (override)
    triggers: ["legal", "subpoena"]
    from_tier: 1
    to_tier: 4
    priority: critical
    sla: 20m
  - id: billing_dispute
    name: Billing dispute
    triggers: ["chargeback"]
    from_tier: 1
    to_tier: 2
    priority: medium
    sla: 2h
`)
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.False(t, cfg.Options.StealthEnabled)
	assert.InDelta(t, 85.0, cfg.Options.QAPassThreshold, 1e-9)
	// Same count + 1: legal_issue replaced in place, billing_dispute added.
	assert.Len(t, cfg.EscalationRules, len(BuiltinEscalationRules())+1)
	for _, r := range cfg.EscalationRules {
		if r.ID == "legal_issue" {
			assert.Equal(t, "Legal issue (override)", r.Name)
			assert.Contains(t, r.Triggers, "subpoena")
		}
	}
}

func TestInitializeRejectsBadSLA(t *testing.T) {
	dir := writeDispatchYAML(t, `
escalation_rules:
  - id: broken
    triggers: ["x"]
    from_tier: 1
    to_tier: 2
    sla: not-a-duration
`)
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestInitializeRejectsInvalidRuleTiers(t *testing.T) {
	dir := writeDispatchYAML(t, `
escalation_rules:
  - id: inverted
    triggers: ["x"]
    from_tier: 3
    to_tier: 2
    sla: 5m
`)
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestStealthProfileOverrideMergesOverDefault(t *testing.T) {
	dir := writeDispatchYAML(t, `
stealth_profiles:
  1:
    max_response_delay_ms: 9000
`)
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	p := cfg.StealthProfiles[1]
	assert.Equal(t, 9000, p.MaxResponseDelayMS)
	// Unset fields keep the tier-1 defaults.
	assert.Equal(t, 1500, p.MinResponseDelayMS)
	assert.NotEmpty(t, p.Patterns)
}

func TestPromptFromYAMLCompiles(t *testing.T) {
	dir := writeDispatchYAML(t, `
prompts:
  - id: warranty-claim
    scope:
      max_messages: 20
    conversation_flow:
      - purpose: identify product
        collects: [product_serial]
        extraction_patterns:
          product_serial: 'serial\s+(\w+)'
    escalation:
      threshold: 0.8
`)
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, cfg.Prompts, 1)
	assert.Equal(t, "warranty-claim", cfg.Prompts[0].ID)
	assert.Equal(t, 1, cfg.Prompts[0].Flow[0].Index)
}

func TestRuleFromYAMLFields(t *testing.T) {
	rule, err := ruleFromYAML(EscalationRuleYAML{
		ID: "r1", Triggers: []string{"a"}, FromTier: 1, ToTier: 3,
		Priority: "high", AutoEscalate: true, NotificationRequired: true, SLA: "45m",
	})
	require.NoError(t, err)
	assert.Equal(t, tier.TierThree, rule.ToTier)
	assert.True(t, rule.AutoEscalate)
	assert.Equal(t, "45m0s", rule.SLA.String())
}
