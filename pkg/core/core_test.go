package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/agentdir"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/config"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/session"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/tier"
)

func newCore(t *testing.T, mutate func(*config.Config)) *Core {
	t.Helper()
	cfg, err := config.Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)
	if mutate != nil {
		mutate(cfg)
	}
	c, err := New(Deps{Config: cfg})
	require.NoError(t, err)
	return c
}

func startCore(t *testing.T, c *Core) {
	t.Helper()
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Stop)
}

func TestCreateSessionAssignsToAvailableAgent(t *testing.T) {
	c := newCore(t, nil)
	startCore(t, c)

	agentID, err := c.RegisterAgent(agentdir.Agent{Name: "Dana", Tier: tier.TierOne})
	require.NoError(t, err)

	s, err := c.CreateSession(session.CustomerData{Customer: session.Customer{ID: "cust-1"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := c.GetSession(s.ID)
		return err == nil && got.Status == session.StatusActive && got.AssignedAgentID == agentID
	}, 3*time.Second, 10*time.Millisecond, "dispatcher should assign the waiting session")

	agent, err := c.GetAgent(agentID)
	require.NoError(t, err)
	assert.Equal(t, agentdir.StatusBusy, agent.Status)
	assert.Equal(t, s.ID, agent.CurrentSessionID)
}

func TestQueueStatusReflectsPriorityOrder(t *testing.T) {
	c := newCore(t, nil)
	// Not started: no dispatcher drains the queue, so positions are stable.

	low, err := c.CreateSession(session.CustomerData{Customer: session.Customer{ID: "c1"}})
	require.NoError(t, err)
	high, err := c.CreateSession(session.CustomerData{
		Customer: session.Customer{ID: "c2"},
		Category: "crypto_theft",
		Urgency:  session.UrgencyHigh,
	})
	require.NoError(t, err)

	hs, err := c.QueueStatus(high.ID)
	require.NoError(t, err)
	ls, err := c.QueueStatus(low.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, hs.Position)
	assert.Equal(t, 2, ls.Position)
	assert.Equal(t, 2, hs.QueueLength)
	assert.Greater(t, ls.EstimatedWait, time.Duration(0))
}

func TestPostCustomerMessageRunsExtraction(t *testing.T) {
	c := newCore(t, nil)

	s, err := c.CreateSession(session.CustomerData{Customer: session.Customer{ID: "victim-1"}})
	require.NoError(t, err)
	require.NoError(t, c.RequestMode(s.ID, "ocint-victim-report"))

	accepted, err := c.PostCustomerMessage(s.ID,
		"My name is John Smith, email me at john@example.com, phone (555) 123-4567")
	require.NoError(t, err)
	assert.True(t, accepted)

	got, err := c.GetSession(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "John Smith", got.Context.ExtractedFields["victim_name"])
	assert.Equal(t, "john@example.com", got.Context.ExtractedFields["victim_email"])
	assert.Equal(t, "(555) 123-4567", got.Context.ExtractedFields["victim_phone"])
	assert.Equal(t, 2, got.Context.CurrentStep)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, session.RoleCustomer, got.Messages[0].Role)
}

func TestRequestModeUnknownPrompt(t *testing.T) {
	c := newCore(t, nil)
	s, err := c.CreateSession(session.CustomerData{Customer: session.Customer{ID: "c1"}})
	require.NoError(t, err)

	err = c.RequestMode(s.ID, "no-such-prompt")
	assert.ErrorIs(t, err, coreerr.ErrNotFound)
}

func TestCompleteSessionFreesAgentAndRejectsAppends(t *testing.T) {
	c := newCore(t, nil)
	startCore(t, c)

	agentID, err := c.RegisterAgent(agentdir.Agent{Name: "Dana", Tier: tier.TierOne})
	require.NoError(t, err)
	s, err := c.CreateSession(session.CustomerData{Customer: session.Customer{ID: "c1"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, err := c.GetSession(s.ID)
		return err == nil && got.Status == session.StatusActive
	}, 3*time.Second, 10*time.Millisecond)

	done, err := c.CompleteSession(s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)

	agent, err := c.GetAgent(agentID)
	require.NoError(t, err)
	assert.Equal(t, agentdir.StatusAvailable, agent.Status)
	assert.Empty(t, agent.CurrentSessionID)

	_, err = c.PostCustomerMessage(s.ID, "one more thing")
	assert.ErrorIs(t, err, coreerr.ErrConflict)

	// Idempotent completion.
	again, err := c.CompleteSession(s.ID)
	require.NoError(t, err)
	assert.Equal(t, done.CompletedAt.Unix(), again.CompletedAt.Unix())
}

func TestPostAgentResponseDirectWhenStealthDisabled(t *testing.T) {
	c := newCore(t, func(cfg *config.Config) {
		cfg.Options.StealthEnabled = false
	})

	agentID, err := c.RegisterAgent(agentdir.Agent{Name: "Dana", Tier: tier.TierOne})
	require.NoError(t, err)
	s, err := c.CreateSession(session.CustomerData{Customer: session.Customer{ID: "c1"}})
	require.NoError(t, err)

	require.NoError(t, c.PostAgentResponse(context.Background(), s.ID, agentID,
		"Your ticket is on file.", session.ResponseSimpleAnswer))

	got, err := c.GetSession(s.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, session.RoleAgent, got.Messages[0].Role)
	assert.Equal(t, "Your ticket is on file.", got.Messages[0].Content)
}

func TestPostAgentResponsePacedWhenStealthEnabled(t *testing.T) {
	c := newCore(t, func(cfg *config.Config) {
		// Shrink the tier-1 profile so the paced response lands fast.
		p := cfg.StealthProfiles[1]
		p.MinResponseDelayMS = 1
		p.MaxResponseDelayMS = 50
		for k, pat := range p.Patterns {
			pat.DelayMS = 10
			pat.TypingDurationMS = 10
			p.Patterns[k] = pat
		}
		cfg.StealthProfiles[1] = p
	})
	startCore(t, c)

	agentID, err := c.RegisterAgent(agentdir.Agent{Name: "Dana", Tier: tier.TierOne})
	require.NoError(t, err)
	s, err := c.CreateSession(session.CustomerData{Customer: session.Customer{ID: "c1"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, err := c.GetSession(s.ID)
		return err == nil && got.Status == session.StatusActive
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, c.PostAgentResponse(context.Background(), s.ID, agentID,
		"your case number is 42.", session.ResponseSimpleAnswer))

	require.Eventually(t, func() bool {
		got, err := c.GetSession(s.ID)
		if err != nil {
			return false
		}
		for _, m := range got.Messages {
			if m.Role == session.RoleAgent {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond, "paced response should land in the session")
}

func TestEscalateSessionManually(t *testing.T) {
	c := newCore(t, nil)

	s, err := c.CreateSession(session.CustomerData{Customer: session.Customer{ID: "c1"}})
	require.NoError(t, err)

	got, err := c.EscalateSession(s.ID, "customer mentioned a formal complaint")
	require.NoError(t, err)
	assert.Equal(t, session.StatusEscalated, got.Status)
	assert.Equal(t, 4, got.Tier)
	require.Len(t, got.EscalationHistory, 1)
	assert.Equal(t, "legal_issue", got.EscalationHistory[0].RuleID)

	_, err = c.EscalateSession(s.ID, "no trigger words here at all")
	assert.ErrorIs(t, err, coreerr.ErrNoMatchingRule)
}

func TestListAgentsFilter(t *testing.T) {
	c := newCore(t, nil)
	_, err := c.RegisterAgent(agentdir.Agent{ID: "a1", Tier: tier.TierOne})
	require.NoError(t, err)
	_, err = c.RegisterAgent(agentdir.Agent{ID: "a2", Tier: tier.TierThree})
	require.NoError(t, err)

	all := c.ListAgents(AgentFilter{})
	assert.Len(t, all, 2)

	t3 := tier.TierThree
	only3 := c.ListAgents(AgentFilter{Tier: &t3})
	require.Len(t, only3, 1)
	assert.Equal(t, "a2", only3[0].ID)

	busy := c.ListAgents(AgentFilter{Status: agentdir.StatusBusy})
	assert.Empty(t, busy)
}

func TestListPromptsIncludesBuiltins(t *testing.T) {
	c := newCore(t, nil)
	prompts := c.ListPrompts()
	assert.Contains(t, prompts, "general-support")
	assert.Contains(t, prompts, "ocint-victim-report")
}
