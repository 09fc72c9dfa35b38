package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/agentdir"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/events"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/queue"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/session"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/tier"
)

func newFixture(t *testing.T) (*queue.Queue, *session.MemStore, *agentdir.Directory, *Dispatcher) {
	t.Helper()
	q := queue.New()
	bus := events.NewBus(nil)
	store := session.NewMemStore(nil, bus)
	dir := agentdir.NewDirectory()
	d := New(q, store, dir, bus, nil)
	return q, store, dir, d
}

func mustCreate(t *testing.T, store *session.MemStore, urgency session.Urgency) session.Session {
	t.Helper()
	s, err := store.Create(session.CustomerData{
		Customer: session.Customer{ID: "cust-1", Tier: session.CustomerStandard},
		Urgency:  urgency,
	})
	require.NoError(t, err)
	return s
}

// TestAssignmentExclusivity: each busy agent has exactly one
// currentSessionId and each active session has exactly one
// assignedAgentId.
func TestAssignmentExclusivity(t *testing.T) {
	q, store, dir, d := newFixture(t)

	require.NoError(t, dir.Create(agentdir.Agent{ID: "agent-1", Tier: tier.TierOne, Status: agentdir.StatusAvailable}))
	s := mustCreate(t, store, session.UrgencyLow)
	q.Enqueue(queue.Item{SessionID: s.ID, Priority: s.Priority, CreatedAt: s.CreatedAt, Tier: s.Tier})

	d.Tick()

	agent, err := dir.Get("agent-1")
	require.NoError(t, err)
	assert.Equal(t, agentdir.StatusBusy, agent.Status)
	assert.Equal(t, s.ID, agent.CurrentSessionID)

	got, err := store.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, got.Status)
	assert.Equal(t, "agent-1", got.AssignedAgentID)
	assert.Zero(t, q.Length())
}

func TestTickLeavesHeadInPlaceWhenNoEligibleAgent(t *testing.T) {
	q, store, _, d := newFixture(t)
	s := mustCreate(t, store, session.UrgencyLow)
	q.Enqueue(queue.Item{SessionID: s.ID, Priority: s.Priority, CreatedAt: s.CreatedAt, Tier: s.Tier})

	d.Tick()

	assert.Equal(t, 1, q.Length())
	pos, ok := q.Position(s.ID)
	require.True(t, ok)
	assert.Equal(t, 1, pos)
}

func TestSelectAgentPrefersLongestIdleAtHighestTier(t *testing.T) {
	_, _, dir, d := newFixture(t)
	require.NoError(t, dir.Create(agentdir.Agent{ID: "t1-new", Tier: tier.TierOne, Status: agentdir.StatusAvailable, LastAvailable: 200}))
	require.NoError(t, dir.Create(agentdir.Agent{ID: "t1-old", Tier: tier.TierOne, Status: agentdir.StatusAvailable, LastAvailable: 100}))
	require.NoError(t, dir.Create(agentdir.Agent{ID: "t2", Tier: tier.TierTwo, Status: agentdir.StatusAvailable, LastAvailable: 50}))

	agent, ok := d.selectAgent(1)
	require.True(t, ok)
	assert.Equal(t, "t2", agent.ID, "highest tier wins regardless of idle time")
}

func TestDispatchOrderFollowsQueueOrderWithinOneTick(t *testing.T) {
	q, store, dir, d := newFixture(t)
	require.NoError(t, dir.Create(agentdir.Agent{ID: "a1", Tier: tier.TierOne, Status: agentdir.StatusAvailable}))
	require.NoError(t, dir.Create(agentdir.Agent{ID: "a2", Tier: tier.TierOne, Status: agentdir.StatusAvailable}))

	s1 := mustCreate(t, store, session.UrgencyCritical) // priority 4
	time.Sleep(time.Millisecond)
	s2 := mustCreate(t, store, session.UrgencyLow)
	q.Enqueue(queue.Item{SessionID: s1.ID, Priority: s1.Priority, CreatedAt: s1.CreatedAt, Tier: s1.Tier})
	q.Enqueue(queue.Item{SessionID: s2.ID, Priority: s2.Priority, CreatedAt: s2.CreatedAt, Tier: s2.Tier})

	d.Tick()

	got1, err := store.Get(s1.ID)
	require.NoError(t, err)
	got2, err := store.Get(s2.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, got1.Status)
	assert.Equal(t, session.StatusActive, got2.Status)
	require.NotNil(t, got1.AssignedAt)
	require.NotNil(t, got2.AssignedAt)
	assert.False(t, got1.AssignedAt.After(*got2.AssignedAt), "queue head is assigned first")
	assert.Zero(t, q.Length())
}

func TestStartStopLoop(t *testing.T) {
	q, store, dir, d := newFixture(t)
	require.NoError(t, dir.Create(agentdir.Agent{ID: "agent-1", Tier: tier.TierOne, Status: agentdir.StatusAvailable}))
	d.Start(nil)
	defer d.Stop()

	s := mustCreate(t, store, session.UrgencyLow)
	q.Enqueue(queue.Item{SessionID: s.ID, Priority: s.Priority, CreatedAt: s.CreatedAt, Tier: s.Tier})

	require.Eventually(t, func() bool {
		got, err := store.Get(s.ID)
		return err == nil && got.Status == session.StatusActive
	}, time.Second, 5*time.Millisecond)
}
