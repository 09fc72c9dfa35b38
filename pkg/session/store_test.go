package session

import (
	"testing"
	"time"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_Create_SetsWaitingAndPriority(t *testing.T) {
	st := NewMemStore(nil, nil)
	s, err := st.Create(CustomerData{Urgency: UrgencyHigh, Category: "crypto_theft"})
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, s.Status)
	assert.Equal(t, 7, s.Priority)
	assert.Equal(t, 1, s.Tier)
}

func TestMemStore_AppendMessage_RejectedAfterCompletion(t *testing.T) {
	st := NewMemStore(nil, nil)
	s, err := st.Create(CustomerData{})
	require.NoError(t, err)

	_, err = st.Complete(s.ID, time.Now())
	require.NoError(t, err)

	_, err = st.AppendMessage(s.ID, Message{Role: RoleCustomer, Content: "hello"})
	require.Error(t, err)
	assert.True(t, coreerr.IsConflict(err))
}

func TestMemStore_Complete_IdempotentNoOp(t *testing.T) {
	st := NewMemStore(nil, nil)
	s, err := st.Create(CustomerData{})
	require.NoError(t, err)

	first, err := st.Complete(s.ID, time.Now())
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	second, err := st.Complete(s.ID, time.Now())
	require.NoError(t, err)

	assert.Equal(t, first.CompletedAt, second.CompletedAt)
	assert.Equal(t, first.ResolutionTimeMS, second.ResolutionTimeMS)
}

func TestMemStore_Escalate_TierOnlyIncreases(t *testing.T) {
	st := NewMemStore(nil, nil)
	s, err := st.Create(CustomerData{})
	require.NoError(t, err)

	_, err = st.Escalate(s.ID, "legal threat", 4, "legal_issue", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = st.Escalate(s.ID, "demote", 1, "bad_rule", time.Now())
	require.Error(t, err)
	assert.True(t, coreerr.IsValidationError(err))
}

func TestMemStore_Escalate_AppendsHistoryAndSetsSLA(t *testing.T) {
	st := NewMemStore(nil, nil)
	s, err := st.Create(CustomerData{})
	require.NoError(t, err)

	sla := time.Now().Add(30 * time.Minute)
	got, err := st.Escalate(s.ID, "legal threat", 4, "legal_issue", sla)
	require.NoError(t, err)
	require.Len(t, got.EscalationHistory, 1)
	assert.Equal(t, 1, got.EscalationHistory[0].FromTier)
	assert.Equal(t, 4, got.EscalationHistory[0].ToTier)
	assert.Equal(t, StatusEscalated, got.Status)
	require.NotNil(t, got.EscalationSLA)
	assert.WithinDuration(t, sla, *got.EscalationSLA, time.Millisecond)
}

func TestMemStore_Assign_RejectsAlreadyActive(t *testing.T) {
	st := NewMemStore(nil, nil)
	s, err := st.Create(CustomerData{})
	require.NoError(t, err)

	_, err = st.Assign(s.ID, "agent-1")
	require.NoError(t, err)

	_, err = st.Assign(s.ID, "agent-2")
	require.Error(t, err)
	assert.True(t, coreerr.IsConflict(err))
}

func TestMemStore_ListWaitingAndActive(t *testing.T) {
	st := NewMemStore(nil, nil)
	waiting, err := st.Create(CustomerData{})
	require.NoError(t, err)
	active, err := st.Create(CustomerData{})
	require.NoError(t, err)
	_, err = st.Assign(active.ID, "agent-1")
	require.NoError(t, err)

	w := st.ListWaiting()
	a := st.ListActive()
	require.Len(t, w, 1)
	require.Len(t, a, 1)
	assert.Equal(t, waiting.ID, w[0].ID)
	assert.Equal(t, active.ID, a[0].ID)
}

func TestMemStore_Clone_IsolatesCallerMutation(t *testing.T) {
	st := NewMemStore(nil, nil)
	s, err := st.Create(CustomerData{})
	require.NoError(t, err)

	snap, err := st.Get(s.ID)
	require.NoError(t, err)
	snap.Context.ExtractedFields["x"] = "mutated"

	again, err := st.Get(s.ID)
	require.NoError(t, err)
	_, present := again.Context.ExtractedFields["x"]
	assert.False(t, present, "mutating a cloned snapshot must not affect stored state")
}
