package knowledge

import (
	"testing"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register(Entry{ID: "k1", Title: "Refund Policy", Tags: []string{"billing"}, AccessTier: 0}))
	require.NoError(t, r.Register(Entry{ID: "k2", Title: "Escalation Playbook", Tags: []string{"internal"}, AccessTier: 2}))
	require.NoError(t, r.Register(Entry{ID: "k3", Title: "Crypto Theft Runbook", Tags: []string{"crypto", "fraud"}, AccessTier: 4}))
	return r
}

func TestRegistry_ListForTier_NeverExceedsCallerTier(t *testing.T) {
	r := seedRegistry(t)

	views := r.ListForTier(2)
	ids := make(map[string]bool)
	for _, v := range views {
		ids[v.ID] = true
		assert.LessOrEqual(t, v.AccessTier, 2)
	}
	assert.True(t, ids["k1"])
	assert.True(t, ids["k2"])
	assert.False(t, ids["k3"])
}

func TestRegistry_ListForTier_EditApproveFlags(t *testing.T) {
	r := seedRegistry(t)

	for _, v := range r.ListForTier(3) {
		assert.True(t, v.CanEdit)
		assert.False(t, v.CanApprove)
	}
	for _, v := range r.ListForTier(4) {
		assert.True(t, v.CanEdit)
		assert.True(t, v.CanApprove)
	}
	for _, v := range r.ListForTier(1) {
		assert.False(t, v.CanEdit)
		assert.False(t, v.CanApprove)
	}
}

func TestRegistry_Search_CaseInsensitiveAndTierFiltered(t *testing.T) {
	r := seedRegistry(t)

	results := r.Search("CRYPTO", 4)
	require.Len(t, results, 1)
	assert.Equal(t, "k3", results[0].ID)

	results = r.Search("crypto", 2)
	assert.Empty(t, results, "tier 2 caller must not see the tier-4 entry even on a matching search")
}

func TestRegistry_Register_ValidatesAccessTier(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Entry{ID: "bad", AccessTier: 9})
	require.Error(t, err)
	assert.True(t, coreerr.IsValidationError(err))
}

func TestRegistry_Get_NotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing")
	require.Error(t, err)
	assert.True(t, coreerr.IsNotFound(err))
}
