package dbstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/session"
)

func TestContextCodecPreservesState(t *testing.T) {
	in := session.ConversationContext{
		PromptID:           "ocint-victim-report",
		CurrentStep:        3,
		ExtractedFields:    map[string]string{"victim_name": "John Smith"},
		CustomerIntent:     "report_theft",
		IssueCategory:      "crypto_theft",
		EscalationTriggers: []string{"legal"},
		MessageCount:       7,
	}

	raw, err := marshalContext(in)
	require.NoError(t, err)
	out, err := unmarshalContext(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestContextCodecEmptyFieldsStayUsable(t *testing.T) {
	out, err := unmarshalContext([]byte(`{}`))
	require.NoError(t, err)
	// The decoded context must be writable without a nil-map panic.
	out.ExtractedFields["k"] = "v"
	assert.Equal(t, "v", out.ExtractedFields["k"])
}

func TestHistoryCodecKeepsOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := []session.EscalationEntry{
		{Ts: base, Reason: "technical", FromTier: 1, ToTier: 2, RuleID: "technical_complexity", Priority: 5, SLA: base.Add(time.Hour)},
		{Ts: base.Add(time.Minute), Reason: "legal threat", FromTier: 2, ToTier: 4, RuleID: "legal_issue", Priority: 6, SLA: base.Add(15 * time.Minute)},
	}

	raw, err := marshalHistory(in)
	require.NoError(t, err)
	out, err := unmarshalHistory(raw)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in, out)
}
