package qa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
)

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	ev, err := NewEvaluator(BuiltinScorecards(), nil, nil, nil)
	require.NoError(t, err)
	return ev
}

func createGeneralEval(t *testing.T, ev *Evaluator) Evaluation {
	t.Helper()
	e, err := ev.CreateEvaluation(Interaction{
		ID: "interaction-1", AgentID: "agent-1", CustomerID: "cust-1", Channel: "chat",
	}, "general_support", "qa-1")
	require.NoError(t, err)
	return e
}

// perfect scores the criterion at its full sub-criterion points.
func perfect(e Evaluation, critID string) []float64 {
	for _, c := range e.Criteria {
		if c.ID == critID {
			out := make([]float64, len(c.SubScores))
			for i, s := range c.SubScores {
				out[i] = s.Points
			}
			return out
		}
	}
	return nil
}

func TestScorecardValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Scorecard)
		wantErr bool
	}{
		{name: "builtin is valid", mutate: func(*Scorecard) {}},
		{
			name:    "weights must sum to 100",
			mutate:  func(sc *Scorecard) { sc.Criteria[0].Weight += 5 },
			wantErr: true,
		},
		{
			name:    "maxScore must equal sub points",
			mutate:  func(sc *Scorecard) { sc.Criteria[1].MaxScore += 1 },
			wantErr: true,
		},
		{
			name:    "autoFailCriteria must reference known criteria",
			mutate:  func(sc *Scorecard) { sc.AutoFailCriteria = append(sc.AutoFailCriteria, "nope") },
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := BuiltinScorecards()[0]
			tt.mutate(&sc)
			err := sc.Validate()
			if tt.wantErr {
				assert.True(t, coreerr.IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// Perfect scores across the general_support scorecard's six criteria
// yield weightedScore=100 and passed=true.
func TestWeightedScorePerfect(t *testing.T) {
	ev := newEvaluator(t)
	e := createGeneralEval(t, ev)

	for _, c := range e.Criteria {
		var err error
		e, err = ev.ScoreCriterion(e.ID, c.ID, "qa-1", perfect(e, c.ID), "")
		require.NoError(t, err)
	}

	assert.InDelta(t, 100.0, e.WeightedScore, 1e-9)
	assert.True(t, e.Passed)
	assert.False(t, e.AutoFailed)
}

// product_knowledge scored 10/20 (below the 0.8·20=16 pass line) on an
// auto-fail criterion forces autoFailed=true and passed=false regardless
// of the other scores.
func TestAutoFailOverride(t *testing.T) {
	ev := newEvaluator(t)
	e := createGeneralEval(t, ev)

	for _, c := range e.Criteria {
		scores := perfect(e, c.ID)
		if c.ID == "product_knowledge" {
			scores = []float64{5, 5}
		}
		var err error
		e, err = ev.ScoreCriterion(e.ID, c.ID, "qa-1", scores, "")
		require.NoError(t, err)
	}

	assert.True(t, e.AutoFailed)
	assert.Equal(t, "Product Knowledge", e.AutoFailReason)
	assert.False(t, e.Passed)
	assert.Equal(t, StatusAutoFailed, e.Status)
}

// TestWeightedScoreArithmetic checks the weighted aggregation with
// partial scores:
// weightedScore = Σ (score_i/max_i)·w_i / Σ w_i · 100.
func TestWeightedScoreArithmetic(t *testing.T) {
	ev := newEvaluator(t)
	e := createGeneralEval(t, ev)

	// Half points on every criterion => every score_i/max_i is 0.5.
	for _, c := range e.Criteria {
		scores := perfect(e, c.ID)
		for i := range scores {
			scores[i] /= 2
		}
		var err error
		e, err = ev.ScoreCriterion(e.ID, c.ID, "qa-1", scores, "")
		require.NoError(t, err)
	}

	assert.InDelta(t, 50.0, e.WeightedScore, 1e-9)
	assert.False(t, e.Passed) // 50 < passing 80
}

func TestScoreCriterionBounds(t *testing.T) {
	ev := newEvaluator(t)
	e := createGeneralEval(t, ev)

	_, err := ev.ScoreCriterion(e.ID, "greeting", "qa-1", []float64{6, 5}, "")
	assert.True(t, coreerr.IsValidationError(err), "score above sub-criterion points must be rejected")

	_, err = ev.ScoreCriterion(e.ID, "greeting", "qa-1", []float64{5}, "")
	assert.True(t, coreerr.IsValidationError(err), "wrong sub-score count must be rejected")

	_, err = ev.ScoreCriterion(e.ID, "greeting", "qa-2", []float64{5, 5}, "")
	assert.ErrorIs(t, err, coreerr.ErrNotAuthorized, "only the assigned QA agent may score")
}

func TestCompleteUpdatesRunningAverageAndCalibration(t *testing.T) {
	ev := newEvaluator(t)

	// First evaluation completes at 100; the running average becomes 100,
	// so |100-100| <= 15 and no calibration is required.
	e1 := createGeneralEval(t, ev)
	for _, c := range e1.Criteria {
		var err error
		e1, err = ev.ScoreCriterion(e1.ID, c.ID, "qa-1", perfect(e1, c.ID), "")
		require.NoError(t, err)
	}
	e1, err := ev.Complete(e1.ID, "qa-1", "clean interaction", nil)
	require.NoError(t, err)
	assert.False(t, e1.CalibrationRequired)
	avg, n := ev.AverageScore("qa-1")
	assert.Equal(t, 1, n)
	assert.InDelta(t, 100.0, avg, 1e-9)

	// Second evaluation scores 0: average drops to 50, |0-50| > 15 flags
	// calibration.
	e2 := createGeneralEval(t, ev)
	for _, c := range e2.Criteria {
		var err error
		e2, err = ev.ScoreCriterion(e2.ID, c.ID, "qa-1", make([]float64, len(c.SubScores)), "")
		require.NoError(t, err)
	}
	e2, err = ev.Complete(e2.ID, "qa-1", "severe gaps", []string{"retraining"})
	require.NoError(t, err)
	assert.True(t, e2.CalibrationRequired)
	avg, n = ev.AverageScore("qa-1")
	assert.Equal(t, 2, n)
	assert.InDelta(t, 50.0, avg, 1e-9)
}

func TestCompleteIsTerminal(t *testing.T) {
	ev := newEvaluator(t)
	e := createGeneralEval(t, ev)
	_, err := ev.Complete(e.ID, "qa-1", "", nil)
	require.NoError(t, err)

	_, err = ev.Complete(e.ID, "qa-1", "", nil)
	assert.ErrorIs(t, err, coreerr.ErrConflict)
	_, err = ev.ScoreCriterion(e.ID, "greeting", "qa-1", []float64{5, 5}, "")
	assert.ErrorIs(t, err, coreerr.ErrConflict)
}

func TestListByAgent(t *testing.T) {
	ev := newEvaluator(t)
	_ = createGeneralEval(t, ev)
	other, err := ev.CreateEvaluation(Interaction{ID: "i2", AgentID: "agent-2"}, "victim_intake", "qa-1")
	require.NoError(t, err)

	got := ev.ListByAgent("agent-2")
	require.Len(t, got, 1)
	assert.Equal(t, other.ID, got[0].ID)
	assert.Len(t, ev.ListByAgent("agent-1"), 1)
	assert.Empty(t, ev.ListByAgent("agent-3"))
}
