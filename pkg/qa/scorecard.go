// Package qa implements the quality-assurance evaluator: scorecard
// instantiation, weighted criterion scoring, auto-fail rules, and the
// calibration signal for drifting QA agents.
package qa

import (
	"math"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
)

// SubCriterion is one scored line item inside a Criterion.
type SubCriterion struct {
	Name   string
	Points float64
}

// Criterion is one weighted scorecard dimension.
type Criterion struct {
	ID          string
	Name        string
	Weight      float64
	MaxScore    float64
	Required    bool
	AutoFail    bool
	SubCriteria []SubCriterion
}

// Scorecard is a named, versioned set of weighted criteria. Immutable once
// loaded, like escalation rules and prompt configs.
type Scorecard struct {
	ID               string
	Name             string
	Version          int
	Criteria         []Criterion
	PassingScore     float64 // 0-100 weighted
	AutoFailCriteria []string
}

// Validate enforces the scorecard invariants from the data model: weights
// sum to 100, each criterion's MaxScore equals the sum of its sub-criterion
// points, and AutoFailCriteria only names criteria that exist.
func (sc Scorecard) Validate() error {
	if sc.ID == "" {
		return coreerr.NewValidationError("id", "must not be empty")
	}
	if len(sc.Criteria) == 0 {
		return coreerr.NewValidationError("criteria", "must be non-empty")
	}
	var weightSum float64
	byID := make(map[string]bool, len(sc.Criteria))
	for _, c := range sc.Criteria {
		if c.ID == "" {
			return coreerr.NewValidationError("criteria", "criterion id must not be empty")
		}
		if byID[c.ID] {
			return coreerr.NewValidationError("criteria", "duplicate criterion id "+c.ID)
		}
		byID[c.ID] = true
		weightSum += c.Weight

		var points float64
		for _, sub := range c.SubCriteria {
			points += sub.Points
		}
		if math.Abs(points-c.MaxScore) > 1e-9 {
			return coreerr.NewValidationError("criteria["+c.ID+"].maxScore", "must equal the sum of sub-criterion points")
		}
	}
	if math.Abs(weightSum-100) > 1e-9 {
		return coreerr.NewValidationError("criteria", "weights must sum to 100")
	}
	for _, id := range sc.AutoFailCriteria {
		if !byID[id] {
			return coreerr.NewValidationError("autoFailCriteria", "unknown criterion "+id)
		}
	}
	return nil
}

// criterion returns the criterion with the given id.
func (sc Scorecard) criterion(id string) (Criterion, bool) {
	for _, c := range sc.Criteria {
		if c.ID == id {
			return c, true
		}
	}
	return Criterion{}, false
}

// isAutoFail reports whether id is listed in AutoFailCriteria or flagged
// AutoFail on the criterion itself — both spellings appear in scorecard
// data and are treated identically.
func (sc Scorecard) isAutoFail(c Criterion) bool {
	if c.AutoFail {
		return true
	}
	for _, id := range sc.AutoFailCriteria {
		if id == c.ID {
			return true
		}
	}
	return false
}
