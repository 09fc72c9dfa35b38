package qa

import (
	"math"
	"sync"
	"time"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/events"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/ids"
)

// Status is an Evaluation's lifecycle state.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAutoFailed Status = "auto_failed"
)

// Interaction identifies the completed session interaction under review.
type Interaction struct {
	ID         string
	AgentID    string
	CustomerID string
	Channel    string
}

// SubScore is one scored sub-criterion line inside an EvalCriterion.
type SubScore struct {
	Name   string
	Points float64
	Score  float64
	Notes  string
}

// EvalCriterion is the evaluation-time copy of a Criterion with its
// current score state.
type EvalCriterion struct {
	ID        string
	Name      string
	Weight    float64
	MaxScore  float64
	AutoFail  bool
	Score     float64
	Passed    bool
	Scored    bool
	Notes     string
	SubScores []SubScore
}

// Evaluation is one QA review of an interaction against a scorecard. The
// evaluator owns Evaluations exclusively; callers only ever see snapshots.
type Evaluation struct {
	ID              string
	InteractionID   string
	AgentID         string
	CustomerID      string
	Channel         string
	ScorecardID     string
	QAAgentID       string
	CreatedAt       time.Time
	CompletedAt     *time.Time
	Status          Status
	Criteria        []EvalCriterion
	TotalScore      float64
	WeightedScore   float64
	Passed          bool
	AutoFailed      bool
	AutoFailReason  string
	FinalNotes      string
	Recommendations []string

	CalibrationRequired bool
}

func (e Evaluation) clone() Evaluation {
	out := e
	out.Criteria = append([]EvalCriterion(nil), e.Criteria...)
	for i := range out.Criteria {
		out.Criteria[i].SubScores = append([]SubScore(nil), e.Criteria[i].SubScores...)
	}
	out.Recommendations = append([]string(nil), e.Recommendations...)
	return out
}

// Archiver persists completed evaluation state. dbstore.EvaluationStore
// implements it; a nil Archiver means the evaluator is purely in-memory.
type Archiver interface {
	SaveEvaluation(e Evaluation) error
}

// qaAgentStats is a QA agent's running weighted-score average, updated on
// every completed evaluation.
type qaAgentStats struct {
	completed int
	average   float64
}

// Evaluator is the scorecard evaluation service. Scorecards are registered
// at construction and immutable thereafter; evaluations are created,
// scored, and completed through it.
type Evaluator struct {
	mu          sync.Mutex
	scorecards  map[string]Scorecard
	evaluations map[string]*Evaluation
	stats       map[string]*qaAgentStats

	ids      *ids.Generator
	bus      *events.Bus
	archiver Archiver
}

// calibrationDelta is how far a completed evaluation's weighted score may
// deviate from the QA agent's running average before a calibration review
// is flagged.
const calibrationDelta = 15.0

// NewEvaluator builds an Evaluator over the given scorecards. bus and
// archiver may be nil.
func NewEvaluator(scorecards []Scorecard, gen *ids.Generator, bus *events.Bus, archiver Archiver) (*Evaluator, error) {
	if gen == nil {
		gen = ids.NewGenerator()
	}
	ev := &Evaluator{
		scorecards:  make(map[string]Scorecard, len(scorecards)),
		evaluations: make(map[string]*Evaluation),
		stats:       make(map[string]*qaAgentStats),
		ids:         gen,
		bus:         bus,
		archiver:    archiver,
	}
	for _, sc := range scorecards {
		if err := sc.Validate(); err != nil {
			return nil, err
		}
		ev.scorecards[sc.ID] = sc
	}
	return ev, nil
}

// Scorecard returns the registered scorecard by id.
func (ev *Evaluator) Scorecard(id string) (Scorecard, error) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	sc, ok := ev.scorecards[id]
	if !ok {
		return Scorecard{}, coreerr.NewNotFoundError("scorecard", id)
	}
	return sc, nil
}

// CreateEvaluation instantiates the scorecard's criteria with zeroed
// scores and opens an in_progress evaluation over the interaction.
func (ev *Evaluator) CreateEvaluation(interaction Interaction, scorecardID, qaAgentID string) (Evaluation, error) {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	sc, ok := ev.scorecards[scorecardID]
	if !ok {
		return Evaluation{}, coreerr.NewNotFoundError("scorecard", scorecardID)
	}

	criteria := make([]EvalCriterion, len(sc.Criteria))
	for i, c := range sc.Criteria {
		subs := make([]SubScore, len(c.SubCriteria))
		for j, sub := range c.SubCriteria {
			subs[j] = SubScore{Name: sub.Name, Points: sub.Points}
		}
		criteria[i] = EvalCriterion{
			ID:        c.ID,
			Name:      c.Name,
			Weight:    c.Weight,
			MaxScore:  c.MaxScore,
			AutoFail:  sc.isAutoFail(c),
			SubScores: subs,
		}
	}

	e := &Evaluation{
		ID:            ev.ids.New(),
		InteractionID: interaction.ID,
		AgentID:       interaction.AgentID,
		CustomerID:    interaction.CustomerID,
		Channel:       interaction.Channel,
		ScorecardID:   scorecardID,
		QAAgentID:     qaAgentID,
		CreatedAt:     time.Now(),
		Status:        StatusInProgress,
		Criteria:      criteria,
	}
	ev.evaluations[e.ID] = e

	out := e.clone()
	ev.publish(events.EvaluationCreated, events.EvaluationPayload{
		EvaluationID: e.ID, AgentID: e.AgentID, QAAgentID: qaAgentID,
	})
	return out, nil
}

// ScoreCriterion records subScores for one criterion, recomputing the
// evaluation totals. subScores must align with the criterion's sub-criteria
// count and respect each sub-criterion's point bound; violations are
// rejected without mutating the evaluation. qaAgentID must be the agent
// the evaluation was created for.
func (ev *Evaluator) ScoreCriterion(evalID, critID, qaAgentID string, subScores []float64, notes string) (Evaluation, error) {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	e, ok := ev.evaluations[evalID]
	if !ok {
		return Evaluation{}, coreerr.NewNotFoundError("evaluation", evalID)
	}
	if e.QAAgentID != qaAgentID {
		return Evaluation{}, coreerr.NewNotAuthorizedError(qaAgentID, "score evaluation "+evalID)
	}
	if e.CompletedAt != nil {
		return Evaluation{}, coreerr.NewConflictError("evaluation", "already completed")
	}

	idx := -1
	for i := range e.Criteria {
		if e.Criteria[i].ID == critID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Evaluation{}, coreerr.NewNotFoundError("criterion", critID)
	}
	crit := &e.Criteria[idx]

	if len(subScores) != len(crit.SubScores) {
		return Evaluation{}, coreerr.NewValidationError("subScores", "must provide one score per sub-criterion")
	}
	for i, s := range subScores {
		if s < 0 || s > crit.SubScores[i].Points {
			return Evaluation{}, coreerr.NewValidationError("subScores", "score out of sub-criterion bounds")
		}
	}

	var total float64
	for i, s := range subScores {
		crit.SubScores[i].Score = s
		total += s
	}
	crit.Score = total
	crit.Notes = notes
	crit.Scored = true
	crit.Passed = crit.Score >= 0.8*crit.MaxScore
	if crit.AutoFail && !crit.Passed {
		e.AutoFailed = true
		e.AutoFailReason = crit.Name
		e.Status = StatusAutoFailed
	}

	ev.recomputeTotals(e)

	out := e.clone()
	ev.publish(events.CriterionScored, events.CriterionScoredPayload{
		EvaluationID: e.ID, CriterionID: critID, Score: crit.Score, Passed: crit.Passed,
	})
	return out, nil
}

// recomputeTotals recalculates totalScore/weightedScore/passed. Must be
// called with mu held.
//
//	totalScore    = Σ criterion.score
//	weightedScore = Σ (score/maxScore)·weight / Σ weight · 100
//	passed        = weightedScore >= passingScore && !autoFailed
func (ev *Evaluator) recomputeTotals(e *Evaluation) {
	sc := ev.scorecards[e.ScorecardID]
	var total, weighted, weightSum float64
	for _, c := range e.Criteria {
		total += c.Score
		weightSum += c.Weight
		if c.MaxScore > 0 {
			weighted += (c.Score / c.MaxScore) * c.Weight
		}
	}
	e.TotalScore = total
	if weightSum > 0 {
		e.WeightedScore = weighted / weightSum * 100
	}
	e.Passed = e.WeightedScore >= sc.PassingScore && !e.AutoFailed
}

// Complete finalizes the evaluation, updates the QA agent's running
// average, and flags calibration when the new score deviates from that
// average by more than calibrationDelta after the update.
func (ev *Evaluator) Complete(evalID, qaAgentID, finalNotes string, recommendations []string) (Evaluation, error) {
	ev.mu.Lock()

	e, ok := ev.evaluations[evalID]
	if !ok {
		ev.mu.Unlock()
		return Evaluation{}, coreerr.NewNotFoundError("evaluation", evalID)
	}
	if e.QAAgentID != qaAgentID {
		ev.mu.Unlock()
		return Evaluation{}, coreerr.NewNotAuthorizedError(qaAgentID, "complete evaluation "+evalID)
	}
	if e.CompletedAt != nil {
		ev.mu.Unlock()
		return Evaluation{}, coreerr.NewConflictError("evaluation", "already completed")
	}

	now := time.Now()
	e.CompletedAt = &now
	e.FinalNotes = finalNotes
	e.Recommendations = append([]string(nil), recommendations...)
	if !e.AutoFailed {
		e.Status = StatusCompleted
	}

	st := ev.stats[qaAgentID]
	if st == nil {
		st = &qaAgentStats{}
		ev.stats[qaAgentID] = st
	}
	st.completed++
	st.average += (e.WeightedScore - st.average) / float64(st.completed)
	e.CalibrationRequired = math.Abs(e.WeightedScore-st.average) > calibrationDelta

	out := e.clone()
	archiver := ev.archiver
	ev.mu.Unlock()

	ev.publish(events.EvaluationComplete, events.EvaluationPayload{
		EvaluationID: out.ID, AgentID: out.AgentID, QAAgentID: qaAgentID,
		WeightedScore: out.WeightedScore, Passed: out.Passed,
	})
	if out.CalibrationRequired {
		ev.publish(events.CalibrationRequired, events.EvaluationPayload{
			EvaluationID: out.ID, AgentID: out.AgentID, QAAgentID: qaAgentID,
			WeightedScore: out.WeightedScore, Passed: out.Passed,
		})
	}
	if archiver != nil {
		if err := archiver.SaveEvaluation(out); err != nil {
			return out, coreerr.NewTransientIOError("archive evaluation", err)
		}
	}
	return out, nil
}

// Get returns a snapshot of the evaluation by id.
func (ev *Evaluator) Get(evalID string) (Evaluation, error) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	e, ok := ev.evaluations[evalID]
	if !ok {
		return Evaluation{}, coreerr.NewNotFoundError("evaluation", evalID)
	}
	return e.clone(), nil
}

// ListByAgent returns every evaluation of interactions handled by agentID.
func (ev *Evaluator) ListByAgent(agentID string) []Evaluation {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	out := make([]Evaluation, 0)
	for _, e := range ev.evaluations {
		if e.AgentID == agentID {
			out = append(out, e.clone())
		}
	}
	return out
}

// AverageScore returns the QA agent's current running average and the
// number of evaluations it is over.
func (ev *Evaluator) AverageScore(qaAgentID string) (float64, int) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	st := ev.stats[qaAgentID]
	if st == nil {
		return 0, 0
	}
	return st.average, st.completed
}

func (ev *Evaluator) publish(typ events.Type, payload any) {
	if ev.bus == nil {
		return
	}
	ev.bus.Publish(typ, "", payload)
}
