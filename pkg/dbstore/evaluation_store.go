package dbstore

import (
	stdsql "database/sql"
	"encoding/json"
	"errors"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/qa"
)

// EvaluationStore persists evaluations as durable key-value records by id,
// with the full evaluation serialized into the data column and the fields
// list queries need promoted to columns. It satisfies qa.Archiver.
type EvaluationStore struct {
	client *Client
}

// NewEvaluationStore builds an EvaluationStore over client.
func NewEvaluationStore(client *Client) *EvaluationStore {
	return &EvaluationStore{client: client}
}

// SaveEvaluation upserts the evaluation record.
func (s *EvaluationStore) SaveEvaluation(e qa.Evaluation) error {
	ctx, cancel := opCtx()
	defer cancel()

	data, err := json.Marshal(e)
	if err != nil {
		return coreerr.NewTransientIOError("encode evaluation", err)
	}

	_, err = s.client.db.ExecContext(ctx, `
INSERT INTO evaluations (id, interaction_id, agent_id, qa_agent_id, scorecard_id,
	status, weighted_score, passed, created_at, completed_at, data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	weighted_score = EXCLUDED.weighted_score,
	passed = EXCLUDED.passed,
	completed_at = EXCLUDED.completed_at,
	data = EXCLUDED.data`,
		e.ID, e.InteractionID, e.AgentID, e.QAAgentID, e.ScorecardID,
		string(e.Status), e.WeightedScore, e.Passed, e.CreatedAt, e.CompletedAt, data)
	if err != nil {
		return coreerr.NewTransientIOError("upsert evaluation", err)
	}
	return nil
}

// Get loads the evaluation by id.
func (s *EvaluationStore) Get(id string) (qa.Evaluation, error) {
	ctx, cancel := opCtx()
	defer cancel()

	var data []byte
	err := s.client.db.QueryRowContext(ctx, `SELECT data FROM evaluations WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, stdsql.ErrNoRows) {
		return qa.Evaluation{}, coreerr.NewNotFoundError("evaluation", id)
	}
	if err != nil {
		return qa.Evaluation{}, coreerr.NewTransientIOError("select evaluation", err)
	}

	var e qa.Evaluation
	if err := json.Unmarshal(data, &e); err != nil {
		return qa.Evaluation{}, coreerr.NewTransientIOError("decode evaluation", err)
	}
	return e, nil
}

// ListByAgent loads every evaluation of interactions handled by agentID.
func (s *EvaluationStore) ListByAgent(agentID string) ([]qa.Evaluation, error) {
	ctx, cancel := opCtx()
	defer cancel()

	rows, err := s.client.db.QueryContext(ctx,
		`SELECT data FROM evaluations WHERE agent_id = $1 ORDER BY created_at`, agentID)
	if err != nil {
		return nil, coreerr.NewTransientIOError("select evaluations", err)
	}
	defer rows.Close()

	var out []qa.Evaluation
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, coreerr.NewTransientIOError("scan evaluation", err)
		}
		var e qa.Evaluation
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, coreerr.NewTransientIOError("decode evaluation", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, coreerr.NewTransientIOError("iterate evaluations", err)
	}
	return out, nil
}
