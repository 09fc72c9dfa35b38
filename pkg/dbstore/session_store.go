package dbstore

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/events"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/ids"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/session"
)

// opTimeout bounds every store operation. The session.Store interface is
// shared with the in-memory store and carries no context, so the durable
// implementation applies its own deadline per call.
const opTimeout = 5 * time.Second

// SessionStore is the Postgres-backed session.Store implementation,
// satisfying the same interface as session.MemStore for deployments that
// need sessions and messages durable across restarts.
type SessionStore struct {
	client *Client
	ids    *ids.Generator
	bus    *events.Bus
}

// NewSessionStore builds a SessionStore over client. bus may be nil.
func NewSessionStore(client *Client, gen *ids.Generator, bus *events.Bus) *SessionStore {
	if gen == nil {
		gen = ids.NewGenerator()
	}
	return &SessionStore{client: client, ids: gen, bus: bus}
}

func (s *SessionStore) publish(typ events.Type, sessionID string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(typ, sessionID, payload)
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

// contextJSON is the persisted shape of session.ConversationContext.
type contextJSON struct {
	PromptID           string            `json:"prompt_id"`
	CurrentStep        int               `json:"current_step"`
	ExtractedFields    map[string]string `json:"extracted_fields"`
	CustomerIntent     string            `json:"customer_intent,omitempty"`
	IssueCategory      string            `json:"issue_category,omitempty"`
	EscalationTriggers []string          `json:"escalation_triggers,omitempty"`
	StatusChanges      []string          `json:"status_changes,omitempty"`
	TierChanges        []string          `json:"tier_changes,omitempty"`
	MessageCount       int               `json:"message_count"`
}

// historyJSON is the persisted shape of one session.EscalationEntry.
type historyJSON struct {
	Ts       time.Time `json:"ts"`
	Reason   string    `json:"reason"`
	FromTier int       `json:"from_tier"`
	ToTier   int       `json:"to_tier"`
	RuleID   string    `json:"rule_id"`
	Priority int       `json:"priority"`
	SLA      time.Time `json:"sla"`
}

func marshalContext(c session.ConversationContext) ([]byte, error) {
	return json.Marshal(contextJSON{
		PromptID:           c.PromptID,
		CurrentStep:        c.CurrentStep,
		ExtractedFields:    c.ExtractedFields,
		CustomerIntent:     c.CustomerIntent,
		IssueCategory:      c.IssueCategory,
		EscalationTriggers: c.EscalationTriggers,
		StatusChanges:      c.StatusChanges,
		TierChanges:        c.TierChanges,
		MessageCount:       c.MessageCount,
	})
}

func unmarshalContext(data []byte) (session.ConversationContext, error) {
	var cj contextJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return session.ConversationContext{}, err
	}
	fields := cj.ExtractedFields
	if fields == nil {
		fields = make(map[string]string)
	}
	return session.ConversationContext{
		PromptID:           cj.PromptID,
		CurrentStep:        cj.CurrentStep,
		ExtractedFields:    fields,
		CustomerIntent:     cj.CustomerIntent,
		IssueCategory:      cj.IssueCategory,
		EscalationTriggers: cj.EscalationTriggers,
		StatusChanges:      cj.StatusChanges,
		TierChanges:        cj.TierChanges,
		MessageCount:       cj.MessageCount,
	}, nil
}

func marshalHistory(entries []session.EscalationEntry) ([]byte, error) {
	out := make([]historyJSON, len(entries))
	for i, e := range entries {
		out[i] = historyJSON{
			Ts: e.Ts, Reason: e.Reason, FromTier: e.FromTier, ToTier: e.ToTier,
			RuleID: e.RuleID, Priority: e.Priority, SLA: e.SLA,
		}
	}
	return json.Marshal(out)
}

func unmarshalHistory(data []byte) ([]session.EscalationEntry, error) {
	var hj []historyJSON
	if err := json.Unmarshal(data, &hj); err != nil {
		return nil, err
	}
	out := make([]session.EscalationEntry, len(hj))
	for i, h := range hj {
		out[i] = session.EscalationEntry{
			Ts: h.Ts, Reason: h.Reason, FromTier: h.FromTier, ToTier: h.ToTier,
			RuleID: h.RuleID, Priority: h.Priority, SLA: h.SLA,
		}
	}
	return out, nil
}

const sessionColumns = `id, customer_id, customer_name, customer_email, customer_phone,
customer_tier, status, tier, priority, category, created_at, last_activity_at,
assigned_at, completed_at, assigned_agent_id, escalation_reason, escalation_sla,
resolution_time_ms, context, escalation_history`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (session.Session, error) {
	var (
		s           session.Session
		assignedAt  stdsql.NullTime
		completedAt stdsql.NullTime
		slaAt       stdsql.NullTime
		contextRaw  []byte
		historyRaw  []byte
	)
	err := row.Scan(
		&s.ID, &s.Customer.ID, &s.Customer.Name, &s.Customer.Email, &s.Customer.Phone,
		&s.Customer.Tier, &s.Status, &s.Tier, &s.Priority, &s.Category,
		&s.CreatedAt, &s.LastActivityAt, &assignedAt, &completedAt,
		&s.AssignedAgentID, &s.EscalationReason, &slaAt,
		&s.ResolutionTimeMS, &contextRaw, &historyRaw,
	)
	if err != nil {
		return session.Session{}, err
	}
	if assignedAt.Valid {
		t := assignedAt.Time
		s.AssignedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		s.CompletedAt = &t
	}
	if slaAt.Valid {
		t := slaAt.Time
		s.EscalationSLA = &t
	}
	if s.Context, err = unmarshalContext(contextRaw); err != nil {
		return session.Session{}, fmt.Errorf("decode context: %w", err)
	}
	if s.EscalationHistory, err = unmarshalHistory(historyRaw); err != nil {
		return session.Session{}, fmt.Errorf("decode escalation history: %w", err)
	}
	return s, nil
}

// Create builds a new waiting session from CustomerData, assigning its
// priority per session.ComputePriority, and persists it.
func (s *SessionStore) Create(d session.CustomerData) (session.Session, error) {
	ctx, cancel := opCtx()
	defer cancel()

	now := time.Now()
	sess := session.Session{
		ID:             s.ids.New(),
		Customer:       d.Customer,
		Status:         session.StatusWaiting,
		Tier:           1,
		Priority:       session.ComputePriority(d),
		Category:       d.Category,
		CreatedAt:      now,
		LastActivityAt: now,
		Context: session.ConversationContext{
			PromptID:        "general-support",
			CurrentStep:     1,
			ExtractedFields: make(map[string]string),
		},
	}

	contextRaw, err := marshalContext(sess.Context)
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("encode session", err)
	}

	_, err = s.client.db.ExecContext(ctx, `
INSERT INTO sessions (id, customer_id, customer_name, customer_email, customer_phone,
	customer_tier, status, tier, priority, category, created_at, last_activity_at, context)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		sess.ID, sess.Customer.ID, sess.Customer.Name, sess.Customer.Email, sess.Customer.Phone,
		string(sess.Customer.Tier), string(sess.Status), sess.Tier, sess.Priority, sess.Category,
		sess.CreatedAt, sess.LastActivityAt, contextRaw)
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("insert session", err)
	}

	s.publish(events.SessionCreated, sess.ID, events.SessionPayload{
		SessionID: sess.ID, Status: string(sess.Status), Tier: sess.Tier, Priority: sess.Priority,
	})
	return sess, nil
}

// Get returns the session by id, including its message log.
func (s *SessionStore) Get(id string) (session.Session, error) {
	ctx, cancel := opCtx()
	defer cancel()
	return s.get(ctx, s.client.db, id, true)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *stdsql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*stdsql.Rows, error)
}

func (s *SessionStore) get(ctx context.Context, q querier, id string, withMessages bool) (session.Session, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, stdsql.ErrNoRows) {
		return session.Session{}, coreerr.NewNotFoundError("session", id)
	}
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("select session", err)
	}
	if withMessages {
		if sess.Messages, err = s.messages(ctx, q, id); err != nil {
			return session.Session{}, err
		}
	}
	return sess, nil
}

func (s *SessionStore) messages(ctx context.Context, q querier, sessionID string) ([]session.Message, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id, session_id, ts, role, content, agent_id, response_type, metadata
FROM session_messages WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, coreerr.NewTransientIOError("select messages", err)
	}
	defer rows.Close()

	var out []session.Message
	for rows.Next() {
		var (
			m       session.Message
			metaRaw []byte
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Ts, &m.Role, &m.Content, &m.AgentID, &m.ResponseType, &metaRaw); err != nil {
			return nil, coreerr.NewTransientIOError("scan message", err)
		}
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &m.Metadata); err != nil {
				return nil, coreerr.NewTransientIOError("decode message metadata", err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, coreerr.NewTransientIOError("iterate messages", err)
	}
	return out, nil
}

// Update applies the whitelisted Patch fields.
func (s *SessionStore) Update(id string, p session.Patch) (session.Session, error) {
	ctx, cancel := opCtx()
	defer cancel()

	tx, err := s.client.db.BeginTx(ctx, nil)
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := s.lockSession(ctx, tx, id)
	if err != nil {
		return session.Session{}, err
	}

	if p.Category != nil {
		sess.Category = *p.Category
	}
	if p.Context != nil {
		sess.Context = *p.Context
	}
	if p.Priority != nil {
		sess.Priority = *p.Priority
	}
	sess.LastActivityAt = time.Now()

	contextRaw, err := marshalContext(sess.Context)
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("encode context", err)
	}
	_, err = tx.ExecContext(ctx, `
UPDATE sessions SET category = $2, priority = $3, context = $4, last_activity_at = $5 WHERE id = $1`,
		id, sess.Category, sess.Priority, contextRaw, sess.LastActivityAt)
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("update session", err)
	}
	if err := tx.Commit(); err != nil {
		return session.Session{}, coreerr.NewTransientIOError("commit", err)
	}

	s.publish(events.SessionUpdated, id, events.SessionPayload{
		SessionID: id, Status: string(sess.Status), Tier: sess.Tier, Priority: sess.Priority,
	})
	return sess, nil
}

// lockSession loads a session row FOR UPDATE inside tx, the same
// claim-with-row-lock idiom the rest of this package's transactions use.
func (s *SessionStore) lockSession(ctx context.Context, tx *stdsql.Tx, id string) (session.Session, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id)
	sess, err := scanSession(row)
	if errors.Is(err, stdsql.ErrNoRows) {
		return session.Session{}, coreerr.NewNotFoundError("session", id)
	}
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("lock session", err)
	}
	return sess, nil
}

// AppendMessage appends msg to the session's append-only message log.
// Completed sessions reject further appends.
func (s *SessionStore) AppendMessage(id string, msg session.Message) (session.Session, error) {
	ctx, cancel := opCtx()
	defer cancel()

	tx, err := s.client.db.BeginTx(ctx, nil)
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := s.lockSession(ctx, tx, id)
	if err != nil {
		return session.Session{}, err
	}
	if sess.Status == session.StatusCompleted {
		return session.Session{}, coreerr.NewConflictError("session", "message appends are rejected after completion")
	}

	msg.SessionID = id
	if msg.Ts.IsZero() {
		msg.Ts = time.Now()
	}
	if msg.ID == "" {
		msg.ID = s.ids.New()
	}
	metaRaw, err := json.Marshal(msg.Metadata)
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("encode message metadata", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO session_messages (id, session_id, ts, role, content, agent_id, response_type, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, id, msg.Ts, string(msg.Role), msg.Content, msg.AgentID, string(msg.ResponseType), metaRaw)
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("insert message", err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE sessions SET last_activity_at = $2 WHERE id = $1`, id, msg.Ts)
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("update session", err)
	}
	if err := tx.Commit(); err != nil {
		return session.Session{}, coreerr.NewTransientIOError("commit", err)
	}

	sess.Messages = append(sess.Messages, msg)
	sess.LastActivityAt = msg.Ts
	return sess, nil
}

// Complete marks the session completed. Completing an already-completed
// session is a no-op.
func (s *SessionStore) Complete(id string, now time.Time) (session.Session, error) {
	ctx, cancel := opCtx()
	defer cancel()

	tx, err := s.client.db.BeginTx(ctx, nil)
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := s.lockSession(ctx, tx, id)
	if err != nil {
		return session.Session{}, err
	}
	if sess.Status == session.StatusCompleted {
		return sess, nil
	}

	sess.Status = session.StatusCompleted
	sess.CompletedAt = &now
	sess.ResolutionTimeMS = now.Sub(sess.CreatedAt).Milliseconds()
	_, err = tx.ExecContext(ctx, `
UPDATE sessions SET status = $2, completed_at = $3, resolution_time_ms = $4, last_activity_at = $3 WHERE id = $1`,
		id, string(sess.Status), now, sess.ResolutionTimeMS)
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("complete session", err)
	}
	if err := tx.Commit(); err != nil {
		return session.Session{}, coreerr.NewTransientIOError("commit", err)
	}

	s.publish(events.SessionCompleted, id, events.SessionPayload{
		SessionID: id, Status: string(sess.Status), Tier: sess.Tier, Priority: sess.Priority,
	})
	return sess, nil
}

// Escalate appends the escalation history entry and bumps tier/status/SLA.
func (s *SessionStore) Escalate(id, reason string, newTier int, ruleID string, sla time.Time) (session.Session, error) {
	ctx, cancel := opCtx()
	defer cancel()

	tx, err := s.client.db.BeginTx(ctx, nil)
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := s.lockSession(ctx, tx, id)
	if err != nil {
		return session.Session{}, err
	}
	if newTier < sess.Tier {
		return session.Session{}, coreerr.NewValidationError("newTier", "tier must be non-decreasing")
	}

	entry := session.EscalationEntry{
		Ts:       time.Now(),
		Reason:   reason,
		FromTier: sess.Tier,
		ToTier:   newTier,
		RuleID:   ruleID,
		Priority: sess.Priority,
		SLA:      sla,
	}
	sess.EscalationHistory = append(sess.EscalationHistory, entry)
	sess.Tier = newTier
	sess.Status = session.StatusEscalated
	sess.EscalationReason = reason
	sess.EscalationSLA = &sla
	sess.LastActivityAt = entry.Ts

	historyRaw, err := marshalHistory(sess.EscalationHistory)
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("encode escalation history", err)
	}
	_, err = tx.ExecContext(ctx, `
UPDATE sessions SET tier = $2, status = $3, escalation_reason = $4, escalation_sla = $5,
	escalation_history = $6, last_activity_at = $7 WHERE id = $1`,
		id, sess.Tier, string(sess.Status), reason, sla, historyRaw, sess.LastActivityAt)
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("escalate session", err)
	}
	if err := tx.Commit(); err != nil {
		return session.Session{}, coreerr.NewTransientIOError("commit", err)
	}

	s.publish(events.SessionEscalated, id, events.EscalatedPayload{
		SessionID: id, Reason: reason, FromTier: entry.FromTier, ToTier: newTier,
		RuleID: ruleID, Priority: sess.Priority, SLA: sla,
	})
	return sess, nil
}

// Assign transitions the session to active with the given agent, rejecting
// sessions that are already active.
func (s *SessionStore) Assign(id, agentID string) (session.Session, error) {
	ctx, cancel := opCtx()
	defer cancel()

	tx, err := s.client.db.BeginTx(ctx, nil)
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := s.lockSession(ctx, tx, id)
	if err != nil {
		return session.Session{}, err
	}
	if sess.Status == session.StatusActive {
		return session.Session{}, coreerr.NewConflictError("session", "already active")
	}

	now := time.Now()
	sess.Status = session.StatusActive
	sess.AssignedAgentID = agentID
	sess.AssignedAt = &now
	sess.LastActivityAt = now
	_, err = tx.ExecContext(ctx, `
UPDATE sessions SET status = $2, assigned_agent_id = $3, assigned_at = $4, last_activity_at = $4 WHERE id = $1`,
		id, string(sess.Status), agentID, now)
	if err != nil {
		return session.Session{}, coreerr.NewTransientIOError("assign session", err)
	}
	if err := tx.Commit(); err != nil {
		return session.Session{}, coreerr.NewTransientIOError("commit", err)
	}

	s.publish(events.SessionAssigned, id, events.AssignedPayload{SessionID: id, AgentID: agentID, Tier: sess.Tier})
	return sess, nil
}

// ListWaiting returns every waiting session in queue order.
func (s *SessionStore) ListWaiting() []session.Session {
	return s.listByStatus(session.StatusWaiting)
}

// ListActive returns every active session.
func (s *SessionStore) ListActive() []session.Session {
	return s.listByStatus(session.StatusActive)
}

// ListEscalated returns every escalated (not yet reassigned) session.
func (s *SessionStore) ListEscalated() []session.Session {
	return s.listByStatus(session.StatusEscalated)
}

func (s *SessionStore) listByStatus(status session.Status) []session.Session {
	ctx, cancel := opCtx()
	defer cancel()

	rows, err := s.client.db.QueryContext(ctx, `
SELECT `+sessionColumns+` FROM sessions WHERE status = $1 ORDER BY priority DESC, created_at ASC`,
		string(status))
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return out
		}
		out = append(out, sess)
	}
	return out
}

// Recover reloads waiting and active sessions after a restart so the
// caller can re-enqueue the former and re-index the latter.
func (s *SessionStore) Recover() (waiting []session.Session, active []session.Session, err error) {
	return s.ListWaiting(), s.ListActive(), nil
}
