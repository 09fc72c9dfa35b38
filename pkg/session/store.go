package session

import (
	"sync"
	"time"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/events"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/ids"
)

// Store is the persistence-agnostic session store contract. MemStore (this
// package) and dbstore.SessionStore both satisfy it, so the dispatcher,
// escalation engine, and conversation runtime never need to know which
// backs them.
type Store interface {
	Create(d CustomerData) (Session, error)
	Get(id string) (Session, error)
	Update(id string, p Patch) (Session, error)
	AppendMessage(id string, m Message) (Session, error)
	Complete(id string, now time.Time) (Session, error)
	Escalate(id, reason string, newTier int, ruleID string, sla time.Time) (Session, error)
	ListWaiting() []Session
	ListActive() []Session
	ListEscalated() []Session
	// Recover re-indexes stored sessions after a restart: waiting sessions
	// are returned so the caller can re-enqueue them, active sessions are
	// returned so the dispatcher can re-index them for possible
	// reassignment (e.g. if the agent holding them went offline).
	Recover() (waiting []Session, active []Session, err error)
}

// MemStore is the in-memory Store implementation: the primary store used
// by the dispatcher, escalation engine, and conversation runtime, a
// mutex-guarded map with Clone()-on-read snapshots.
type MemStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ids      *ids.Generator
	bus      *events.Bus
}

// NewMemStore builds an empty MemStore. bus may be nil, in which case the
// store publishes nothing (useful for isolated unit tests).
func NewMemStore(gen *ids.Generator, bus *events.Bus) *MemStore {
	if gen == nil {
		gen = ids.NewGenerator()
	}
	return &MemStore{
		sessions: make(map[string]*Session),
		ids:      gen,
		bus:      bus,
	}
}

func (m *MemStore) publish(typ events.Type, sessionID string, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(typ, sessionID, payload)
}

// Create builds a new waiting session from CustomerData, assigning its
// priority per ComputePriority.
func (m *MemStore) Create(d CustomerData) (Session, error) {
	now := time.Now()
	s := &Session{
		ID:             m.ids.New(),
		Customer:       d.Customer,
		Status:         StatusWaiting,
		Tier:           1,
		Priority:       ComputePriority(d),
		Category:       d.Category,
		CreatedAt:      now,
		LastActivityAt: now,
		Context: ConversationContext{
			PromptID:        "general-support",
			CurrentStep:     1,
			ExtractedFields: make(map[string]string),
		},
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.publish(events.SessionCreated, s.ID, events.SessionPayload{
		SessionID: s.ID, Status: string(s.Status), Tier: s.Tier, Priority: s.Priority,
	})
	return s.Clone(), nil
}

func (m *MemStore) lockedGet(id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, coreerr.NewNotFoundError("session", id)
	}
	return s, nil
}

// Get returns a snapshot of the session by id.
func (m *MemStore) Get(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lockedGet(id)
	if err != nil {
		return Session{}, err
	}
	return s.Clone(), nil
}

// Update applies the whitelisted Patch fields.
func (m *MemStore) Update(id string, p Patch) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lockedGet(id)
	if err != nil {
		return Session{}, err
	}
	if p.Category != nil {
		s.Category = *p.Category
	}
	if p.Context != nil {
		s.Context = *p.Context
	}
	if p.Priority != nil {
		s.Priority = *p.Priority
	}
	s.LastActivityAt = time.Now()
	out := s.Clone()
	m.publish(events.SessionUpdated, id, events.SessionPayload{
		SessionID: id, Status: string(s.Status), Tier: s.Tier, Priority: s.Priority,
	})
	return out, nil
}

// AppendMessage appends m to the session's message log. Completed sessions
// reject further appends.
func (m *MemStore) AppendMessage(id string, msg Message) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lockedGet(id)
	if err != nil {
		return Session{}, err
	}
	if s.Status == StatusCompleted {
		return Session{}, coreerr.NewConflictError("session", "message appends are rejected after completion")
	}
	msg.SessionID = id
	if msg.Ts.IsZero() {
		msg.Ts = time.Now()
	}
	if msg.ID == "" {
		msg.ID = m.ids.New()
	}
	s.Messages = append(s.Messages, msg)
	s.LastActivityAt = msg.Ts
	return s.Clone(), nil
}

// Complete marks the session completed and computes ResolutionTimeMS.
// Completing an already-completed session is a no-op.
func (m *MemStore) Complete(id string, now time.Time) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lockedGet(id)
	if err != nil {
		return Session{}, err
	}
	if s.Status == StatusCompleted {
		return s.Clone(), nil
	}
	s.Status = StatusCompleted
	s.CompletedAt = &now
	s.ResolutionTimeMS = now.Sub(s.CreatedAt).Milliseconds()
	out := s.Clone()
	m.publish(events.SessionCompleted, id, events.SessionPayload{
		SessionID: id, Status: string(s.Status), Tier: s.Tier, Priority: s.Priority,
	})
	return out, nil
}

// Escalate is the mechanical session-side half of an escalation: it
// appends the history entry, bumps tier (which only ever increases) and
// status, and stamps the SLA deadline. The escalation engine (pkg/escalation)
// owns rule resolution, authority checks, and reassignment/requeue —
// this method performs no policy decisions of its own.
func (m *MemStore) Escalate(id, reason string, newTier int, ruleID string, sla time.Time) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lockedGet(id)
	if err != nil {
		return Session{}, err
	}
	if newTier < s.Tier {
		return Session{}, coreerr.NewValidationError("newTier", "tier must be non-decreasing")
	}
	entry := EscalationEntry{
		Ts:       time.Now(),
		Reason:   reason,
		FromTier: s.Tier,
		ToTier:   newTier,
		RuleID:   ruleID,
		Priority: s.Priority,
		SLA:      sla,
	}
	s.EscalationHistory = append(s.EscalationHistory, entry)
	s.Tier = newTier
	s.Status = StatusEscalated
	s.EscalationReason = reason
	s.EscalationSLA = &sla
	s.LastActivityAt = entry.Ts
	out := s.Clone()
	m.publish(events.SessionEscalated, id, events.EscalatedPayload{
		SessionID: id, Reason: reason, FromTier: entry.FromTier, ToTier: newTier,
		RuleID: ruleID, Priority: s.Priority, SLA: sla,
	})
	return out, nil
}

// Assign transitions a session to active with the given agent, used by the
// dispatcher's two-phase assign. It is not part of the Store interface;
// pkg/dispatch and pkg/escalation call it through their own local
// interfaces, after the agent directory's Assign has succeeded.
func (m *MemStore) Assign(id, agentID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lockedGet(id)
	if err != nil {
		return Session{}, err
	}
	if s.Status == StatusActive {
		return Session{}, coreerr.NewConflictError("session", "already active")
	}
	now := time.Now()
	s.Status = StatusActive
	s.AssignedAgentID = agentID
	s.AssignedAt = &now
	s.LastActivityAt = now
	out := s.Clone()
	m.publish(events.SessionAssigned, id, events.AssignedPayload{SessionID: id, AgentID: agentID, Tier: s.Tier})
	return out, nil
}

// ListWaiting returns a snapshot of every waiting session.
func (m *MemStore) ListWaiting() []Session {
	return m.listByStatus(StatusWaiting)
}

// ListActive returns a snapshot of every active session.
func (m *MemStore) ListActive() []Session {
	return m.listByStatus(StatusActive)
}

// ListEscalated returns a snapshot of every escalated (not yet
// reassigned) session, the candidate set the SLA-breach sweep scans.
func (m *MemStore) ListEscalated() []Session {
	return m.listByStatus(StatusEscalated)
}

func (m *MemStore) listByStatus(status Status) []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0)
	for _, s := range m.sessions {
		if s.Status == status {
			out = append(out, s.Clone())
		}
	}
	return out
}

// Recover returns every currently waiting and active session so the
// dispatcher/queue can re-index them. MemStore has nothing durable to
// replay, so this simply snapshots current state — dbstore.SessionStore's
// Recover is the one that actually reloads from Postgres after a restart.
func (m *MemStore) Recover() (waiting []Session, active []Session, err error) {
	return m.ListWaiting(), m.ListActive(), nil
}
