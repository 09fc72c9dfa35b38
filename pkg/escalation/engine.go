package escalation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/agentdir"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/events"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/queue"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/session"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/tier"
)

// Store is the subset of session.Store the escalation engine needs.
type Store interface {
	Get(id string) (session.Session, error)
	Escalate(id, reason string, newTier int, ruleID string, sla time.Time) (session.Session, error)
	Assign(id, agentID string) (session.Session, error)
	Update(id string, p session.Patch) (session.Session, error)
	ListEscalated() []session.Session
}

// Directory is the subset of agentdir.Directory the escalation engine
// needs.
type Directory interface {
	Get(id string) (agentdir.Agent, error)
	ListAvailableByTier(t tier.Tier) []agentdir.Agent
	Assign(id, sessionID string) error
	UpdateStatus(id string, status agentdir.Status, now int64) error
}

// sweepInterval is how often Engine's background sweep checks for
// SLA-breached escalated sessions.
const sweepInterval = 5 * time.Second

// Engine is the escalation rule engine. It holds no rule state of
// its own beyond the immutable RuleSet, consistent with rules being
// "loaded at startup" and not runtime-mutable.
type Engine struct {
	rules *RuleSet
	store Store
	dir   Directory
	q     *queue.Queue
	bus   *events.Bus
	log   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an Engine. log may be nil (falls back to slog.Default()).
func New(rules *RuleSet, store Store, dir Directory, q *queue.Queue, bus *events.Bus, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{rules: rules, store: store, dir: dir, q: q, bus: bus, log: log}
}

// Rules returns the engine's immutable rule set, for the read-only
// getEscalationRules() external API.
func (e *Engine) Rules() []Rule {
	return e.rules.All()
}

// HandleEscalation drives one escalation for a session:
//  1. resolve rule (NoMatchingRule if none matches)
//  2. authority check against the currently assigned agent, if any
//  3. append escalation history, bump tier/status/SLA on the session
//  4. attempt immediate reassignment to an available agent at exactly
//     toTier; otherwise leave escalated and re-enqueue with priority+1
//     (clamped to 10)
func (e *Engine) HandleEscalation(sessionID, reason string) (session.Session, error) {
	rule, err := e.rules.FindRule(reason)
	if err != nil {
		return session.Session{}, err
	}

	sess, err := e.store.Get(sessionID)
	if err != nil {
		return session.Session{}, err
	}

	if sess.AssignedAgentID != "" {
		agent, err := e.dir.Get(sess.AssignedAgentID)
		if err != nil {
			return session.Session{}, err
		}
		if !agent.Authority().Allows(rule.ToTier) {
			return session.Session{}, coreerr.NewNotAuthorizedError(agent.ID, "escalate to tier")
		}
	}

	sla := time.Now().Add(rule.SLA)
	sess, err = e.store.Escalate(sessionID, reason, int(rule.ToTier), rule.ID, sla)
	if err != nil {
		return session.Session{}, err
	}

	if agent, ok := e.firstAvailable(rule.ToTier); ok {
		if err := e.reassign(sess, agent); err != nil {
			e.log.Warn("escalation: immediate reassignment failed, requeuing",
				"session_id", sessionID, "agent_id", agent.ID, "error", err)
			return e.requeue(sess)
		}
		sess, err = e.store.Get(sessionID)
		if err != nil {
			return session.Session{}, err
		}
		return sess, nil
	}

	return e.requeue(sess)
}

func (e *Engine) firstAvailable(t tier.Tier) (agentdir.Agent, bool) {
	candidates := e.dir.ListAvailableByTier(t)
	if len(candidates) == 0 {
		return agentdir.Agent{}, false
	}
	return candidates[0], true
}

func (e *Engine) reassign(sess session.Session, agent agentdir.Agent) error {
	if err := e.dir.Assign(agent.ID, sess.ID); err != nil {
		return err
	}
	// The store publishes session_assigned itself as part of Assign.
	if _, err := e.store.Assign(sess.ID, agent.ID); err != nil {
		_ = e.dir.UpdateStatus(agent.ID, agentdir.StatusAvailable, time.Now().UnixMilli())
		return err
	}
	return nil
}

// requeue recomputes priority (+1, clamped to 10) and re-enqueues the
// session.
func (e *Engine) requeue(sess session.Session) (session.Session, error) {
	newPriority := tier.Clamp(sess.Priority+1, 1, 10)
	updated, err := e.store.Update(sess.ID, session.Patch{Priority: &newPriority})
	if err != nil {
		return session.Session{}, err
	}
	e.q.Enqueue(queue.Item{
		SessionID: updated.ID,
		Priority:  updated.Priority,
		CreatedAt: updated.CreatedAt,
		Tier:      updated.Tier,
	})
	if e.bus != nil {
		e.bus.Publish(events.SessionEnqueued, updated.ID, events.SessionPayload{
			SessionID: updated.ID, Status: string(updated.Status), Tier: updated.Tier, Priority: updated.Priority,
		})
	}
	return updated, nil
}

// Start launches the background SLA-breach sweep. Calling Start twice is
// a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.sweepLoop(ctx)
}

// Stop signals the sweep to exit and waits for it to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (e *Engine) sweepLoop(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(time.Now())
		}
	}
}

// Sweep publishes sla_breach for every escalated session whose
// EscalationSLA has passed. The sweep only surfaces the event; it does
// not cancel or otherwise punish the session.
func (e *Engine) Sweep(now time.Time) {
	if e.bus == nil {
		return
	}
	for _, sess := range e.store.ListEscalated() {
		if sess.EscalationSLA != nil && now.After(*sess.EscalationSLA) {
			e.bus.Publish(events.SLABreach, sess.ID, events.SLABreachPayload{
				SessionID: sess.ID, SLA: *sess.EscalationSLA, Tier: sess.Tier,
			})
		}
	}
}
