// Package core wires the dispatch engine together and exposes the
// transport-agnostic operation set a deployment wraps with HTTP or a
// message interface. Every component is constructed explicitly here and
// handed its dependencies — no ambient globals.
package core

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/agentdir"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/config"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/convo"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/dispatch"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/escalation"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/events"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/ids"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/knowledge"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/qa"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/queue"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/session"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/stealth"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/tier"
)

// SessionStore is the session store contract the core wires against: the
// shared session.Store operations plus the dispatcher's two-phase Assign.
// session.MemStore and dbstore.SessionStore both satisfy it.
type SessionStore interface {
	session.Store
	Assign(id, agentID string) (session.Session, error)
}

// ProfileRecorder folds completed sessions into durable customer
// profiles. Optional; nil disables profile accumulation.
type ProfileRecorder interface {
	RecordCompletion(sess session.Session, escalated bool) error
}

// Core owns the constructed component graph and implements the external
// Session/Agent/Escalation/QA/Prompt APIs over it.
type Core struct {
	opts      config.Options
	bus       *events.Bus
	ids       *ids.Generator
	knowledge *knowledge.Registry
	agents    *agentdir.Directory
	store     SessionStore
	queue     *queue.Queue
	prompts   *convo.Registry
	runtime   *convo.Runtime
	pacer     *stealth.Pacer
	escalator *escalation.Engine
	evaluator *qa.Evaluator

	dispatcher *dispatch.Dispatcher
	profiles   ProfileRecorder
	log        *slog.Logger

	unsubscribe func()
}

// Deps carries the externally constructed dependencies New wires up.
// Store defaults to a fresh MemStore; Bus, Logger, Profiles, and Archiver
// may be nil.
type Deps struct {
	Config   *config.Config
	Store    SessionStore
	Bus      *events.Bus
	Profiles ProfileRecorder
	Archiver qa.Archiver
	Logger   *slog.Logger
}

// New constructs the full component graph from cfg and deps.
func New(deps Deps) (*Core, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	cfg := deps.Config

	bus := deps.Bus
	if bus == nil {
		bus = events.NewBus(log)
	}
	gen := ids.NewGenerator()

	store := deps.Store
	if store == nil {
		store = session.NewMemStore(gen, bus)
	}

	kb := knowledge.NewRegistry()
	for _, e := range cfg.Knowledge {
		if err := kb.Register(e); err != nil {
			return nil, err
		}
	}

	prompts, err := convo.NewRegistry(cfg.Prompts...)
	if err != nil {
		return nil, err
	}

	rules, err := escalation.NewRuleSet(cfg.EscalationRules)
	if err != nil {
		return nil, err
	}

	evaluator, err := qa.NewEvaluator(cfg.Scorecards, gen, bus, deps.Archiver)
	if err != nil {
		return nil, err
	}

	q := queue.New()
	agents := agentdir.NewDirectory()
	pacer := stealth.New(bus, cfg.StealthProfiles)
	escalator := escalation.New(rules, store, agents, q, bus, log)
	dispatcher := dispatch.New(q, store, agents, bus, log)

	c := &Core{
		opts:       cfg.Options,
		bus:        bus,
		ids:        gen,
		knowledge:  kb,
		agents:     agents,
		store:      store,
		queue:      q,
		prompts:    prompts,
		runtime:    convo.NewRuntime(),
		pacer:      pacer,
		escalator:  escalator,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		profiles:   deps.Profiles,
		log:        log,
	}
	return c, nil
}

// Start recovers persisted state, launches the dispatcher and the SLA
// sweep, and subscribes the paced-response sink. It is not idempotent:
// each call subscribes the sink again.
func (c *Core) Start(ctx context.Context) error {
	waiting, active, err := c.store.Recover()
	if err != nil {
		return err
	}
	for _, s := range waiting {
		c.enqueue(s)
	}
	if len(waiting) > 0 || len(active) > 0 {
		c.log.Info("recovered persisted sessions", "waiting", len(waiting), "active", len(active))
	}

	// Paced responses land back in the session store as agent messages
	// once the pacer releases them.
	c.unsubscribe = c.bus.Subscribe(func(ev events.Event) {
		if ev.Type != events.ResponseReady {
			return
		}
		payload, ok := ev.Payload.(events.ResponsePayload)
		if !ok {
			return
		}
		if _, err := c.store.AppendMessage(ev.SessionID, session.Message{
			Role:         session.RoleAgent,
			Content:      payload.Content,
			ResponseType: session.ResponseType(payload.ResponseType),
		}); err != nil {
			c.log.Warn("failed to append paced response", "session_id", ev.SessionID, "error", err)
		}
	})

	c.dispatcher.Start(ctx)
	c.escalator.Start(ctx)
	return nil
}

// Stop shuts down the background loops and drops the paced-response
// subscription.
func (c *Core) Stop() {
	c.dispatcher.Stop()
	c.escalator.Stop()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// Bus exposes the event hub for outer shells (WebSocket bridges, tests)
// to subscribe on.
func (c *Core) Bus() *events.Bus {
	return c.bus
}

// --- Session API ---

// CreateSession creates a waiting session and enqueues it.
func (c *Core) CreateSession(d session.CustomerData) (session.Session, error) {
	s, err := c.store.Create(d)
	if err != nil {
		return session.Session{}, err
	}
	c.enqueue(s)
	if soft := c.opts.QueueBackpressureSoft; soft > 0 && c.queue.Length() > soft {
		c.log.Warn("waiting queue above backpressure soft limit",
			"depth", c.queue.Length(), "soft_limit", soft)
	}
	return s, nil
}

func (c *Core) enqueue(s session.Session) {
	c.queue.Enqueue(queue.Item{
		SessionID: s.ID,
		Priority:  s.Priority,
		CreatedAt: s.CreatedAt,
		Tier:      s.Tier,
	})
	c.bus.Publish(events.SessionEnqueued, s.ID, events.SessionPayload{
		SessionID: s.ID, Status: string(s.Status), Tier: s.Tier, Priority: s.Priority,
	})
}

// PostCustomerMessage appends the customer message, runs the conversation
// runtime over it, and raises escalation when the runtime asks for it.
func (c *Core) PostCustomerMessage(sessionID, text string) (bool, error) {
	s, err := c.store.AppendMessage(sessionID, session.Message{
		Role:    session.RoleCustomer,
		Content: text,
	})
	if err != nil {
		return false, err
	}

	prompt, err := c.prompts.Get(s.Context.PromptID)
	if err != nil {
		return false, err
	}

	result, next := c.runtime.ProcessMessage(prompt, s.Context, text)
	if _, err := c.store.Update(sessionID, session.Patch{Context: &next}); err != nil {
		return false, err
	}

	if result.ShouldEscalate && c.opts.EscalationAutoReenqueue {
		if _, err := c.escalator.HandleEscalation(sessionID, result.EscalateReason); err != nil {
			// A reason that matches no rule is not a message failure; the
			// message was accepted and the session simply stays where it is.
			c.log.Warn("runtime-raised escalation not applied",
				"session_id", sessionID, "reason", result.EscalateReason, "error", err)
		}
	}
	return true, nil
}

// PostAgentResponse routes an agent reply into the session: through the
// stealth pacer when enabled, directly into the message log otherwise.
func (c *Core) PostAgentResponse(ctx context.Context, sessionID, agentID, content string, responseType session.ResponseType) error {
	if _, err := c.store.Get(sessionID); err != nil {
		return err
	}
	agent, err := c.agents.Get(agentID)
	if err != nil {
		return err
	}

	if !c.opts.StealthEnabled {
		_, err := c.store.AppendMessage(sessionID, session.Message{
			Role:         session.RoleAgent,
			AgentID:      agentID,
			Content:      content,
			ResponseType: responseType,
		})
		return err
	}

	c.pacer.Schedule(ctx, sessionID, int(agent.Tier), responseType, content, nil)
	return nil
}

// RequestMode switches the session's active prompt and resets its
// conversation state. The customer message count carries over, so the
// message limit counts messages across the whole session.
func (c *Core) RequestMode(sessionID, promptID string) error {
	if _, err := c.prompts.Get(promptID); err != nil {
		return err
	}
	cur, err := c.store.Get(sessionID)
	if err != nil {
		return err
	}
	fresh := session.ConversationContext{
		PromptID:        promptID,
		CurrentStep:     1,
		ExtractedFields: make(map[string]string),
		MessageCount:    cur.Context.MessageCount,
	}
	_, err = c.store.Update(sessionID, session.Patch{Context: &fresh})
	return err
}

// GetSession returns a session snapshot including messages.
func (c *Core) GetSession(sessionID string) (session.Session, error) {
	return c.store.Get(sessionID)
}

// ListWaiting returns every waiting session.
func (c *Core) ListWaiting() []session.Session {
	return c.store.ListWaiting()
}

// ListActive returns every active session.
func (c *Core) ListActive() []session.Session {
	return c.store.ListActive()
}

// QueueStatus is the user-visible waiting state: 1-indexed position and a
// rough pickup estimate.
type QueueStatus struct {
	Position     int
	QueueLength  int
	EstimatedWait time.Duration
}

// defaultHandleTime seeds the wait estimate before any agent has a
// measured average.
const defaultHandleTime = 5 * time.Minute

// QueueStatus derives position and ETA for a waiting session from queue
// position, measured average handle time, and available agent count.
func (c *Core) QueueStatus(sessionID string) (QueueStatus, error) {
	pos, ok := c.queue.Position(sessionID)
	if !ok {
		return QueueStatus{}, coreerr.NewNotFoundError("queued_session", sessionID)
	}

	available := len(c.agents.ListEligible(tier.TierSelfService))
	if available < 1 {
		available = 1
	}

	handle := c.averageHandleTime()
	eta := time.Duration(pos) * handle / time.Duration(available)
	return QueueStatus{Position: pos, QueueLength: c.queue.Length(), EstimatedWait: eta}, nil
}

func (c *Core) averageHandleTime() time.Duration {
	var sum int64
	var n int64
	for _, a := range c.agents.ListByTier(tier.TierOne) {
		if a.Performance.AverageHandleTime > 0 {
			sum += a.Performance.AverageHandleTime
			n++
		}
	}
	if n == 0 {
		return defaultHandleTime
	}
	return time.Duration(sum/n) * time.Millisecond
}

// CompleteSession finishes the session: the pacer is cancelled, the
// assigned agent freed, the profile updated, and the dispatcher woken for
// the freed capacity.
func (c *Core) CompleteSession(sessionID string) (session.Session, error) {
	c.pacer.Deactivate(sessionID)
	s, err := c.store.Complete(sessionID, time.Now())
	if err != nil {
		return session.Session{}, err
	}

	if s.AssignedAgentID != "" {
		if err := c.agents.UpdateStatus(s.AssignedAgentID, agentdir.StatusAvailable, time.Now().UnixMilli()); err != nil {
			c.log.Warn("failed to free agent on completion", "agent_id", s.AssignedAgentID, "error", err)
		}
		c.dispatcher.Notify()
	}

	if c.profiles != nil {
		if err := c.profiles.RecordCompletion(s, len(s.EscalationHistory) > 0); err != nil {
			c.log.Warn("failed to record customer profile", "customer_id", s.Customer.ID, "error", err)
		}
	}
	return s, nil
}

// --- Agent API ---

// RegisterAgent validates and registers a new agent, allocating its id
// when absent.
func (c *Core) RegisterAgent(a agentdir.Agent) (string, error) {
	if a.ID == "" {
		a.ID = c.ids.New()
	}
	if err := c.agents.Create(a); err != nil {
		return "", err
	}
	if a.Status == "" || a.Status == agentdir.StatusAvailable {
		c.dispatcher.Notify()
	}
	return a.ID, nil
}

// SetAgentStatus transitions the agent's status. Going available wakes the
// dispatcher; going offline cancels any paced response for the agent's
// current session.
func (c *Core) SetAgentStatus(agentID string, status agentdir.Status) error {
	prev, err := c.agents.Get(agentID)
	if err != nil {
		return err
	}
	if err := c.agents.UpdateStatus(agentID, status, time.Now().UnixMilli()); err != nil {
		return err
	}
	switch status {
	case agentdir.StatusAvailable:
		c.dispatcher.Notify()
	case agentdir.StatusOffline:
		if prev.CurrentSessionID != "" {
			c.pacer.Deactivate(prev.CurrentSessionID)
		}
	}
	return nil
}

// GetAgent returns the agent by id.
func (c *Core) GetAgent(agentID string) (agentdir.Agent, error) {
	return c.agents.Get(agentID)
}

// AgentFilter narrows ListAgents; zero values match everything.
type AgentFilter struct {
	Tier   *tier.Tier
	Status agentdir.Status
}

// ListAgents returns agents matching the filter, ordered by tier then id.
func (c *Core) ListAgents(f AgentFilter) []agentdir.Agent {
	var out []agentdir.Agent
	for t := tier.TierSelfService; t <= tier.MaxTier; t++ {
		if f.Tier != nil && *f.Tier != t {
			continue
		}
		for _, a := range c.agents.ListByTier(t) {
			if f.Status != "" && a.Status != f.Status {
				continue
			}
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Knowledge exposes the tier-gated knowledge registry.
func (c *Core) Knowledge() *knowledge.Registry {
	return c.knowledge
}

// --- Escalation API ---

// EscalateSession drives a manual escalation for the given reason.
func (c *Core) EscalateSession(sessionID, reason string) (session.Session, error) {
	return c.escalator.HandleEscalation(sessionID, reason)
}

// EscalationRules returns the immutable loaded rule set.
func (c *Core) EscalationRules() []escalation.Rule {
	return c.escalator.Rules()
}

// --- QA API ---

// CreateEvaluation opens a QA evaluation over the interaction.
func (c *Core) CreateEvaluation(interaction qa.Interaction, scorecardID, qaAgentID string) (qa.Evaluation, error) {
	return c.evaluator.CreateEvaluation(interaction, scorecardID, qaAgentID)
}

// ScoreCriterion records sub-criterion scores for one criterion.
func (c *Core) ScoreCriterion(evalID, critID, qaAgentID string, subScores []float64, notes string) (qa.Evaluation, error) {
	return c.evaluator.ScoreCriterion(evalID, critID, qaAgentID, subScores, notes)
}

// CompleteEvaluation finalizes the evaluation.
func (c *Core) CompleteEvaluation(evalID, qaAgentID, notes string, recommendations []string) (qa.Evaluation, error) {
	return c.evaluator.Complete(evalID, qaAgentID, notes, recommendations)
}

// GetEvaluation returns the evaluation by id.
func (c *Core) GetEvaluation(evalID string) (qa.Evaluation, error) {
	return c.evaluator.Get(evalID)
}

// ListEvaluationsByAgent returns evaluations of the agent's interactions.
func (c *Core) ListEvaluationsByAgent(agentID string) []qa.Evaluation {
	return c.evaluator.ListByAgent(agentID)
}

// --- Prompt API ---

// ListPrompts returns the ids of every loaded prompt config.
func (c *Core) ListPrompts() []string {
	out := c.prompts.List()
	sort.Strings(out)
	return out
}

// GetPrompt returns the prompt config by id.
func (c *Core) GetPrompt(id string) (*convo.PromptConfig, error) {
	return c.prompts.Get(id)
}
