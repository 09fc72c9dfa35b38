// Package agentdir implements the tiered agent directory: agent
// CRUD, status transitions, tier listings, and the derived
// knowledgeAccess/escalationAuthority/qualityScore fields.
package agentdir

import (
	"math"
	"sync"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/knowledge"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/tier"
)

// Status is an agent's availability state.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusOffline   Status = "offline"
	StatusTraining  Status = "training"
	StatusBreak     Status = "break"
)

// Performance holds an agent's running performance counters.
type Performance struct {
	TotalSessions          int
	ResolvedSessions       int
	EscalatedSessions      int
	AverageResolutionTime  int64   // ms
	CustomerSatisfaction   float64 // [0,5]
	FirstContactResolution float64 // [0,1]
	AverageHandleTime      int64   // ms
	QualityScore           float64 // [0,100], from QA (not this package's derived score)
}

// Agent is a support agent at a fixed tier with derived authority and
// knowledge-access snapshots computed on demand (not stored, since they
// are pure functions of tier and the knowledge registry's current state).
type Agent struct {
	ID                    string
	Name                  string
	Email                 string
	Tier                  tier.Tier
	Status                Status
	Skills                []string
	Certifications        []string
	TrainingHistory       []string
	CurrentSessionID      string // empty when not assigned
	MaxConcurrentSessions int
	SupervisorID          string
	Performance           Performance
	LastAvailable         int64 // unix millis, updated whenever Status becomes available
}

// QualityScore derives the 0-100 composite score from the agent's stored
// performance counters:
//
//	0.30·(CSAT/5)·100 + 0.25·FCR·100 + 0.25·qaScore + 0.20·(1 - escalated/max(total,1))·100
func (a Agent) QualityScore() float64 {
	total := a.Performance.TotalSessions
	if total < 1 {
		total = 1
	}
	escalationRatio := float64(a.Performance.EscalatedSessions) / float64(total)
	score := 0.30*(a.Performance.CustomerSatisfaction/5)*100 +
		0.25*a.Performance.FirstContactResolution*100 +
		0.25*a.Performance.QualityScore +
		0.20*(1-escalationRatio)*100
	return math.Round(score)
}

// KnowledgeAccess returns the snapshot of knowledge entries this agent can
// read, given its tier, from reg.
func (a Agent) KnowledgeAccess(reg *knowledge.Registry) []knowledge.View {
	return reg.ListForTier(int(a.Tier))
}

// Authority returns the agent's derived escalation authority.
func (a Agent) Authority() tier.Authority {
	return tier.ComputeAuthority(a.Tier)
}

// Directory is the thread-safe in-memory agent store.
type Directory struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewDirectory builds an empty Directory.
func NewDirectory() *Directory {
	return &Directory{agents: make(map[string]Agent)}
}

// Create registers a new agent. Tier must be in {0..4}; Status defaults to
// available.
func (d *Directory) Create(a Agent) error {
	if a.ID == "" {
		return coreerr.NewValidationError("id", "must not be empty")
	}
	if !a.Tier.Valid() {
		return coreerr.NewValidationError("tier", "must be in [0,4]")
	}
	if a.Status == "" {
		a.Status = StatusAvailable
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.agents[a.ID]; exists {
		return coreerr.NewConflictError("agent", "already registered: "+a.ID)
	}
	d.agents[a.ID] = a
	return nil
}

// Get returns a snapshot of the agent by id.
func (d *Directory) Get(id string) (Agent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.agents[id]
	if !ok {
		return Agent{}, coreerr.NewNotFoundError("agent", id)
	}
	return a, nil
}

// UpdateStatus transitions an agent's status. Any status is reachable from
// any status. Setting busy requires currentSessionID to already be set by
// a prior Assign call; setting available clears currentSessionID and
// stamps LastAvailable.
func (d *Directory) UpdateStatus(id string, status Status, now int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.agents[id]
	if !ok {
		return coreerr.NewNotFoundError("agent", id)
	}
	if status == StatusBusy && a.CurrentSessionID == "" {
		return coreerr.NewValidationError("status", "busy requires a currentSessionId")
	}
	a.Status = status
	if status == StatusAvailable {
		a.CurrentSessionID = ""
		a.LastAvailable = now
	}
	d.agents[id] = a
	return nil
}

// Assign marks agent id busy with sessionID, atomically with respect to
// other Directory calls. It takes only the directory's own lock; the
// callers (pkg/dispatch, pkg/escalation) assign the session store side
// afterwards and roll this half back if that fails.
func (d *Directory) Assign(id, sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.agents[id]
	if !ok {
		return coreerr.NewNotFoundError("agent", id)
	}
	if a.Status == StatusBusy && a.CurrentSessionID != "" {
		return coreerr.NewConflictError("agent", "already assigned to a session")
	}
	a.CurrentSessionID = sessionID
	a.Status = StatusBusy
	d.agents[id] = a
	return nil
}

// ListByTier returns every agent at exactly tier t.
func (d *Directory) ListByTier(t tier.Tier) []Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Agent, 0)
	for _, a := range d.agents {
		if a.Tier == t {
			out = append(out, a)
		}
	}
	return out
}

// ListAvailableByTier returns every agent at exactly tier t currently
// available.
func (d *Directory) ListAvailableByTier(t tier.Tier) []Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Agent, 0)
	for _, a := range d.agents {
		if a.Tier == t && a.Status == StatusAvailable {
			out = append(out, a)
		}
	}
	return out
}

// ListEligible returns every available agent with tier >= minTier, which is
// the dispatcher's candidate pool for a session requiring minTier.
func (d *Directory) ListEligible(minTier tier.Tier) []Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Agent, 0)
	for _, a := range d.agents {
		if a.Tier >= minTier && a.Status == StatusAvailable {
			out = append(out, a)
		}
	}
	return out
}

// Performance returns the agent's stored performance counters.
func (d *Directory) Performance(id string) (Performance, error) {
	a, err := d.Get(id)
	if err != nil {
		return Performance{}, err
	}
	return a.Performance, nil
}
