// Package dispatch implements the dispatcher: a single-threaded
// cooperative loop that drains the priority queue whenever an agent
// becomes available or a session is enqueued (stop channel + wake signal
// + jittered fallback poll).
package dispatch

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/agentdir"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/events"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/queue"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/session"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/tier"
)

// Store is the subset of session.Store the dispatcher needs, plus the
// two-phase Assign call. MemStore satisfies it structurally; it is kept as
// a local interface because Assign is not part of session.Store (see
// pkg/session/store.go's Assign doc comment).
type Store interface {
	Get(id string) (session.Session, error)
	Assign(id, agentID string) (session.Session, error)
}

// Directory is the subset of agentdir.Directory the dispatcher needs.
type Directory interface {
	Get(id string) (agentdir.Agent, error)
	ListEligible(minTier tier.Tier) []agentdir.Agent
	Assign(id, sessionID string) error
	UpdateStatus(id string, status agentdir.Status, now int64) error
}

// pollFallback is the interval the dispatcher re-checks the queue even
// absent a Woke signal, jittered +/-50%, a safety net against a missed
// wake.
const pollFallback = 500 * time.Millisecond

// Dispatcher drains q, assigning waiting sessions to eligible available
// agents. It owns no state of its own beyond the loop's lifecycle; the
// queue is the single-writer zone, the session store and agent directory
// each own their own.
type Dispatcher struct {
	queue *queue.Queue
	store Store
	dir   Directory
	bus   *events.Bus
	log   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Dispatcher. log may be nil (falls back to slog.Default()).
func New(q *queue.Queue, store Store, dir Directory, bus *events.Bus, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{queue: q, store: store, dir: dir, bus: bus, log: log}
}

// Start launches the dispatch loop in a background goroutine. Calling
// Start twice is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.run(ctx)
}

// Stop signals the loop to exit and waits for it to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	done := d.done
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		woke := d.queue.Woke()
		d.Tick()

		wait := pollFallback/2 + time.Duration(rand.Int64N(int64(pollFallback)))
		select {
		case <-ctx.Done():
			return
		case <-woke:
		case <-time.After(wait):
		}
	}
}

// Tick runs one dispatch pass: while the queue is non-empty and the head
// session has an eligible available agent, pop and assign it; assignments
// within one Tick follow queue order. Tick
// never panics — invariant violations surface as logged, swallowed errors
// so the dispatcher loops on the next event rather than crashing the
// process.
func (d *Dispatcher) Tick() {
	for {
		head, ok := d.queue.Peek()
		if !ok {
			return
		}

		agent, found := d.selectAgent(head.Tier)
		if !found {
			// No eligible agent for the head; leave it in place and stop
			// this tick. The head was never popped, so there is nothing
			// to restore.
			return
		}

		popped, err := d.queue.Pop()
		if err != nil || popped.SessionID != head.SessionID {
			// Queue mutated concurrently (shouldn't happen under the
			// single-writer contract, but fail safe rather than assign
			// the wrong session).
			if popped.SessionID != "" {
				d.queue.PushFront(popped)
			}
			return
		}

		if err := d.assign(popped, agent); err != nil {
			d.log.Warn("dispatch: assignment failed, requeuing",
				"session_id", popped.SessionID, "agent_id", agent.ID, "error", err)
			d.queue.PushFront(popped)
			return
		}
	}
}

// selectAgent picks the best eligible agent for a session requiring
// minTier: highest tier, tiebreak lowest current load (agents here are
// single-session, so load is always 0), tiebreak lastAvailable ascending
// (longest-idle agent goes first).
func (d *Dispatcher) selectAgent(minTier int) (agentdir.Agent, bool) {
	candidates := d.dir.ListEligible(tier.Tier(minTier))
	if len(candidates) == 0 {
		return agentdir.Agent{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Tier != candidates[j].Tier {
			return candidates[i].Tier > candidates[j].Tier
		}
		return candidates[i].LastAvailable < candidates[j].LastAvailable
	})
	return candidates[0], true
}

// assign performs the two-phase assignment: agent directory first, then
// session store. Each half takes only its own component's lock; no lock is
// held across the two. If the session-store half fails after the
// agent-directory half succeeds, the agent is set back to available so
// neither half is left partially applied.
func (d *Dispatcher) assign(item queue.Item, agent agentdir.Agent) error {
	if err := d.dir.Assign(agent.ID, item.SessionID); err != nil {
		return err
	}
	// The store publishes session_assigned itself as part of Assign.
	if _, err := d.store.Assign(item.SessionID, agent.ID); err != nil {
		_ = d.dir.UpdateStatus(agent.ID, agentdir.StatusAvailable, time.Now().UnixMilli()) // best-effort rollback
		return err
	}
	return nil
}

// Notify wakes the dispatcher — called by the caller whenever an agent
// transitions to available, since the Queue's own Woke signal only fires
// on Enqueue.
func (d *Dispatcher) Notify() {
	d.queue.Wake()
}
