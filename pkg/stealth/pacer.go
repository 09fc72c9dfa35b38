package stealth

import (
	"context"
	"sync"
	"time"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/events"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/session"
)

// tickInterval is how often typing_progress events are emitted while a
// response is being paced.
const tickInterval = 100 * time.Millisecond

// Pacer schedules human-paced response emission for automated agent
// replies, with a per-session cancellation registry so a schedule can be
// suppressed mid-flight.
type Pacer struct {
	bus      *events.Bus
	profiles map[int]Profile

	mu             sync.Mutex
	activeSessions map[string]context.CancelFunc
	responseCounts map[string]int
}

// New builds a Pacer. profiles maps tier to its behavior Profile; a nil
// map falls back to DefaultProfiles().
func New(bus *events.Bus, profiles map[int]Profile) *Pacer {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	return &Pacer{
		bus:            bus,
		profiles:       profiles,
		activeSessions: make(map[string]context.CancelFunc),
		responseCounts: make(map[string]int),
	}
}

// RegisterSession stores cancel as the active cancellation for sessionID,
// cancelling and replacing whatever schedule (if any) was previously
// registered for it.
func (p *Pacer) RegisterSession(sessionID string, cancel context.CancelFunc) {
	p.mu.Lock()
	prev := p.activeSessions[sessionID]
	p.activeSessions[sessionID] = cancel
	p.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// UnregisterSession removes the cancel function once a schedule finishes
// normally (not via cancellation), so Deactivate becomes a no-op for it.
func (p *Pacer) UnregisterSession(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeSessions, sessionID)
}

// Deactivate suppresses all pending events for that session. Safe to call for a session with no
// active schedule.
func (p *Pacer) Deactivate(sessionID string) {
	p.mu.Lock()
	cancel, ok := p.activeSessions[sessionID]
	delete(p.activeSessions, sessionID)
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

// Schedule paces one agent response for sessionID at the given tier and
// responseType, running the typing_start/typing_progress*/typing_end/
// response_ready sequence on its own goroutine. It returns immediately;
// the caller is not blocked on the schedule completing. profile override,
// if non-nil, replaces the tier default for this call only.
func (p *Pacer) Schedule(ctx context.Context, sessionID string, tier int, responseType session.ResponseType, content string, override *Profile) {
	profile := p.profileFor(tier, override)
	pattern := profile.Patterns[responseType]

	p.mu.Lock()
	count := p.responseCounts[sessionID]
	p.responseCounts[sessionID] = count + 1
	p.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	p.RegisterSession(sessionID, cancel)

	go p.run(runCtx, sessionID, profile, pattern, content, responseType, count)
}

func (p *Pacer) profileFor(tier int, override *Profile) Profile {
	if override != nil {
		return *override
	}
	if pr, ok := p.profiles[tier]; ok {
		return pr
	}
	return p.profiles[0]
}

func (p *Pacer) run(ctx context.Context, sessionID string, profile Profile, pattern ResponsePattern, content string, responseType session.ResponseType, responseCount int) {
	defer p.UnregisterSession(sessionID)

	sched := computeSchedule(profile, pattern, len(content), responseCount)
	total := time.Duration(sched.DelayMS+sched.TypingMS) * time.Millisecond

	p.publish(events.TypingStart, sessionID, events.TypingPayload{SessionID: sessionID, ElapsedMS: 0})

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if elapsed >= total {
				p.publish(events.TypingEnd, sessionID, events.TypingPayload{SessionID: sessionID, ElapsedMS: int(total.Milliseconds())})
				enriched := enrichContent(content, profile.Personality)
				p.publish(events.ResponseReady, sessionID, events.ResponsePayload{
					SessionID:    sessionID,
					Content:      enriched,
					ResponseType: string(responseType),
				})
				return
			}
			p.publish(events.TypingProgress, sessionID, events.TypingPayload{SessionID: sessionID, ElapsedMS: int(elapsed.Milliseconds())})
		}
	}
}

func (p *Pacer) publish(typ events.Type, sessionID string, payload any) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(typ, sessionID, payload)
}
