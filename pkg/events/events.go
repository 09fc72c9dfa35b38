// Package events implements the in-process typed publish/subscribe hub used
// across every other component. The hub carries no wire transport of its
// own; cmd/dispatchd bridges published events onto WebSocket connections.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Type enumerates the named events required by the core. Using a defined
// string type (rather than bare strings) keeps Subscribe/Publish call sites
// self-documenting and catches typos at compile time.
type Type string

const (
	SessionCreated      Type = "session_created"
	SessionEnqueued     Type = "session_enqueued"
	SessionAssigned     Type = "session_assigned"
	SessionUpdated      Type = "session_updated"
	SessionCompleted    Type = "session_completed"
	SessionEscalated    Type = "session_escalated"
	SLABreach           Type = "sla_breach"
	TypingStart         Type = "typing_start"
	TypingProgress      Type = "typing_progress"
	TypingEnd           Type = "typing_end"
	ResponseReady       Type = "response_ready"
	EvaluationCreated   Type = "evaluation_created"
	CriterionScored     Type = "criterion_scored"
	EvaluationComplete  Type = "evaluation_completed"
	CalibrationRequired Type = "calibration_required"
)

// Event is the envelope delivered to subscribers. Payload carries the
// event-specific typed data (see payloads.go); SessionID is empty for
// events that are not session-scoped (the QA evaluation events).
type Event struct {
	Type      Type
	SessionID string
	Payload   any
	Seq       uint64
	At        time.Time
}

// subscriberQueueDepth bounds how many not-yet-delivered events a single
// subscriber may have buffered before the bus starts dropping for it.
// Subscribers are contractually non-blocking; a slow subscriber loses
// events rather than stalling publishers.
const subscriberQueueDepth = 256

type subscriber struct {
	id   uint64
	ch   chan Event
	done chan struct{}
}

// Bus is an in-process, typed event hub. Publish delivers to every current
// subscriber in publication order per publisher; subscribers never block a
// Publish call. The bus is not a persistence mechanism — there is no
// replay, no catchup, no durability.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	nextSubID   uint64
	nextSeq     uint64
	log         *slog.Logger
}

// NewBus constructs an empty Bus. A nil logger falls back to slog.Default().
func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		subscribers: make(map[uint64]*subscriber),
		log:         log,
	}
}

// Handler receives events delivered by a Bus. Handlers run on a dedicated
// goroutine per subscription and must not block indefinitely — a Bus never
// waits on a Handler.
type Handler func(Event)

// Subscribe registers fn to receive every event published after this call.
// It returns an unsubscribe function; calling it is idempotent and safe to
// call from within the handler itself.
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	sub := &subscriber{
		id:   id,
		ch:   make(chan Event, subscriberQueueDepth),
		done: make(chan struct{}),
	}
	b.subscribers[id] = sub
	b.mu.Unlock()

	go func() {
		for {
			select {
			case ev, ok := <-sub.ch:
				if !ok {
					return
				}
				fn(ev)
			case <-sub.done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(sub.done)
		})
	}
}

// Publish delivers ev to every current subscriber. Delivery order across
// subscribers, and across successive Publish calls from the same caller, is
// the order Publish was invoked in; a full subscriber queue drops the event
// for that subscriber only (logged at Warn) rather than blocking the
// publisher or other subscribers.
func (b *Bus) Publish(typ Type, sessionID string, payload any) Event {
	b.mu.Lock()
	b.nextSeq++
	ev := Event{
		Type:      typ,
		SessionID: sessionID,
		Payload:   payload,
		Seq:       b.nextSeq,
		At:        timeNow(),
	}
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			b.log.Warn("events: dropping event for slow subscriber",
				"event_type", string(typ), "session_id", sessionID, "subscriber", s.id)
		}
	}
	return ev
}

// timeNow is indirected so tests can substitute it if needed; production
// wiring always uses wall-clock time.
var timeNow = time.Now
