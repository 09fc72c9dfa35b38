package stealth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/events"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/session"
)

// TestPacingBounds checks the tier-1 profile's delay envelope:
// (min=1500ms, max=6000ms), responseType=simple_answer
// (delay=1500, typingDuration=2000), content length 80, responseCount=0.
func TestPacingBounds(t *testing.T) {
	profile := DefaultProfiles()[1]
	require.Equal(t, 1500, profile.MinResponseDelayMS)
	require.Equal(t, 6000, profile.MaxResponseDelayMS)
	pattern := profile.Patterns[session.ResponseSimpleAnswer]
	require.Equal(t, 1500, pattern.DelayMS)
	require.Equal(t, 2000, pattern.TypingDurationMS)

	for i := 0; i < 50; i++ {
		sched := computeSchedule(profile, pattern, 80, 0)
		assert.GreaterOrEqual(t, sched.DelayMS, 1500)
		assert.LessOrEqual(t, sched.DelayMS, 6000)
		assert.Greater(t, sched.TypingMS, 0)
	}
}

// fastProfile is a tiny profile so schedule tests complete in well under a
// second instead of waiting out production-scale delays.
func fastProfile() Profile {
	return Profile{
		TypingSpeed:        200,
		MinResponseDelayMS: 50,
		MaxResponseDelayMS: 150,
		TypingVariability:  0.1,
		Personality:        Personality{EmojiUsage: 0, Formality: 0},
		Patterns: map[session.ResponseType]ResponsePattern{
			session.ResponseSimpleAnswer: {DelayMS: 80, TypingDurationMS: 60},
		},
	}
}

// TestEventOrderingPerSession: events for a single session arrive strictly in the
// order {typing_start, typing_progress*, typing_end, response_ready}.
func TestEventOrderingPerSession(t *testing.T) {
	bus := events.NewBus(nil)
	p := New(bus, map[int]Profile{0: fastProfile()})

	var mu orderedCollector
	bus.Subscribe(mu.collect)

	p.Schedule(context.Background(), "sess-1", 0, session.ResponseSimpleAnswer, "hello there", nil)

	require.Eventually(t, func() bool {
		return mu.has(events.ResponseReady)
	}, 2*time.Second, 10*time.Millisecond)

	seq := mu.types()
	require.NotEmpty(t, seq)
	assert.Equal(t, events.TypingStart, seq[0])
	assert.Equal(t, events.TypingEnd, seq[len(seq)-2])
	assert.Equal(t, events.ResponseReady, seq[len(seq)-1])
	for _, typ := range seq[1 : len(seq)-2] {
		assert.Equal(t, events.TypingProgress, typ)
	}
}

// TestDeactivateSuppressesResponseReady: cancelling a session's schedule
// before it completes means no response_ready is ever published for it.
func TestDeactivateSuppressesResponseReady(t *testing.T) {
	bus := events.NewBus(nil)
	slow := fastProfile()
	slow.MinResponseDelayMS = 5000
	slow.MaxResponseDelayMS = 5000
	slow.Patterns[session.ResponseSimpleAnswer] = ResponsePattern{DelayMS: 5000, TypingDurationMS: 100}
	p := New(bus, map[int]Profile{0: slow})

	var mu orderedCollector
	bus.Subscribe(mu.collect)

	p.Schedule(context.Background(), "sess-2", 0, session.ResponseSimpleAnswer, "hello", nil)
	time.Sleep(30 * time.Millisecond)
	p.Deactivate("sess-2")

	time.Sleep(150 * time.Millisecond)
	assert.False(t, mu.has(events.ResponseReady))
}

func TestEnrichContentCapitalizesSentences(t *testing.T) {
	got := capitalizeSentences("hello there. how are you? fine!")
	assert.Equal(t, "Hello there. How are you? Fine!", got)
}

func TestEnrichContentPreservesCoreWordsWithEmojiAndPrefix(t *testing.T) {
	p := Personality{EmojiUsage: 1, Formality: 1}
	out := enrichContent("we refunded your order", p)
	assert.Contains(t, out, "refunded your order")
}

type orderedCollector struct {
	mu  sync.Mutex
	seq []events.Event
}

func (c *orderedCollector) collect(e events.Event) {
	c.mu.Lock()
	c.seq = append(c.seq, e)
	c.mu.Unlock()
}

func (c *orderedCollector) types() []events.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Type, len(c.seq))
	for i, e := range c.seq {
		out[i] = e.Type
	}
	return out
}

func (c *orderedCollector) has(typ events.Type) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.seq {
		if e.Type == typ {
			return true
		}
	}
	return false
}
