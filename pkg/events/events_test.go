package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishOrderPerSubscriber(t *testing.T) {
	b := NewBus(nil)

	var mu sync.Mutex
	var got []Type

	var wg sync.WaitGroup
	wg.Add(1)
	count := 0
	unsub := b.Subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Type)
		count++
		if count == 4 {
			wg.Done()
		}
		mu.Unlock()
	})
	defer unsub()

	b.Publish(SessionCreated, "s1", nil)
	b.Publish(SessionEnqueued, "s1", nil)
	b.Publish(SessionAssigned, "s1", nil)
	b.Publish(SessionCompleted, "s1", nil)

	waitOrTimeout(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Type{SessionCreated, SessionEnqueued, SessionAssigned, SessionCompleted}, got)
}

func TestBus_MultipleSubscribersAllReceive(t *testing.T) {
	b := NewBus(nil)

	var wg sync.WaitGroup
	wg.Add(2)
	var n1, n2 int
	var mu sync.Mutex

	unsub1 := b.Subscribe(func(ev Event) {
		mu.Lock()
		n1++
		mu.Unlock()
		wg.Done()
	})
	defer unsub1()
	unsub2 := b.Subscribe(func(ev Event) {
		mu.Lock()
		n2++
		mu.Unlock()
		wg.Done()
	})
	defer unsub2()

	b.Publish(TypingStart, "s1", nil)
	waitOrTimeout(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, n1)
	assert.Equal(t, 1, n2)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(nil)
	var n int
	var mu sync.Mutex
	unsub := b.Subscribe(func(ev Event) {
		mu.Lock()
		n++
		mu.Unlock()
	})
	unsub()
	// Give the subscriber goroutine a moment to observe done before publish.
	time.Sleep(10 * time.Millisecond)
	b.Publish(SessionCreated, "s1", nil)
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, n)
}

func TestBus_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBus(nil)
	block := make(chan struct{})
	unsub := b.Subscribe(func(ev Event) {
		<-block // never closes during the test; handler stalls forever
	})
	defer func() {
		close(block)
		unsub()
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberQueueDepth+10; i++ {
			b.Publish(SessionUpdated, "s1", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a stalled subscriber")
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.Fail(t, "timed out waiting for subscriber delivery")
	}
}
