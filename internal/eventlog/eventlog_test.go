package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionerMonotonic(t *testing.T) {
	v := NewVersioner()
	prev := v.Next()
	for i := 0; i < 50; i++ {
		next := v.Next()
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestVersionerObserveAdvancesPastLoadedValue(t *testing.T) {
	v := NewVersioner()
	v.Observe("00000000099999999999")
	next := v.Next()
	assert.Greater(t, next, "00000000099999999999")
}

func TestLogPublishDeliversToWatchers(t *testing.T) {
	l := NewLog()
	ch, cancel := l.Watch()
	defer cancel()

	l.Publish(Event{Type: Added, AgentID: "a1", ResourceVersion: "1"})

	select {
	case ev := <-ch:
		require.Equal(t, Added, ev.Type)
		require.Equal(t, "a1", ev.AgentID)
	default:
		t.Fatal("expected event to be delivered")
	}
}

func TestLogDropsSlowWatcherInsteadOfBlocking(t *testing.T) {
	l := NewLog()
	ch, _ := l.Watch()

	for i := 0; i < watchQueueDepth+10; i++ {
		l.Publish(Event{Type: Modified, AgentID: "a1", ResourceVersion: "x"})
	}

	assert.Equal(t, 0, l.WatcherCount(), "overflowing watcher should have been dropped")
	// Draining the channel should still work without panicking on the closed channel.
	for range ch {
	}
}
