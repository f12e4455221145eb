package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotChangedFiresOnSet(t *testing.T) {
	s := NewSlot[int]()
	_, v0 := s.Get()

	done := make(chan int, 1)
	go func() {
		<-s.Changed(v0)
		val, _ := s.Get()
		done <- val
	}()

	time.Sleep(10 * time.Millisecond)
	s.Set(42)

	select {
	case got := <-done:
		assert.Equal(t, 42, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Changed to fire")
	}
}

func TestSlotChangedAlreadyStale(t *testing.T) {
	s := NewSlot[int]()
	s.Set(1)
	_, v1 := s.Get()
	s.Set(2)

	select {
	case <-s.Changed(v1 - 1):
	case <-time.After(time.Second):
		t.Fatal("Changed should fire immediately for a stale version")
	}
}

func TestMailboxDropsOldestWhenFull(t *testing.T) {
	m := NewMailbox[int](2)
	m.Notify(1)
	m.Notify(2)
	m.Notify(3) // drops 1

	require.Len(t, m.C(), 2)
	got := []int{<-m.C(), <-m.C()}
	assert.Equal(t, []int{2, 3}, got)
}
