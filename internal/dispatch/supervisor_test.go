package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSafeGoReturnsCleanlyWithoutRestart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	done := make(chan struct{})
	SafeGo(ctx, cancel, "clean", func(ctx context.Context) {
		atomic.AddInt32(&calls, 1)
		close(done)
	})

	<-done
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSafeGoRestartsAfterPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	origDelay := taskRetryDelay
	taskRetryDelay = time.Millisecond
	defer func() { taskRetryDelay = origDelay }()

	var calls int32
	SafeGo(ctx, cancel, "flaky", func(ctx context.Context) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			panic("boom")
		}
	})

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestSafeGoCancelsAfterExhaustingRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	origDelay := taskRetryDelay
	taskRetryDelay = time.Millisecond
	defer func() { taskRetryDelay = origDelay }()

	SafeGo(ctx, cancel, "always-panics", func(ctx context.Context) {
		panic("boom")
	})

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected context to be cancelled after exhausting retries")
	}
}
