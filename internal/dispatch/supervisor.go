// Package dispatch implements the dispatch core (C6): it owns every C2
// (input session), C4 (output session) and C5 (telemetry publisher)
// task, wires them together through the broadcast primitives, and
// supervises them with panic-recovery/restart, generalizing the
// teacher's (ryansname-powerctl) SafeGo helper from a fixed
// Home-Assistant worker graph to the BMS session graph.
package dispatch

import (
	"context"
	"log"
	"time"
)

const (
	maxTaskRetries  = 10
	retryResetAfter = 60 * time.Second
)

// taskRetryDelay is a var, not a const, so tests can shrink it rather
// than waiting out the real 1 s delay ten times over.
var taskRetryDelay = 1 * time.Second

// SafeGo launches fn in its own goroutine with panic recovery. On
// panic, it is restarted after taskRetryDelay; after maxTaskRetries
// consecutive failures within retryResetAfter, cancel is called to
// bring the whole process down (spec.md §4.6, §7 TaskCrash).
func SafeGo(ctx context.Context, cancel context.CancelFunc, name string, fn func(ctx context.Context)) {
	go func() {
		retries := 0

		for {
			startedAt := time.Now()
			var panicValue any

			func() {
				defer func() { panicValue = recover() }()
				fn(ctx)
			}()

			if panicValue == nil {
				return // clean return: shutdown or (for tasks that can) natural completion
			}

			if time.Since(startedAt) >= retryResetAfter {
				retries = 0
			}
			retries++
			log.Printf("dispatch: panic in %s (attempt %d/%d): %v", name, retries, maxTaskRetries, panicValue)

			if retries >= maxTaskRetries {
				log.Printf("dispatch: %s failed %d times, shutting down", name, maxTaskRetries)
				cancel()
				return
			}

			select {
			case <-time.After(taskRetryDelay):
			case <-ctx.Done():
				return
			}
		}
	}()
}
