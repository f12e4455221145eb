package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ulukas/bms-gateway/internal/broadcast"
	"github.com/ulukas/bms-gateway/internal/canbus"
	"github.com/ulukas/bms-gateway/internal/pylontech"
)

// OutputSession owns one output CAN interface, applies the per-inverter
// transform to the unified state, and emits the six-telegram outbound
// set in push or sync-triggered mode (spec.md §4.4).
type OutputSession struct {
	Description string
	dial        Dialer
	transform   pylontech.OutputTransform
	state       *broadcast.Slot[pylontech.UnifiedState]

	mu          sync.Mutex
	txFailures  int
}

// NewOutputSession constructs an OutputSession subscribed to state.
func NewOutputSession(description string, dial Dialer, transform pylontech.OutputTransform, state *broadcast.Slot[pylontech.UnifiedState]) *OutputSession {
	return &OutputSession{Description: description, dial: dial, transform: transform, state: state}
}

// TxFailures returns the count of individual frame send failures.
func (s *OutputSession) TxFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txFailures
}

// Run owns the interface for the lifetime of ctx, reconnecting with
// exponential backoff on InterfaceError (spec.md §7).
func (s *OutputSession) Run(ctx context.Context) {
	backoff := minBackoff
	for ctx.Err() == nil {
		conn, err := s.dial()
		if err != nil {
			log.Printf("output session %s: connect failed: %v", s.Description, err)
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff
		s.runConnected(ctx, conn)
	}
}

func (s *OutputSession) runConnected(ctx context.Context, conn canbus.Conn) {
	defer conn.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- conn.Run() }()

	syncRx := make(chan struct{}, 1)
	if s.transform.SendSyncActivated {
		conn.Subscribe(func(f pylontech.Frame) {
			if pylontech.KindOf(f.ID) == pylontech.KindSync && pylontech.IsSync(f.Data) {
				select {
				case syncRx <- struct{}{}:
				default:
				}
			}
		})
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if s.transform.SendSyncActivated {
			s.runSyncMode(ctx, conn, syncRx)
		} else {
			s.runPushMode(ctx, conn)
		}
	}()

	select {
	case err := <-runErr:
		if err != nil {
			log.Printf("output session %s: interface error: %v", s.Description, err)
		}
	case <-ctx.Done():
	case <-loopDone:
	}
}

// runPushMode implements spec.md §4.4 push mode: on each new unified
// state, transmit; if PUSH-MIN-DELAY > 0, coalesce so the most recent
// state wins and intermediate states may be dropped.
func (s *OutputSession) runPushMode(ctx context.Context, conn canbus.Conn) {
	minDelay := time.Duration(s.transform.PushMinDelaySec * float64(time.Second))
	_, lastSeen := s.state.Get()
	var lastEmit time.Time

	for {
		select {
		case <-s.state.Changed(lastSeen):
			var latest pylontech.UnifiedState
			latest, lastSeen = s.state.Get()

			if minDelay > 0 {
				if elapsed := time.Since(lastEmit); elapsed < minDelay {
					if !sleepOrDone(ctx, minDelay-elapsed) {
						return
					}
					latest, lastSeen = s.state.Get()
				}
			}
			s.transmit(conn, latest)
			lastEmit = time.Now()
		case <-ctx.Done():
			return
		}
	}
}

// runSyncMode implements spec.md §4.4 sync mode: reply to inbound 0x305
// with the most recently available unified state, and periodically send
// an outbound 0x305 to retrigger inverters that expect it.
func (s *OutputSession) runSyncMode(ctx context.Context, conn canbus.Conn, syncRx <-chan struct{}) {
	interval := time.Duration(s.transform.SyncIntervalSec * float64(time.Second))
	var ticker *time.Ticker
	var tick <-chan time.Time
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-syncRx:
			latest, _ := s.state.Get()
			if !anyInputFresh(latest.Inputs) {
				continue // all inputs stale: stop outgoing emissions until restored (spec.md §4.4)
			}
			s.transmit(conn, latest)
		case <-tick:
			if err := conn.Send(pylontech.Frame{ID: uint32(pylontech.IDSync), Data: pylontech.EncodeSync()}); err != nil {
				log.Printf("output session %s: sync send failed: %v", s.Description, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// anyInputFresh reports whether at least one upstream input is still
// within its freshness window, mirroring telemetry.anyInputFresh: sync
// mode must stop replying once every input has gone stale rather than
// keep re-transmitting the Slot's last cached value (spec.md §4.4, §7).
func anyInputFresh(inputs []pylontech.InputStatus) bool {
	for _, in := range inputs {
		if in.Fresh {
			return true
		}
	}
	return false
}

// transmit sends the six outbound telegrams in the fixed order
// (0x351, 0x355, 0x356, 0x359, 0x35C, 0x35E). If any frame fails, the
// remaining frames are still attempted and the failure is counted, not
// propagated (spec.md §4.4).
func (s *OutputSession) transmit(conn canbus.Conn, state pylontech.UnifiedState) {
	frames := s.transform.Apply(state).Frames()
	for _, f := range frames {
		if err := conn.Send(f); err != nil {
			s.mu.Lock()
			s.txFailures++
			s.mu.Unlock()
			log.Printf("output session %s: send 0x%X failed: %v", s.Description, f.ID, err)
		}
	}
}
