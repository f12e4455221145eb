// Package session implements the input (C2) and output (C4) BMS
// sessions: each owns one CAN interface and translates between raw
// frames and the pylontech codec/aggregate types. Grounded on
// original_source/lv_bms.py's BMSIn/BMSOut for the state machine, and on
// the teacher's (ryansname-powerctl) SafeGo + channel-select worker
// shape for the concurrency structure.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ulukas/bms-gateway/internal/canbus"
	"github.com/ulukas/bms-gateway/internal/pylontech"
)

const (
	minBackoff = 250 * time.Millisecond
	maxBackoff = 5 * time.Second
)

// Dialer opens a fresh connection to a session's CAN interface. It is a
// function, not a fixed Conn, so a session can reconnect after an
// InterfaceError without the caller rebuilding the session.
type Dialer func() (canbus.Conn, error)

// InputSession owns one input CAN interface, reassembles the required
// Pylontech telegram group into a BMS-state snapshot, and tracks
// per-group freshness (spec.md §4.2).
type InputSession struct {
	Description  string
	dial         Dialer
	pollInterval time.Duration // zero disables periodic polling

	mu           sync.Mutex
	snapshot     *pylontech.Snapshot
	decodeErrors int

	onComplete func() // called after a complete snapshot update
}

// NewInputSession constructs an InputSession. pollInterval of zero
// disables the periodic sync/poll telegram (spec.md §4.2).
func NewInputSession(description string, capacityAh float64, dial Dialer, pollInterval time.Duration, onComplete func()) *InputSession {
	return &InputSession{
		Description:  description,
		dial:         dial,
		pollInterval: pollInterval,
		snapshot:     pylontech.NewSnapshot(description, capacityAh),
		onComplete:   onComplete,
	}
}

// Snapshot returns a copy of the current snapshot for the aggregator to
// read. Copying under the lock keeps the session the exclusive owner of
// the mutable original (spec.md §3 Ownership & lifecycle).
func (s *InputSession) Snapshot() *pylontech.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.snapshot
	cp.LastSeen = make(map[pylontech.TelegramID]time.Time, len(s.snapshot.LastSeen))
	for k, v := range s.snapshot.LastSeen {
		cp.LastSeen[k] = v
	}
	return &cp
}

// DecodeErrors returns the count of dropped decode errors so far.
func (s *InputSession) DecodeErrors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decodeErrors
}

// Run owns the interface for the lifetime of ctx: connect, receive
// frames until an InterfaceError, reconnect with exponential backoff
// (spec.md §4.2, §7). It never returns an error to the caller; failures
// are logged and retried, matching "the session never panics the
// process."
func (s *InputSession) Run(ctx context.Context) {
	backoff := minBackoff
	for ctx.Err() == nil {
		conn, err := s.dial()
		if err != nil {
			log.Printf("input session %s: connect failed: %v", s.Description, err)
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

func (s *InputSession) runConnected(ctx context.Context, conn canbus.Conn) {
	defer conn.Close()
	conn.Subscribe(func(f pylontech.Frame) { s.handleFrame(f) })

	runErr := make(chan error, 1)
	go func() { runErr <- conn.Run() }()

	var pollTick <-chan time.Time
	if s.pollInterval > 0 {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		pollTick = ticker.C
	}

	for {
		select {
		case err := <-runErr:
			if err != nil {
				log.Printf("input session %s: interface error: %v", s.Description, err)
			}
			return
		case <-pollTick:
			if err := conn.Send(pylontech.Frame{ID: uint32(pylontech.IDSync), Data: pylontech.EncodeSync()}); err != nil {
				log.Printf("input session %s: poll send failed: %v", s.Description, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *InputSession) handleFrame(f pylontech.Frame) {
	now := time.Now()
	kind := pylontech.KindOf(f.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case pylontech.KindLimits:
		t, err := pylontech.DecodeLimits(f.Data)
		if err != nil {
			s.decodeErrors++
			return
		}
		s.snapshot.USetpointCharge = t.UChargeSetpoint
		s.snapshot.ILimCharge = t.ILimCharge
		s.snapshot.ILimDischarge = t.ILimDischarge
		s.snapshot.USetpointDischarge = t.UDischargeSetpoint
		s.snapshot.LastSeen[pylontech.IDChargeDischargeLimits] = now
	case pylontech.KindSOC:
		t, err := pylontech.DecodeSOC(f.Data)
		if err != nil {
			s.decodeErrors++
			return
		}
		s.snapshot.SOC = t.SOC
		s.snapshot.SOH = t.SOH
		s.snapshot.LastSeen[pylontech.IDSOCState] = now
	case pylontech.KindMeasurements:
		t, err := pylontech.DecodeMeasurements(f.Data)
		if err != nil {
			s.decodeErrors++
			return
		}
		s.snapshot.UMeasured = t.UMeasured
		s.snapshot.IMeasured = t.IMeasured
		s.snapshot.TMeasured = t.TMeasured
		s.snapshot.LastSeen[pylontech.IDMeasurements] = now
	case pylontech.KindAlarms:
		t, err := pylontech.DecodeAlarms(f.Data)
		if err != nil {
			s.decodeErrors++
			return
		}
		s.snapshot.ErrorFlags = t.ErrorFlags
		s.snapshot.WarningFlags = t.WarningFlags
		s.snapshot.ModuleCount = t.ModuleCount
		s.snapshot.LastSeen[pylontech.IDAlarms] = now
	case pylontech.KindStatus:
		t, err := pylontech.DecodeStatus(f.Data)
		if err != nil {
			s.decodeErrors++
			return
		}
		s.snapshot.StatusFlags = t.StatusFlags
	case pylontech.KindManufacturer:
		t, err := pylontech.DecodeManufacturer(f.Data)
		if err != nil {
			s.decodeErrors++
			return
		}
		s.snapshot.Manufacturer = t.Name
	case pylontech.KindSync, pylontech.KindIgnored:
		return
	}

	s.snapshot.LastUpdateTs = now
	if !s.snapshot.Complete && s.allRequiredSeen() {
		s.snapshot.Complete = true
	}
	if s.snapshot.Complete && s.onComplete != nil {
		s.onComplete()
	}
}

func (s *InputSession) allRequiredSeen() bool {
	for _, id := range pylontech.RequiredGroup {
		if _, ok := s.snapshot.LastSeen[id]; !ok {
			return false
		}
	}
	return true
}

// sleepOrDone waits for d or ctx cancellation, returning false if
// cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
