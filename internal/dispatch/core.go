package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ulukas/bms-gateway/internal/aggregate"
	"github.com/ulukas/bms-gateway/internal/broadcast"
	"github.com/ulukas/bms-gateway/internal/canbus"
	"github.com/ulukas/bms-gateway/internal/config"
	"github.com/ulukas/bms-gateway/internal/pylontech"
	"github.com/ulukas/bms-gateway/internal/session"
	"github.com/ulukas/bms-gateway/internal/telemetry"
)

// freshnessWindow is T_freshness (spec.md §3): three times the BMS's
// nominal 1 s transmit period.
const freshnessWindow = 3 * time.Second

// shutdownBudget is the per-task grace period on SIGINT/SIGTERM
// (spec.md §4.6, §5).
const shutdownBudget = 2 * time.Second

// Core holds every C2/C4/C5 task and the aggregator that connects them
// (spec.md §4.6).
type Core struct {
	cfg *config.AppConfig

	inputs    []*session.InputSession
	outputs   []*session.OutputSession
	publisher *telemetry.Publisher

	mailbox *broadcast.Mailbox[struct{}]
	state   *broadcast.Slot[pylontech.UnifiedState]
}

// NewCore builds every session, the aggregator wiring, and (if
// activated) the telemetry publisher from cfg. It does not open any CAN
// interface or MQTT connection yet; that happens when Run is called.
func NewCore(cfg *config.AppConfig) *Core {
	c := &Core{
		cfg:     cfg,
		mailbox: broadcast.NewMailbox[struct{}](len(cfg.BMSesIn)),
		state:   broadcast.NewSlot[pylontech.UnifiedState](),
	}

	for _, in := range cfg.BMSesIn {
		in := in
		var pollInterval time.Duration
		if in.PollInterval != nil {
			pollInterval = time.Duration(*in.PollInterval * float64(time.Second))
		}
		dial := func() (canbus.Conn, error) { return canbus.Open(in.CANIf) }
		s := session.NewInputSession(in.Description, in.CapacityAh, dial, pollInterval, func() {
			c.mailbox.Notify(struct{}{})
		})
		c.inputs = append(c.inputs, s)
	}

	for _, out := range cfg.BMSesOut {
		out := out
		dial := func() (canbus.Conn, error) { return canbus.Open(out.CANIf) }
		transform := pylontech.OutputTransform{
			IScaling:          out.IScaling,
			IOffset:           out.IOffset,
			ILimChargeCap:     out.ILimCharge,
			ILimDischargeCap:  out.ILimDischarge,
			PushMinDelaySec:   out.PushMinDelay,
			SendSyncActivated: out.SendSyncActivated,
			SyncIntervalSec:   out.SyncInterval,
		}
		s := session.NewOutputSession(out.Description, dial, transform, c.state)
		c.outputs = append(c.outputs, s)
	}

	if cfg.MQTT.Activated {
		c.publisher = telemetry.NewPublisher(telemetry.Config{
			Broker:   cfg.MQTT.Broker,
			Port:     cfg.MQTT.Port,
			Topic:    cfg.MQTT.Topic,
			Interval: time.Duration(cfg.MQTT.Interval * float64(time.Second)),
			ClientID: "bms-gateway",
		}, c.state)
	}

	return c
}

// Run starts every task under SafeGo supervision and blocks until ctx
// is cancelled or a task exhausts its retries. It waits up to
// shutdownBudget for tasks to stop before returning. Run returns a
// non-nil error only when it stopped because a task exhausted its
// retries (spec.md §7 TaskCrash, exit code 3), not on ordinary
// cancellation of ctx by the caller.
func (c *Core) Run(ctx context.Context) error {
	innerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	runSupervised := func(name string, fn func(ctx context.Context)) {
		wg.Add(1)
		SafeGo(innerCtx, cancel, name, func(ctx context.Context) {
			defer wg.Done()
			fn(ctx)
		})
	}

	for _, in := range c.inputs {
		runSupervised(in.Description+"-input", in.Run)
	}
	for _, out := range c.outputs {
		runSupervised(out.Description+"-output", out.Run)
	}
	if c.publisher != nil {
		runSupervised("telemetry", c.publisher.Run)
	}

	runSupervised("aggregator", c.runAggregator)

	<-innerCtx.Done()
	log.Println("dispatch: shutdown signal received, waiting for tasks")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("dispatch: all tasks stopped cleanly")
	case <-time.After(shutdownBudget):
		log.Println("dispatch: shutdown budget exceeded, exiting anyway")
	}

	if ctx.Err() == nil {
		// innerCtx was cancelled by SafeGo itself, not by our caller: a
		// task exhausted its retries.
		return fmt.Errorf("dispatch: a supervised task failed permanently")
	}
	return nil
}

// runAggregator drains "snapshot changed" notifications and recomputes
// the unified state, publishing it to the broadcast slot on every
// successful reduction (spec.md §4.6).
func (c *Core) runAggregator(ctx context.Context) {
	var generation uint64
	for {
		select {
		case <-c.mailbox.C():
			snapshots := make([]*pylontech.Snapshot, len(c.inputs))
			for i, in := range c.inputs {
				snapshots[i] = in.Snapshot()
			}
			unified, ok := aggregate.Combine(snapshots, c.cfg.Battery, freshnessWindow, time.Now(), generation)
			if !ok {
				continue
			}
			generation = unified.Generation
			c.state.Set(unified)
		case <-ctx.Done():
			return
		}
	}
}
