// Package telemetry implements the MQTT publisher (spec.md §4.5): it
// subscribes to the unified-state broadcast, encodes the state as JSON
// on a minimum-interval timer, and publishes it over
// github.com/eclipse/paho.mqtt.golang, the way the teacher's
// mqtt_worker.go/mqtt_sender.go connect, reconnect and publish.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ulukas/bms-gateway/internal/broadcast"
	"github.com/ulukas/bms-gateway/internal/pylontech"
)

// Message is the wire schema published at TOPIC, exactly spec.md §6.
type Message struct {
	Generation         uint64          `json:"gen"`
	Timestamp          float64         `json:"ts"`
	UChargeSetpoint    float64         `json:"u_charge"`
	UDischargeSetpoint float64         `json:"u_discharge"`
	ILimCharge         float64         `json:"i_lim_charge"`
	ILimDischarge      float64         `json:"i_lim_discharge"`
	UMeasured          float64         `json:"u"`
	IMeasured          float64         `json:"i"`
	TMeasured          float64         `json:"t"`
	SOC                float64         `json:"soc"`
	SOH                float64         `json:"soh"`
	CapacityAh         float64         `json:"capacity_ah"`
	Errors             []string        `json:"errors"`
	Warnings           []string        `json:"warnings"`
	Status             map[string]bool `json:"status"`
	Inputs             []InputMessage  `json:"inputs"`
}

// InputMessage is one entry of the "inputs" array.
type InputMessage struct {
	Description  string  `json:"desc"`
	Fresh        bool    `json:"fresh"`
	LastSeenAgeS float64 `json:"last_seen_age_s"`
}

// ToMessage converts a unified state into its published JSON shape.
func ToMessage(u pylontech.UnifiedState) Message {
	inputs := make([]InputMessage, len(u.Inputs))
	for i, in := range u.Inputs {
		inputs[i] = InputMessage{Description: in.Description, Fresh: in.Fresh, LastSeenAgeS: in.LastSeenAgeS}
	}
	errs := u.ErrorFlags.Names()
	if errs == nil {
		errs = []string{}
	}
	warns := u.WarningFlags.Names()
	if warns == nil {
		warns = []string{}
	}
	return Message{
		Generation:         u.Generation,
		Timestamp:          float64(u.Timestamp.UnixNano()) / float64(time.Second),
		UChargeSetpoint:    u.USetpointCharge,
		UDischargeSetpoint: u.USetpointDischarge,
		ILimCharge:         u.ILimCharge,
		ILimDischarge:      u.ILimDischarge,
		UMeasured:          u.UMeasured,
		IMeasured:          u.IMeasured,
		TMeasured:          u.TMeasured,
		SOC:                u.SOC,
		SOH:                u.SOH,
		CapacityAh:         u.CapacityTotalAh,
		Errors:             errs,
		Warnings:           warns,
		Status:             u.StatusFlags.Names(),
		Inputs:             inputs,
	}
}

// Config is the MQTT publisher's connection and pacing policy, taken
// from the `[mqtt]` configuration table (spec.md §6).
type Config struct {
	Broker   string
	Port     int
	Topic    string
	Interval time.Duration
	ClientID string
}

// Publisher owns the MQTT connection and the minimum-interval publish
// loop. Any input's staleness or a broken broker connection pauses
// telemetry without affecting aggregation or output sessions (spec.md
// §7: "No error from telemetry ... may stop aggregation or other
// outputs.").
type Publisher struct {
	cfg   Config
	state *broadcast.Slot[pylontech.UnifiedState]
}

// NewPublisher constructs a Publisher subscribed to state.
func NewPublisher(cfg Config, state *broadcast.Slot[pylontech.UnifiedState]) *Publisher {
	return &Publisher{cfg: cfg, state: state}
}

// Run connects to the broker and publishes on cfg.Interval until ctx is
// cancelled. Reconnection is delegated to paho's built-in backoff, the
// same SetAutoReconnect/SetConnectRetryInterval pattern the teacher's
// mqtt_worker.go uses.
func (p *Publisher) Run(ctx context.Context) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", p.cfg.Broker, p.cfg.Port))
	opts.SetClientID(p.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(1 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("telemetry: broker connection lost: %v", err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Printf("telemetry: connected to broker at %s:%d", p.cfg.Broker, p.cfg.Port)
	})

	client := mqtt.NewClient(opts)
	// With ConnectRetry set, the connect token completes only once the
	// broker is reached, so it is not waited on here; publish drops
	// messages while the client is not yet connected.
	client.Connect()
	defer func() {
		if client.IsConnected() {
			client.Disconnect(250)
		}
	}()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	_, lastPublished := p.state.Get()
	first := true

	for {
		select {
		case <-ticker.C:
			latest, version := p.state.Get()
			if !first && version == lastPublished {
				continue // no new unified state since the last tick: skip, no stale republish
			}
			first = false
			if !anyInputFresh(latest.Inputs) {
				continue // all inputs stale: publishing ceases until freshness is restored
			}
			lastPublished = version
			p.publish(client, latest)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Publisher) publish(client mqtt.Client, state pylontech.UnifiedState) {
	if !client.IsConnected() {
		log.Printf("telemetry: broker not connected, dropping publish for generation %d", state.Generation)
		return
	}
	payload, err := json.Marshal(ToMessage(state))
	if err != nil {
		log.Printf("telemetry: marshal failed: %v", err)
		return
	}
	token := client.Publish(p.cfg.Topic, 0, false, payload)
	token.Wait()
	if token.Error() != nil {
		log.Printf("telemetry: publish to %s failed: %v", p.cfg.Topic, token.Error())
	}
}

func anyInputFresh(inputs []pylontech.InputStatus) bool {
	if len(inputs) == 0 {
		return false
	}
	for _, in := range inputs {
		if in.Fresh {
			return true
		}
	}
	return false
}
