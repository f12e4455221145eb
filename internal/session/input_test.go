package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ulukas/bms-gateway/internal/pylontech"
)

func TestInputSessionMarksCompleteAfterRequiredGroup(t *testing.T) {
	var completed int
	s := NewInputSession("Rack A", 100, nil, 0, func() { completed++ })

	s.handleFrame(pylontech.Frame{ID: uint32(pylontech.IDChargeDischargeLimits), Data: pylontech.EncodeLimits(pylontech.LimitsTelegram{UChargeSetpoint: 55})})
	assert.False(t, s.Snapshot().Complete)

	s.handleFrame(pylontech.Frame{ID: uint32(pylontech.IDSOCState), Data: pylontech.EncodeSOC(pylontech.SOCTelegram{SOC: 50, SOH: 100})})
	s.handleFrame(pylontech.Frame{ID: uint32(pylontech.IDMeasurements), Data: pylontech.EncodeMeasurements(pylontech.MeasurementsTelegram{IMeasured: 20})})
	assert.False(t, s.Snapshot().Complete)

	s.handleFrame(pylontech.Frame{ID: uint32(pylontech.IDAlarms), Data: pylontech.EncodeAlarms(pylontech.AlarmsTelegram{})})

	snap := s.Snapshot()
	assert.True(t, snap.Complete)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 55.0, snap.USetpointCharge)
	assert.Equal(t, 20.0, snap.IMeasured)
}

func TestInputSessionCompletionSurvivesPartialUpdate(t *testing.T) {
	s := NewInputSession("Rack A", 100, nil, 0, func() {})
	for _, id := range pylontech.RequiredGroup {
		deliverMinimal(s, id)
	}
	assert.True(t, s.Snapshot().Complete)

	// A subsequent partial update (SOC only) must not revert completeness.
	s.handleFrame(pylontech.Frame{ID: uint32(pylontech.IDSOCState), Data: pylontech.EncodeSOC(pylontech.SOCTelegram{SOC: 77})})
	assert.True(t, s.Snapshot().Complete)
	assert.Equal(t, 77.0, s.Snapshot().SOC)
}

func TestInputSessionDropsTruncatedFrames(t *testing.T) {
	s := NewInputSession("Rack A", 100, nil, 0, func() {})
	s.handleFrame(pylontech.Frame{ID: uint32(pylontech.IDChargeDischargeLimits), Data: []byte{1, 2}})
	assert.Equal(t, 1, s.DecodeErrors())
	assert.False(t, s.Snapshot().Complete)
}

func TestInputSessionIgnoresUnknownID(t *testing.T) {
	s := NewInputSession("Rack A", 100, nil, 0, func() {})
	s.handleFrame(pylontech.Frame{ID: 0x777, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}})
	assert.Equal(t, 0, s.DecodeErrors())
}

func deliverMinimal(s *InputSession, id pylontech.TelegramID) {
	switch id {
	case pylontech.IDChargeDischargeLimits:
		s.handleFrame(pylontech.Frame{ID: uint32(id), Data: pylontech.EncodeLimits(pylontech.LimitsTelegram{})})
	case pylontech.IDSOCState:
		s.handleFrame(pylontech.Frame{ID: uint32(id), Data: pylontech.EncodeSOC(pylontech.SOCTelegram{})})
	case pylontech.IDMeasurements:
		s.handleFrame(pylontech.Frame{ID: uint32(id), Data: pylontech.EncodeMeasurements(pylontech.MeasurementsTelegram{})})
	case pylontech.IDAlarms:
		s.handleFrame(pylontech.Frame{ID: uint32(id), Data: pylontech.EncodeAlarms(pylontech.AlarmsTelegram{})})
	}
}
