// Package pylontech implements the CAN wire codec and aggregation data
// model for the Pylontech/SMA Sunny Island LV-BMS protocol.
//
// The codec is pure: no I/O, no clocks. Frames go in, typed telegram
// records come out, and back.
package pylontech

import "time"

// TelegramID is one of the recognized Pylontech CAN identifiers.
type TelegramID uint32

const (
	IDChargeDischargeLimits TelegramID = 0x351 // BMS -> Inverter
	IDSOCState              TelegramID = 0x355 // BMS -> Inverter
	IDMeasurements          TelegramID = 0x356 // BMS -> Inverter
	IDAlarms                TelegramID = 0x359 // BMS -> Inverter
	IDStatus                TelegramID = 0x35C // BMS -> Inverter
	IDManufacturer          TelegramID = 0x35E // BMS -> Inverter
	IDSync                  TelegramID = 0x305 // Inverter -> BMS
)

// RequiredGroup is the set of telegrams that must all have been seen at
// least once before a session's snapshot can be marked complete.
var RequiredGroup = [...]TelegramID{
	IDChargeDischargeLimits,
	IDSOCState,
	IDMeasurements,
	IDAlarms,
}

// Frame is a raw CAN frame as received from, or to be sent to, a
// SocketCAN interface. Immutable once received.
type Frame struct {
	ID       uint32
	Extended bool
	Data     []byte
	RxTime   time.Time
}

// FrameKind classifies a decoded frame.
type FrameKind int

const (
	KindIgnored FrameKind = iota
	KindLimits
	KindSOC
	KindMeasurements
	KindAlarms
	KindStatus
	KindManufacturer
	KindSync
)

// LimitsTelegram is the decoded payload of CAN ID 0x351.
type LimitsTelegram struct {
	UChargeSetpoint    float64 // V
	ILimCharge         float64 // A
	ILimDischarge      float64 // A
	UDischargeSetpoint float64 // V
}

// SOCTelegram is the decoded payload of CAN ID 0x355.
type SOCTelegram struct {
	SOC float64 // %
	SOH float64 // %
}

// MeasurementsTelegram is the decoded payload of CAN ID 0x356.
type MeasurementsTelegram struct {
	UMeasured float64 // V
	IMeasured float64 // A, signed: + = charge
	TMeasured float64 // degC, signed
}

// AlarmsTelegram is the decoded payload of CAN ID 0x359.
type AlarmsTelegram struct {
	ErrorFlags   ErrorFlags
	WarningFlags WarningFlags
	ModuleCount  uint8
	Vendor       [2]byte
}

// StatusTelegram is the decoded payload of CAN ID 0x35C.
type StatusTelegram struct {
	StatusFlags StatusFlags
}

// ManufacturerTelegram is the decoded payload of CAN ID 0x35E.
type ManufacturerTelegram struct {
	Name string // up to 8 ASCII bytes, NUL-padded on the wire
}
