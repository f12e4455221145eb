package pylontech

import "time"

// Snapshot is one input BMS's most recently decoded state, owned
// exclusively by its input session (spec.md §3).
type Snapshot struct {
	Description string

	USetpointCharge    float64 // V
	USetpointDischarge float64 // V
	ILimCharge         float64 // A
	ILimDischarge      float64 // A
	UMeasured          float64 // V
	IMeasured          float64 // A, signed: + = charge
	TMeasured          float64 // degC, signed
	SOC                float64 // %
	SOH                float64 // %
	CapacityAh         float64 // constant per BMS, from configuration

	ErrorFlags   ErrorFlags
	WarningFlags WarningFlags
	StatusFlags  StatusFlags
	ModuleCount  uint8
	Manufacturer string

	LastUpdateTs time.Time
	Complete     bool

	// LastSeen tracks the most recent receive time per required
	// telegram group; used to compute freshness (spec.md §4.2).
	LastSeen map[TelegramID]time.Time
}

// NewSnapshot returns a zero-valued Snapshot ready to be filled in by an
// input session, with the fixed per-BMS capacity already set.
func NewSnapshot(description string, capacityAh float64) *Snapshot {
	return &Snapshot{
		Description: description,
		CapacityAh:  capacityAh,
		LastSeen:    make(map[TelegramID]time.Time),
	}
}

// Fresh reports whether every required telegram group has been seen
// within window of now. A snapshot that has never gone complete is
// never fresh.
func (s *Snapshot) Fresh(now time.Time, window time.Duration) bool {
	if !s.Complete {
		return false
	}
	for _, id := range RequiredGroup {
		seen, ok := s.LastSeen[id]
		if !ok || now.Sub(seen) > window {
			return false
		}
	}
	return true
}

// UnifiedState is the aggregator's output: one virtual BMS representing
// the entire parallel battery stack (spec.md §3).
type UnifiedState struct {
	USetpointCharge    float64
	USetpointDischarge float64
	ILimCharge         float64
	ILimDischarge      float64
	UMeasured          float64
	IMeasured          float64
	TMeasured          float64
	SOC                float64
	SOH                float64
	CapacityTotalAh    float64

	ErrorFlags   ErrorFlags
	WarningFlags WarningFlags
	StatusFlags  StatusFlags
	ModuleCount  uint8
	Manufacturer string

	Generation uint64
	Timestamp  time.Time

	// Inputs carries per-input freshness metadata for MQTT telemetry
	// (spec.md §6 "inputs" array); it is not itself part of the
	// reduction, only observed at production time.
	Inputs []InputStatus
}

// InputStatus is one input's freshness metadata as of the moment a
// UnifiedState was produced.
type InputStatus struct {
	Description   string
	Fresh         bool
	LastSeenAgeS  float64
}
