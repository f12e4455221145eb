package pylontech

// Bit position schema for the 0x359 (error/warning) and 0x35C (status)
// telegrams. These positions are not carried on the wire in a
// self-describing way; they are fixed by the Pylontech/SMA Sunny Island
// LV-BMS protocol reference and mirrored here (see SPEC_FULL.md §4.1).
// Unknown bits (outside each byte's *KnownMask) are preserved rather than dropped, so
// the aggregator's OR/AND reductions stay literal bitwise operations
// even on bits this package does not name.
const (
	errLowDischargeOC  = 1 << 7
	errLowTempLow      = 1 << 4
	errLowTempHigh     = 1 << 3
	errLowUndervoltage = 1 << 2
	errLowOvervoltage  = 1 << 1
	errLowKnownMask    = errLowDischargeOC | errLowTempLow | errLowTempHigh |
		errLowUndervoltage | errLowOvervoltage

	errHighSystemError = 1 << 3
	errHighChargeOC    = 1 << 0
	errHighKnownMask   = errHighSystemError | errHighChargeOC

	warnLowDischargeOC  = 1 << 7
	warnLowTempLow      = 1 << 4
	warnLowTempHigh     = 1 << 3
	warnLowUndervoltage = 1 << 2
	warnLowOvervoltage  = 1 << 1
	warnLowKnownMask    = warnLowDischargeOC | warnLowTempLow | warnLowTempHigh |
		warnLowUndervoltage | warnLowOvervoltage

	warnHighCommFail  = 1 << 3
	warnHighChargeOC  = 1 << 0
	warnHighKnownMask = warnHighCommFail | warnHighChargeOC

	statusChargeEnable       = 1 << 7
	statusDischargeEnable    = 1 << 6
	statusForceCharge        = 1 << 5
	statusForceCharge2       = 1 << 4
	statusBalancingCharge    = 1 << 3
	statusKnownMask          = statusChargeEnable | statusDischargeEnable | statusForceCharge |
		statusForceCharge2 | statusBalancingCharge
)

// ErrorFlags is the bit-packed protection/error state of 0x359 bytes 0-1.
type ErrorFlags struct {
	Low, High uint8
}

// WarningFlags is the bit-packed alarm/warning state of 0x359 bytes 2-3.
type WarningFlags struct {
	Low, High uint8
}

// StatusFlags is the bit-packed request/status state of 0x35C byte 0.
type StatusFlags struct {
	Byte uint8
}

func (f ErrorFlags) DischargeOvercurrent() bool { return f.Low&errLowDischargeOC != 0 }
func (f ErrorFlags) TemperatureLow() bool       { return f.Low&errLowTempLow != 0 }
func (f ErrorFlags) TemperatureHigh() bool      { return f.Low&errLowTempHigh != 0 }
func (f ErrorFlags) Undervoltage() bool         { return f.Low&errLowUndervoltage != 0 }
func (f ErrorFlags) Overvoltage() bool          { return f.Low&errLowOvervoltage != 0 }
func (f ErrorFlags) SystemError() bool          { return f.High&errHighSystemError != 0 }
func (f ErrorFlags) ChargeOvercurrent() bool    { return f.High&errHighChargeOC != 0 }

// UnknownLow and UnknownHigh return the bits in each byte that fall
// outside the named schema above. They are preserved by Or but never
// given a name, per spec.md §4.1.
func (f ErrorFlags) UnknownLow() uint8  { return f.Low &^ errLowKnownMask }
func (f ErrorFlags) UnknownHigh() uint8 { return f.High &^ errHighKnownMask }

// Or returns the bitwise OR of two error-flag bytesets, unknown bits
// included, matching the aggregator's "OR across inputs" reduction rule.
func (f ErrorFlags) Or(g ErrorFlags) ErrorFlags {
	return ErrorFlags{Low: f.Low | g.Low, High: f.High | g.High}
}

// Names returns the set bit names, known bits only, for JSON telemetry.
func (f ErrorFlags) Names() []string {
	var names []string
	add := func(set bool, name string) {
		if set {
			names = append(names, name)
		}
	}
	add(f.DischargeOvercurrent(), "discharge_overcurrent")
	add(f.TemperatureLow(), "temperature_low")
	add(f.TemperatureHigh(), "temperature_high")
	add(f.Undervoltage(), "undervoltage")
	add(f.Overvoltage(), "overvoltage")
	add(f.SystemError(), "system_error")
	add(f.ChargeOvercurrent(), "charge_overcurrent")
	return names
}

func (f WarningFlags) DischargeOvercurrent() bool { return f.Low&warnLowDischargeOC != 0 }
func (f WarningFlags) TemperatureLow() bool       { return f.Low&warnLowTempLow != 0 }
func (f WarningFlags) TemperatureHigh() bool      { return f.Low&warnLowTempHigh != 0 }
func (f WarningFlags) Undervoltage() bool         { return f.Low&warnLowUndervoltage != 0 }
func (f WarningFlags) Overvoltage() bool          { return f.Low&warnLowOvervoltage != 0 }
func (f WarningFlags) CommFail() bool             { return f.High&warnHighCommFail != 0 }
func (f WarningFlags) ChargeOvercurrent() bool    { return f.High&warnHighChargeOC != 0 }

// UnknownLow and UnknownHigh return the bits in each byte outside the
// named schema above.
func (f WarningFlags) UnknownLow() uint8  { return f.Low &^ warnLowKnownMask }
func (f WarningFlags) UnknownHigh() uint8 { return f.High &^ warnHighKnownMask }

// Or returns the bitwise OR of two warning-flag bytesets.
func (f WarningFlags) Or(g WarningFlags) WarningFlags {
	return WarningFlags{Low: f.Low | g.Low, High: f.High | g.High}
}

// Names returns the set bit names, known bits only, for JSON telemetry.
func (f WarningFlags) Names() []string {
	var names []string
	add := func(set bool, name string) {
		if set {
			names = append(names, name)
		}
	}
	add(f.DischargeOvercurrent(), "discharge_overcurrent")
	add(f.TemperatureLow(), "temperature_low")
	add(f.TemperatureHigh(), "temperature_high")
	add(f.Undervoltage(), "undervoltage")
	add(f.Overvoltage(), "overvoltage")
	add(f.CommFail(), "comm_fail")
	add(f.ChargeOvercurrent(), "charge_overcurrent")
	return names
}

func (f StatusFlags) ChargeEnable() bool         { return f.Byte&statusChargeEnable != 0 }
func (f StatusFlags) DischargeEnable() bool      { return f.Byte&statusDischargeEnable != 0 }
func (f StatusFlags) ForceChargeRequest() bool   { return f.Byte&statusForceCharge != 0 }
func (f StatusFlags) ForceChargeRequest2() bool  { return f.Byte&statusForceCharge2 != 0 }
func (f StatusFlags) BalancingChargeRequest() bool {
	return f.Byte&statusBalancingCharge != 0
}

// UnknownBits returns the byte bits outside the named schema above.
func (f StatusFlags) UnknownBits() uint8 { return f.Byte &^ statusKnownMask }

// NewStatusFlags packs the named request/status bits into a StatusFlags.
func NewStatusFlags(chargeEnable, dischargeEnable, forceCharge, forceCharge2, balancing bool) StatusFlags {
	var b uint8
	set := func(cond bool, bit uint8) {
		if cond {
			b |= bit
		}
	}
	set(chargeEnable, statusChargeEnable)
	set(dischargeEnable, statusDischargeEnable)
	set(forceCharge, statusForceCharge)
	set(forceCharge2, statusForceCharge2)
	set(balancing, statusBalancingCharge)
	return StatusFlags{Byte: b}
}

// AndEnable ANDs together the two "enable" bits (conservative: both
// inputs must agree to keep the system enabled) and ORs together the
// remaining request/alarm bits (conservative: any input's positive
// request propagates), per the aggregator's status-flag reduction rule.
func (f StatusFlags) AndEnable(g StatusFlags) StatusFlags {
	named := NewStatusFlags(
		f.ChargeEnable() && g.ChargeEnable(),
		f.DischargeEnable() && g.DischargeEnable(),
		f.ForceChargeRequest() || g.ForceChargeRequest(),
		f.ForceChargeRequest2() || g.ForceChargeRequest2(),
		f.BalancingChargeRequest() || g.BalancingChargeRequest(),
	)
	named.Byte |= f.UnknownBits() | g.UnknownBits()
	return named
}

// Names returns every named status bit with its boolean value for JSON
// telemetry; unlike error/warning flags, unset bits are reported too
// (spec.md §6 "status": {"<name>": <bool>, ...}).
func (f StatusFlags) Names() map[string]bool {
	return map[string]bool{
		"charge_enable":             f.ChargeEnable(),
		"discharge_enable":          f.DischargeEnable(),
		"force_charge_request":      f.ForceChargeRequest(),
		"force_charge_request_2":    f.ForceChargeRequest2(),
		"balancing_charge_request":  f.BalancingChargeRequest(),
	}
}
