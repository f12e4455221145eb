package pylontech

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFlagsOrPreservesUnknownBits(t *testing.T) {
	a := ErrorFlags{Low: errLowOvervoltage, High: 0}
	b := ErrorFlags{Low: 1 << 5, High: 0} // bit 5 is unnamed
	or := a.Or(b)
	assert.True(t, or.Overvoltage())
	assert.Equal(t, uint8(1<<5), or.UnknownLow())
}

func TestStatusAndEnableRequiresUnanimity(t *testing.T) {
	a := NewStatusFlags(true, true, false, false, false)
	b := NewStatusFlags(false, true, true, false, false)
	combined := a.AndEnable(b)
	assert.False(t, combined.ChargeEnable(), "one input withheld charge enable")
	assert.True(t, combined.DischargeEnable(), "both inputs allow discharge")
	assert.True(t, combined.ForceChargeRequest(), "either input's force-charge request propagates")
}

func TestStatusAndEnablePreservesUnknownBits(t *testing.T) {
	a := StatusFlags{Byte: 1 << 1}
	b := StatusFlags{Byte: 1 << 2}
	combined := a.AndEnable(b)
	assert.Equal(t, uint8(1<<1|1<<2), combined.UnknownBits())
}

func TestWarningFlagsNames(t *testing.T) {
	w := WarningFlags{Low: warnLowTempHigh, High: warnHighCommFail}
	names := w.Names()
	assert.Contains(t, names, "temperature_high")
	assert.Contains(t, names, "comm_fail")
	assert.Len(t, names, 2)
}

func TestWarningFlagsLowByteMatchesErrorFlagsBitPositions(t *testing.T) {
	w := WarningFlags{Low: warnLowDischargeOC | warnLowUndervoltage | warnLowOvervoltage}
	assert.True(t, w.DischargeOvercurrent())
	assert.True(t, w.Undervoltage())
	assert.True(t, w.Overvoltage())
	names := w.Names()
	assert.Contains(t, names, "discharge_overcurrent")
	assert.Contains(t, names, "undervoltage")
	assert.Contains(t, names, "overvoltage")
}
