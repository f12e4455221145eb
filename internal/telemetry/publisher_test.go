package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ulukas/bms-gateway/internal/pylontech"
)

func TestToMessageSchema(t *testing.T) {
	u := pylontech.UnifiedState{
		Generation:         3,
		Timestamp:          time.Unix(1700000000, 0),
		USetpointCharge:    55.0,
		USetpointDischarge: 48.0,
		ILimCharge:         100,
		ILimDischarge:      90,
		UMeasured:          53.2,
		IMeasured:          12.5,
		TMeasured:          25.4,
		SOC:                70,
		SOH:                99,
		CapacityTotalAh:    400,
		ErrorFlags:         pylontech.ErrorFlags{Low: 1 << 7},
		WarningFlags:       pylontech.WarningFlags{},
		StatusFlags:        pylontech.NewStatusFlags(true, true, false, false, false),
		Inputs: []pylontech.InputStatus{
			{Description: "Rack A", Fresh: true, LastSeenAgeS: 0.4},
			{Description: "Rack B", Fresh: false, LastSeenAgeS: 12.1},
		},
	}

	msg := ToMessage(u)
	payload, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, float64(3), decoded["gen"])
	assert.Equal(t, float64(1700000000), decoded["ts"])
	assert.Equal(t, 55.0, decoded["u_charge"])
	assert.Equal(t, 48.0, decoded["u_discharge"])
	assert.Equal(t, []any{"discharge_overcurrent"}, decoded["errors"])
	assert.Equal(t, []any{}, decoded["warnings"])

	status := decoded["status"].(map[string]any)
	assert.Equal(t, true, status["charge_enable"])
	assert.Equal(t, true, status["discharge_enable"])

	inputs := decoded["inputs"].([]any)
	require.Len(t, inputs, 2)
	first := inputs[0].(map[string]any)
	assert.Equal(t, "Rack A", first["desc"])
	assert.Equal(t, true, first["fresh"])
}

func TestToMessageEmptyFlagsAreEmptyArraysNotNull(t *testing.T) {
	msg := ToMessage(pylontech.UnifiedState{})
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"errors":[]`)
	assert.Contains(t, string(payload), `"warnings":[]`)
}

func TestAnyInputFreshRequiresAtLeastOne(t *testing.T) {
	assert.False(t, anyInputFresh(nil))
	assert.False(t, anyInputFresh([]pylontech.InputStatus{{Fresh: false}}))
	assert.True(t, anyInputFresh([]pylontech.InputStatus{{Fresh: false}, {Fresh: true}}))
}
