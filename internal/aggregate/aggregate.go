// Package aggregate implements the state aggregator (C3): combining all
// fresh input BMS snapshots into a single unified battery-pack state
// under the weighting rules of spec.md §4.3. Grounded on
// original_source/bms_state_combiner.py's BMSStateCombiner, generalized
// from Python's mutable-copy-and-loop style into a pure Go reduction.
package aggregate

import (
	"time"

	"github.com/ulukas/bms-gateway/internal/config"
	"github.com/ulukas/bms-gateway/internal/pylontech"
)

// Combine reduces snapshots into a UnifiedState following spec.md §4.3.
// It returns ok=false when the reduction must suppress output: no
// inputs, any input not fresh, or total capacity of zero
// (misconfiguration) — deliberately, so downstream consumers see no
// update rather than a state built from partial data.
func Combine(
	snapshots []*pylontech.Snapshot,
	battery config.BatteryConfig,
	freshnessWindow time.Duration,
	now time.Time,
	prevGeneration uint64,
) (pylontech.UnifiedState, bool) {
	if len(snapshots) == 0 {
		return pylontech.UnifiedState{}, false
	}

	inputs := make([]pylontech.InputStatus, len(snapshots))
	allFresh := true
	for i, s := range snapshots {
		fresh := s.Fresh(now, freshnessWindow)
		if !fresh {
			allFresh = false
		}
		age := freshestAge(s, now)
		inputs[i] = pylontech.InputStatus{
			Description:  s.Description,
			Fresh:        fresh,
			LastSeenAgeS: age,
		}
	}
	if !allFresh {
		return pylontech.UnifiedState{}, false
	}

	totalCapacity := 0.0
	for _, s := range snapshots {
		totalCapacity += s.CapacityAh
	}
	if totalCapacity <= 0 {
		return pylontech.UnifiedState{}, false
	}

	first := snapshots[0]
	result := pylontech.UnifiedState{
		USetpointCharge:    first.USetpointCharge,
		USetpointDischarge: first.USetpointDischarge,
		ErrorFlags:         first.ErrorFlags,
		WarningFlags:       first.WarningFlags,
		StatusFlags:        first.StatusFlags,
		Manufacturer:       first.Manufacturer,
	}

	var sumILimCharge, sumILimDischarge, sumIMeasured float64
	var wSum, wSOC, wSOH, wU, wT float64
	var moduleCount uint8

	for _, s := range snapshots {
		if s.USetpointCharge < result.USetpointCharge {
			result.USetpointCharge = s.USetpointCharge
		}
		if s.USetpointDischarge > result.USetpointDischarge {
			result.USetpointDischarge = s.USetpointDischarge
		}
		sumILimCharge += s.ILimCharge
		sumILimDischarge += s.ILimDischarge
		sumIMeasured += s.IMeasured

		wSum += s.CapacityAh
		wSOC += s.SOC * s.CapacityAh
		wSOH += s.SOH * s.CapacityAh
		wU += s.UMeasured * s.CapacityAh
		wT += s.TMeasured * s.CapacityAh

		moduleCount += s.ModuleCount
	}
	for _, s := range snapshots[1:] {
		result.ErrorFlags = result.ErrorFlags.Or(s.ErrorFlags)
		result.WarningFlags = result.WarningFlags.Or(s.WarningFlags)
		result.StatusFlags = result.StatusFlags.AndEnable(s.StatusFlags)
	}

	result.ILimCharge = min(sumILimCharge, battery.ILimCharge)
	result.ILimDischarge = min(sumILimDischarge, battery.ILimDischarge)
	result.IMeasured = sumIMeasured*battery.ITotScaling + battery.ITotOffset
	result.SOC = wSOC / wSum
	result.SOH = wSOH / wSum
	result.UMeasured = wU / wSum
	result.TMeasured = wT / wSum
	result.CapacityTotalAh = totalCapacity
	result.ModuleCount = moduleCount
	result.Generation = prevGeneration + 1
	result.Timestamp = now
	result.Inputs = inputs

	return result, true
}

func freshestAge(s *pylontech.Snapshot, now time.Time) float64 {
	var oldest time.Time
	for _, id := range pylontech.RequiredGroup {
		ts, ok := s.LastSeen[id]
		if !ok {
			return -1
		}
		if oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
	}
	return now.Sub(oldest).Seconds()
}
