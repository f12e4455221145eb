package pylontech

// OutputTransform holds the per-inverter scaling/offset/current-limit
// policy applied when re-encoding the unified state for one output BMS
// session (spec.md §3, §4.4).
type OutputTransform struct {
	IScaling           float64
	IOffset            float64
	ILimChargeCap      float64
	ILimDischargeCap   float64
	PushMinDelaySec    float64
	SendSyncActivated  bool
	SyncIntervalSec    float64
}

// Apply computes the six-telegram outbound record for one inverter from
// a unified state, per the transform in spec.md §4.4:
//
//	i_out = i_measured_unified * I-SCALING + I-OFFSET
//	i_lim_charge_out    = min(i_lim_charge_unified,    I-LIM-CHARGE_inv)
//	i_lim_discharge_out = min(i_lim_discharge_unified, I-LIM-DISCHARGE_inv)
//
// Voltage, temperature, SOC, SOH and flag fields pass through unchanged.
func (t OutputTransform) Apply(u UnifiedState) OutboundSet {
	return OutboundSet{
		Limits: LimitsTelegram{
			UChargeSetpoint:    u.USetpointCharge,
			ILimCharge:         min(u.ILimCharge, t.ILimChargeCap),
			ILimDischarge:      min(u.ILimDischarge, t.ILimDischargeCap),
			UDischargeSetpoint: u.USetpointDischarge,
		},
		SOC: SOCTelegram{SOC: u.SOC, SOH: u.SOH},
		Measurements: MeasurementsTelegram{
			UMeasured: u.UMeasured,
			IMeasured: u.IMeasured*t.IScaling + t.IOffset,
			TMeasured: u.TMeasured,
		},
		Alarms: AlarmsTelegram{
			ErrorFlags:   u.ErrorFlags,
			WarningFlags: u.WarningFlags,
			ModuleCount:  u.ModuleCount,
			Vendor:       vendorID,
		},
		Status:       StatusTelegram{StatusFlags: u.StatusFlags},
		Manufacturer: ManufacturerTelegram{Name: u.Manufacturer},
	}
}

// OutboundSet is the full six-telegram record transmitted to one
// inverter, in the fixed wire order (spec.md §4.4):
// 0x351, 0x355, 0x356, 0x359, 0x35C, 0x35E.
type OutboundSet struct {
	Limits       LimitsTelegram
	SOC          SOCTelegram
	Measurements MeasurementsTelegram
	Alarms       AlarmsTelegram
	Status       StatusTelegram
	Manufacturer ManufacturerTelegram
}

// Frames encodes the outbound set into the six CAN frames, in wire
// order, ready to transmit back-to-back.
func (s OutboundSet) Frames() []Frame {
	return []Frame{
		{ID: uint32(IDChargeDischargeLimits), Data: EncodeLimits(s.Limits)},
		{ID: uint32(IDSOCState), Data: EncodeSOC(s.SOC)},
		{ID: uint32(IDMeasurements), Data: EncodeMeasurements(s.Measurements)},
		{ID: uint32(IDAlarms), Data: EncodeAlarms(s.Alarms)},
		{ID: uint32(IDStatus), Data: EncodeStatus(s.Status)},
		{ID: uint32(IDManufacturer), Data: EncodeManufacturer(s.Manufacturer)},
	}
}
