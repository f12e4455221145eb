package pylontech

import "encoding/binary"

// scale factors, in wire-units per SI-unit, per the tables in spec.md §4.1.
const (
	scaleDeciVolt   = 10.0  // 0.1 V per LSB
	scaleDeciAmp    = 10.0  // 0.1 A per LSB
	scaleCentiVolt  = 100.0 // 0.01 V per LSB
	scaleDeciDegree = 10.0  // 0.1 degC per LSB
)

func clampU16(v float64) uint16 {
	switch {
	case v < 0:
		return 0
	case v > 65535:
		return 65535
	default:
		return uint16(v + 0.5)
	}
}

func clampI16(v float64) int16 {
	switch {
	case v < -32768:
		return -32768
	case v > 32767:
		return 32767
	default:
		if v >= 0 {
			return int16(v + 0.5)
		}
		return int16(v - 0.5)
	}
}

func putU16Scaled(dst []byte, v float64, scale float64) {
	binary.LittleEndian.PutUint16(dst, clampU16(v*scale))
}

func putI16Scaled(dst []byte, v float64, scale float64) {
	binary.LittleEndian.PutUint16(dst, uint16(clampI16(v*scale)))
}

func getU16Scaled(src []byte, scale float64) float64 {
	return float64(binary.LittleEndian.Uint16(src)) / scale
}

func getI16Scaled(src []byte, scale float64) float64 {
	return float64(int16(binary.LittleEndian.Uint16(src))) / scale
}

// DecodeLimits decodes CAN ID 0x351.
func DecodeLimits(data []byte) (LimitsTelegram, error) {
	if len(data) < 8 {
		return LimitsTelegram{}, ErrTruncated
	}
	return LimitsTelegram{
		UChargeSetpoint:    getU16Scaled(data[0:2], scaleDeciVolt),
		ILimCharge:         getU16Scaled(data[2:4], scaleDeciAmp),
		ILimDischarge:      getU16Scaled(data[4:6], scaleDeciAmp),
		UDischargeSetpoint: getU16Scaled(data[6:8], scaleDeciVolt),
	}, nil
}

// EncodeLimits encodes CAN ID 0x351.
func EncodeLimits(t LimitsTelegram) []byte {
	buf := make([]byte, 8)
	putU16Scaled(buf[0:2], t.UChargeSetpoint, scaleDeciVolt)
	putU16Scaled(buf[2:4], t.ILimCharge, scaleDeciAmp)
	putU16Scaled(buf[4:6], t.ILimDischarge, scaleDeciAmp)
	putU16Scaled(buf[6:8], t.UDischargeSetpoint, scaleDeciVolt)
	return buf
}

// DecodeSOC decodes CAN ID 0x355.
func DecodeSOC(data []byte) (SOCTelegram, error) {
	if len(data) < 4 {
		return SOCTelegram{}, ErrTruncated
	}
	return SOCTelegram{
		SOC: float64(binary.LittleEndian.Uint16(data[0:2])),
		SOH: float64(binary.LittleEndian.Uint16(data[2:4])),
	}, nil
}

// EncodeSOC encodes CAN ID 0x355.
func EncodeSOC(t SOCTelegram) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[0:2], clampU16(t.SOC))
	binary.LittleEndian.PutUint16(buf[2:4], clampU16(t.SOH))
	return buf
}

// DecodeMeasurements decodes CAN ID 0x356.
func DecodeMeasurements(data []byte) (MeasurementsTelegram, error) {
	if len(data) < 6 {
		return MeasurementsTelegram{}, ErrTruncated
	}
	return MeasurementsTelegram{
		UMeasured: getI16Scaled(data[0:2], scaleCentiVolt),
		IMeasured: getI16Scaled(data[2:4], scaleDeciAmp),
		TMeasured: getI16Scaled(data[4:6], scaleDeciDegree),
	}, nil
}

// EncodeMeasurements encodes CAN ID 0x356.
func EncodeMeasurements(t MeasurementsTelegram) []byte {
	buf := make([]byte, 8)
	putI16Scaled(buf[0:2], t.UMeasured, scaleCentiVolt)
	putI16Scaled(buf[2:4], t.IMeasured, scaleDeciAmp)
	putI16Scaled(buf[4:6], t.TMeasured, scaleDeciDegree)
	return buf
}

// vendorID is the fixed Pylontech vendor tag ("PN") written into 0x359
// bytes 5-6, matching the byte values observed on the wire.
var vendorID = [2]byte{'P', 'N'}

// DecodeAlarms decodes CAN ID 0x359.
func DecodeAlarms(data []byte) (AlarmsTelegram, error) {
	if len(data) < 5 {
		return AlarmsTelegram{}, ErrTruncated
	}
	t := AlarmsTelegram{
		ErrorFlags:   ErrorFlags{Low: data[0], High: data[1]},
		WarningFlags: WarningFlags{Low: data[2], High: data[3]},
		ModuleCount:  data[4],
	}
	if len(data) >= 7 {
		t.Vendor = [2]byte{data[5], data[6]}
	} else {
		t.Vendor = vendorID
	}
	return t, nil
}

// EncodeAlarms encodes CAN ID 0x359.
func EncodeAlarms(t AlarmsTelegram) []byte {
	buf := make([]byte, 8)
	buf[0] = t.ErrorFlags.Low
	buf[1] = t.ErrorFlags.High
	buf[2] = t.WarningFlags.Low
	buf[3] = t.WarningFlags.High
	buf[4] = t.ModuleCount
	buf[5] = vendorID[0]
	buf[6] = vendorID[1]
	return buf
}

// DecodeStatus decodes CAN ID 0x35C.
func DecodeStatus(data []byte) (StatusTelegram, error) {
	if len(data) < 1 {
		return StatusTelegram{}, ErrTruncated
	}
	return StatusTelegram{StatusFlags: StatusFlags{Byte: data[0]}}, nil
}

// EncodeStatus encodes CAN ID 0x35C.
func EncodeStatus(t StatusTelegram) []byte {
	buf := make([]byte, 8)
	buf[0] = t.StatusFlags.Byte
	return buf
}

// DecodeManufacturer decodes CAN ID 0x35E.
func DecodeManufacturer(data []byte) (ManufacturerTelegram, error) {
	if len(data) < 1 {
		return ManufacturerTelegram{}, ErrTruncated
	}
	end := len(data)
	for end > 0 && data[end-1] == 0 {
		end--
	}
	return ManufacturerTelegram{Name: string(data[:end])}, nil
}

// EncodeManufacturer encodes CAN ID 0x35E. Names longer than 8 bytes are
// truncated; shorter names are NUL-padded, matching the wire's fixed
// 8-byte ASCII field.
func EncodeManufacturer(t ManufacturerTelegram) []byte {
	buf := make([]byte, 8)
	copy(buf, t.Name)
	return buf
}

// EncodeSync encodes CAN ID 0x305, the inverter sync/acknowledge
// telegram: 8 zero bytes, no fields.
func EncodeSync() []byte {
	return make([]byte, 8)
}

// IsSync reports whether data is a valid inbound sync/acknowledge
// payload: exactly the required zero bytes.
func IsSync(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	for _, b := range data[:8] {
		if b != 0 {
			return false
		}
	}
	return true
}

// KindOf classifies a CAN identifier, returning KindIgnored for any ID
// outside the recognized Pylontech telegram family.
func KindOf(id uint32) FrameKind {
	switch TelegramID(id) {
	case IDChargeDischargeLimits:
		return KindLimits
	case IDSOCState:
		return KindSOC
	case IDMeasurements:
		return KindMeasurements
	case IDAlarms:
		return KindAlarms
	case IDStatus:
		return KindStatus
	case IDManufacturer:
		return KindManufacturer
	case IDSync:
		return KindSync
	default:
		return KindIgnored
	}
}
