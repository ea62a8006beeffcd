package protocol

import "time"

// TimeZone identifies the zone of a zoned datetime value: either a named
// IANA zone (subject to policy changes over time) or a fixed offset in
// minutes east of UTC.
type TimeZone struct {
	IANAName          string
	HasFixedOffset    bool
	FixedOffsetMinute int32
}

func IANAZone(name string) TimeZone { return TimeZone{IANAName: name} }

func FixedOffsetZone(minutesEast int32) TimeZone {
	return TimeZone{HasFixedOffset: true, FixedOffsetMinute: minutesEast}
}

// Date is a naive (timezone-less) calendar date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// Value is the closed set of scalar (and struct) value kinds the wire
// protocol carries. It is implemented as a tagged union rather than an
// interface with marker methods so decoders can switch on Kind directly,
// matching the closed discriminated-union shape of the value type this is
// ported from.
type Value struct {
	Kind ValueKind

	BooleanValue  bool
	LongValue     int64
	DoubleValue   float64
	DecimalValue  Decimal
	StringValue   string
	DateValue     Date
	DateTimeValue time.Time // naive: Location is always UTC, wall-clock only
	DateTimeTZNaive time.Time
	DateTimeTZZone  TimeZone
	DurationValue Duration
	StructName    string
	StructFields  map[string]*Value // nil entry means an explicit null field
}

type ValueKind int

const (
	KindNull ValueKind = iota
	KindBoolean
	KindLong
	KindDouble
	KindDecimal
	KindString
	KindDate
	KindDateTime
	KindDateTimeTZ
	KindDuration
	KindStruct
)

func (k ValueKind) wireCode() uint8 {
	switch k {
	case KindBoolean:
		return WireBoolean
	case KindLong:
		return WireLong
	case KindDouble:
		return WireDouble
	case KindDecimal:
		return WireDecimal
	case KindString:
		return WireString
	case KindDate:
		return WireDate
	case KindDateTime:
		return WireDateTime
	case KindDateTimeTZ:
		return WireDateTimeTZ
	case KindDuration:
		return WireDuration
	case KindStruct:
		return WireStruct
	default:
		return WireNull
	}
}

func wireCodeToKind(code uint8) ValueKind {
	switch code {
	case WireBoolean:
		return KindBoolean
	case WireLong:
		return KindLong
	case WireDouble:
		return KindDouble
	case WireDecimal:
		return KindDecimal
	case WireString:
		return KindString
	case WireDate:
		return KindDate
	case WireDateTime:
		return KindDateTime
	case WireDateTimeTZ:
		return KindDateTimeTZ
	case WireDuration:
		return KindDuration
	case WireStruct:
		return KindStruct
	default:
		return KindNull
	}
}
