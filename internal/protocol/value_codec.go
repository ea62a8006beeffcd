package protocol

import (
	"fmt"
	"math"
	"time"
)

// putValue encodes a single value (preceded by its wire type code) into the
// message body. A nil value encodes as WireNull with no payload.
func (m *Message) putValue(v *Value) {
	if v == nil {
		m.putUint8(WireNull)
		return
	}

	m.putUint8(v.Kind.wireCode())
	switch v.Kind {
	case KindBoolean:
		b := uint8(0)
		if v.BooleanValue {
			b = 1
		}
		m.putUint8(b)
	case KindLong:
		m.putInt64(v.LongValue)
	case KindDouble:
		m.putUint64(math.Float64bits(v.DoubleValue))
	case KindDecimal:
		m.putInt64(v.DecimalValue.Integer)
		m.putUint64(v.DecimalValue.Fractional)
	case KindString:
		m.putString(v.StringValue)
	case KindDate:
		m.putUint32(uint32(v.DateValue.Year))
		m.putUint8(uint8(v.DateValue.Month))
		m.putUint8(uint8(v.DateValue.Day))
	case KindDateTime:
		m.putInt64(v.DateTimeValue.Unix())
		m.putUint32(uint32(v.DateTimeValue.Nanosecond()))
	case KindDateTimeTZ:
		m.putInt64(v.DateTimeTZNaive.Unix())
		m.putUint32(uint32(v.DateTimeTZNaive.Nanosecond()))
		m.putTimeZone(v.DateTimeTZZone)
	case KindDuration:
		m.putUint32(v.DurationValue.Months)
		m.putUint32(v.DurationValue.Days)
		m.putUint64(v.DurationValue.Nanos)
	case KindStruct:
		m.putString(v.StructName)
		m.putFieldMap(v.StructFields)
	}
}

func (m *Message) putTimeZone(tz TimeZone) {
	if tz.HasFixedOffset {
		m.putUint8(1)
		m.putInt64(int64(tz.FixedOffsetMinute))
		return
	}
	m.putUint8(0)
	m.putString(tz.IANAName)
}

// putFieldMap encodes a field-name -> value map (a count, then each name
// and value in Go map iteration order, which is unspecified), used for
// struct values and for query parameter maps alike.
func (m *Message) putFieldMap(fields map[string]*Value) {
	m.putUint32(uint32(len(fields)))
	for name, v := range fields {
		m.putString(name)
		m.putValue(v)
	}
}

// getValue decodes one value (its wire type code, then its payload).
func (m *Message) getValue() (*Value, error) {
	code := m.getUint8()
	kind := wireCodeToKind(code)

	switch kind {
	case KindNull:
		if code != WireNull {
			return nil, fmt.Errorf("%w: value type code %d", ErrUnknownEnumValue, code)
		}
		return nil, nil
	case KindBoolean:
		return &Value{Kind: kind, BooleanValue: m.getUint8() != 0}, nil
	case KindLong:
		return &Value{Kind: kind, LongValue: m.getInt64()}, nil
	case KindDouble:
		return &Value{Kind: kind, DoubleValue: math.Float64frombits(m.getUint64())}, nil
	case KindDecimal:
		integer := m.getInt64()
		fractional := m.getUint64()
		return &Value{Kind: kind, DecimalValue: Decimal{Integer: integer, Fractional: fractional}}, nil
	case KindString:
		return &Value{Kind: kind, StringValue: m.getString()}, nil
	case KindDate:
		year := int(m.getUint32())
		month := time.Month(m.getUint8())
		day := int(m.getUint8())
		return &Value{Kind: kind, DateValue: Date{Year: year, Month: month, Day: day}}, nil
	case KindDateTime:
		sec := m.getInt64()
		nsec := int64(m.getUint32())
		return &Value{Kind: kind, DateTimeValue: time.Unix(sec, nsec).UTC()}, nil
	case KindDateTimeTZ:
		sec := m.getInt64()
		nsec := int64(m.getUint32())
		zone, err := m.getTimeZone()
		if err != nil {
			return nil, err
		}
		return &Value{Kind: kind, DateTimeTZNaive: time.Unix(sec, nsec).UTC(), DateTimeTZZone: zone}, nil
	case KindDuration:
		months := m.getUint32()
		days := m.getUint32()
		nanos := m.getUint64()
		return &Value{Kind: kind, DurationValue: Duration{Months: months, Days: days, Nanos: nanos}}, nil
	case KindStruct:
		name := m.getString()
		fields, err := m.getFieldMap()
		if err != nil {
			return nil, err
		}
		return &Value{Kind: kind, StructName: name, StructFields: fields}, nil
	default:
		return nil, fmt.Errorf("%w: value type code %d", ErrUnknownEnumValue, code)
	}
}

func (m *Message) getTimeZone() (TimeZone, error) {
	fixed := m.getUint8()
	if fixed == 1 {
		return FixedOffsetZone(int32(m.getInt64())), nil
	}
	name := m.getString()
	if _, err := time.LoadLocation(name); err != nil {
		return TimeZone{}, fmt.Errorf("%w: %s", ErrTimeZoneNameUnrecognised, name)
	}
	return IANAZone(name), nil
}

func (m *Message) getFieldMap() (map[string]*Value, error) {
	n := m.getUint32()
	fields := make(map[string]*Value, n)
	for i := uint32(0); i < n; i++ {
		name := m.getString()
		v, err := m.getValue()
		if err != nil {
			return nil, err
		}
		fields[name] = v
	}
	return fields, nil
}
