package typedb

import (
	"time"

	"github.com/typedb/typedb-driver-sub001/internal/protocol"
)

// Value is one column's contents in a query answer row, or one entry in a
// query's parameter map -- the same closed, tagged-union shape the wire
// protocol carries end to end.
type Value = protocol.Value

// ValueKind discriminates which field of a Value is populated.
type ValueKind = protocol.ValueKind

const (
	KindNull       = protocol.KindNull
	KindBoolean    = protocol.KindBoolean
	KindLong       = protocol.KindLong
	KindDouble     = protocol.KindDouble
	KindDecimal    = protocol.KindDecimal
	KindString     = protocol.KindString
	KindDate       = protocol.KindDate
	KindDateTime   = protocol.KindDateTime
	KindDateTimeTZ = protocol.KindDateTimeTZ
	KindDuration   = protocol.KindDuration
	KindStruct     = protocol.KindStruct
)

// Decimal is a fixed-point value with 19 fractional decimal digits.
type Decimal = protocol.Decimal

// Duration is a calendar duration: whole months, whole days, and a
// sub-day remainder expressed in nanoseconds.
type Duration = protocol.Duration

func NewDecimal(integer int64, fractional uint64) Decimal { return protocol.NewDecimal(integer, fractional) }

func ParseDuration(s string) (Duration, error) { return protocol.ParseDuration(s) }

func NewBooleanValue(v bool) *Value    { return &Value{Kind: KindBoolean, BooleanValue: v} }
func NewLongValue(v int64) *Value      { return &Value{Kind: KindLong, LongValue: v} }
func NewDoubleValue(v float64) *Value  { return &Value{Kind: KindDouble, DoubleValue: v} }
func NewDecimalValue(v Decimal) *Value { return &Value{Kind: KindDecimal, DecimalValue: v} }
func NewStringValue(v string) *Value   { return &Value{Kind: KindString, StringValue: v} }
func NewDateTimeValue(v time.Time) *Value {
	return &Value{Kind: KindDateTime, DateTimeValue: v}
}
func NewDurationValue(v Duration) *Value { return &Value{Kind: KindDuration, DurationValue: v} }
func NullValue() *Value                  { return &Value{Kind: KindNull} }

// Row is one row of a query answer: a positional list of column values.
type Row = protocol.Row
