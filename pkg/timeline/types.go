package timeline

import (
	"fmt"
	"strconv"
	"time"
)

// Interval represents a [Start, End) span during which a quantity held a value
// or changed linearly.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval builds an interval, rejecting an end before the start.
func NewInterval(start, end time.Time) (Interval, error) {
	if end.Before(start) {
		return Interval{}, domainErrorf("interval", "end %s is before start %s",
			end.Format(time.RFC3339Nano), start.Format(time.RFC3339Nano))
	}
	return Interval{Start: start, End: end}, nil
}

// Duration returns the length of the interval.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Bin is a half-open [Start, End) slot on a day-anchored grid.
type Bin struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Width returns the bin width. It equals the grid size except for the last
// bin of a day when the size does not divide the day.
func (b Bin) Width() time.Duration {
	return b.End.Sub(b.Start)
}

// overlap returns how much of the bin the interval covers.
func (b Bin) overlap(iv Interval) time.Duration {
	lo, hi := b.Start, b.End
	if iv.Start.After(lo) {
		lo = iv.Start
	}
	if iv.End.Before(hi) {
		hi = iv.End
	}
	if !hi.After(lo) {
		return 0
	}
	return hi.Sub(lo)
}

// Kind enumerates the value types carried by LOCF bucketization.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindFloat
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	default:
		return "invalid"
	}
}

// Value is a closed variant over bool, int, float and text. The zero Value is
// invalid. Values are comparable so they can be carried by Locf directly.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

func TextValue(s string) Value { return Value{kind: KindText, s: s} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsValid() bool { return v.kind != KindInvalid }

func (v Value) Bool() bool { return v.b }

func (v Value) Int() int64 { return v.i }

func (v Value) Float() float64 { return v.f }

func (v Value) Text() string { return v.s }

// Numeric widens an int or float value to float64 for interpolation.
func (v Value) Numeric() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Interface returns the held value as a plain Go value.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindText:
		return v.s
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return v.s
	default:
		return fmt.Sprintf("<%s>", v.kind)
	}
}

// LocfRecord is one output of LOCF bucketization.
type LocfRecord[V comparable] struct {
	Bin   time.Time `json:"bin"`
	Value V         `json:"value"`
}

// InterpolatedRecord is one output of interpolating bucketization.
type InterpolatedRecord struct {
	Bin        time.Time `json:"bin"`
	SplitDelta float64   `json:"split_delta"`
	AfterValue float64   `json:"after_value"`
}
