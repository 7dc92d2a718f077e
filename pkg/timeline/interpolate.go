package timeline

import (
	"iter"
	"math"
	"time"
)

// linearModel is value(t) = start + slope*(t - origin), with t in nanoseconds.
type linearModel struct {
	origin     time.Time
	startValue float64
	endValue   float64
	slope      float64
}

func newLinearModel(iv Interval, startValue, endValue float64) (linearModel, error) {
	if !iv.Start.Before(iv.End) {
		return linearModel{}, domainErrorf("interpolate", "interval [%s, %s) has no duration, slope is undefined",
			iv.Start.Format(time.RFC3339Nano), iv.End.Format(time.RFC3339Nano))
	}
	if math.IsNaN(startValue) || math.IsInf(startValue, 0) {
		return linearModel{}, domainErrorf("interpolate", "start value %v is not finite", startValue)
	}
	if math.IsNaN(endValue) || math.IsInf(endValue, 0) {
		return linearModel{}, domainErrorf("interpolate", "end value %v is not finite", endValue)
	}

	return linearModel{
		origin:     iv.Start,
		startValue: startValue,
		endValue:   endValue,
		slope:      (endValue - startValue) / float64(iv.End.Sub(iv.Start)),
	}, nil
}

func (m linearModel) at(t time.Time) float64 {
	return m.startValue + m.slope*float64(t.Sub(m.origin))
}

// interpolation is the fold state of one Interpolate call. after is the
// running after_value carried from one bin to the next.
type interpolation struct {
	model linearModel
	iv    Interval
	after float64
}

// step computes the record for bin b and returns the state for the next bin.
func (s interpolation) step(b Bin) (InterpolatedRecord, interpolation) {
	first := !b.Start.After(s.iv.Start)
	last := !b.End.Before(s.iv.End)

	var delta float64
	switch {
	case first && last:
		delta = s.model.endValue - s.model.startValue
		s.after = s.model.endValue
	case first:
		edge := s.model.at(b.End)
		delta = edge - s.model.startValue
		s.after = edge
	case last:
		delta = s.model.endValue - s.model.at(b.Start)
		s.after = s.model.endValue
	default:
		delta = s.model.slope * float64(b.Width())
		s.after += delta
	}

	return InterpolatedRecord{Bin: b.Start, SplitDelta: delta, AfterValue: s.after}, s
}

// Interpolate spreads the change from startValue to endValue over the bins the
// interval touches, assuming the quantity moves linearly in time. Partial first
// and last bins are measured against the model value at the bin boundary, so
// the deltas sum to endValue-startValue and the last AfterValue is endValue.
//
// The interval must have positive duration and both values must be finite;
// otherwise a *DomainError is returned and no sequence is produced.
func Interpolate(iv Interval, startValue, endValue float64, g Grid) (iter.Seq[InterpolatedRecord], error) {
	model, err := newLinearModel(iv, startValue, endValue)
	if err != nil {
		return nil, err
	}

	return func(yield func(InterpolatedRecord) bool) {
		state := interpolation{model: model, iv: iv, after: startValue}
		for b := range g.Bins(iv.Start, iv.End) {
			var rec InterpolatedRecord
			rec, state = state.step(b)
			if !yield(rec) {
				return
			}
		}
	}, nil
}
