package timeline

import "iter"

// Locf carries value forward into every bin the interval covers for more than
// half of the bin's width. Bins with a smaller share are dropped so that a
// sliver of coverage never produces a reading. A zero-length interval covers
// nothing and yields no records.
func Locf[V comparable](iv Interval, value V, g Grid) iter.Seq[LocfRecord[V]] {
	return func(yield func(LocfRecord[V]) bool) {
		for b := range g.Bins(iv.Start, iv.End) {
			if b.overlap(iv) <= b.Width()/2 {
				continue
			}
			if !yield(LocfRecord[V]{Bin: b.Start, Value: value}) {
				return
			}
		}
	}
}
