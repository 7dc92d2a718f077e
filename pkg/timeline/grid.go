package timeline

import (
	"fmt"
	"iter"
	"time"
)

// Grid is a day-anchored grid of fixed-size bins. Every local midnight in
// Location starts a new run of bins; when Size does not divide the day the last
// bin before midnight is truncated.
type Grid struct {
	Size     time.Duration `json:"size"`
	Location *time.Location `json:"-"`
}

// NewGrid returns a grid with the given bin size. A nil location means UTC.
func NewGrid(size time.Duration, loc *time.Location) (Grid, error) {
	if size <= 0 {
		return Grid{}, domainErrorf("grid", "bin size must be positive, got %s", size)
	}
	if loc == nil {
		loc = time.UTC
	}
	return Grid{Size: size, Location: loc}, nil
}

// GridSpec is the string form of a grid used in configuration.
type GridSpec struct {
	Size     string `json:"size"`     // Duration string like "15m", "1h"
	Location string `json:"location"` // IANA zone name, empty for UTC
}

// ParseGridSpec parses the configuration form of a grid.
func ParseGridSpec(spec GridSpec) (Grid, error) {
	size, err := time.ParseDuration(spec.Size)
	if err != nil {
		return Grid{}, fmt.Errorf("invalid bin size: %w", err)
	}

	loc := time.UTC
	if spec.Location != "" {
		loc, err = time.LoadLocation(spec.Location)
		if err != nil {
			return Grid{}, fmt.Errorf("invalid location: %w", err)
		}
	}

	return NewGrid(size, loc)
}

func (g Grid) location() *time.Location {
	if g.Location == nil {
		return time.UTC
	}
	return g.Location
}

// dayStart returns the first instant of the local calendar day y-m-d. When a
// DST transition skips midnight, time.Date normalizes into the previous day and
// the day starts at the transition instead.
func dayStart(y int, m time.Month, d int, loc *time.Location) time.Time {
	y, m, d = time.Date(y, m, d, 12, 0, 0, 0, loc).Date()
	t := time.Date(y, m, d, 0, 0, 0, 0, loc)
	for ty, tm, td := t.Date(); ty != y || tm != m || td != d; ty, tm, td = t.Date() {
		_, end := t.ZoneBounds()
		if !end.After(t) {
			break
		}
		t = end
	}
	return t
}

func midnightOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return dayStart(y, m, d, loc)
}

func nextMidnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return dayStart(y, m, d+1, loc)
}

// Align returns the start of the bin containing t.
func (g Grid) Align(t time.Time) time.Time {
	mid := midnightOf(t, g.location())
	if t.Before(mid) {
		// Only reachable when a transition repeats midnight.
		return t
	}
	idx := t.Sub(mid) / g.Size
	return mid.Add(idx * g.Size)
}

// BinAt returns the bin containing t. The bin always has positive width.
func (g Grid) BinAt(t time.Time) Bin {
	start := g.Align(t)
	end := start.Add(g.Size)

	if next := nextMidnight(start, g.location()); next.After(start) && end.After(next) {
		end = next
	}
	return Bin{Start: start, End: end}
}

// Bins yields, in increasing order, every bin that overlaps [start, end) with
// positive measure. Nothing is yielded when start is not before end. Each bin
// starts where the previous one ended.
func (g Grid) Bins(start, end time.Time) iter.Seq[Bin] {
	return func(yield func(Bin) bool) {
		if !start.Before(end) {
			return
		}
		b := g.BinAt(start)
		for {
			if !yield(b) {
				return
			}
			if !b.End.Before(end) {
				return
			}
			next := g.BinAt(b.End)
			if next.Start.Before(b.End) {
				next.Start = b.End
			}
			if !next.End.After(next.Start) {
				next.End = next.Start.Add(g.Size)
			}
			b = next
		}
	}
}

// AlignedBinStart returns the start of the size-wide bin containing t on the
// grid anchored at midnight of t's own calendar day and location.
func AlignedBinStart(t time.Time, size time.Duration) time.Time {
	g := Grid{Size: size, Location: t.Location()}
	return g.Align(t)
}
