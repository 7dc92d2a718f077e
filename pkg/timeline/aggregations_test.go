package timeline

import (
	"math"
	"testing"
	"time"
)

func TestAggregateBins(t *testing.T) {
	values := []BinValue{
		{Bin: at(10, 0), Value: 30.0},
		{Bin: at(9, 0), Value: 10.0},
		{Bin: at(9, 0), Value: 20.0},
		{Bin: at(10, 0), Value: 40.0},
		{Bin: at(9, 0), Value: 30.0},
	}

	tests := []struct {
		name       string
		aggType    AggregationType
		percentile float64
		expected   []float64
	}{
		{"sum", Sum, 0, []float64{60, 70}},
		{"avg", Avg, 0, []float64{20, 35}},
		{"min", Min, 0, []float64{10, 30}},
		{"max", Max, 0, []float64{30, 40}},
		{"count", Count, 0, []float64{3, 2}},
		{"median", Median, 0, []float64{20, 35}},
		{"first", First, 0, []float64{10, 30}},
		{"last", Last, 0, []float64{30, 40}},
		{"90th percentile", Percentile, 90.0, []float64{28, 39}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := AggregateBins(values, tt.aggType, tt.percentile)
			if len(results) != 2 {
				t.Fatalf("Expected 2 bins, got %d", len(results))
			}
			if !results[0].Bin.Equal(at(9, 0)) || !results[1].Bin.Equal(at(10, 0)) {
				t.Errorf("Bins out of order: %v, %v", results[0].Bin, results[1].Bin)
			}
			for i, r := range results {
				if r.Type != tt.aggType {
					t.Errorf("Expected type %s, got %s", tt.aggType, r.Type)
				}
				if math.Abs(r.Value-tt.expected[i]) > 0.1 {
					t.Errorf("Bin %d: expected %f, got %f", i, tt.expected[i], r.Value)
				}
			}
			if results[0].Count != 3 || results[1].Count != 2 {
				t.Errorf("Unexpected counts %d, %d", results[0].Count, results[1].Count)
			}
		})
	}
}

func TestAggregateBinsEmpty(t *testing.T) {
	if got := AggregateBins(nil, Sum, 0); len(got) != 0 {
		t.Errorf("Expected no results, got %+v", got)
	}
}

func TestAggregateInterpolatedAcrossIntervals(t *testing.T) {
	g := hourGrid(t)
	var all []BinValue
	for _, iv := range []struct {
		iv         Interval
		start, end float64
	}{
		{Interval{Start: at(9, 0), End: at(11, 0)}, 0, 20},
		{Interval{Start: at(9, 30), End: at(10, 30)}, 100, 110},
	} {
		seq, err := Interpolate(iv.iv, iv.start, iv.end, g)
		if err != nil {
			t.Fatalf("Interpolate: %v", err)
		}
		for r := range seq {
			all = append(all, BinValue{Bin: r.Bin, Value: r.SplitDelta})
		}
	}

	results := AggregateBins(all, Sum, 0)
	expected := []float64{15, 15}
	if len(results) != len(expected) {
		t.Fatalf("Expected %d bins, got %d", len(expected), len(results))
	}
	for i, r := range results {
		if math.Abs(r.Value-expected[i]) > 1e-9 {
			t.Errorf("Bin %v: expected %v, got %v", r.Bin, expected[i], r.Value)
		}
	}
}

func TestParseAggregationType(t *testing.T) {
	if _, err := ParseAggregationType("sum"); err != nil {
		t.Errorf("sum should parse: %v", err)
	}
	if _, err := ParseAggregationType("mode"); err == nil {
		t.Errorf("mode should be rejected")
	}
}

func TestBinValueTimesAreUTC(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	results := AggregateBins([]BinValue{{Bin: time.Date(2025, 1, 1, 9, 0, 0, 0, loc), Value: 1}}, Sum, 0)
	if results[0].Bin.Location() != time.UTC {
		t.Errorf("Expected UTC bin, got %v", results[0].Bin.Location())
	}
}
