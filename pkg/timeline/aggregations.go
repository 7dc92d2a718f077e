package timeline

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// AggregationType represents different types of aggregations
type AggregationType string

const (
	Sum        AggregationType = "sum"
	Avg        AggregationType = "avg"
	Min        AggregationType = "min"
	Max        AggregationType = "max"
	Count      AggregationType = "count"
	StdDev     AggregationType = "stddev"
	Variance   AggregationType = "variance"
	Percentile AggregationType = "percentile"
	Median     AggregationType = "median"
	First      AggregationType = "first"
	Last       AggregationType = "last"
)

// ParseAggregationType validates an aggregation name.
func ParseAggregationType(s string) (AggregationType, error) {
	switch t := AggregationType(s); t {
	case Sum, Avg, Min, Max, Count, StdDev, Variance, Percentile, Median, First, Last:
		return t, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q", s)
	}
}

// BinValue is one numeric reading attributed to a bin, typically a split_delta
// or after_value produced for one interval.
type BinValue struct {
	Bin   time.Time `json:"bin"`
	Value float64   `json:"value"`
}

// BinAggregate is the aggregation of all readings that share a bin.
type BinAggregate struct {
	Bin   time.Time       `json:"bin"`
	Type  AggregationType `json:"type"`
	Value float64         `json:"value"`
	Count int             `json:"count"`
}

// AggregateBins combines readings from many intervals that landed on the same
// grid. Results are ordered by bin; First and Last follow input order within a
// bin.
func AggregateBins(values []BinValue, aggType AggregationType, percentile float64) []BinAggregate {
	if len(values) == 0 {
		return []BinAggregate{}
	}

	groups := make(map[int64][]float64)
	var keys []int64
	for _, v := range values {
		k := v.Bin.UnixNano()
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], v.Value)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	results := make([]BinAggregate, 0, len(keys))
	for _, k := range keys {
		group := groups[k]
		results = append(results, BinAggregate{
			Bin:   time.Unix(0, k).UTC(),
			Type:  aggType,
			Value: aggregate(group, aggType, percentile),
			Count: len(group),
		})
	}
	return results
}

func aggregate(values []float64, aggType AggregationType, percentile float64) float64 {
	switch aggType {
	case Sum:
		return sumValues(values)
	case Avg:
		return avgValues(values)
	case Min:
		return minValues(values)
	case Max:
		return maxValues(values)
	case Count:
		return float64(len(values))
	case StdDev:
		return stdDevValues(values)
	case Variance:
		return varianceValues(values)
	case Percentile:
		return percentileValues(values, percentile)
	case Median:
		return percentileValues(values, 50.0)
	case First:
		return values[0]
	case Last:
		return values[len(values)-1]
	}
	return math.NaN()
}

// Helper functions for calculations

func sumValues(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

func avgValues(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sumValues(values) / float64(len(values))
}

func minValues(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	min := values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
	}
	return min
}

func maxValues(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	max := values[0]
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	return max
}

func varianceValues(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	avg := avgValues(values)
	sumSquaredDiff := 0.0

	for _, v := range values {
		diff := v - avg
		sumSquaredDiff += diff * diff
	}

	return sumSquaredDiff / float64(len(values))
}

func stdDevValues(values []float64) float64 {
	return math.Sqrt(varianceValues(values))
}

func percentileValues(values []float64, percentile float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if percentile <= 0 {
		return sorted[0]
	}
	if percentile >= 100 {
		return sorted[len(sorted)-1]
	}

	// Linear interpolation between closest ranks
	index := (percentile / 100.0) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
