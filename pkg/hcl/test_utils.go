package hcl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leowmjw/go-timeline-resample/pkg/operator"
)

// AssertConfigsEqual compares two Config objects for equality in tests
func AssertConfigsEqual(t *testing.T, expected, actual *Config) {
	t.Helper()
	assert.Equal(t, expected.Driver, actual.Driver)

	assert.Equal(t, len(expected.Operators), len(actual.Operators))
	for i := 0; i < len(expected.Operators) && i < len(actual.Operators); i++ {
		AssertOperatorsEqual(t, expected.Operators[i], actual.Operators[i])
	}
}

// AssertOperatorsEqual compares two operator configurations, treating a nil
// and an empty passthrough list as equal.
func AssertOperatorsEqual(t *testing.T, expected, actual operator.Config) {
	t.Helper()
	assert.Equal(t, expected.Name, actual.Name)
	assert.Equal(t, expected.Kind, actual.Kind)
	assert.Equal(t, expected.StartColumn, actual.StartColumn)
	assert.Equal(t, expected.EndColumn, actual.EndColumn)
	assert.Equal(t, expected.ValueColumn, actual.ValueColumn)
	assert.Equal(t, expected.StartValueColumn, actual.StartValueColumn)
	assert.Equal(t, expected.EndValueColumn, actual.EndValueColumn)
	assert.Equal(t, expected.BinSize, actual.BinSize)
	assert.Equal(t, expected.Location, actual.Location)
	assert.Equal(t, expected.Output, actual.Output)

	if len(expected.Passthrough) > 0 || len(actual.Passthrough) > 0 {
		assert.Equal(t, expected.Passthrough, actual.Passthrough)
	}
}
