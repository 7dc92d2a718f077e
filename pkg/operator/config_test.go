package operator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing name", func(c *Config) { c.Name = "" }, "name"},
		{"unknown kind", func(c *Config) { c.Kind = "mean" }, "kind"},
		{"missing start", func(c *Config) { c.StartColumn = "" }, "start_column"},
		{"missing value", func(c *Config) { c.ValueColumn = "" }, "value_column"},
		{"bad bin size", func(c *Config) { c.BinSize = "an hour" }, "bin_size"},
		{"zero bin size", func(c *Config) { c.BinSize = "0s" }, "bin_size"},
		{"bad location", func(c *Config) { c.Location = "Mars/Olympus" }, "bin_size"},
		{"passthrough collides", func(c *Config) { c.Passthrough = []string{"bin"} }, "output"},
		{"renamed output collides", func(c *Config) {
			c.Passthrough = []string{"state"}
			c.Output.Value = "state"
		}, "output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := locfConfig()
			tt.mutate(&cfg)

			_, err := cfg.Validate()
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.Equal(t, cfg.Name, cfgErr.Operator)
		})
	}
}

func TestConfigValidateInterpolate(t *testing.T) {
	cfg := interpolateConfig()
	cfg.Location = "Asia/Kuala_Lumpur"
	grid, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, grid.Size)
	assert.Equal(t, "Asia/Kuala_Lumpur", grid.Location.String())

	cfg.EndValueColumn = ""
	_, err = cfg.Validate()
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "end_value_column", cfgErr.Field)

	// value_column is ignored by interpolate
	cfg = interpolateConfig()
	cfg.ValueColumn = ""
	_, err = New(cfg)
	assert.NoError(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := locfConfig()
	cfg.BinSize = "-1h"
	op, err := New(cfg)
	assert.Nil(t, op)
	var cfgErr *ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}
