package hcl

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leowmjw/go-timeline-resample/pkg/engine"
	"github.com/leowmjw/go-timeline-resample/pkg/operator"
)

func TestParseConfig(t *testing.T) {
	hclContent := `
	# Driver settings
	driver {
		workers = 2
		policy  = "skip"
	}

	operator "door_state" {
		kind         = "locf"
		start_column = "start"
		end_column   = "end"
		value_column = lower("STATE")
		bin_size     = duration(90, "m")
		passthrough  = ["device", format("%s_id", "site")]

		output {
			bin = "bucket"
		}
	}

	operator "meter_kwh" {
		kind               = "interpolate"
		start_column       = "start"
		end_column         = "end"
		start_value_column = "reading_start"
		end_value_column   = "reading_end"
		bin_size           = "1h"
		location           = "Europe/Berlin"
	}
	`

	cfg, err := ParseConfig([]byte(hclContent), "resample.hcl")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 2, cfg.Driver.Workers)
	assert.Equal(t, engine.PolicySkip, cfg.Driver.Policy)

	require.Len(t, cfg.Operators, 2)

	door, ok := cfg.Operator("door_state")
	require.True(t, ok)
	assert.Equal(t, operator.KindLocf, door.Kind)
	assert.Equal(t, "state", door.ValueColumn)
	assert.Equal(t, "1h30m0s", door.BinSize)
	assert.Equal(t, []string{"device", "site_id"}, door.Passthrough)
	assert.Equal(t, operator.OutputColumns{Bin: "bucket"}, door.Output)

	meter, ok := cfg.Operator("meter_kwh")
	require.True(t, ok)
	assert.Equal(t, operator.KindInterpolate, meter.Kind)
	assert.Equal(t, "reading_start", meter.StartValueColumn)
	assert.Equal(t, "reading_end", meter.EndValueColumn)
	assert.Equal(t, "Europe/Berlin", meter.Location)
	assert.Empty(t, meter.Passthrough)

	_, ok = cfg.Operator("missing")
	assert.False(t, ok)
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
operator "door" {
  kind         = "locf"
  start_column = "start"
  end_column   = "end"
  value_column = "state"
  bin_size     = "1h"
}
`), "door.hcl")
	require.NoError(t, err)
	assert.Equal(t, engine.PolicyFail, cfg.Driver.Policy)
	assert.Equal(t, 0, cfg.Driver.Workers)
}

func TestParseConfigErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		errText string
	}{
		{
			name:    "Syntax Error",
			content: `operator "door" {`,
			errText: "failed to parse HCL",
		},
		{
			name: "Missing Required Attribute",
			content: `operator "door" {
				kind = "locf"
			}`,
			errText: "failed to decode HCL body",
		},
		{
			name: "Bad Duration Unit",
			content: `operator "door" {
				kind         = "locf"
				start_column = "start"
				end_column   = "end"
				value_column = "state"
				bin_size     = duration(1, "fortnight")
			}`,
			errText: "failed to decode HCL body",
		},
		{
			name: "Unknown Kind",
			content: `operator "door" {
				kind         = "mean"
				start_column = "start"
				end_column   = "end"
				bin_size     = "1h"
			}`,
			errText: "kind",
		},
		{
			name: "Duplicate Operator",
			content: `
			operator "door" {
				kind         = "locf"
				start_column = "start"
				end_column   = "end"
				value_column = "state"
				bin_size     = "1h"
			}
			operator "door" {
				kind         = "locf"
				start_column = "start"
				end_column   = "end"
				value_column = "state"
				bin_size     = "2h"
			}`,
			errText: "defined more than once",
		},
		{
			name:    "Unknown Policy",
			content: `driver { policy = "retry" }`,
			errText: "unknown failure policy",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.content), "bad.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errText)
		})
	}
}

func TestParseJSONConfig(t *testing.T) {
	cfg, err := ParseJSONConfig([]byte(`{
		"operators": [{
			"name": "door",
			"kind": "locf",
			"start_column": "start",
			"end_column": "end",
			"value_column": "state",
			"bin_size": "15m"
		}]
	}`))
	require.NoError(t, err)
	require.Len(t, cfg.Operators, 1)
	assert.Equal(t, "15m", cfg.Operators[0].BinSize)

	_, err = ParseJSONConfig([]byte(`{"operators": [{"name": "door", "kind": "locf"}]}`))
	var cfgErr *operator.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = ParseJSONConfig([]byte(`{"operators": `))
	assert.ErrorContains(t, err, "failed to parse JSON")
}

func TestDetectContentType(t *testing.T) {
	testCases := []struct {
		name        string
		contentType string
		body        string
		expected    string
	}{
		{"HCL Header", "application/vnd.hcl; charset=utf-8", `{}`, ContentTypeHCL},
		{"JSON Header", "application/json", `operator "x" {}`, ContentTypeJSON},
		{"Sniff JSON", "", `  {"operators": []}`, ContentTypeJSON},
		{"Sniff HCL", "text/plain", `operator "x" { kind = "locf" }`, ContentTypeHCL},
		{"Empty Body", "", ``, ContentTypeJSON},
		{"Garbage", "", `operator "x" {`, ContentTypeJSON},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/operators", strings.NewReader(tc.body))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}

			ct, err := DetectContentType(req)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ct)

			// The body must still be readable after detection
			body, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			assert.Equal(t, tc.body, string(body))
		})
	}
}

func TestIsHCLBasedOnExtension(t *testing.T) {
	assert.True(t, IsHCLBasedOnExtension("resample.hcl"))
	assert.True(t, IsHCLBasedOnExtension("main.tf"))
	assert.False(t, IsHCLBasedOnExtension("resample.json"))
}
