package hcl

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/leowmjw/go-timeline-resample/pkg/engine"
	"github.com/leowmjw/go-timeline-resample/pkg/operator"
)

// Config is a resampling configuration: driver settings plus any number of
// named operators.
type Config struct {
	Driver    DriverConfig      `json:"driver"`
	Operators []operator.Config `json:"operators"`
}

// DriverConfig holds the settings shared by every operator run.
type DriverConfig struct {
	Workers int                  `json:"workers,omitempty"`
	Policy  engine.FailurePolicy `json:"policy,omitempty"`
}

// Operator returns the operator called name.
func (c *Config) Operator(name string) (operator.Config, bool) {
	for _, op := range c.Operators {
		if op.Name == name {
			return op, true
		}
	}
	return operator.Config{}, false
}

// Validate checks every operator and the driver settings.
func (c *Config) Validate() error {
	policy, err := engine.ParseFailurePolicy(string(c.Driver.Policy))
	if err != nil {
		return err
	}
	c.Driver.Policy = policy
	if c.Driver.Workers < 0 {
		return fmt.Errorf("driver workers must not be negative, got %d", c.Driver.Workers)
	}

	seen := make(map[string]bool, len(c.Operators))
	for _, op := range c.Operators {
		if seen[op.Name] {
			return fmt.Errorf("operator %q defined more than once", op.Name)
		}
		seen[op.Name] = true
		if _, err := op.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// HCLConfig is the HCL layout of a configuration file.
type HCLConfig struct {
	Driver    *HCLDriver    `hcl:"driver,block"`
	Operators []HCLOperator `hcl:"operator,block"`
}

// HCLDriver represents the optional driver block
type HCLDriver struct {
	Workers *int    `hcl:"workers,optional"`
	Policy  *string `hcl:"policy,optional"`
}

// HCLOperator represents one operator block; the label is the operator name.
type HCLOperator struct {
	Name             string     `hcl:"name,label"`
	Kind             string     `hcl:"kind"`
	StartColumn      string     `hcl:"start_column"`
	EndColumn        string     `hcl:"end_column"`
	ValueColumn      *string    `hcl:"value_column,optional"`
	StartValueColumn *string    `hcl:"start_value_column,optional"`
	EndValueColumn   *string    `hcl:"end_value_column,optional"`
	BinSize          string     `hcl:"bin_size"`
	Location         *string    `hcl:"location,optional"`
	Passthrough      []string   `hcl:"passthrough,optional"`
	Output           *HCLOutput `hcl:"output,block"`
}

// HCLOutput renames generated columns
type HCLOutput struct {
	Bin        *string `hcl:"bin,optional"`
	Value      *string `hcl:"value,optional"`
	SplitDelta *string `hcl:"split_delta,optional"`
	AfterValue *string `hcl:"after_value,optional"`
}

// ParseConfig parses HCL content and validates the resulting configuration.
func ParseConfig(content []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(content, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %s", diags.Error())
	}
	return decodeFile(file)
}

// ParseJSONConfig parses the JSON form of a configuration.
func ParseJSONConfig(content []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeFile(file *hcl.File) (*Config, error) {
	var hclConfig HCLConfig
	diags := gohcl.DecodeBody(file.Body, evalContext(), &hclConfig)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL body: %s", diags.Error())
	}

	cfg := convertHCLConfig(&hclConfig)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func convertHCLConfig(hclConfig *HCLConfig) *Config {
	cfg := &Config{
		Operators: make([]operator.Config, 0, len(hclConfig.Operators)),
	}

	if d := hclConfig.Driver; d != nil {
		if d.Workers != nil {
			cfg.Driver.Workers = *d.Workers
		}
		if d.Policy != nil {
			cfg.Driver.Policy = engine.FailurePolicy(*d.Policy)
		}
	}

	for _, hclOp := range hclConfig.Operators {
		op := operator.Config{
			Name:        hclOp.Name,
			Kind:        operator.Kind(hclOp.Kind),
			StartColumn: hclOp.StartColumn,
			EndColumn:   hclOp.EndColumn,
			BinSize:     hclOp.BinSize,
			Passthrough: hclOp.Passthrough,
		}
		op.ValueColumn = deref(hclOp.ValueColumn)
		op.StartValueColumn = deref(hclOp.StartValueColumn)
		op.EndValueColumn = deref(hclOp.EndValueColumn)
		op.Location = deref(hclOp.Location)

		if out := hclOp.Output; out != nil {
			op.Output = operator.OutputColumns{
				Bin:        deref(out.Bin),
				Value:      deref(out.Value),
				SplitDelta: deref(out.SplitDelta),
				AfterValue: deref(out.AfterValue),
			}
		}

		cfg.Operators = append(cfg.Operators, op)
	}
	return cfg
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// evalContext holds the functions available in configuration expressions.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{},
		Functions: map[string]function.Function{
			"duration": durationFunc,
			"format":   stdlib.FormatFunc,
			"lower":    stdlib.LowerFunc,
			"upper":    stdlib.UpperFunc,
		},
	}
}

// durationFunc builds a bin size string from an amount and a unit,
// e.g. duration(15, "m") is "15m0s".
var durationFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "amount", Type: cty.Number},
		{Name: "unit", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		amount := args[0].AsBigFloat().Text('f', -1)
		d, err := time.ParseDuration(amount + args[1].AsString())
		if err != nil {
			return cty.UnknownVal(cty.String), err
		}
		return cty.StringVal(d.String()), nil
	},
})

// IsHCL attempts to detect if the given content is in HCL format
func IsHCL(content []byte) bool {
	_, diags := hclsyntax.ParseConfig(content, "", hcl.Pos{Line: 1, Column: 1})
	return !diags.HasErrors()
}
