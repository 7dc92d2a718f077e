package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leowmjw/go-timeline-resample/pkg/operator"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration and list its operators",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "driver: workers=%d policy=%s\n", max(cfg.Driver.Workers, 1), cfg.Driver.Policy)
	for _, opCfg := range cfg.Operators {
		op, err := operator.New(opCfg)
		if err != nil {
			return err
		}
		cols := op.Columns()
		switch op.Kind() {
		case operator.KindInterpolate:
			fmt.Fprintf(out, "operator %s: interpolate %s..%s over [%s, %s) every %s -> %s, %s, %s\n",
				op.Name(), opCfg.StartValueColumn, opCfg.EndValueColumn, opCfg.StartColumn, opCfg.EndColumn,
				opCfg.BinSize, cols.Bin, cols.SplitDelta, cols.AfterValue)
		default:
			fmt.Fprintf(out, "operator %s: locf %s over [%s, %s) every %s -> %s, %s\n",
				op.Name(), opCfg.ValueColumn, opCfg.StartColumn, opCfg.EndColumn,
				opCfg.BinSize, cols.Bin, cols.Value)
		}
	}
	logger.Info("Configuration is valid", "path", configPath, "operators", len(cfg.Operators))
	return nil
}
