package hcl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHCLDirectoryMerging(t *testing.T) {
	t.Run("Split Directory", func(t *testing.T) {
		cfg, err := ParseHCLDirectory("testdata/split")
		require.NoError(t, err)

		jsonContent, err := os.ReadFile("testdata/split_merged.json")
		require.NoError(t, err)
		expected, err := ParseJSONConfig(jsonContent)
		require.NoError(t, err)

		AssertConfigsEqual(t, expected, cfg)
	})

	t.Run("Empty Directory", func(t *testing.T) {
		_, err := ParseHCLDirectory(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no HCL files found")
	})

	t.Run("Conflicting Files", func(t *testing.T) {
		dir := t.TempDir()
		block := []byte(`operator "door" {
  kind         = "locf"
  start_column = "start"
  end_column   = "end"
  value_column = "state"
  bin_size     = "1h"
}
`)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"), block, 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "b.hcl"), block, 0o644))

		_, err := ParseHCLDirectory(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "defined more than once")
	})
}

func TestMergeHCLFilesMissingFile(t *testing.T) {
	_, err := MergeHCLFiles([]string{"testdata/split/00_driver.hcl", "testdata/split/nope.hcl"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}
