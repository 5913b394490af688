package main

import (
	"bytes"
	"math"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lidarqa/density-cli/internal/config"
	"github.com/lidarqa/density-cli/internal/mask"
	"github.com/lidarqa/density-cli/internal/pipeline"
	"github.com/lidarqa/density-cli/internal/units"
)

func testConfig() *config.Config {
	return &config.Config{
		Units:    config.UnitsConfig{Limit: 50, Divisor: 25},
		Pipeline: config.PipelineConfig{Workers: 1},
	}
}

func TestPrintExhausted(t *testing.T) {
	var buf bytes.Buffer
	printExhausted(&buf, &units.ExhaustedError{Failed: []string{"/in/c.tif", "/in/d.tif"}, Divisor: 25}, 50)

	out := buf.String()
	assert.Contains(t, out, "2 raster(s) after 2 normalization(s) by 25")
	assert.Contains(t, out, "  /in/c.tif\n")
	assert.Contains(t, out, "  /in/d.tif\n")
	assert.Contains(t, out, "--divisor")
	assert.Contains(t, out, "--skip-unit-check")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &pipeline.RunResult{
		Results: []*mask.Result{
			{Source: "/in/a.tif", OutputPath: "/out/DENSITY_GRIDS_MASKED/a_MASKED.tif", Values: []float64{1, 2, math.NaN()}},
			{Source: "/in/b.tif", Values: []float64{math.NaN()}},
		},
		MaskFailures: []pipeline.MaskFailure{{Path: "/in/x.tif", Error: "boom"}},
		ErrorLog:     "/out/masking_errors.log",
	})

	out := buf.String()
	assert.Contains(t, out, "masked 2 raster(s)")
	assert.Contains(t, out, "/in/a.tif -> /out/DENSITY_GRIDS_MASKED/a_MASKED.tif (2 valid cells)")
	assert.Contains(t, out, "/in/b.tif -> (no valid cells, not written)")
	assert.Contains(t, out, "1 raster(s) failed to mask, see /out/masking_errors.log")
}

func TestApplyRunFlags_OnlyChangedFlagsOverride(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().Float64Var(&runDivisor, "divisor", units.DefaultDivisor, "")
	cmd.Flags().Float64Var(&runLimit, "limit", units.DefaultLimit, "")
	cmd.Flags().StringVar(&runDatabaseURL, "database-url", "", "")
	cmd.Flags().IntVar(&runWorkers, "workers", 1, "")
	cmd.Flags().BoolVar(&runSnapshot, "snapshot", false, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--divisor", "10", "--workers", "3"}))

	c := testConfig()
	c.Units.Limit = 60
	c.Database.URL = "postgres://from-config"
	applyRunFlags(cmd, c)

	assert.Equal(t, 10.0, c.Units.Divisor)
	assert.Equal(t, 3, c.Pipeline.Workers)
	assert.Equal(t, 60.0, c.Units.Limit)
	assert.Equal(t, "postgres://from-config", c.Database.URL)
	assert.False(t, c.Pipeline.Snapshot)
}
