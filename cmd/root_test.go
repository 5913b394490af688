package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"run", "check", "water"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "density-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"raster", "project-area", "output-dir", "database-url", "skip-unit-check", "snapshot"} {
		require.NotNil(t, runCmd.Flags().Lookup(name), "run command should have --%s", name)
	}
	assert.Equal(t, "25", runCmd.Flags().Lookup("divisor").DefValue)
	assert.Equal(t, "50", runCmd.Flags().Lookup("limit").DefValue)
	assert.Equal(t, "1", runCmd.Flags().Lookup("workers").DefValue)
}

func TestCheckCommand_Flags(t *testing.T) {
	require.NotNil(t, checkCmd.Flags().Lookup("raster"))
	assert.Equal(t, "50", checkCmd.Flags().Lookup("limit").DefValue)
}

func TestWaterCommand_Flags(t *testing.T) {
	for _, name := range []string{"project-area", "database-url", "cache", "out"} {
		require.NotNil(t, waterCmd.Flags().Lookup(name), "water command should have --%s", name)
	}
}
