// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfigTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("data-dir", "knowledge", "")
	cmd.Flags().Int("max-results", 20, "")
	cmd.Flags().Float64("min-confidence", 0, "")
	return cmd
}

func TestConfigResolutionFlagDefaults(t *testing.T) {
	viper.Reset()
	cmd := newConfigTestCmd()

	assert.Equal(t, "knowledge", configString(cmd, "data-dir", "data_dir"))
	assert.Equal(t, 20, configInt(cmd, "max-results", "max_results"))
	assert.Equal(t, 0.0, configFloat64(cmd, "min-confidence", "min_pattern_confidence"))
}

func TestConfigResolutionConfigFileOverridesDefault(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("data_dir", "/srv/knowledge")
	viper.Set("max_results", 50)
	viper.Set("min_pattern_confidence", 0.4)

	cmd := newConfigTestCmd()

	assert.Equal(t, "/srv/knowledge", configString(cmd, "data-dir", "data_dir"))
	assert.Equal(t, 50, configInt(cmd, "max-results", "max_results"))
	assert.Equal(t, 0.4, configFloat64(cmd, "min-confidence", "min_pattern_confidence"))
}

func TestConfigResolutionExplicitFlagWins(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("data_dir", "/srv/knowledge")
	viper.Set("max_results", 50)

	cmd := newConfigTestCmd()
	require.NoError(t, cmd.Flags().Set("data-dir", "/tmp/kb"))
	require.NoError(t, cmd.Flags().Set("max-results", "7"))

	assert.Equal(t, "/tmp/kb", configString(cmd, "data-dir", "data_dir"))
	assert.Equal(t, 7, configInt(cmd, "max-results", "max_results"))
}
