package configutil

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag values take precedence over config file / env values when the flag
// was set explicitly on the command line.

func FlagOrViperString(cmd *cobra.Command, flagName, viperKey string) string {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		v, _ := cmd.Flags().GetString(flagName)
		return v
	}
	return viper.GetString(viperKey)
}

func FlagOrViperInt(cmd *cobra.Command, flagName, viperKey string) int {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		v, _ := cmd.Flags().GetInt(flagName)
		return v
	}
	return viper.GetInt(viperKey)
}

func FlagOrViperBool(cmd *cobra.Command, flagName, viperKey string) bool {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		v, _ := cmd.Flags().GetBool(flagName)
		return v
	}
	return viper.GetBool(viperKey)
}

func FlagOrViperFloat(cmd *cobra.Command, flagName, viperKey string) float64 {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		v, _ := cmd.Flags().GetFloat64(flagName)
		return v
	}
	return viper.GetFloat64(viperKey)
}

func FlagOrViperStringArray(cmd *cobra.Command, flagName, viperKey string) []string {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		v, _ := cmd.Flags().GetStringArray(flagName)
		return v
	}
	return viper.GetStringSlice(viperKey)
}
