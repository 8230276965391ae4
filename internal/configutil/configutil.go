// Package configutil resolves settings that can come from either a
// cobra flag or a viper key. An explicitly set flag wins; otherwise the
// viper key (config file or env) is consulted; the flag default applies
// last.
package configutil

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func FlagOrViperString(cmd *cobra.Command, flagName, viperKey string) string {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetString(flagName)
		return v
	}
	if viperKey != "" {
		if v := viper.GetString(viperKey); v != "" {
			return v
		}
	}
	if cmd == nil {
		return ""
	}
	v, _ := cmd.Flags().GetString(flagName)
	return v
}

func FlagOrViperStringArray(cmd *cobra.Command, flagName, viperKey string) []string {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetStringArray(flagName)
		return v
	}
	if viperKey != "" {
		if v := viper.GetStringSlice(viperKey); len(v) > 0 {
			return v
		}
	}
	if cmd == nil {
		return nil
	}
	v, _ := cmd.Flags().GetStringArray(flagName)
	return v
}

func FlagOrViperBool(cmd *cobra.Command, flagName, viperKey string) bool {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetBool(flagName)
		return v
	}
	// IsSet keeps an explicit false in config or env able to override a
	// true flag default.
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetBool(viperKey)
	}
	if cmd == nil {
		return false
	}
	v, _ := cmd.Flags().GetBool(flagName)
	return v
}

func FlagOrViperInt(cmd *cobra.Command, flagName, viperKey string) int {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetInt(flagName)
		return v
	}
	if viperKey != "" {
		if v := viper.GetInt(viperKey); v != 0 {
			return v
		}
	}
	if cmd == nil {
		return 0
	}
	v, _ := cmd.Flags().GetInt(flagName)
	return v
}

func FlagOrViperFloat64(cmd *cobra.Command, flagName, viperKey string) float64 {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetFloat64(flagName)
		return v
	}
	if viperKey != "" {
		if v := viper.GetFloat64(viperKey); v != 0 {
			return v
		}
	}
	if cmd == nil {
		return 0
	}
	v, _ := cmd.Flags().GetFloat64(flagName)
	return v
}

func FlagOrViperDuration(cmd *cobra.Command, flagName, viperKey string) time.Duration {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetDuration(flagName)
		return v
	}
	if viperKey != "" {
		if v := viper.GetDuration(viperKey); v != 0 {
			return v
		}
	}
	if cmd == nil {
		return 0
	}
	v, _ := cmd.Flags().GetDuration(flagName)
	return v
}

func flagChanged(cmd *cobra.Command, flagName string) bool {
	if cmd == nil {
		return false
	}
	f := cmd.Flags().Lookup(flagName)
	return f != nil && f.Changed
}
